package testing

import (
	"sync"

	"github.com/gabrielmiguelok/liveintake/pkg/core"
	"github.com/gabrielmiguelok/liveintake/pkg/js"
	"github.com/gabrielmiguelok/liveintake/pkg/protocol"
)

// MockTransport implements core.Transport and records what is sent.
type MockTransport struct {
	Sent   []*protocol.Message
	Closed bool

	errorToSend error
	mu          sync.Mutex
}

// NewMockTransport creates a connected mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Send records a sent message.
func (mt *MockTransport) Send(msg *protocol.Message) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if mt.errorToSend != nil {
		return mt.errorToSend
	}
	if mt.Closed {
		return core.ErrSocketClosed
	}
	mt.Sent = append(mt.Sent, msg)
	return nil
}

// Close marks the transport as closed.
func (mt *MockTransport) Close() error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.Closed = true
	return nil
}

// IsConnected returns the connection status.
func (mt *MockTransport) IsConnected() bool {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return !mt.Closed
}

// SetError makes every following Send fail with err. Nil clears it.
func (mt *MockTransport) SetError(err error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.errorToSend = err
}

// Messages returns a copy of the sent messages.
func (mt *MockTransport) Messages() []*protocol.Message {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	out := make([]*protocol.Message, len(mt.Sent))
	copy(out, mt.Sent)
	return out
}

// Commands returns every DOM command sent in exec messages, in order.
func (mt *MockTransport) Commands() js.Commands {
	var out js.Commands
	for _, msg := range mt.Messages() {
		if msg.Type != protocol.MsgExec {
			continue
		}
		if ops, ok := msg.Payload["ops"].(js.Commands); ok {
			out = append(out, ops...)
		}
	}
	return out
}

// Reset forgets the sent messages.
func (mt *MockTransport) Reset() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.Sent = nil
}
