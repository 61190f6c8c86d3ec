package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabrielmiguelok/liveintake/pkg/js"
	"github.com/gabrielmiguelok/liveintake/pkg/protocol"
)

// Common socket errors.
var (
	ErrSocketClosed = errors.New("socket is closed")
	ErrSendFailed   = errors.New("failed to send message")
)

// DefaultMailboxSize is the buffer of a socket mailbox.
const DefaultMailboxSize = 64

// Transport is the interface for underlying connection transports.
type Transport interface {
	Send(msg *protocol.Message) error
	Close() error
	IsConnected() bool
}

// Deferred is a function posted to the mailbox that must run on the
// session goroutine.
type Deferred func()

// Socket represents a live connection to a client. Commands queued with
// Exec are sent as one exec message on Flush. Work that happens off the
// session goroutine (timers, ticks) is posted to the mailbox.
type Socket struct {
	id          string
	topic       string
	connectedAt time.Time

	// lastActivity as Unix nanoseconds
	lastActivity atomic.Int64

	transport Transport
	mailbox   chan any
	done      chan struct{}

	connected  bool
	pending    js.Commands
	timers     map[*time.Timer]struct{}
	metadata   map[string]any
	errorCount int

	mu sync.RWMutex
}

// NewSocket creates a new socket with the given ID and transport.
func NewSocket(id string, transport Transport) *Socket {
	now := time.Now()
	s := &Socket{
		id:          id,
		topic:       "lv:" + id,
		connectedAt: now,
		transport:   transport,
		mailbox:     make(chan any, DefaultMailboxSize),
		done:        make(chan struct{}),
		connected:   true,
		timers:      make(map[*time.Timer]struct{}),
		metadata:    make(map[string]any),
	}
	s.lastActivity.Store(now.UnixNano())
	return s
}

// ID returns the socket's unique identifier.
func (s *Socket) ID() string {
	return s.id
}

// Topic returns the protocol topic of the socket.
func (s *Socket) Topic() string {
	return s.topic
}

// IsConnected returns true if the socket is connected.
func (s *Socket) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected && s.transport != nil && s.transport.IsConnected()
}

// ConnectedAt returns when the socket connected.
func (s *Socket) ConnectedAt() time.Time {
	return s.connectedAt
}

// LastActivity returns the time of last activity.
func (s *Socket) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// UpdateActivity updates the last activity timestamp.
func (s *Socket) UpdateActivity() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// Done is closed when the socket closes.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Send sends a message to the client.
func (s *Socket) Send(msg *protocol.Message) error {
	s.mu.RLock()
	connected := s.connected
	transport := s.transport
	s.mu.RUnlock()

	if !connected || transport == nil || !transport.IsConnected() {
		return ErrSocketClosed
	}

	s.lastActivity.Store(time.Now().UnixNano())

	if err := transport.Send(msg); err != nil {
		s.mu.RLock()
		stillConnected := s.connected
		s.mu.RUnlock()
		if !stillConnected {
			return ErrSocketClosed
		}
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// Exec queues DOM commands for the next Flush.
func (s *Socket) Exec(cmds ...js.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, cmds...)
}

// Pending returns a copy of the queued commands.
func (s *Socket) Pending() js.Commands {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(js.Commands, len(s.pending))
	copy(out, s.pending)
	return out
}

// Flush sends the queued commands as a single exec message. Nothing is
// sent when the queue is empty.
func (s *Socket) Flush() error {
	s.mu.Lock()
	cmds := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(cmds) == 0 {
		return nil
	}
	return s.Send(protocol.ExecMessage(s.topic, cmds))
}

// Push sends an event to the client.
func (s *Socket) Push(event string, payload map[string]any) error {
	return s.Send(protocol.NewMessage(protocol.MsgEvent, s.topic, event).WithPayload(payload))
}

// Render replaces the component markup on the client.
func (s *Socket) Render(html string) error {
	return s.Send(protocol.RenderMessage(s.topic, html))
}

// Post delivers msg to the mailbox without blocking. It reports false
// when the mailbox is full or the socket is closed.
func (s *Socket) Post(msg any) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.mailbox <- msg:
		return true
	default:
		return false
	}
}

// Dispatch delivers msg to the mailbox, waiting for room. It reports false
// when the socket closed first.
func (s *Socket) Dispatch(msg any) bool {
	select {
	case s.mailbox <- msg:
		return true
	case <-s.done:
		return false
	}
}

// Mailbox returns the channel the session loop drains.
func (s *Socket) Mailbox() <-chan any {
	return s.mailbox
}

// AfterFunc runs f on the session goroutine once d has elapsed. Pending
// timers are stopped when the socket closes.
func (s *Socket) AfterFunc(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()

		select {
		case s.mailbox <- Deferred(f):
		case <-s.done:
		}
	})
	s.timers[t] = struct{}{}
}

// GetMetadata retrieves metadata by key.
func (s *Socket) GetMetadata(key string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata[key]
}

// SetMetadata stores metadata.
func (s *Socket) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = value
}

// Close closes the socket connection and stops its timers.
func (s *Socket) Close() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.connected = false
	close(s.done)
	for t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[*time.Timer]struct{})
	transport := s.transport
	s.mu.Unlock()

	if transport != nil {
		return transport.Close()
	}
	return nil
}

// IncrementErrorCount increments the error counter.
func (s *Socket) IncrementErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount++
	return s.errorCount
}

// ResetErrorCount resets the error counter.
func (s *Socket) ResetErrorCount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount = 0
}

// ErrorCount returns the current error count.
func (s *Socket) ErrorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errorCount
}

// SocketManager manages all active sockets.
type SocketManager struct {
	sockets    map[string]*Socket
	isShutdown bool
	mu         sync.RWMutex
}

// NewSocketManager creates a new socket manager.
func NewSocketManager() *SocketManager {
	return &SocketManager{
		sockets: make(map[string]*Socket),
	}
}

// Add registers a socket. It fails once the manager is shut down.
func (sm *SocketManager) Add(socket *Socket) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.isShutdown {
		return ErrSocketClosed
	}
	sm.sockets[socket.ID()] = socket
	return nil
}

// Remove unregisters a socket.
func (sm *SocketManager) Remove(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sockets, id)
}

// Get retrieves a socket by ID.
func (sm *SocketManager) Get(id string) (*Socket, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sockets[id]
	return s, ok
}

// Count returns the number of active sockets.
func (sm *SocketManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sockets)
}

// All returns all sockets.
func (sm *SocketManager) All() []*Socket {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	result := make([]*Socket, 0, len(sm.sockets))
	for _, s := range sm.sockets {
		result = append(result, s)
	}
	return result
}

// Shutdown refuses new sockets and closes the open ones. It returns early
// if ctx is done first.
func (sm *SocketManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	if sm.isShutdown {
		sm.mu.Unlock()
		return nil
	}
	sm.isShutdown = true
	sockets := make([]*Socket, 0, len(sm.sockets))
	for _, s := range sm.sockets {
		sockets = append(sockets, s)
	}
	sm.mu.Unlock()

	for _, s := range sockets {
		if err := ctx.Err(); err != nil {
			return err
		}
		_ = s.Close()
	}
	return nil
}

// IsShutdown returns true if the manager is shutting down.
func (sm *SocketManager) IsShutdown() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.isShutdown
}
