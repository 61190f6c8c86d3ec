// Package testing drives live components without a browser or websocket.
// A LiveTest mounts a component on a socket backed by a MockTransport,
// pushes events the way the session loop does and exposes the DOM
// commands the component sent back.
package testing

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gabrielmiguelok/liveintake/pkg/core"
	"github.com/gabrielmiguelok/liveintake/pkg/js"
)

// LiveTest provides a testing harness for live components.
type LiveTest struct {
	t         testing.TB
	component core.Component
	transport *MockTransport
	socket    *core.Socket
	ctx       context.Context
	params    core.Params
	session   core.Session
}

// MountOption configures the test mount.
type MountOption func(*LiveTest)

// WithParams sets mount parameters.
func WithParams(params core.Params) MountOption {
	return func(lt *LiveTest) {
		lt.params = params
	}
}

// WithSession sets session data.
func WithSession(session core.Session) MountOption {
	return func(lt *LiveTest) {
		lt.session = session
	}
}

// WithClientID sets the durable client id in the session.
func WithClientID(id string) MountOption {
	return func(lt *LiveTest) {
		lt.session["client_id"] = id
	}
}

// Mount creates a socket, mounts comp on it and flushes the commands
// queued while mounting. The component is terminated on test cleanup.
func Mount(t testing.TB, comp core.Component, opts ...MountOption) *LiveTest {
	t.Helper()

	lt := &LiveTest{
		t:         t,
		component: comp,
		transport: NewMockTransport(),
		params:    core.Params{},
		session:   core.Session{"client_id": uuid.NewString()},
	}
	for _, opt := range opts {
		opt(lt)
	}

	lt.socket = core.NewSocket("test-"+uuid.NewString()[:8], lt.transport)
	if sa, ok := comp.(core.SocketAware); ok {
		sa.SetSocket(lt.socket)
	}
	lt.ctx = core.BuildContext(context.Background(), lt.socket, comp, lt.session, lt.params)

	if err := comp.Mount(lt.ctx, lt.params, lt.session); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	lt.flush()

	t.Cleanup(func() {
		_ = comp.Terminate(lt.ctx, core.TerminateNormal)
		_ = lt.socket.Close()
	})
	return lt
}

// Push sends an event and fails the test if the component returns an error.
func (lt *LiveTest) Push(event string, payload map[string]any) *LiveTest {
	lt.t.Helper()
	if err := lt.PushErr(event, payload); err != nil {
		lt.t.Fatalf("event %q failed: %v", event, err)
	}
	return lt
}

// PushErr sends an event and returns the component's error.
func (lt *LiveTest) PushErr(event string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	err := lt.component.HandleEvent(lt.ctx, event, payload)
	lt.flush()
	return err
}

// Info delivers an internal message to the component.
func (lt *LiveTest) Info(msg any) *LiveTest {
	lt.t.Helper()
	if err := lt.component.HandleInfo(lt.ctx, msg); err != nil {
		lt.t.Fatalf("info %T failed: %v", msg, err)
	}
	lt.flush()
	return lt
}

// Drain handles every message already in the mailbox and returns how
// many there were.
func (lt *LiveTest) Drain() int {
	lt.t.Helper()
	n := 0
	for {
		select {
		case msg := <-lt.socket.Mailbox():
			lt.deliver(msg)
			n++
		default:
			return n
		}
	}
}

// Await waits up to timeout for one mailbox message and handles it.
func (lt *LiveTest) Await(timeout time.Duration) *LiveTest {
	lt.t.Helper()
	select {
	case msg := <-lt.socket.Mailbox():
		lt.deliver(msg)
	case <-time.After(timeout):
		lt.t.Fatalf("no mailbox message within %s", timeout)
	}
	return lt
}

func (lt *LiveTest) deliver(msg any) {
	lt.t.Helper()
	if d, ok := msg.(core.Deferred); ok {
		d()
		lt.flush()
		return
	}
	lt.Info(msg)
}

// Render renders the component's full markup.
func (lt *LiveTest) Render() string {
	lt.t.Helper()
	r := lt.component.Render(lt.ctx)
	if r == nil {
		lt.t.Fatal("component returned nil renderer")
	}
	var buf bytes.Buffer
	if err := r.Render(lt.ctx, &buf); err != nil {
		lt.t.Fatalf("render failed: %v", err)
	}
	return buf.String()
}

// Commands returns every command sent since mount or the last Reset.
func (lt *LiveTest) Commands() js.Commands {
	return lt.transport.Commands()
}

// Find returns the sent commands with the given op.
func (lt *LiveTest) Find(op string) js.Commands {
	return lt.Commands().Find(op)
}

// Reset forgets the commands sent so far.
func (lt *LiveTest) Reset() *LiveTest {
	lt.transport.Reset()
	return lt
}

// Socket returns the component's socket.
func (lt *LiveTest) Socket() *core.Socket {
	return lt.socket
}

// Transport returns the mock transport.
func (lt *LiveTest) Transport() *MockTransport {
	return lt.transport
}

// Context returns the context events are handled with.
func (lt *LiveTest) Context() context.Context {
	return lt.ctx
}

func (lt *LiveTest) flush() {
	lt.t.Helper()
	if err := lt.socket.Flush(); err != nil {
		lt.t.Fatalf("flush failed: %v", err)
	}
}
