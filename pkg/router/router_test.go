package router

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/liveintake/pkg/core"
	"github.com/gabrielmiguelok/liveintake/pkg/js"
	"github.com/gabrielmiguelok/liveintake/pkg/protocol"
	"github.com/gabrielmiguelok/liveintake/pkg/transport"
)

// stepper is a minimal live component counting "next" events.
type stepper struct {
	core.BaseComponent
	step       int
	clientID   string
	terminated chan core.TerminateReason
}

func newStepper() *stepper {
	return &stepper{terminated: make(chan core.TerminateReason, 1)}
}

func (s *stepper) Name() string { return "stepper" }

func (s *stepper) Mount(ctx context.Context, params core.Params, session core.Session) error {
	s.step = 1
	s.clientID = session.GetString(SessionClientID)
	return nil
}

func (s *stepper) Render(ctx context.Context) core.Renderer {
	return core.RendererFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div id="step">%d</div>`, s.step)
		return err
	})
}

func (s *stepper) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	switch event {
	case "next":
		s.step++
		s.Socket().Exec(js.JS.SetText(js.ID("step"), fmt.Sprint(s.step)))
	case "later":
		s.Socket().AfterFunc(time.Millisecond, func() {
			s.Socket().Exec(js.JS.SetText(js.ID("step"), "later"))
		})
	case "boom":
		panic("kaboom")
	case "fail":
		return fmt.Errorf("cannot %s", event)
	}
	return nil
}

func (s *stepper) Terminate(ctx context.Context, reason core.TerminateReason) error {
	select {
	case s.terminated <- reason:
	default:
	}
	return nil
}

func layout(ctx context.Context, w io.Writer, body core.Renderer) error {
	route := RouteFromContext(ctx)
	fmt.Fprintf(w, `<main data-live="%s">`, route.SocketPath)
	if err := body.Render(ctx, w); err != nil {
		return err
	}
	_, err := io.WriteString(w, `</main>`)
	return err
}

func newTestServer(t *testing.T, comps chan *stepper) (*Router, *httptest.Server) {
	t.Helper()
	r := New()
	r.Live("/", "/live", func() core.Component {
		s := newStepper()
		if comps != nil {
			select {
			case comps <- s:
			default:
			}
		}
		return s
	}, WithLayout(layout))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return r, srv
}

func dial(t *testing.T, srv *httptest.Server) *transport.WebSocketTransport {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := transport.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/live", protocol.NewJSONCodec(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func recv(t *testing.T, c *transport.WebSocketTransport) *protocol.Message {
	t.Helper()
	select {
	case msg := <-c.Receive():
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func opsOf(t *testing.T, msg *protocol.Message) []map[string]any {
	t.Helper()
	require.Equal(t, protocol.MsgExec, msg.Type)
	raw, ok := msg.Payload["ops"].([]any)
	require.True(t, ok, "ops payload %#v", msg.Payload["ops"])
	out := make([]map[string]any, 0, len(raw))
	for _, op := range raw {
		out = append(out, op.(map[string]any))
	}
	return out
}

func TestRouter_PageRenderSetsClientCookie(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `<main data-live="/live"><div id="step">1</div></main>`, string(body))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "intake_client" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Len(t, cookie.Value, 36)
}

func TestRouter_PageKeepsExistingClientID(t *testing.T) {
	r := New()
	comps := make(chan *stepper, 1)
	r.Live("/", "/live", func() core.Component {
		s := newStepper()
		comps <- s
		return s
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "intake_client", Value: "6f1c1a53-8c3e-4c1e-9d67-2f8b4b8f0c11"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Empty(t, rec.Result().Cookies())
	s := <-comps
	assert.Equal(t, "6f1c1a53-8c3e-4c1e-9d67-2f8b4b8f0c11", s.clientID)
}

func TestRouter_PageRejectsOtherMethodsAndPaths(t *testing.T) {
	r, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_JoinThenEvents(t *testing.T) {
	r, srv := newTestServer(t, nil)
	c := dial(t, srv)

	require.NoError(t, c.Send(protocol.JoinMessage("", nil).WithRef("1")))
	reply := recv(t, c)
	require.Equal(t, protocol.MsgReply, reply.Type)
	assert.Equal(t, "1", reply.Ref)
	resp := reply.Payload["response"].(map[string]any)
	assert.Equal(t, `<div id="step">1</div>`, resp["html"])
	assert.Equal(t, 1, r.Sessions().Count())

	require.NoError(t, c.Send(protocol.EventMessage("", "next", nil)))
	ops := opsOf(t, recv(t, c))
	require.Len(t, ops, 1)
	assert.Equal(t, "setText", ops[0]["op"])
	assert.Equal(t, "#step", ops[0]["to"])
}

func TestRouter_EventBeforeJoin(t *testing.T) {
	_, srv := newTestServer(t, nil)
	c := dial(t, srv)

	require.NoError(t, c.Send(protocol.EventMessage("", "next", nil).WithRef("9")))
	msg := recv(t, c)
	assert.Equal(t, protocol.MsgError, msg.Type)
	assert.Equal(t, "9", msg.Ref)
}

func TestRouter_PanicIsRecoveredPerEvent(t *testing.T) {
	_, srv := newTestServer(t, nil)
	c := dial(t, srv)

	require.NoError(t, c.Send(protocol.JoinMessage("", nil)))
	recv(t, c)

	require.NoError(t, c.Send(protocol.EventMessage("", "boom", nil).WithRef("2")))
	msg := recv(t, c)
	assert.Equal(t, protocol.MsgError, msg.Type)
	assert.Contains(t, msg.Payload["response"].(map[string]any)["reason"], "kaboom")

	require.NoError(t, c.Send(protocol.EventMessage("", "fail", nil)))
	msg = recv(t, c)
	assert.Equal(t, protocol.MsgError, msg.Type)

	require.NoError(t, c.Send(protocol.EventMessage("", "next", nil)))
	ops := opsOf(t, recv(t, c))
	assert.Equal(t, "2", ops[0]["args"].(map[string]any)["text"])
}

func TestRouter_DeferredRunsOnSessionLoop(t *testing.T) {
	_, srv := newTestServer(t, nil)
	c := dial(t, srv)

	require.NoError(t, c.Send(protocol.JoinMessage("", nil)))
	recv(t, c)
	require.NoError(t, c.Send(protocol.EventMessage("", "later", nil)))

	ops := opsOf(t, recv(t, c))
	assert.Equal(t, "later", ops[0]["args"].(map[string]any)["text"])
}

func TestRouter_DisconnectTerminates(t *testing.T) {
	comps := make(chan *stepper, 2)
	r, srv := newTestServer(t, comps)
	c := dial(t, srv)

	require.NoError(t, c.Send(protocol.JoinMessage("", nil)))
	recv(t, c)
	s := <-comps
	c.Close()

	select {
	case reason := <-s.terminated:
		assert.Equal(t, core.TerminateNormal, reason)
	case <-time.After(5 * time.Second):
		t.Fatal("component was not terminated")
	}
	require.Eventually(t, func() bool { return r.Sessions().Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestRouter_Shutdown(t *testing.T) {
	comps := make(chan *stepper, 2)
	r, srv := newTestServer(t, comps)
	c := dial(t, srv)
	require.NoError(t, c.Send(protocol.JoinMessage("", nil)))
	recv(t, c)
	s := <-comps

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	select {
	case reason := <-s.terminated:
		assert.Equal(t, core.TerminateShutdown, reason)
	default:
		t.Fatal("component was not terminated")
	}
}

func TestSessionManager_LimitAndCleanup(t *testing.T) {
	m := NewSessionManager(&SessionManagerConfig{MaxSessions: 1, IdleTimeout: time.Minute})
	sock := core.NewSocket("a", nil)
	ls := newLiveSession("a", newStepper(), sock, nil, nil, core.Session{SessionClientID: "c"})

	require.NoError(t, m.Add(ls))
	assert.ErrorIs(t, m.Add(newLiveSession("b", newStepper(), core.NewSocket("b", nil), nil, nil, nil)), ErrTooManySessions)
	assert.Equal(t, "c", ls.ClientID())

	now := time.Now()
	m.now = func() time.Time { return now.Add(2 * time.Minute) }
	assert.Equal(t, 1, m.Cleanup())
	assert.Equal(t, core.TerminateTimeout, ls.terminateReason())
	select {
	case <-sock.Done():
	default:
		t.Error("idle socket should be closed")
	}
}

func TestSecureHeaders_Nonce(t *testing.T) {
	var nonce string
	h := SecureHeaders()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce = GetCSPNonce(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	require.NotEmpty(t, nonce)
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "'nonce-"+nonce+"'")
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/live", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, http.StatusTooManyRequests}, codes)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://status.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("Origin", "https://status.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://status.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
