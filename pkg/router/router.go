// Package router serves live components over HTTP: the initial page render
// and the websocket session loop that drives them afterwards.
package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gabrielmiguelok/liveintake/pkg/core"
	"github.com/gabrielmiguelok/liveintake/pkg/logging"
	"github.com/gabrielmiguelok/liveintake/pkg/metrics"
	"github.com/gabrielmiguelok/liveintake/pkg/protocol"
	"github.com/gabrielmiguelok/liveintake/pkg/transport"
)

// Common router errors.
var (
	ErrNilRenderer     = errors.New("component returned nil renderer")
	ErrNotJoined       = errors.New("event received before join")
	ErrComponentPanic  = errors.New("component panicked")
	ErrUnsupportedType = errors.New("unsupported message type")
)

// SessionClientID is the session key holding the durable client id.
const SessionClientID = "client_id"

// Middleware is a function that wraps an HTTP handler.
type Middleware func(http.Handler) http.Handler

// ErrorHandler handles errors during request processing.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Layout wraps a component's markup into a full page.
type Layout func(ctx context.Context, w io.Writer, body core.Renderer) error

// LiveRoute defines a page rendering a live component and the websocket
// path its client joins.
type LiveRoute struct {
	// Path is the page path.
	Path string

	// SocketPath is the websocket path.
	SocketPath string

	// Component is the factory function for creating the component.
	Component func() core.Component

	// Layout wraps the initial render. Nil renders the component alone.
	Layout Layout

	// Middleware are route-specific middleware.
	Middleware []Middleware
}

// RouteOption configures a live route.
type RouteOption func(*LiveRoute)

// WithLayout sets the page layout.
func WithLayout(layout Layout) RouteOption {
	return func(r *LiveRoute) {
		r.Layout = layout
	}
}

// WithRouteMiddleware adds route-specific middleware.
func WithRouteMiddleware(mw ...Middleware) RouteOption {
	return func(r *LiveRoute) {
		r.Middleware = append(r.Middleware, mw...)
	}
}

type routeContextKey struct{}

// WithRouteContext adds route info to context.
func WithRouteContext(ctx context.Context, route *LiveRoute) context.Context {
	return context.WithValue(ctx, routeContextKey{}, route)
}

// RouteFromContext retrieves route info from context.
func RouteFromContext(ctx context.Context) *LiveRoute {
	route, _ := ctx.Value(routeContextKey{}).(*LiveRoute)
	return route
}

// CookieConfig configures the durable client id cookie.
type CookieConfig struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

// DefaultCookieConfig returns the default client id cookie settings.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Name:   "intake_client",
		MaxAge: 365 * 24 * time.Hour,
	}
}

// Router handles HTTP routing for live components.
type Router struct {
	mux          *http.ServeMux
	middleware   []Middleware
	errorHandler ErrorHandler

	logger          logging.Logger
	metrics         *metrics.Metrics
	cookie          CookieConfig
	transportConfig *transport.TransportConfig
	wsConfig        *transport.WebSocketConfig

	sessions *SessionManager
	sockets  *core.SocketManager

	baseCtx context.Context
	cancel  context.CancelFunc
	loops   sync.WaitGroup

	mu sync.RWMutex
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithCookie sets the client id cookie configuration.
func WithCookie(c CookieConfig) Option {
	return func(r *Router) {
		r.cookie = c
	}
}

// WithTransportConfig sets websocket timeouts and buffers.
func WithTransportConfig(c *transport.TransportConfig) Option {
	return func(r *Router) {
		r.transportConfig = c
	}
}

// WithWebSocketConfig sets origin checks and codecs.
func WithWebSocketConfig(c *transport.WebSocketConfig) Option {
	return func(r *Router) {
		r.wsConfig = c
	}
}

// WithSessionConfig sets session limits.
func WithSessionConfig(c *SessionManagerConfig) Option {
	return func(r *Router) {
		r.sessions = NewSessionManager(c)
	}
}

// New creates a new router.
func New(opts ...Option) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		mux:             http.NewServeMux(),
		logger:          logging.NopLogger{},
		cookie:          DefaultCookieConfig(),
		transportConfig: transport.DefaultTransportConfig(),
		wsConfig:        transport.DefaultWebSocketConfig(),
		sessions:        NewSessionManager(nil),
		sockets:         core.NewSocketManager(),
		baseCtx:         ctx,
		cancel:          cancel,
	}
	r.errorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
		logging.L(req.Context()).Error("request failed", logging.Err(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Use adds middleware to the router. It applies to routes registered
// afterwards.
func (r *Router) Use(mw Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
}

// SetErrorHandler sets the error handler.
func (r *Router) SetErrorHandler(handler ErrorHandler) {
	r.errorHandler = handler
}

// Sessions returns the session manager.
func (r *Router) Sessions() *SessionManager {
	return r.sessions
}

// Handle registers a standard HTTP handler behind the global middleware.
func (r *Router) Handle(pattern string, handler http.Handler) {
	r.mux.Handle(pattern, r.wrap(handler, nil))
}

// HandleFunc registers a standard HTTP handler function.
func (r *Router) HandleFunc(pattern string, handler http.HandlerFunc) {
	r.Handle(pattern, handler)
}

// Live registers a page at path and its websocket at socketPath.
func (r *Router) Live(path, socketPath string, component func() core.Component, opts ...RouteOption) *LiveRoute {
	route := &LiveRoute{
		Path:       path,
		SocketPath: socketPath,
		Component:  component,
	}
	for _, opt := range opts {
		opt(route)
	}

	r.mux.Handle(path, r.wrap(r.servePage(route), route.Middleware))
	r.mux.Handle(socketPath, r.wrap(r.serveLive(route), route.Middleware))
	return route
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Shutdown stops accepting sessions, closes the open ones and waits for
// their loops to finish or ctx to end.
func (r *Router) Shutdown(ctx context.Context) error {
	r.cancel()
	for _, ls := range r.sessions.All() {
		ls.expire(core.TerminateShutdown)
	}
	if err := r.sockets.Shutdown(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		r.loops.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) wrap(h http.Handler, route []Middleware) http.Handler {
	for i := len(route) - 1; i >= 0; i-- {
		h = route[i](h)
	}

	r.mu.RLock()
	global := make([]Middleware, len(r.middleware))
	copy(global, r.middleware)
	r.mu.RUnlock()

	for i := len(global) - 1; i >= 0; i-- {
		h = global[i](h)
	}
	return h
}

// servePage mounts a fresh component and renders it inside the layout.
// The component is discarded afterwards; the live session mounts its own.
func (r *Router) servePage(route *LiveRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		if req.URL.Path != route.Path {
			http.NotFound(w, req)
			return
		}

		session := core.Session{SessionClientID: r.ensureClientID(w, req)}
		params := extractParams(req)
		comp := route.Component()

		ctx := WithRouteContext(req.Context(), route)
		ctx = core.BuildContext(ctx, nil, comp, session, params)

		if err := comp.Mount(ctx, params, session); err != nil {
			r.errorHandler(w, req, fmt.Errorf("mount %s: %w", comp.Name(), err))
			return
		}
		defer comp.Terminate(ctx, core.TerminateNormal)

		body := comp.Render(ctx)
		if body == nil {
			r.errorHandler(w, req, ErrNilRenderer)
			return
		}

		var buf bytes.Buffer
		var err error
		if route.Layout != nil {
			err = route.Layout(ctx, &buf, body)
		} else {
			err = body.Render(ctx, &buf)
		}
		if err != nil {
			r.errorHandler(w, req, fmt.Errorf("render %s: %w", comp.Name(), err))
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = buf.WriteTo(w)
	}
}

// serveLive upgrades the request and starts the session loop.
func (r *Router) serveLive(route *LiveRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.sockets.IsShutdown() {
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}

		log := logging.L(req.Context())
		t := transport.NewWebSocketTransport(r.transportConfig, r.wsConfig, r.logger)
		if err := t.Upgrade(w, req); err != nil {
			log.Warn("websocket upgrade failed", logging.Err(err))
			r.metrics.RecordError("upgrade")
			return
		}

		clientID := r.clientID(req)
		if clientID == "" {
			clientID = uuid.NewString()
		}
		socketID := uuid.NewString()
		session := core.Session{SessionClientID: clientID}
		params := extractParams(req)

		comp := route.Component()
		socket := core.NewSocket(socketID, t)
		if sa, ok := comp.(core.SocketAware); ok {
			sa.SetSocket(socket)
		}

		ls := newLiveSession(socketID, comp, socket, t, params, session)
		if err := r.sessions.Add(ls); err != nil {
			log.Warn("rejecting live session", logging.Err(err))
			_ = t.Send(protocol.ErrorReply("", socket.Topic(), err.Error()))
			_ = t.Close()
			return
		}
		if err := r.sockets.Add(socket); err != nil {
			r.sessions.Remove(socketID)
			_ = t.Close()
			return
		}
		r.metrics.SessionOpened()

		sessionLog := r.logger.With(
			logging.String("socket_id", socketID),
			logging.String("client_id", clientID),
			logging.String("codec", t.Codec().Name()),
		)
		ctx := WithRouteContext(r.baseCtx, route)
		ctx = core.BuildContext(ctx, socket, comp, session, params)
		ctx = logging.ContextWithLogger(ctx, sessionLog)

		sessionLog.Info("live session started")
		r.loops.Add(1)
		go r.serveSession(ctx, ls)
	}
}

// serveSession is the session loop. It alone touches the component:
// client messages and mailbox posts are handled one at a time.
func (r *Router) serveSession(ctx context.Context, ls *LiveSession) {
	defer r.loops.Done()
	defer r.closeSession(ctx, ls)

	for {
		select {
		case msg := <-ls.Transport.Receive():
			ls.Touch()
			ls.Socket.UpdateActivity()
			r.metrics.MessageReceived(msg.Type.String())
			r.handleMessage(ctx, ls, msg)

		case info := <-ls.Socket.Mailbox():
			r.handleInfo(ctx, ls, info)

		case <-ls.Transport.Done():
			return

		case <-ls.Socket.Done():
			return

		case <-ctx.Done():
			ls.expire(core.TerminateShutdown)
			return
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, ls *LiveSession, msg *protocol.Message) {
	switch msg.Type {
	case protocol.MsgJoin:
		r.handleJoin(ctx, ls, msg)
	case protocol.MsgEvent:
		r.handleEvent(ctx, ls, msg)
	case protocol.MsgHeartbeat:
	default:
		r.sendError(ctx, ls, msg.Ref, fmt.Errorf("%w: %s", ErrUnsupportedType, msg.Type))
	}
}

// handleJoin mounts the component once and replies with its markup.
// Commands queued while mounting follow the reply.
func (r *Router) handleJoin(ctx context.Context, ls *LiveSession, msg *protocol.Message) {
	if !ls.IsMounted() {
		err := r.safely(ctx, ls, func() error {
			return ls.Component.Mount(ctx, ls.Params, ls.Session)
		})
		if err != nil {
			r.sendError(ctx, ls, msg.Ref, err)
			return
		}
		ls.setMounted()
	}

	body := ls.Component.Render(ctx)
	if body == nil {
		r.sendError(ctx, ls, msg.Ref, ErrNilRenderer)
		return
	}

	var buf bytes.Buffer
	if err := r.safely(ctx, ls, func() error { return body.Render(ctx, &buf) }); err != nil {
		r.sendError(ctx, ls, msg.Ref, err)
		return
	}

	if err := ls.Socket.Send(protocol.OkReply(msg.Ref, ls.Socket.Topic(), map[string]any{
		"html": buf.String(),
	})); err != nil {
		logging.L(ctx).Debug("join reply not sent", logging.Err(err))
		return
	}
	r.flush(ctx, ls)
}

func (r *Router) handleEvent(ctx context.Context, ls *LiveSession, msg *protocol.Message) {
	if !ls.IsMounted() {
		r.sendError(ctx, ls, msg.Ref, ErrNotJoined)
		return
	}

	payload := msg.Payload
	if payload == nil {
		payload = make(map[string]any)
	}

	start := time.Now()
	err := r.safely(ctx, ls, func() error {
		return ls.Component.HandleEvent(ctx, msg.Event, payload)
	})
	r.metrics.ObserveEvent(msg.Event, time.Since(start))

	r.flush(ctx, ls)
	if err != nil {
		logging.L(ctx).Error("event failed",
			logging.String("event", msg.Event),
			logging.Err(err))
		r.metrics.RecordError("event")
		ls.Socket.IncrementErrorCount()
		r.sendError(ctx, ls, msg.Ref, err)
		return
	}
	if msg.Ref != "" {
		_ = ls.Socket.Send(protocol.OkReply(msg.Ref, ls.Socket.Topic(), nil))
	}
}

func (r *Router) handleInfo(ctx context.Context, ls *LiveSession, info any) {
	err := r.safely(ctx, ls, func() error {
		if d, ok := info.(core.Deferred); ok {
			d()
			return nil
		}
		return ls.Component.HandleInfo(ctx, info)
	})
	r.flush(ctx, ls)
	if err != nil {
		logging.L(ctx).Error("info failed",
			logging.String("info", fmt.Sprintf("%T", info)),
			logging.Err(err))
		r.metrics.RecordError("info")
	}
}

// safely runs fn and turns a panic into an error.
func (r *Router) safely(ctx context.Context, ls *LiveSession, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.RecordPanic()
			logging.L(ctx).Error("recovered panic",
				logging.Any("panic", rec),
				logging.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: %v", ErrComponentPanic, rec)
		}
	}()
	return fn()
}

func (r *Router) flush(ctx context.Context, ls *LiveSession) {
	if err := ls.Socket.Flush(); err != nil && !errors.Is(err, core.ErrSocketClosed) {
		logging.L(ctx).Warn("flush failed", logging.Err(err))
	}
}

func (r *Router) sendError(ctx context.Context, ls *LiveSession, ref string, err error) {
	reply := protocol.ErrorReply(ref, ls.Socket.Topic(), err.Error())
	reply.Type = protocol.MsgError
	if sendErr := ls.Socket.Send(reply); sendErr != nil {
		logging.L(ctx).Debug("error reply not sent", logging.Err(sendErr))
	}
}

func (r *Router) closeSession(ctx context.Context, ls *LiveSession) {
	reason := ls.terminateReason()
	if ls.IsMounted() {
		if err := r.safely(ctx, ls, func() error {
			return ls.Component.Terminate(context.WithoutCancel(ctx), reason)
		}); err != nil {
			logging.L(ctx).Warn("terminate failed", logging.Err(err))
		}
	}

	r.sessions.Remove(ls.ID)
	r.sockets.Remove(ls.ID)
	_ = ls.Socket.Close()
	r.metrics.SessionClosed()

	logging.L(ctx).Info("live session ended",
		logging.String("reason", reason.String()),
		logging.Duration("duration", time.Since(ls.CreatedAt)))
}

// clientID returns the client id cookie when it holds a valid uuid.
func (r *Router) clientID(req *http.Request) string {
	c, err := req.Cookie(r.cookie.Name)
	if err != nil {
		return ""
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return ""
	}
	return id.String()
}

// ensureClientID returns the request's client id, issuing a new cookie
// when there is none.
func (r *Router) ensureClientID(w http.ResponseWriter, req *http.Request) string {
	if id := r.clientID(req); id != "" {
		return id
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     r.cookie.Name,
		Value:    id,
		Path:     "/",
		MaxAge:   int(r.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// extractParams extracts query parameters.
func extractParams(req *http.Request) core.Params {
	params := make(core.Params)
	for key, values := range req.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params
}
