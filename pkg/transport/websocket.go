package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/gabrielmiguelok/liveintake/pkg/logging"
	"github.com/gabrielmiguelok/liveintake/pkg/protocol"
)

// WebSocket security errors
var (
	ErrOriginNotAllowed = errors.New("origin not allowed")
)

// WebSocketConfig configures WebSocket security settings.
type WebSocketConfig struct {
	// AllowedOrigins is a list of allowed origins for WebSocket connections.
	// If empty and InsecureDevMode is false, only same-origin connections are allowed.
	AllowedOrigins []string

	// InsecureDevMode disables origin validation (ONLY for development).
	InsecureDevMode bool

	// Codecs negotiates the wire codec from the requested subprotocol.
	Codecs *protocol.CodecRegistry
}

// DefaultWebSocketConfig returns secure default configuration.
func DefaultWebSocketConfig() *WebSocketConfig {
	return &WebSocketConfig{
		Codecs: protocol.DefaultCodecRegistry,
	}
}

// isOriginAllowed checks if the origin is allowed for WebSocket connections.
func (c *WebSocketConfig) isOriginAllowed(origin string, requestHost string) bool {
	if c != nil && c.InsecureDevMode {
		return true
	}

	// Empty origin = same-origin request (allowed)
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	if originURL.Host == requestHost {
		return true
	}

	if c != nil {
		for _, allowed := range c.AllowedOrigins {
			if allowed == "*" {
				return true
			}
			if allowed == origin {
				return true
			}
			if allowedURL, err := url.Parse(allowed); err == nil && allowedURL.Host != "" {
				if allowedURL.Host == originURL.Host {
					return true
				}
			}
		}
	}

	return false
}

func (c *WebSocketConfig) codecs() *protocol.CodecRegistry {
	if c == nil || c.Codecs == nil {
		return protocol.DefaultCodecRegistry
	}
	return c.Codecs
}

// WebSocketTransport implements Transport using WebSocket. Frames are text
// or binary depending on the negotiated codec.
type WebSocketTransport struct {
	*BaseTransport
	conn     *websocket.Conn
	codec    protocol.Codec
	wsConfig *WebSocketConfig
	logger   logging.Logger
	server   bool
	mu       sync.Mutex
}

// NewWebSocketTransport creates a new WebSocket transport.
func NewWebSocketTransport(config *TransportConfig, wsConfig *WebSocketConfig, logger logging.Logger) *WebSocketTransport {
	if wsConfig == nil {
		wsConfig = DefaultWebSocketConfig()
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &WebSocketTransport{
		BaseTransport: NewBaseTransport(config),
		wsConfig:      wsConfig,
		logger:        logger,
	}
}

// Codec returns the negotiated codec.
func (t *WebSocketTransport) Codec() protocol.Codec {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.codec
}

// Upgrade upgrades an HTTP connection to WebSocket (server-side).
// Validates the origin header and negotiates the codec subprotocol.
func (t *WebSocketTransport) Upgrade(w http.ResponseWriter, r *http.Request) error {
	origin := r.Header.Get("Origin")
	if !t.wsConfig.isOriginAllowed(origin, r.Host) {
		http.Error(w, "Forbidden: Origin not allowed", http.StatusForbidden)
		return ErrOriginNotAllowed
	}

	registry := t.wsConfig.codecs()
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       registry.Subprotocols(),
		InsecureSkipVerify: true, // origin checked above
	})
	if err != nil {
		return fmt.Errorf("accept websocket: %w", err)
	}

	codec, err := registry.ForSubprotocol(conn.Subprotocol())
	if err != nil {
		conn.Close(websocket.StatusProtocolError, "unsupported subprotocol")
		return err
	}

	t.server = true
	t.start(conn, codec)
	return nil
}

// Dial connects to a live endpoint (client-side), requesting the given
// codec. It is used by tests and tooling that drive a session.
func Dial(ctx context.Context, rawURL string, codec protocol.Codec, config *TransportConfig) (*WebSocketTransport, error) {
	t := NewWebSocketTransport(config, nil, nil)

	conn, _, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{
		Subprotocols: []string{protocol.SubprotocolPrefix + codec.Name()},
	})
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}

	t.start(conn, codec)
	return t, nil
}

func (t *WebSocketTransport) start(conn *websocket.Conn, codec protocol.Codec) {
	conn.SetReadLimit(t.config.MaxMessageSize)

	t.mu.Lock()
	t.conn = conn
	t.codec = codec
	t.SetConnected(true)
	t.mu.Unlock()

	go t.readLoop()
	go t.writeLoop()
	go t.pingLoop()
}

// Close closes the WebSocket connection.
func (t *WebSocketTransport) Close() error {
	t.BaseTransport.Close()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "closing")
		t.conn = nil
		return err
	}
	return nil
}

// readLoop reads messages from the WebSocket.
func (t *WebSocketTransport) readLoop() {
	defer t.Close()

	for {
		select {
		case <-t.closeCh:
			return
		default:
		}

		t.mu.Lock()
		conn, codec := t.conn, t.codec
		t.mu.Unlock()

		if conn == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), t.config.ReadTimeout)
		_, data, err := conn.Read(ctx)
		cancel()

		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure &&
				websocket.CloseStatus(err) != websocket.StatusGoingAway {
				t.logger.Debug("websocket read ended", logging.Err(err))
			}
			return
		}

		msg, err := codec.Decode(data)
		if err != nil {
			t.logger.Warn("dropping undecodable frame",
				logging.String("codec", codec.Name()),
				logging.Int("bytes", len(data)),
				logging.Err(err))
			continue
		}

		// The server answers heartbeats; clients only swallow them.
		if msg.IsHeartbeat() {
			if !t.server {
				continue
			}
			select {
			case t.sendCh <- protocol.HeartbeatMessage():
			default:
			}
			continue
		}

		select {
		case t.recvCh <- msg:
		case <-t.closeCh:
			return
		}
	}
}

// writeLoop writes messages to the WebSocket.
func (t *WebSocketTransport) writeLoop() {
	for {
		select {
		case msg := <-t.sendCh:
			t.mu.Lock()
			conn, codec := t.conn, t.codec
			t.mu.Unlock()

			if conn == nil {
				return
			}

			data, err := codec.Encode(msg)
			if err != nil {
				t.logger.Error("encode message",
					logging.String("event", msg.Event),
					logging.Err(err))
				continue
			}

			typ := websocket.MessageText
			if codec.Binary() {
				typ = websocket.MessageBinary
			}

			ctx, cancel := context.WithTimeout(context.Background(), t.config.WriteTimeout)
			err = conn.Write(ctx, typ, data)
			cancel()

			if err != nil {
				t.logger.Debug("websocket write failed", logging.Err(err))
				t.Close()
				return
			}

		case <-t.closeCh:
			return
		}
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (t *WebSocketTransport) pingLoop() {
	if t.config.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(t.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sendPing()
		case <-t.closeCh:
			return
		}
	}
}

func (t *WebSocketTransport) sendPing() {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.config.WriteTimeout)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		t.logger.Debug("websocket ping failed", logging.Err(err))
	}
}
