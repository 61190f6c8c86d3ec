package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gabrielmiguelok/liveintake/pkg/protocol"
)

func TestWebSocket_OriginValidation(t *testing.T) {
	tests := []struct {
		name          string
		wsConfig      *WebSocketConfig
		origin        string
		host          string
		expectAllowed bool
	}{
		{
			name:          "same-origin allowed",
			wsConfig:      &WebSocketConfig{},
			origin:        "https://example.com",
			host:          "example.com",
			expectAllowed: true,
		},
		{
			name:          "no origin allowed",
			wsConfig:      &WebSocketConfig{},
			origin:        "",
			host:          "example.com",
			expectAllowed: true,
		},
		{
			name:          "explicit origin allowed",
			wsConfig:      &WebSocketConfig{AllowedOrigins: []string{"https://allowed.com"}},
			origin:        "https://allowed.com",
			host:          "example.com",
			expectAllowed: true,
		},
		{
			name:          "origin not in list blocked",
			wsConfig:      &WebSocketConfig{AllowedOrigins: []string{"https://allowed.com"}},
			origin:        "https://attacker.com",
			host:          "example.com",
			expectAllowed: false,
		},
		{
			name:          "wildcard allows all",
			wsConfig:      &WebSocketConfig{AllowedOrigins: []string{"*"}},
			origin:        "https://any-site.com",
			host:          "example.com",
			expectAllowed: true,
		},
		{
			name:          "insecure dev mode allows all",
			wsConfig:      &WebSocketConfig{InsecureDevMode: true},
			origin:        "https://attacker.com",
			host:          "example.com",
			expectAllowed: true,
		},
		{
			name:          "cross-origin blocked by default",
			wsConfig:      &WebSocketConfig{},
			origin:        "https://other-site.com",
			host:          "example.com",
			expectAllowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed := tt.wsConfig.isOriginAllowed(tt.origin, tt.host)
			if allowed != tt.expectAllowed {
				t.Errorf("isOriginAllowed(%q, %q) = %v, want %v",
					tt.origin, tt.host, allowed, tt.expectAllowed)
			}
		})
	}
}

func TestWebSocket_RejectsInvalidOrigin(t *testing.T) {
	transport := NewWebSocketTransport(nil, &WebSocketConfig{
		AllowedOrigins: []string{"https://allowed.com"},
	}, nil)

	req := httptest.NewRequest("GET", "/live", nil)
	req.Header.Set("Origin", "https://attacker.com")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Host = "example.com"

	w := httptest.NewRecorder()
	err := transport.Upgrade(w, req)

	if err != ErrOriginNotAllowed {
		t.Errorf("Expected ErrOriginNotAllowed, got %v", err)
	}
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}

func TestDefaultWebSocketConfig(t *testing.T) {
	config := DefaultWebSocketConfig()

	if config.InsecureDevMode {
		t.Error("InsecureDevMode should be false by default")
	}
	if config.AllowedOrigins != nil {
		t.Error("AllowedOrigins should be nil by default (same-origin only)")
	}
}

// echoServer upgrades each request and sends every received event back
// as a reply.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tr := NewWebSocketTransport(nil, nil, nil)
		if err := tr.Upgrade(w, r); err != nil {
			t.Errorf("Upgrade() error = %v", err)
			return
		}
		go func() {
			defer tr.Close()
			for {
				select {
				case msg := <-tr.Receive():
					_ = tr.Send(protocol.OkReply(msg.Ref, msg.Topic, map[string]any{
						"event": msg.Event,
						"codec": tr.Codec().Name(),
					}))
				case <-tr.Done():
					return
				}
			}
		}()
	}))
}

func TestWebSocket_RoundTripPerCodec(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	for _, codec := range []protocol.Codec{protocol.NewJSONCodec(), protocol.NewMsgPackCodec()} {
		t.Run(codec.Name(), func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			client, err := Dial(ctx, wsURL, codec, nil)
			if err != nil {
				t.Fatalf("Dial() error = %v", err)
			}
			defer client.Close()

			if err := client.Send(protocol.EventMessage("lv:x", "next", nil).WithRef("1")); err != nil {
				t.Fatalf("Send() error = %v", err)
			}

			select {
			case reply := <-client.Receive():
				if reply.Type != protocol.MsgReply || reply.Ref != "1" {
					t.Fatalf("unexpected reply %+v", reply)
				}
				resp, _ := reply.Payload["response"].(map[string]any)
				if resp["event"] != "next" {
					t.Errorf("reply event = %v, want next", resp["event"])
				}
				if resp["codec"] != codec.Name() {
					t.Errorf("server codec = %v, want %s", resp["codec"], codec.Name())
				}
			case <-ctx.Done():
				t.Fatal("no reply received")
			}
		})
	}
}

func TestWebSocket_SendAfterClose(t *testing.T) {
	tr := NewWebSocketTransport(nil, nil, nil)
	tr.Close()
	if err := tr.Send(protocol.HeartbeatMessage()); err != ErrNotConnected {
		t.Errorf("Send() after close = %v, want ErrNotConnected", err)
	}
}
