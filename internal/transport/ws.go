package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"serenade/internal/ports"
)

// WebsocketDialer dials the service's websocket endpoint.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
}

func (d *WebsocketDialer) Dial(ctx context.Context, wsURL string) (ports.Socket, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 15 * time.Second
	}

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to service websocket: %w", err)
	}
	return &websocketSocket{conn: conn}, nil
}

type websocketSocket struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// ReadFrame returns the next text frame. Non-text frames are skipped;
// the wire protocol carries text only.
func (s *websocketSocket) ReadFrame() (string, error) {
	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		return string(payload), nil
	}
}

func (s *websocketSocket) WriteText(frame string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (s *websocketSocket) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// ServiceWSURL derives the websocket endpoint from the service's HTTP
// base URL.
func ServiceWSURL(base string) (string, error) {
	base = strings.TrimSpace(base)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	parsed, err := url.Parse(base + "/ws")
	if err != nil {
		return "", fmt.Errorf("invalid service base URL: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("service base URL %q is not http(s)", base)
	}
	return parsed.String(), nil
}
