package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestServiceWSURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{base: "http://localhost:8000", want: "ws://localhost:8000/ws"},
		{base: "http://localhost:8000/", want: "ws://localhost:8000/ws"},
		{base: "https://songs.example.com", want: "wss://songs.example.com/ws"},
		{base: "  http://10.0.0.5:9000  ", want: "ws://10.0.0.5:9000/ws"},
		{base: "ftp://localhost:8000", wantErr: true},
		{base: "localhost:8000", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ServiceWSURL(tc.base)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ServiceWSURL(%q): expected error, got %q", tc.base, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ServiceWSURL(%q) failed: %v", tc.base, err)
		}
		if got != tc.want {
			t.Fatalf("ServiceWSURL(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}

func TestWebsocketDialerRoundTrip(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			// A binary frame first, to prove the client skips it.
			if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x00}); err != nil {
				return
			}
			if err := conn.WriteMessage(messageType, payload); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	dialer := &WebsocketDialer{}
	sock, err := dialer.Dial(context.Background(), wsURL)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer sock.Close()

	if err := sock.WriteText("person_detected"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	frame, err := sock.ReadFrame()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if frame != "person_detected" {
		t.Fatalf("unexpected frame: %q", frame)
	}
}

func TestWebsocketDialerRejectsUnreachableService(t *testing.T) {
	t.Parallel()

	dialer := &WebsocketDialer{}
	if _, err := dialer.Dial(context.Background(), "ws://127.0.0.1:1/ws"); err == nil {
		t.Fatalf("expected dial error")
	}
}
