package ws

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
}

func TestServer_SubmitAndPublish(t *testing.T) {
	got := make(chan string, 4)
	s := NewServer(func(raw []byte) error {
		if strings.Contains(string(raw), "bad") {
			return errors.New("queue full")
		}
		got <- string(raw)
		return nil
	}, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteJSON(Hello{Type: "hello", ProtocolVersion: ProtocolVersion, Client: "plugin"}); err != nil {
		t.Fatalf("hello: %v", err)
	}
	var w Welcome
	readFrame(t, conn, &w)
	if w.Type != "welcome" || w.Clients != 1 {
		t.Fatalf("welcome: %+v", w)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"catch"}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case raw := <-got:
		if raw != `{"type":"catch"}` {
			t.Fatalf("submitted: %s", raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event not submitted")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bad"}`)); err != nil {
		t.Fatal(err)
	}
	var ef errorFrame
	readFrame(t, conn, &ef)
	if ef.Type != "error" || ef.Error != "queue full" {
		t.Fatalf("error frame: %+v", ef)
	}

	s.Publish([]byte(`{"seq":1,"type":"catch","ok":true}`))
	var reply map[string]any
	readFrame(t, conn, &reply)
	if reply["seq"] != float64(1) {
		t.Fatalf("published reply: %v", reply)
	}
}

func TestServer_RejectsBadHello(t *testing.T) {
	s := NewServer(func([]byte) error { return nil }, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteJSON(Hello{Type: "hello", ProtocolVersion: 99}); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
		t.Fatalf("want policy close, got %v", err)
	}
	if s.Clients() != 0 {
		t.Fatalf("rejected client registered")
	}
}
