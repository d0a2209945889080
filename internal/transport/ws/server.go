package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const ProtocolVersion = 1

// Hello is the first frame a client sends. Every later text frame is one
// event line in the same JSON shape the JSONL feed uses.
type Hello struct {
	Type            string `json:"type"`
	ProtocolVersion int    `json:"protocol_version"`
	Client          string `json:"client"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

type Welcome struct {
	Type            string `json:"type"`
	ProtocolVersion int    `json:"protocol_version"`
	Clients         int    `json:"clients"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// SubmitFunc queues one raw event for the host's run loop.
type SubmitFunc func(raw []byte) error

// Server accepts event producers over websocket and fans every published
// reply out to all connected clients.
type Server struct {
	submit SubmitFunc
	log    *log.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	name string
	out  chan []byte
}

func NewServer(submit SubmitFunc, logger *log.Logger) *Server {
	return &Server{
		submit: submit,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: map[*client]struct{}{},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := s.handshake(conn)
		if c == nil {
			return
		}
		defer s.drop(c)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := s.submit(msg); err != nil {
				s.sendTo(c, errorFrame{Type: "error", Error: err.Error()})
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) *client {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}
	var hello Hello
	if err := json.Unmarshal(msg, &hello); err != nil || hello.Type != "hello" {
		closeWith(conn, "expected hello")
		return nil
	}
	if hello.ProtocolVersion != ProtocolVersion {
		closeWith(conn, "bad protocol_version")
		return nil
	}
	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 64
	}
	if maxQ > 1024 {
		maxQ = 1024
	}
	c := &client{name: strings.TrimSpace(hello.Client), out: make(chan []byte, maxQ)}
	if c.name == "" {
		c.name = "client"
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()

	b, _ := json.Marshal(Welcome{Type: "welcome", ProtocolVersion: ProtocolVersion, Clients: n})
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		s.drop(c)
		return nil
	}
	s.printf("ws client %s connected (%d total)", c.name, n)
	return c
}

// Publish sends b to every client. A client whose queue is full misses the
// frame rather than stalling the caller.
func (s *Server) Publish(b []byte) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.out <- b:
		default:
			s.printf("ws client %s queue full; dropped frame", c.name)
		}
	}
}

func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) sendTo(c *client, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.out <- b:
	default:
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		s.printf("ws client %s disconnected", c.name)
	}
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}
