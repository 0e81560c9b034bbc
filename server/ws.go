package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // front ends are served from other origins
	},
}

// Message is the WebSocket envelope in both directions. Clients send
// {"type": "ask", "content": <question>, "n_results": n}.
type Message struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	NResults int    `json:"n_results,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	c := &wsConn{conn: conn}

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer conn.Close()
	defer wg.Wait()
	defer cancel()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Error reading message", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendMessage(c, Message{Type: "error", Content: "invalid message", Data: map[string]any{"status": http.StatusBadRequest}})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, c, msg)
		}()
	}
}

func (s *Server) handleMessage(ctx context.Context, c *wsConn, msg Message) {
	switch msg.Type {
	case "ask", "":
	default:
		s.sendMessage(c, Message{Type: "error", Content: fmt.Sprintf("unknown message type %q", msg.Type), Data: map[string]any{"status": http.StatusBadRequest}})
		return
	}

	s.sendMessage(c, Message{Type: "status", Content: "Searching transcripts..."})

	answer, err := s.qa.Ask(ctx, msg.Content, msg.NResults)
	if err != nil {
		status, code := errorStatus(err)
		s.sendMessage(c, Message{Type: "error", Content: err.Error(), Data: map[string]any{"status": status, "error": code}})
		return
	}

	s.sendMessage(c, Message{
		Type:    "response",
		Content: answer.Text,
		Data: map[string]any{
			"sources": answer.Sources,
			"query":   answer.Query,
		},
	})
}

func (s *Server) sendMessage(c *wsConn, msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		s.logger.Debug("Error sending message", zap.Error(err))
	}
}
