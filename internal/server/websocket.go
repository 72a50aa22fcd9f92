package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"econ-empire/internal/game"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	sendBufferSize  = 64
	writeWait       = 10 * time.Second
	maxInboundFrame = 16 * 1024
)

type wsClient struct {
	conn     *websocket.Conn
	send     chan []byte
	identity *game.Identity
}

// Hub fans realtime events out to the websocket clients of each game. Each
// client has a bounded queue; events for a full queue are dropped so a slow
// reader never stalls the publisher.
type Hub struct {
	mu     sync.Mutex
	groups map[uint]map[*wsClient]struct{}
}

func NewHub() *Hub {
	return &Hub{
		groups: make(map[uint]map[*wsClient]struct{}),
	}
}

func (h *Hub) Add(gameID uint, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[gameID]
	if group == nil {
		group = make(map[*wsClient]struct{})
		h.groups[gameID] = group
	}
	group[client] = struct{}{}
}

func (h *Hub) Remove(gameID uint, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[gameID]
	if group == nil {
		return
	}
	if _, ok := group[client]; !ok {
		return
	}
	delete(group, client)
	close(client.send)
	if len(group) == 0 {
		delete(h.groups, gameID)
	}
}

// Clients reports how many clients are subscribed to the game.
func (h *Hub) Clients(gameID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[gameID])
}

func (h *Hub) Publish(gameID uint, event string, payload any) {
	data, err := json.Marshal(envelope{Type: event, Payload: payload})
	if err != nil {
		log.Printf("ws marshal failed game_id=%d event=%s error=%v", gameID, event, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.groups[gameID] {
		select {
		case client.send <- data:
		default:
			log.Printf("ws queue full game_id=%d event=%s dropped", gameID, event)
		}
	}
}

// Send queues a frame for one client if it is still subscribed.
func (h *Hub) Send(gameID uint, client *wsClient, frame envelope) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.groups[gameID][client]; !ok {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func (s *Server) handleWebsocket(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri) {
		return
	}
	status, err := s.sessions.Status(c.Request.Context(), uri.GameID)
	if err != nil {
		writeError(c, err)
		return
	}
	client := &wsClient{send: make(chan []byte, sendBufferSize)}
	if raw := bearerToken(c.Request); raw != "" {
		id, err := s.auth.Verify(raw)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": game.CodeOf(game.ErrUnauthenticated)})
			return
		}
		client.identity = &id
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(maxInboundFrame)
	client.conn = conn
	log.Printf("ws connected game_id=%d remote=%s", uri.GameID, c.Request.RemoteAddr)
	s.ws.Add(uri.GameID, client)
	s.ws.Send(uri.GameID, client, envelope{Type: frameState, Payload: status})
	go writeWS(client)
	go s.readWS(uri.GameID, client)
}

func writeWS(client *wsClient) {
	defer client.conn.Close()
	for data := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) readWS(gameID uint, client *wsClient) {
	defer s.ws.Remove(gameID, client)
	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			log.Printf("ws disconnected game_id=%d error=%v", gameID, err)
			return
		}
		var frame chatFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != frameChatSend {
			s.ws.Send(gameID, client, envelope{Type: frameError, Error: "unsupported frame", Code: "invalid_input"})
			continue
		}
		if client.identity == nil {
			s.ws.Send(gameID, client, envelope{Type: frameError, Error: game.ErrUnauthenticated.Error(), Code: game.CodeOf(game.ErrUnauthenticated)})
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		_, err = s.sessions.PostChat(ctx, *client.identity, gameID, frame.Content, frame.ToCountry)
		cancel()
		if err != nil {
			s.ws.Send(gameID, client, envelope{Type: frameError, Error: err.Error(), Code: game.CodeOf(err)})
		}
	}
}
