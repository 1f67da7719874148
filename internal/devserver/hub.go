package devserver

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// peer is one realtime connection. It only receives pushes after it has
// registered as the user its token belongs to.
type peer struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	userID   int64
	username string
	id       string
}

type Hub struct {
	peers      map[*peer]bool
	Register   chan *peer
	Unregister chan *peer
	userMap    map[int64]map[*peer]bool
	mu         sync.RWMutex
	logger     *log.Logger
	store      *Store
	done       chan struct{}
}

func NewHub(store *Store, logger *log.Logger) *Hub {
	return &Hub{
		Register:   make(chan *peer),
		Unregister: make(chan *peer),
		peers:      make(map[*peer]bool),
		userMap:    make(map[int64]map[*peer]bool),
		logger:     logger,
		store:      store,
		done:       make(chan struct{}),
	}
}

// Run serves registrations until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Println("WebSocket hub started")
	for {
		select {
		case p := <-h.Register:
			h.mu.Lock()
			h.peers[p] = true
			count := len(h.peers)
			h.mu.Unlock()
			h.logger.Printf("Client connected: %s (ID: %d) [%s], total clients: %d",
				p.username, p.userID, p.id, count)
			h.system(p, "Connected to chat server")

		case p := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.peers[p]; ok {
				delete(h.peers, p)
				if set := h.userMap[p.userID]; set != nil {
					delete(set, p)
					if len(set) == 0 {
						delete(h.userMap, p.userID)
					}
				}
				close(p.send)
				h.logger.Printf("Client disconnected: %s (ID: %d) [%s], remaining clients: %d",
					p.username, p.userID, p.id, len(h.peers))
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for p := range h.peers {
				close(p.send)
				p.conn.Close()
			}
			h.peers = make(map[*peer]bool)
			h.userMap = make(map[int64]map[*peer]bool)
			close(h.done)
			h.mu.Unlock()
			h.logger.Println("WebSocket hub stopped")
			return
		}
	}
}

// add hands a new connection to the hub. It reports false once the hub has
// stopped.
func (h *Hub) add(p *peer) bool {
	select {
	case h.Register <- p:
		return true
	case <-h.done:
		return false
	}
}

// bind makes p eligible for pushes addressed to its user.
func (h *Hub) bind(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return
	default:
	}
	set := h.userMap[p.userID]
	if set == nil {
		set = make(map[*peer]bool)
		h.userMap[p.userID] = set
	}
	set[p] = true
}

// Online reports whether userID has at least one registered connection.
func (h *Hub) Online(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userMap[userID]) > 0
}

func (h *Hub) registered(p *peer) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.userMap[p.userID][p]
}

// SendToUser pushes an event to every registered connection of userID. A
// connection whose buffer is full misses the event.
func (h *Hub) SendToUser(userID int64, eventType string, payload interface{}) error {
	data, err := encode(eventType, payload)
	if err != nil {
		h.logger.Printf("Failed to marshal message: %v", err)
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	set, ok := h.userMap[userID]
	if !ok {
		h.logger.Printf("User not connected: %d", userID)
		return nil
	}
	for p := range set {
		select {
		case p.send <- data:
		default:
			h.logger.Printf("Send buffer full for user %d [%s], dropping %s", userID, p.id, eventType)
		}
	}
	return nil
}

func (h *Hub) system(p *peer, message string) {
	data, err := encode(models.EventSystem, map[string]string{"message": message})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.peers[p]; !ok {
		return
	}
	select {
	case p.send <- data:
	default:
	}
}

func encode(eventType string, payload interface{}) ([]byte, error) {
	msg, err := models.NewWebSocketMessage(eventType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func (p *peer) ReadPump() {
	defer func() {
		select {
		case p.hub.Unregister <- p:
		case <-p.hub.done:
		}
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	p.conn.SetPingHandler(func(data string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return p.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				p.hub.logger.Printf("error: %v", err)
			}
			break
		}

		var frame models.WebSocketMessage
		if err := json.Unmarshal(message, &frame); err != nil {
			p.hub.logger.Printf("error unmarshaling message: %v", err)
			continue
		}

		switch frame.Type {
		case models.EventRegister:
			p.handleRegister(frame.Payload)
		case models.EventJoinChat:
			var req models.JoinChatPayload
			if err := json.Unmarshal(frame.Payload, &req); err == nil {
				p.hub.logger.Printf("User %d [%s] joined chat %d", p.userID, p.id, req.ChatID)
			}
		case models.EventSendMessage:
			p.handleSend(frame.Payload)
		default:
			p.hub.logger.Printf("Ignoring %q frame from user %d", frame.Type, p.userID)
		}
	}
}

func (p *peer) handleRegister(payload json.RawMessage) {
	var req models.RegisterPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		p.hub.system(p, "invalid register payload")
		return
	}
	if req.UserID.String() != strconv.FormatInt(p.userID, 10) {
		p.hub.logger.Printf("User %d tried to register as %s", p.userID, req.UserID)
		p.hub.system(p, "cannot register as another user")
		return
	}
	p.hub.bind(p)
	p.hub.logger.Printf("User %d registered [%s]", p.userID, p.id)
}

func (p *peer) handleSend(payload json.RawMessage) {
	var req models.SendMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		p.hub.system(p, "invalid message payload")
		return
	}
	if !p.hub.registered(p) {
		p.hub.system(p, "register before sending")
		return
	}
	if req.SenderID.String() != strconv.FormatInt(p.userID, 10) {
		p.hub.system(p, "cannot send as another user")
		return
	}
	receiver, err := strconv.ParseInt(req.ReceiverID.String(), 10, 64)
	if err != nil {
		p.hub.system(p, "invalid receiver")
		return
	}

	participants, err := p.hub.store.GetChatParticipantIDs(req.ChatID)
	if err != nil {
		p.hub.logger.Printf("Failed to get chat participants: %v", err)
		return
	}
	if !contains(participants, p.userID) || !contains(participants, receiver) {
		p.hub.system(p, "not a participant of this chat")
		return
	}

	saved, err := p.hub.store.SaveMessage(req.ChatID, p.userID, receiver, req.Content)
	if err != nil {
		p.hub.logger.Printf("Failed to save message: %v", err)
		p.hub.system(p, "failed to save message")
		return
	}

	p.hub.SendToUser(p.userID, models.EventNewMessage, saved)
	if receiver != p.userID {
		p.hub.SendToUser(receiver, models.EventNewMessage, saved)
	}
}

func (p *peer) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
