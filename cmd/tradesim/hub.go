package main

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"trusttrade/pkg/logger"
)

// client is one upgraded connection bound to a conversation room.
type client struct {
	UserID         string
	Username       string
	ConversationID string
	Conn           *websocket.Conn
	Send           chan []byte
}

// hub manages the active connections per conversation room and turns inbound
// frames into stored messages plus fan-out pushes.
type hub struct {
	state *state

	mu    sync.RWMutex
	rooms map[string]map[*client]bool
}

func newHub(st *state) *hub {
	return &hub{
		state: st,
		rooms: make(map[string]map[*client]bool),
	}
}

func (h *hub) register(c *client) {
	h.mu.Lock()
	room, ok := h.rooms[c.ConversationID]
	if !ok {
		room = make(map[*client]bool)
		h.rooms[c.ConversationID] = room
	}
	room[c] = true
	h.mu.Unlock()
	logger.Info("Client registered: %s in conversation %s", c.UserID, c.ConversationID)
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	if room, ok := h.rooms[c.ConversationID]; ok {
		if _, present := room[c]; present {
			delete(room, c)
			close(c.Send)
		}
		if len(room) == 0 {
			delete(h.rooms, c.ConversationID)
		}
	}
	h.mu.Unlock()
	logger.Info("Client unregistered: %s from conversation %s", c.UserID, c.ConversationID)
}

func (h *hub) broadcast(conversationID string, payload []byte, excludeUserID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[conversationID] {
		if excludeUserID != "" && c.UserID == excludeUserID {
			continue
		}
		select {
		case c.Send <- payload:
		default:
			logger.Warn("Dropping frame for slow client %s", c.UserID)
		}
	}
}

func (h *hub) hasOtherParticipant(conversationID, userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[conversationID] {
		if c.UserID != userID {
			return true
		}
	}
	return false
}

// inbound frames from the engine.
type inboundFrame struct {
	Type     string `json:"type"`
	TempID   string `json:"temp_id"`
	Content  string `json:"content"`
	IsTyping bool   `json:"is_typing"`
}

// sendHistory pushes the chat_history backfill once, right after the upgrade.
func (h *hub) sendHistory(c *client) {
	history := h.state.history(c.ConversationID)
	payload, err := json.Marshal(map[string]interface{}{
		"type":     "chat_history",
		"messages": history,
	})
	if err != nil {
		logger.Error("Failed to marshal chat history: %v", err)
		return
	}
	c.Send <- payload
}

func (h *hub) handleFrame(c *client, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		logger.Warn("Ignoring malformed frame from %s: %v", c.UserID, err)
		return
	}

	switch frame.Type {
	case "chat_message":
		h.handleChatMessage(c, frame)
	case "typing_indicator":
		h.handleTyping(c, frame)
	default:
		logger.Debug("Unknown frame type %q from %s", frame.Type, c.UserID)
	}
}

func (h *hub) handleChatMessage(c *client, frame inboundFrame) {
	content := strings.TrimSpace(frame.Content)
	if content == "" {
		return
	}

	msg := simMessage{
		ID:         uuid.New().String(),
		SenderID:   c.UserID,
		SenderName: c.Username,
		Content:    content,
		Timestamp:  time.Now(),
		Status:     "sent",
	}
	if h.hasOtherParticipant(c.ConversationID, c.UserID) {
		msg.Status = "delivered"
	}
	h.state.appendMessage(c.ConversationID, msg)

	// The sender's frame carries the correlation token back so the engine can
	// reconcile its optimistic entry; other participants see the same frame.
	payload, _ := json.Marshal(map[string]interface{}{
		"type": "chat_message",
		"message": map[string]interface{}{
			"id":          msg.ID,
			"temp_id":     frame.TempID,
			"sender_id":   msg.SenderID,
			"sender_name": msg.SenderName,
			"content":     msg.Content,
			"timestamp":   msg.Timestamp.Format(time.RFC3339Nano),
		},
	})
	h.broadcast(c.ConversationID, payload, "")

	// Cross-cutting alert for everyone else in the room.
	notification, _ := json.Marshal(map[string]interface{}{
		"type": "new_message_notification",
		"notification": map[string]interface{}{
			"id":           "chat-" + c.ConversationID + "-" + msg.ID,
			"type":         "chat",
			"title":        "New message from " + msg.SenderName,
			"message":      msg.Content,
			"reference_id": c.ConversationID,
			"created_at":   msg.Timestamp.Format(time.RFC3339Nano),
			"read":         false,
		},
	})
	h.broadcast(c.ConversationID, notification, c.UserID)
}

func (h *hub) handleTyping(c *client, frame inboundFrame) {
	payload, _ := json.Marshal(map[string]interface{}{
		"type":      "typing_indicator",
		"is_typing": frame.IsTyping,
	})
	h.broadcast(c.ConversationID, payload, c.UserID)
}

// readPump reads frames until the connection drops.
func (c *client) readPump(h *hub) {
	defer func() {
		h.unregister(c)
		c.Conn.Close()
	}()

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("Read error for %s: %v", c.UserID, err)
			}
			break
		}
		h.handleFrame(c, raw)
	}
}

// writePump serializes all writes to the connection.
func (c *client) writePump() {
	defer c.Conn.Close()

	for payload := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.Warn("Write error for %s: %v", c.UserID, err)
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}
