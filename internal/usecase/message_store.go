package usecase

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"trusttrade/internal/domain/entity"
)

// MessageStore is the ordered, deduplicated message log for one conversation.
// Entries are never removed, so indices into entries stay valid; the token
// map gives O(1) reconciliation instead of a linear scan.
//
// Writes arrive from the channel read goroutine, send-timeout timers and the
// UI, so every operation takes the lock. Arrival order across reconnects is
// not FIFO; OrderedView re-sorts by timestamp regardless.
type MessageStore struct {
	mu         sync.Mutex
	entries    []*entity.Message
	byServerID map[string]int
	byToken    map[string]int
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		byServerID: make(map[string]int),
		byToken:    make(map[string]int),
	}
}

// Append inserts an acknowledged server message. Appending the same server id
// twice collapses to one entry; an optimistic echo already reconciled under
// that id is left as-is.
func (s *MessageStore) Append(msg entity.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID != "" {
		if _, exists := s.byServerID[msg.ID]; exists {
			return
		}
	}
	if msg.Delivery == "" {
		msg.Delivery = entity.DeliverySent
	}

	copied := msg
	s.entries = append(s.entries, &copied)
	if msg.ID != "" {
		s.byServerID[msg.ID] = len(s.entries) - 1
	}
}

// AppendPending adds an optimistic local echo and returns its correlation
// token for later reconciliation.
func (s *MessageStore) AppendPending(conversationID, senderID, content string, at time.Time) string {
	token := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, &entity.Message{
		Token:          token,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        strings.TrimSpace(content),
		Timestamp:      at,
		Delivery:       entity.DeliveryPending,
	})
	s.byToken[token] = len(s.entries) - 1

	return token
}

// Reconcile replaces the pending entry for token with the acknowledged server
// version in place, preserving its position. When the token is unknown (e.g.
// the ack arrived after a local timeout already gave up on it) the server
// message is resurrected as sent: the store favors eventual correctness over
// strict local state.
func (s *MessageStore) Reconcile(token string, serverMsg entity.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	serverMsg.Token = ""
	serverMsg.Delivery = entity.DeliverySent

	idx, ok := s.byToken[token]
	if !ok {
		if serverMsg.ID != "" {
			if i, exists := s.byServerID[serverMsg.ID]; exists {
				// Duplicate ack; just make sure the entry reads as sent.
				s.entries[i].Delivery = entity.DeliverySent
				return
			}
		}
		copied := serverMsg
		s.entries = append(s.entries, &copied)
		if serverMsg.ID != "" {
			s.byServerID[serverMsg.ID] = len(s.entries) - 1
		}
		return
	}

	delete(s.byToken, token)

	existing := s.entries[idx]
	// Keep the optimistic timestamp so reconciliation never reorders the log.
	serverMsg.Timestamp = existing.Timestamp
	*existing = serverMsg
	if serverMsg.ID != "" {
		s.byServerID[serverMsg.ID] = idx
	}
}

// MarkFailed flips a pending entry to failed without removing it, so the UI
// can offer a retry with the same token.
func (s *MessageStore) MarkFailed(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.byToken[token]; ok {
		s.entries[idx].Delivery = entity.DeliveryFailed
	}
}

// MarkPending flips a failed entry back to pending ahead of a retry.
func (s *MessageStore) MarkPending(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.byToken[token]; ok {
		s.entries[idx].Delivery = entity.DeliveryPending
	}
}

// Get returns the entry for a correlation token, if still tracked.
func (s *MessageStore) Get(token string) (entity.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.byToken[token]; ok {
		return *s.entries[idx], true
	}
	return entity.Message{}, false
}

// HasServerID reports whether an acknowledged message with this id is present.
func (s *MessageStore) HasServerID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.byServerID[id]
	return ok
}

// OrderedView returns the log sorted ascending by timestamp, stable by
// insertion order for equal timestamps. The returned slice is a fresh copy;
// callers can re-request it at any point.
func (s *MessageStore) OrderedView() []entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := make([]entity.Message, len(s.entries))
	for i, e := range s.entries {
		view[i] = *e
	}
	sort.SliceStable(view, func(i, j int) bool {
		return view[i].Timestamp.Before(view[j].Timestamp)
	})
	return view
}

// Len reports the number of entries, duplicates already collapsed.
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
