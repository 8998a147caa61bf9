package usecase

import (
	"fmt"
	"sort"
	"sync"

	"trusttrade/internal/domain/entity"
	"trusttrade/internal/domain/repository"
	"trusttrade/pkg/metrics"
)

// NotificationAggregator merges order-status and unread-chat events into one
// ranked, deduplicated feed with unread accounting. It is process-wide and
// may be hit by any number of concurrent source fetches, so every merge is an
// idempotent, id-keyed upsert rather than a positional mutation.
type NotificationAggregator struct {
	mu    sync.Mutex
	items map[string]*entity.Notification
}

func NewNotificationAggregator() *NotificationAggregator {
	return &NotificationAggregator{
		items: make(map[string]*entity.Notification),
	}
}

// MergeProfile projects an aggregate profile fetch into the feed. Re-merging
// overlapping data produces no duplicates and never clobbers a read flag the
// user already set locally.
func (a *NotificationAggregator) MergeProfile(data *repository.ProfileData) {
	if data == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, order := range data.UserOrders {
		a.upsert(entity.Notification{
			ID:          entity.OrderNotificationID(order.ID),
			Type:        entity.NotificationOrder,
			Title:       fmt.Sprintf("Order #%s", order.ID),
			Message:     fmt.Sprintf("Order %s", order.Status),
			ReferenceID: order.ID,
			CreatedAt:   order.CreatedAt,
			Read:        order.Status != "pending",
		})
	}

	for _, msg := range data.UnreadMessages {
		a.upsert(entity.Notification{
			ID:          entity.ChatNotificationID(msg.ChatID, msg.ID),
			Type:        entity.NotificationChat,
			Title:       fmt.Sprintf("Message from %s", msg.SenderName),
			Message:     msg.Content,
			ReferenceID: msg.ChatID,
			CreatedAt:   msg.Timestamp,
			Read:        false,
		})
	}
}

// Push inserts a live-delivered notification, deduplicated against anything
// already polled.
func (a *NotificationAggregator) Push(n entity.Notification) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.upsert(n)
}

// upsert keeps the existing item (and its read flag) when the id is already
// present. Callers hold the lock.
func (a *NotificationAggregator) upsert(n entity.Notification) {
	if _, exists := a.items[n.ID]; exists {
		return
	}
	copied := n
	a.items[n.ID] = &copied
	metrics.IncNotification(string(n.Type))
}

// Feed returns the merged notifications sorted descending by created_at,
// ties broken by id to keep output deterministic.
func (a *NotificationAggregator) Feed() []entity.Notification {
	a.mu.Lock()
	defer a.mu.Unlock()

	feed := make([]entity.Notification, 0, len(a.items))
	for _, n := range a.items {
		feed = append(feed, *n)
	}
	sort.Slice(feed, func(i, j int) bool {
		if !feed[i].CreatedAt.Equal(feed[j].CreatedAt) {
			return feed[i].CreatedAt.After(feed[j].CreatedAt)
		}
		return feed[i].ID < feed[j].ID
	})
	return feed
}

// MarkAsRead flips exactly one notification. Repeating it on an already-read
// item is a no-op.
func (a *NotificationAggregator) MarkAsRead(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n, ok := a.items[id]; ok && !n.Read {
		n.Read = true
	}
}

// MarkAllAsRead flips everything and zeroes the counter; idempotent.
func (a *NotificationAggregator) MarkAllAsRead() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, n := range a.items {
		n.Read = true
	}
}

// UnreadCount is derived, never stored, so it cannot drift below zero or out
// of sync with the items.
func (a *NotificationAggregator) UnreadCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	count := 0
	for _, n := range a.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// Clear drops the feed, e.g. on logout.
func (a *NotificationAggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = make(map[string]*entity.Notification)
}
