package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"trusttrade/internal/domain/entity"
	"trusttrade/internal/domain/repository"
	"trusttrade/internal/infrastructure/sound"
	ws "trusttrade/internal/infrastructure/websocket"
	"trusttrade/pkg/errors"
	"trusttrade/pkg/logger"
	"trusttrade/pkg/metrics"
)

// PresenceChannel is the duplex connection the session drives.
// *websocket.Channel satisfies it; tests substitute a fake.
type PresenceChannel interface {
	Open(ctx context.Context) error
	SendChatMessage(token, content string) error
	SendTyping(isTyping bool) error
	Ready() bool
	Close() error
}

// SoundPlayer is the injected notification-sound capability.
type SoundPlayer interface {
	Play()
}

type SessionParams struct {
	ConversationID string
	UserID         string

	Conversations repository.ConversationRepository
	Trades        repository.TradeRepository

	// Notifications is the process-wide aggregator; optional.
	Notifications *NotificationAggregator
	// Sound is cued once per foreign message id; defaults to sound.NopPlayer.
	Sound SoundPlayer
	// OnTypingChange and OnConnectionChange let the UI bind derived state;
	// optional.
	OnTypingChange     func(bool)
	OnConnectionChange func(ws.ConnectionState, error)

	TypingTimeout time.Duration
	SendTimeout   time.Duration
}

// ChatSession is the per-conversation controller: one MessageStore, one
// PresenceChannel and the trade lifecycle for its conversation. Chat messages
// are optimistic; trade actions are request/await/commit with no local
// pre-mutation. Dispose is mandatory before the conversation view goes away.
type ChatSession struct {
	params  SessionParams
	store   *MessageStore
	typing  *TypingState
	channel PresenceChannel

	mu             sync.Mutex
	conversation   *entity.Conversation
	trade          *entity.Trade
	role           entity.Role
	connState      ws.ConnectionState
	disposed       bool
	actionInFlight bool
	ackTimers      map[string]*time.Timer
}

func NewChatSession(params SessionParams) *ChatSession {
	if params.TypingTimeout <= 0 {
		params.TypingTimeout = 2 * time.Second
	}
	if params.SendTimeout <= 0 {
		params.SendTimeout = 10 * time.Second
	}
	if params.Sound == nil {
		params.Sound = sound.NopPlayer{}
	}

	s := &ChatSession{
		params:    params,
		store:     NewMessageStore(),
		role:      entity.RoleBuyer,
		connState: ws.StateClosed,
		ackTimers: make(map[string]*time.Timer),
	}
	s.typing = NewTypingState(params.TypingTimeout, func(active bool) {
		s.mu.Lock()
		disposed := s.disposed
		s.mu.Unlock()
		if disposed {
			return
		}
		if params.OnTypingChange != nil {
			params.OnTypingChange(active)
		}
	})
	return s
}

// AttachChannel wires the presence channel. The channel is constructed with
// the session as its event sink, so attachment happens after construction.
func (s *ChatSession) AttachChannel(ch PresenceChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = ch
}

// Bootstrap fetches the conversation, trade and message history, then opens
// the channel. A failed history fetch is tolerated: the session still
// connects so live messages can arrive.
func (s *ChatSession) Bootstrap(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return errors.ConnectionError("session already disposed", nil)
	}
	ch := s.channel
	s.mu.Unlock()

	if ch == nil {
		return errors.Internal("no presence channel attached", nil)
	}

	conv, trade, err := s.params.Conversations.GetByID(ctx, s.params.ConversationID)
	if err != nil {
		logger.Warn("Bootstrap: conversation %s fetch failed: %v", s.params.ConversationID, err)
	} else {
		s.mu.Lock()
		s.conversation = conv
		s.trade = trade
		s.role = conv.RoleOf(s.params.UserID)
		s.mu.Unlock()
	}

	history, err := s.params.Conversations.ListMessages(ctx, s.params.ConversationID)
	if err != nil {
		logger.Warn("Bootstrap: history fetch failed for conversation %s: %v", s.params.ConversationID, err)
	} else {
		for _, msg := range history {
			s.store.Append(msg)
		}
	}

	return ch.Open(ctx)
}

// SendMessage appends an optimistic local echo and pushes it over the
// channel. Whitespace-only content and a not-ready channel are rejected
// before anything is stored. Returns the correlation token for retry.
func (s *ChatSession) SendMessage(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", errors.BadRequest("message content is empty", nil)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return "", errors.ConnectionError("session already disposed", nil)
	}
	ch := s.channel
	s.mu.Unlock()

	if ch == nil || !ch.Ready() {
		return "", errors.ConnectionError("presence channel is not connected", nil)
	}

	token := s.store.AppendPending(s.params.ConversationID, s.params.UserID, content, time.Now())
	if err := ch.SendChatMessage(token, content); err != nil {
		s.store.MarkFailed(token)
		metrics.IncFailedSend()
		return token, errors.SendFailed("message send failed", err)
	}

	s.armAckTimer(token)
	return token, nil
}

// RetryMessage re-sends a failed entry with the same correlation token, so a
// late ack from the first attempt still reconciles cleanly.
func (s *ChatSession) RetryMessage(token string) error {
	entry, ok := s.store.Get(token)
	if !ok {
		return errors.NotFound("pending message", nil)
	}
	if entry.Delivery != entity.DeliveryFailed {
		return errors.BadRequest("message is not in a failed state", nil)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return errors.ConnectionError("session already disposed", nil)
	}
	ch := s.channel
	s.mu.Unlock()

	if ch == nil || !ch.Ready() {
		return errors.ConnectionError("presence channel is not connected", nil)
	}

	s.store.MarkPending(token)
	if err := ch.SendChatMessage(token, entry.Content); err != nil {
		s.store.MarkFailed(token)
		metrics.IncFailedSend()
		return errors.SendFailed("message retry failed", err)
	}

	s.armAckTimer(token)
	return nil
}

func (s *ChatSession) armAckTimer(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	if existing, ok := s.ackTimers[token]; ok {
		existing.Stop()
	}
	s.ackTimers[token] = time.AfterFunc(s.params.SendTimeout, func() {
		s.mu.Lock()
		if s.disposed {
			s.mu.Unlock()
			return
		}
		delete(s.ackTimers, token)
		s.mu.Unlock()

		s.store.MarkFailed(token)
		metrics.IncFailedSend()
		logger.Warn("Message %s not acknowledged within %v, marked failed", token, s.params.SendTimeout)
	})
}

func (s *ChatSession) cancelAckTimer(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.ackTimers[token]; ok {
		timer.Stop()
		delete(s.ackTimers, token)
	}
}

// SetTyping publishes the local user's typing state. Best-effort; a closed
// channel just drops it.
func (s *ChatSession) SetTyping(isTyping bool) {
	s.mu.Lock()
	ch := s.channel
	disposed := s.disposed
	s.mu.Unlock()

	if disposed || ch == nil || !ch.Ready() {
		return
	}
	if err := ch.SendTyping(isTyping); err != nil {
		logger.Debug("typing publish dropped: %v", err)
	}
}

// PerformTradeAction validates locally, delegates to the trade collaborator
// and only then applies the confirmed status. One action may be in flight at
// a time; a second request is rejected so rapid double-clicks cannot
// double-fire.
func (s *ChatSession) PerformTradeAction(ctx context.Context, action entity.TradeAction) (*entity.Trade, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, errors.ConnectionError("session already disposed", nil)
	}
	if s.trade == nil {
		s.mu.Unlock()
		return nil, errors.NotFound("trade", nil)
	}
	if s.actionInFlight {
		s.mu.Unlock()
		return nil, errors.TradeActionFailed("another trade action is already in flight", nil)
	}
	if err := s.trade.Validate(s.role, action); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	tradeID := s.trade.ID
	role := s.role
	s.actionInFlight = true
	s.mu.Unlock()

	confirmed, err := s.params.Trades.PerformAction(ctx, tradeID, action)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.actionInFlight = false

	if err != nil {
		logger.LogTradeError(tradeID, string(action), err)
		if errors.Is(err, "INVALID_TRANSITION") || errors.Is(err, "TRADE_ACTION_FAILED") {
			return nil, err
		}
		return nil, errors.TradeActionFailed("trade action rejected by server", err)
	}
	if s.disposed {
		return nil, errors.ConnectionError("session disposed during trade action", nil)
	}

	if confirmed != nil {
		s.trade = confirmed
	} else if applyErr := s.trade.Apply(role, action, time.Now()); applyErr != nil {
		return nil, applyErr
	}

	snapshot := *s.trade
	return &snapshot, nil
}

// AllowedActions is what the UI binds the action buttons to.
func (s *ChatSession) AllowedActions() []entity.TradeAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trade == nil {
		return nil
	}
	return s.trade.AllowedActions(s.role)
}

// Messages returns the ordered, deduplicated view of the conversation log.
func (s *ChatSession) Messages() []entity.Message {
	return s.store.OrderedView()
}

func (s *ChatSession) Trade() *entity.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trade == nil {
		return nil
	}
	snapshot := *s.trade
	return &snapshot
}

func (s *ChatSession) Conversation() *entity.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation
}

func (s *ChatSession) Role() entity.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *ChatSession) IsTyping() bool {
	return s.typing.Active()
}

func (s *ChatSession) ConnectionState() ws.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState
}

// Dispose tears the session down: synchronous and total. The channel is
// closed, every timer stopped, and any callback scheduled before disposal
// becomes a no-op.
func (s *ChatSession) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	for token, timer := range s.ackTimers {
		timer.Stop()
		delete(s.ackTimers, token)
	}
	ch := s.channel
	s.mu.Unlock()

	s.typing.Stop()
	if ch != nil {
		ch.Close()
	}
}

// --- websocket.EventSink ---

func (s *ChatSession) OnChatHistory(messages []entity.Message) {
	s.mu.Lock()
	disposed := s.disposed
	s.mu.Unlock()
	if disposed {
		return
	}

	for _, msg := range messages {
		s.store.Append(msg)
	}
}

func (s *ChatSession) OnChatMessage(message entity.Message) {
	s.mu.Lock()
	disposed := s.disposed
	s.mu.Unlock()
	if disposed {
		return
	}

	// The server echoes our own sends with the correlation token; reconcile
	// the optimistic entry instead of appending a duplicate.
	if message.Token != "" && message.SenderID == s.params.UserID {
		s.cancelAckTimer(message.Token)
		s.store.Reconcile(message.Token, message)
		return
	}

	fresh := message.ID != "" && !s.store.HasServerID(message.ID)
	s.store.Append(message)

	if fresh && message.SenderID != s.params.UserID {
		// Incoming text clears the counterpart's typing flag.
		s.typing.Set(false)
		if s.params.Sound != nil {
			s.params.Sound.Play()
		}
	}
}

func (s *ChatSession) OnTypingIndicator(isTyping bool) {
	s.mu.Lock()
	disposed := s.disposed
	s.mu.Unlock()
	if disposed {
		return
	}
	s.typing.Set(isTyping)
}

func (s *ChatSession) OnNotification(n entity.Notification) {
	s.mu.Lock()
	disposed := s.disposed
	s.mu.Unlock()
	if disposed {
		return
	}
	if s.params.Notifications != nil {
		s.params.Notifications.Push(n)
	}
}

func (s *ChatSession) OnConnectionState(state ws.ConnectionState, err error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.connState = state
	s.mu.Unlock()

	if err != nil {
		logger.Info("Presence channel state %s: %v", state, err)
	}
	if s.params.OnConnectionChange != nil {
		s.params.OnConnectionChange(state, err)
	}
}
