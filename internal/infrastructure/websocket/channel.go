package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"trusttrade/internal/domain/entity"
	"trusttrade/pkg/auth"
	"trusttrade/pkg/errors"
	"trusttrade/pkg/logger"
	"trusttrade/pkg/metrics"
)

type ConnectionState string

const (
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateAuthRequired ConnectionState = "auth_required"
	StateClosed       ConnectionState = "closed"
)

// EventSink receives decoded wire events and connection state changes. The
// ChatSession implements it; events are delivered in receipt order.
type EventSink interface {
	OnChatHistory(messages []entity.Message)
	OnChatMessage(message entity.Message)
	OnTypingIndicator(isTyping bool)
	OnNotification(n entity.Notification)
	OnConnectionState(state ConnectionState, err error)
}

type Config struct {
	// BaseURL is the push transport root, e.g. ws://host:8080.
	BaseURL        string
	ConversationID string
	Tokens         auth.TokenProvider
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
}

// Channel is the single long-lived duplex connection for one conversation.
// On unexpected close it redials after a fixed delay, indefinitely, until
// Close is called; an authentication failure stops the loop instead of
// retrying with a stale token. Close cancels any pending reconnect timer and
// no callback fires afterwards.
type Channel struct {
	cfg      Config
	sink     EventSink
	validate *validator.Validate

	mu             sync.Mutex
	conn           *websocket.Conn
	ready          bool
	closed         bool
	reconnectTimer *time.Timer
}

func NewChannel(cfg Config, sink EventSink) *Channel {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Channel{
		cfg:      cfg,
		sink:     sink,
		validate: validator.New(),
	}
}

func (c *Channel) endpoint() (string, error) {
	token, err := c.cfg.Tokens.Token()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/ws/chat/%s/?token=%s",
		strings.TrimSuffix(c.cfg.BaseURL, "/"),
		c.cfg.ConversationID,
		url.QueryEscape(token),
	), nil
}

// Open dials the transport. The server pushes chat_history once after the
// upgrade; the channel issues no implicit message. A failed dial schedules a
// reconnect (unless the failure is an auth rejection) and still returns the
// error so the caller can show a reconnecting indicator.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.ConnectionError("channel already closed", nil)
	}
	c.mu.Unlock()

	endpoint, err := c.endpoint()
	if err != nil {
		c.notify(StateAuthRequired, err)
		return err
	}

	conn, resp, err := c.cfg.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			authErr := errors.AuthExpired("push transport rejected credential", err)
			c.notify(StateAuthRequired, authErr)
			return authErr
		}
		c.scheduleReconnect()
		connErr := errors.ConnectionError("failed to open presence channel", err)
		c.notify(StateReconnecting, connErr)
		return connErr
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return errors.ConnectionError("channel closed during dial", nil)
	}
	c.conn = conn
	c.ready = true
	c.mu.Unlock()

	c.notify(StateConnected, nil)
	go c.readLoop(conn)
	return nil
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("Presence channel read error: %v", err)
			}
			c.handleDisconnect(err)
			return
		}
		c.dispatch(raw)
	}
}

func (c *Channel) dispatch(raw []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	env, err := decodeEnvelope(raw, c.validate)
	if err != nil {
		logger.Warn("Presence channel dropped malformed event: %v", err)
		return
	}
	metrics.IncEvent(env.Type)

	switch env.Type {
	case EventChatHistory:
		msgs := make([]entity.Message, 0, len(env.Messages))
		for _, m := range env.Messages {
			msgs = append(msgs, m.toEntity(c.cfg.ConversationID))
		}
		c.sink.OnChatHistory(msgs)

	case EventChatMessage:
		c.sink.OnChatMessage(env.Message.toEntity(c.cfg.ConversationID))

	case EventTypingIndicator:
		c.sink.OnTypingIndicator(*env.IsTyping)

	case EventNotification:
		c.sink.OnNotification(env.Notification.toEntity())

	default:
		logger.Debug("Presence channel ignoring unknown event type %q", env.Type)
	}
}

func (c *Channel) handleDisconnect(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.ready = false
	c.mu.Unlock()

	c.notify(StateReconnecting, errors.ConnectionError("presence channel dropped", cause))
	c.scheduleReconnect()
}

// scheduleReconnect arms one redial after the fixed delay. Only one attempt
// is ever outstanding; Close stops the timer.
func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.reconnectTimer != nil {
		return
	}
	metrics.IncReconnect()
	c.reconnectTimer = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		c.Open(context.Background())
	})
}

// SendChatMessage writes an outbound chat_message carrying the correlation
// token. Rejected when the channel is not ready or the content is blank.
func (c *Channel) SendChatMessage(token, content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.BadRequest("message content is empty", nil)
	}
	return c.writeJSON(outboundChatMessage{
		Type:    EventChatMessage,
		TempID:  token,
		Content: strings.TrimSpace(content),
	})
}

// SendTyping publishes the local typing state.
func (c *Channel) SendTyping(isTyping bool) error {
	return c.writeJSON(outboundTyping{
		Type:     EventTypingIndicator,
		IsTyping: isTyping,
	})
}

func (c *Channel) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.ready || c.conn == nil {
		return errors.ConnectionError("presence channel is not connected", nil)
	}
	if err := c.conn.WriteJSON(v); err != nil {
		return errors.SendFailed("failed to write to presence channel", err)
	}
	return nil
}

func (c *Channel) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready && !c.closed
}

// Close tears the channel down: idempotent, cancels the pending reconnect
// timer and closes the socket. Required before the conversation view goes
// away, otherwise the reconnect loop leaks.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.ready = false
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	return nil
}

func (c *Channel) notify(state ConnectionState, err error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed && state != StateClosed {
		return
	}
	if c.sink != nil {
		c.sink.OnConnectionState(state, err)
	}
}

func errMissingPayload(kind string) error {
	return errors.BadRequest(fmt.Sprintf("event %q is missing its payload", kind), nil)
}
