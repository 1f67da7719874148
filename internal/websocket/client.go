package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/session"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	ErrNotConnected   = errors.New("realtime: not connected")
	ErrSendBufferFull = errors.New("realtime: send buffer full")
)

type Options struct {
	URL          string
	Scheme       models.AuthScheme
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	Dialer       *websocket.Dialer
	Logger       *log.Logger
}

// Client keeps one realtime connection per session alive, reconnecting with
// capped exponential backoff until Disconnect.
type Client struct {
	opts   Options
	logger *log.Logger

	lifecycle sync.Mutex

	mu         sync.Mutex
	state      State
	session    models.Session
	conn       *connection
	activeChat int64
	owner      models.UserID
	cancel     context.CancelFunc
	done       chan struct{}

	events chan models.Message
	errors chan error
}

func NewClient(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = 500 * time.Millisecond
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = opts.ReconnectMin
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		opts:   opts,
		logger: logger,
		events: make(chan models.Message, 256),
		errors: make(chan error, 8),
	}
}

// Events delivers inbound chat messages. The same message may be delivered
// more than once.
func (c *Client) Events() <-chan models.Message { return c.events }

// Errors reports connection failures, once per outage.
func (c *Client) Errors() <-chan error { return c.errors }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connection loop for sess. Calling it again with the same
// credentials is a no-op; different credentials restart the loop.
func (c *Client) Connect(sess models.Session) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.cancel != nil && c.session.Token == sess.Token && c.session.UserID() == sess.UserID() {
		c.session = sess
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.mu.Lock()
	// the active chat belongs to the user who joined it
	if c.owner != "" && c.owner != sess.UserID() {
		c.activeChat = 0
	}
	c.owner = sess.UserID()
	c.session = sess
	c.state = StateConnecting
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.logger.Printf("Connecting to %s as user %s", c.opts.URL, sess.UserID())
	go c.run(ctx, sess, done)
}

// Disconnect closes the connection immediately. Queued frames are dropped.
func (c *Client) Disconnect() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.stop()
}

func (c *Client) stop() {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel, c.done, c.conn = nil, nil, nil
	wasRunning := cancel != nil
	c.state = StateDisconnected
	c.session = models.Session{}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.close()
	}
	if done != nil {
		<-done
	}
	if wasRunning {
		c.logger.Println("Disconnected")
	}
}

// Follow connects while sessions reports an authenticated session and
// disconnects otherwise, until ctx is done.
func (c *Client) Follow(ctx context.Context, sessions interface {
	Subscribe() (<-chan session.Snapshot, func())
}) {
	snapshots, unsubscribe := sessions.Subscribe()
	defer unsubscribe()
	defer c.Disconnect()

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snapshots:
			if snap.Authenticated() {
				c.Connect(snap.Session)
			} else {
				c.Disconnect()
			}
		}
	}
}

// Send emits a sendMessage event without waiting for an acknowledgement.
func (c *Client) Send(chatID int64, senderID, receiverID models.UserID, content string) error {
	frame, err := encodeFrame(models.EventSendMessage, models.SendMessagePayload{
		ChatID:     chatID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.enqueue(frame)
}

// JoinChat makes chatID the active chat. It is remembered and re-joined after
// every reconnect, so ErrNotConnected here is not fatal.
func (c *Client) JoinChat(chatID int64) error {
	frame, err := encodeFrame(models.EventJoinChat, models.JoinChatPayload{ChatID: chatID})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeChat = chatID
	if c.state != StateConnected || c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.enqueue(frame)
}

// LeaveChat forgets the active chat. The server has no leave event.
func (c *Client) LeaveChat() {
	c.mu.Lock()
	c.activeChat = 0
	c.mu.Unlock()
}

func (c *Client) run(ctx context.Context, sess models.Session, done chan struct{}) {
	defer close(done)

	backoff := c.opts.ReconnectMin
	reported := false
	for {
		conn, err := c.dial(ctx, sess)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Printf("Dial failed, retrying in %v: %v", backoff, err)
			if !reported {
				c.reportError(err)
				reported = true
			}
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, c.opts.ReconnectMax)
			continue
		}

		if !c.setConnected(ctx, conn, sess) {
			conn.close()
			return
		}
		backoff = c.opts.ReconnectMin
		reported = false

		err = c.serve(ctx, conn)
		if !c.setConnecting(conn) {
			return
		}
		c.logger.Printf("Connection lost: %v", err)
		c.reportError(fmt.Errorf("connection lost: %w", err))
		reported = true
		if !sleep(ctx, backoff) {
			return
		}
	}
}

func (c *Client) dial(ctx context.Context, sess models.Session) (*connection, error) {
	header := http.Header{}
	header.Set("Authorization", c.opts.Scheme.Header(sess.Token))
	ws, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake rejected with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return newConnection(ws), nil
}

// setConnected publishes conn and queues register plus the active chat's
// joinChat ahead of any other frame.
func (c *Client) setConnected(ctx context.Context, conn *connection, sess models.Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}

	if frame, err := encodeFrame(models.EventRegister, models.RegisterPayload{UserID: sess.UserID()}); err == nil {
		conn.enqueue(frame)
	}
	if c.activeChat != 0 {
		if frame, err := encodeFrame(models.EventJoinChat, models.JoinChatPayload{ChatID: c.activeChat}); err == nil {
			conn.enqueue(frame)
		}
	}
	c.conn = conn
	c.state = StateConnected
	c.logger.Printf("Connected as user %s", sess.UserID())
	return true
}

// setConnecting reports false when the client was stopped meanwhile.
func (c *Client) setConnecting(conn *connection) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return false
	}
	c.conn = nil
	c.state = StateConnecting
	return true
}

func (c *Client) serve(ctx context.Context, conn *connection) error {
	go c.writePump(conn)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.close()
		case <-stop:
		}
	}()

	return c.readPump(conn)
}

func (c *Client) readPump(conn *connection) error {
	defer conn.close()

	conn.ws.SetReadLimit(maxMessageSize)
	conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return err
		}

		var frame models.WebSocketMessage
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Printf("Error unmarshaling frame: %v", err)
			continue
		}

		switch frame.Type {
		case models.EventNewMessage:
			msg, err := models.DecodeMessage(frame.Payload)
			if err != nil {
				c.logger.Printf("Dropping %s event: %v", frame.Type, err)
				continue
			}
			select {
			case c.events <- msg:
			case <-conn.closed:
				return errConnectionClosed
			}
		case models.EventSystem:
			c.logger.Printf("System event: %s", frame.Payload)
		default:
			c.logger.Printf("Ignoring %q event", frame.Type)
		}
	}
}

func (c *Client) writePump(conn *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-conn.send:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Printf("Write failed: %v", err)
				conn.close()
				return
			}
		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.close()
				return
			}
		case <-conn.closed:
			return
		}
	}
}

func (c *Client) reportError(err error) {
	select {
	case c.errors <- err:
	default:
	}
}

func encodeFrame(eventType string, payload interface{}) ([]byte, error) {
	msg, err := models.NewWebSocketMessage(eventType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
