package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/inflight"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/notify"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/session"
)

var (
	ErrNoActiveChat = errors.New("no chat is open")
	ErrEmptyMessage = errors.New("message is empty")
	ErrNoPeer       = errors.New("chat has no other participant")
	ErrStopped      = errors.New("chat engine stopped")
)

// Gateway is the subset of the REST client the engine needs.
type Gateway interface {
	UserChats(ctx context.Context, userID models.UserID) ([]models.Chat, error)
	CreateChat(ctx context.Context, userIDs ...models.UserID) (models.Chat, error)
	ChatMessages(ctx context.Context, chatID int64) ([]models.Message, error)
	MarkRead(ctx context.Context, chatID int64, userID models.UserID) error
}

// Transport is the realtime channel.
type Transport interface {
	Send(chatID int64, senderID, receiverID models.UserID, content string) error
	JoinChat(chatID int64) error
	LeaveChat()
	Events() <-chan models.Message
}

type SessionSource interface {
	Current() session.Snapshot
}

type Options struct {
	// Pending inserts a local placeholder on send that the echo replaces.
	Pending  bool
	Logger   *log.Logger
	Notifier notify.Notifier
}

// View is a copy of the engine state handed to consumers.
type View struct {
	Chats    []models.Chat
	Active   *models.Chat
	Messages []models.Message
	Loading  bool
	Sending  bool
}

type state struct {
	ctx      context.Context
	chats    []models.Chat
	active   *models.Chat
	timeline *Timeline
	loading  bool
	openSeq  uint64
	buffered []models.Message
	sending  bool

	chatsFetching bool
	chatsStale    bool
}

// Engine synchronizes the chat list and the open chat. All state lives in the
// Run goroutine; other methods hand it closures.
type Engine struct {
	gw       Gateway
	tr       Transport
	sessions SessionSource
	opts     Options
	logger   *log.Logger
	notifier notify.Notifier
	guard    *inflight.Guard

	ops     chan func(*state)
	updates chan View
	stopped chan struct{}
}

func NewEngine(gw Gateway, tr Transport, sessions SessionSource, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Engine{
		gw:       gw,
		tr:       tr,
		sessions: sessions,
		opts:     opts,
		logger:   logger,
		notifier: notifier,
		guard:    inflight.NewGuard(),
		ops:      make(chan func(*state), 64),
		updates:  make(chan View, 1),
		stopped:  make(chan struct{}),
	}
}

// Run processes pushes and mutations until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)
	st := &state{ctx: ctx, timeline: NewTimeline()}
	e.logger.Println("Chat engine started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Println("Chat engine stopped")
			return ctx.Err()
		case op := <-e.ops:
			op(st)
		case msg := <-e.tr.Events():
			e.handlePush(st, msg)
		}
		e.publish(st)
	}
}

// Updates delivers the latest view after every change.
func (e *Engine) Updates() <-chan View { return e.updates }

func (e *Engine) View(ctx context.Context) (View, error) {
	var v View
	err := e.call(ctx, func(st *state) { v = buildView(st) })
	return v, err
}

// RefreshChats refetches the chat list for the current user.
func (e *Engine) RefreshChats(ctx context.Context) ([]models.Chat, error) {
	self := e.sessions.Current().Session.UserID()
	chats, err := e.gw.UserChats(ctx, self)
	if err != nil {
		e.notifier.Notify(notify.Error("Failed to load chats", err))
		return nil, err
	}
	chats = DedupChats(chats)
	if err := e.call(ctx, func(st *state) { st.chats = chats }); err != nil {
		return nil, err
	}
	return chats, nil
}

// Open makes chat the active chat and loads its history. Pushes for the chat
// that arrive while the history is loading are merged into it.
func (e *Engine) Open(ctx context.Context, chat models.Chat) error {
	var seq uint64
	err := e.call(ctx, func(st *state) {
		c := chat
		st.active = &c
		st.timeline = NewTimeline()
		st.loading = true
		st.buffered = nil
		st.openSeq++
		seq = st.openSeq
	})
	if err != nil {
		return err
	}

	if err := e.tr.JoinChat(chat.ID); err != nil {
		e.logger.Printf("Join of chat %d deferred until reconnect: %v", chat.ID, err)
	}

	history, fetchErr := e.gw.ChatMessages(ctx, chat.ID)
	err = e.call(ctx, func(st *state) {
		if st.openSeq != seq {
			return
		}
		if fetchErr == nil {
			st.timeline.Replace(history)
		}
		for _, m := range st.buffered {
			if e.opts.Pending {
				st.timeline.Resolve(m)
			} else {
				st.timeline.Insert(m)
			}
		}
		st.buffered = nil
		st.loading = false
	})
	if fetchErr != nil {
		e.notifier.Notify(notify.Error("Failed to load messages", fetchErr))
		return fmt.Errorf("failed to load chat %d: %w", chat.ID, fetchErr)
	}
	if err != nil {
		return err
	}

	self := e.sessions.Current().Session.UserID()
	go func() {
		if err := e.gw.MarkRead(context.WithoutCancel(ctx), chat.ID, self); err != nil {
			e.logger.Printf("Failed to mark chat %d read: %v", chat.ID, err)
		}
	}()
	return nil
}

// Close leaves the active chat.
func (e *Engine) Close(ctx context.Context) error {
	e.tr.LeaveChat()
	return e.call(ctx, func(st *state) {
		st.active = nil
		st.timeline = NewTimeline()
		st.loading = false
		st.buffered = nil
		st.openSeq++
	})
}

// Send transmits content to the active chat's peer. The message shows up
// once the server echoes it back, or right away as a placeholder when
// Options.Pending is set.
func (e *Engine) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	release, err := e.guard.Acquire("send")
	if err != nil {
		return err
	}
	defer release()

	self := e.sessions.Current().Session
	var (
		chat     models.Chat
		key      string
		stateErr error
	)
	err = e.call(ctx, func(st *state) {
		if st.active == nil {
			stateErr = ErrNoActiveChat
			return
		}
		chat = *st.active
		st.sending = true
		if e.opts.Pending {
			key = uuid.NewString()
			st.timeline.Insert(models.Message{
				ChatID:    chat.ID,
				Sender:    self.User.Ref(),
				Content:   content,
				SentAt:    time.Now(),
				ClientKey: key,
			})
		}
	})
	if err != nil {
		return err
	}
	if stateErr != nil {
		return stateErr
	}

	peer, ok := chat.Peer(self.UserID())
	sendErr := ErrNoPeer
	if ok {
		sendErr = e.tr.Send(chat.ID, self.UserID(), peer.ID, content)
	}

	err = e.call(context.WithoutCancel(ctx), func(st *state) {
		st.sending = false
		if sendErr != nil && key != "" {
			st.timeline.Drop(key)
		}
	})
	if sendErr != nil {
		e.notifier.Notify(notify.Error("Failed to send message", sendErr))
		return sendErr
	}
	return err
}

// StartChat returns the chat with peer, creating it when none exists.
func (e *Engine) StartChat(ctx context.Context, peer models.UserID) (models.Chat, error) {
	self := e.sessions.Current().Session.UserID()
	if peer == self {
		return models.Chat{}, ErrNoPeer
	}

	chats, err := e.RefreshChats(ctx)
	if err != nil {
		return models.Chat{}, err
	}
	if c, ok := FindChatWith(chats, peer); ok {
		return c, nil
	}

	chat, err := e.gw.CreateChat(ctx, self, peer)
	if err != nil {
		e.notifier.Notify(notify.Error("Failed to start chat", err))
		return models.Chat{}, err
	}
	err = e.call(ctx, func(st *state) {
		st.chats = DedupChats(append([]models.Chat{chat}, st.chats...))
	})
	return chat, err
}

func (e *Engine) handlePush(st *state, msg models.Message) {
	if st.active == nil || msg.ConversationID() != st.active.ID {
		e.scheduleChatRefresh(st)
		return
	}
	if st.loading {
		st.buffered = append(st.buffered, msg)
		return
	}
	if e.opts.Pending {
		st.timeline.Resolve(msg)
		return
	}
	st.timeline.Insert(msg)
}

// scheduleChatRefresh refetches the chat list in the background. Requests
// made while a fetch is running collapse into one follow-up fetch.
func (e *Engine) scheduleChatRefresh(st *state) {
	if st.chatsFetching {
		st.chatsStale = true
		return
	}
	st.chatsFetching = true
	st.chatsStale = false

	ctx := st.ctx
	self := e.sessions.Current().Session.UserID()
	go func() {
		chats, err := e.gw.UserChats(ctx, self)
		e.post(func(st *state) {
			st.chatsFetching = false
			if err != nil {
				e.logger.Printf("Failed to refresh chats: %v", err)
			} else {
				st.chats = DedupChats(chats)
			}
			if st.chatsStale {
				e.scheduleChatRefresh(st)
			}
		})
	}()
}

func (e *Engine) call(ctx context.Context, fn func(*state)) error {
	done := make(chan struct{})
	op := func(st *state) {
		fn(st)
		close(done)
	}
	select {
	case e.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
}

func (e *Engine) post(fn func(*state)) {
	select {
	case e.ops <- fn:
	case <-e.stopped:
	}
}

func (e *Engine) publish(st *state) {
	v := buildView(st)
	select {
	case <-e.updates:
	default:
	}
	e.updates <- v
}

func buildView(st *state) View {
	v := View{
		Chats:   append([]models.Chat(nil), st.chats...),
		Loading: st.loading,
		Sending: st.sending,
	}
	if st.active != nil {
		c := *st.active
		v.Active = &c
		v.Messages = st.timeline.Messages()
	}
	return v
}
