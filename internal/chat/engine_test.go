package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/inflight"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/notify"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/session"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/websocket"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func msg(id, chat int64, sender models.UserID, minute int) models.Message {
	return models.Message{
		ID:      id,
		ChatID:  chat,
		Sender:  models.UserRef{ID: sender},
		Content: "m",
		SentAt:  base.Add(time.Duration(minute) * time.Minute),
	}
}

func chatWith(id int64, peer models.UserID) models.Chat {
	return models.Chat{ID: id, Participants: []models.Participant{
		{User: models.User{ID: "1", Username: "me"}},
		{User: models.User{ID: peer, Username: "peer" + string(peer)}},
	}}
}

type fakeGateway struct {
	mu          sync.Mutex
	chats       []models.Chat
	history     map[int64][]models.Message
	historyGate chan struct{}
	historyErr  error
	chatsCalls  int
	chatsGate   chan struct{}
	created     []models.UserID
	markRead    chan int64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{history: make(map[int64][]models.Message), markRead: make(chan int64, 8)}
}

func (g *fakeGateway) UserChats(ctx context.Context, userID models.UserID) ([]models.Chat, error) {
	g.mu.Lock()
	g.chatsCalls++
	gate := g.chatsGate
	chats := append([]models.Chat(nil), g.chats...)
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return chats, nil
}

func (g *fakeGateway) CreateChat(ctx context.Context, userIDs ...models.UserID) (models.Chat, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = userIDs
	c := chatWith(100, userIDs[1])
	return c, nil
}

func (g *fakeGateway) ChatMessages(ctx context.Context, chatID int64) ([]models.Message, error) {
	if g.historyGate != nil {
		<-g.historyGate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.history[chatID], g.historyErr
}

func (g *fakeGateway) MarkRead(ctx context.Context, chatID int64, userID models.UserID) error {
	g.markRead <- chatID
	return errors.New("mark read is best effort")
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.chatsCalls
}

type fakeTransport struct {
	mu      sync.Mutex
	events  chan models.Message
	sent    []models.SendMessagePayload
	joined  []int64
	sendErr error
	block   chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan models.Message, 16)}
}

func (t *fakeTransport) Send(chatID int64, senderID, receiverID models.UserID, content string) error {
	if t.block != nil {
		<-t.block
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, models.SendMessagePayload{ChatID: chatID, SenderID: senderID, ReceiverID: receiverID, Content: content})
	return nil
}

func (t *fakeTransport) JoinChat(chatID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.joined = append(t.joined, chatID)
	return nil
}

func (t *fakeTransport) LeaveChat() {}

func (t *fakeTransport) Events() <-chan models.Message { return t.events }

type setup struct {
	engine *Engine
	gw     *fakeGateway
	tr     *fakeTransport
	queue  *notify.Queue
}

func setupEngine(t *testing.T, opts Options) *setup {
	t.Helper()
	holder := session.NewHolder(&session.MemoryStore{}, nil)
	holder.Login(context.Background(), "tok", models.User{ID: "1", Username: "me"})

	s := &setup{gw: newFakeGateway(), tr: newFakeTransport(), queue: notify.NewQueue(8)}
	opts.Notifier = s.queue
	s.engine = NewEngine(s.gw, s.tr, holder, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.engine.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s
}

// eventually polls the engine view until cond holds.
func eventually(t *testing.T, e *Engine, cond func(View) bool) View {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		v, err := e.View(context.Background())
		if err != nil {
			t.Fatalf("Failed to read view: %v", err)
		}
		if cond(v) {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met, last view: %+v", v)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func ids(msgs []models.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestOpenThenPushAppends(t *testing.T) {
	s := setupEngine(t, Options{})
	s.gw.history[5] = []models.Message{msg(1, 5, "2", 1), msg(2, 5, "1", 2), msg(3, 5, "2", 3)}

	if err := s.engine.Open(context.Background(), chatWith(5, "2")); err != nil {
		t.Fatalf("Failed to open chat: %v", err)
	}
	s.tr.events <- msg(4, 5, "2", 10)

	v := eventually(t, s.engine, func(v View) bool { return len(v.Messages) == 4 })
	if got := ids(v.Messages); !equalIDs(got, []int64{1, 2, 3, 4}) {
		t.Errorf("expected new message last, got %v", got)
	}

	select {
	case id := <-s.gw.markRead:
		if id != 5 {
			t.Errorf("expected mark read for chat 5, got %d", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected mark read after open")
	}
	if len(s.tr.joined) != 1 || s.tr.joined[0] != 5 {
		t.Errorf("expected join of chat 5, got %v", s.tr.joined)
	}
	// mark-read failure is logged only
	if n := s.queue.Drain(); len(n) != 0 {
		t.Errorf("expected no notifications, got %+v", n)
	}
}

func TestPushOrderingAndDedup(t *testing.T) {
	s := setupEngine(t, Options{})
	s.gw.history[5] = []models.Message{msg(10, 5, "2", 5), msg(11, 5, "2", 8)}
	s.engine.Open(context.Background(), chatWith(5, "2"))

	s.tr.events <- msg(12, 5, "2", 6) // late arrival
	s.tr.events <- msg(11, 5, "2", 8) // duplicate of fetched message
	s.tr.events <- msg(13, 5, "1", 8) // tie with 11, arrives after it
	s.tr.events <- msg(12, 5, "2", 6) // duplicate push

	v := eventually(t, s.engine, func(v View) bool { return len(v.Messages) == 4 })
	if got := ids(v.Messages); !equalIDs(got, []int64{10, 12, 11, 13}) {
		t.Errorf("expected [10 12 11 13], got %v", got)
	}
	for i := 1; i < len(v.Messages); i++ {
		if v.Messages[i].SentAt.Before(v.Messages[i-1].SentAt) {
			t.Errorf("messages out of order at %d", i)
		}
	}
}

func TestPushDuringHistoryFetchIsMerged(t *testing.T) {
	s := setupEngine(t, Options{})
	s.gw.history[5] = []models.Message{msg(1, 5, "2", 1), msg(2, 5, "2", 2)}
	s.gw.historyGate = make(chan struct{})

	opened := make(chan error, 1)
	go func() { opened <- s.engine.Open(context.Background(), chatWith(5, "2")) }()

	eventually(t, s.engine, func(v View) bool { return v.Loading })
	s.tr.events <- msg(3, 5, "2", 3)
	s.tr.events <- msg(2, 5, "2", 2) // also in the history
	eventually(t, s.engine, func(v View) bool { return v.Loading })
	close(s.gw.historyGate)

	if err := <-opened; err != nil {
		t.Fatalf("Failed to open chat: %v", err)
	}
	v := eventually(t, s.engine, func(v View) bool { return !v.Loading })
	if got := ids(v.Messages); !equalIDs(got, []int64{1, 2, 3}) {
		t.Errorf("expected [1 2 3], got %v", got)
	}
}

func TestPushForOtherChatRefreshesList(t *testing.T) {
	s := setupEngine(t, Options{})
	s.gw.history[5] = []models.Message{msg(1, 5, "2", 1)}
	s.gw.chats = []models.Chat{chatWith(5, "2"), chatWith(9, "3"), chatWith(9, "3")}
	s.engine.Open(context.Background(), chatWith(5, "2"))

	s.tr.events <- msg(50, 9, "3", 4)

	v := eventually(t, s.engine, func(v View) bool { return len(v.Chats) > 0 })
	if len(v.Chats) != 2 || v.Chats[1].ID != 9 {
		t.Errorf("expected deduplicated list [5 9], got %+v", v.Chats)
	}
	if got := ids(v.Messages); !equalIDs(got, []int64{1}) {
		t.Errorf("expected open chat untouched, got %v", got)
	}
}

func TestChatRefreshIsCoalesced(t *testing.T) {
	s := setupEngine(t, Options{})
	s.gw.chatsGate = make(chan struct{})

	for i := int64(0); i < 5; i++ {
		s.tr.events <- msg(100+i, 9, "3", int(i))
	}
	eventually(t, s.engine, func(View) bool { return s.gw.calls() == 1 })
	// let the pushes queue behind the running fetch
	time.Sleep(20 * time.Millisecond)
	close(s.gw.chatsGate)

	eventually(t, s.engine, func(View) bool { return s.gw.calls() >= 2 })
	time.Sleep(50 * time.Millisecond)
	if n := s.gw.calls(); n != 2 {
		t.Errorf("expected 2 fetches, got %d", n)
	}
}

func TestRefreshChatsDedup(t *testing.T) {
	s := setupEngine(t, Options{})
	first := chatWith(9, "3")
	second := chatWith(9, "4")
	s.gw.chats = []models.Chat{first, second, chatWith(2, "5")}

	chats, err := s.engine.RefreshChats(context.Background())
	if err != nil {
		t.Fatalf("Failed to refresh chats: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}
	if peer, _ := chats[0].Peer("1"); peer.ID != "3" {
		t.Errorf("expected first-seen projection to win, got peer %q", peer.ID)
	}
}

func TestSendIsEchoDriven(t *testing.T) {
	s := setupEngine(t, Options{})
	ctx := context.Background()

	if err := s.engine.Send(ctx, "hi"); !errors.Is(err, ErrNoActiveChat) {
		t.Fatalf("expected ErrNoActiveChat, got %v", err)
	}

	s.engine.Open(ctx, chatWith(5, "2"))
	if err := s.engine.Send(ctx, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if err := s.engine.Send(ctx, "hi"); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	if len(s.tr.sent) != 1 || s.tr.sent[0].ReceiverID != "2" || s.tr.sent[0].SenderID != "1" {
		t.Fatalf("unexpected sent frames: %+v", s.tr.sent)
	}

	v, _ := s.engine.View(ctx)
	if len(v.Messages) != 0 {
		t.Errorf("expected no placeholder, got %d messages", len(v.Messages))
	}
}

func TestSendBusyFlag(t *testing.T) {
	s := setupEngine(t, Options{})
	ctx := context.Background()
	s.engine.Open(ctx, chatWith(5, "2"))

	s.tr.block = make(chan struct{})
	first := make(chan error, 1)
	go func() { first <- s.engine.Send(ctx, "one") }()
	eventually(t, s.engine, func(v View) bool { return v.Sending })

	if err := s.engine.Send(ctx, "two"); !errors.Is(err, inflight.ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	close(s.tr.block)
	if err := <-first; err != nil {
		t.Errorf("Failed to send: %v", err)
	}
	eventually(t, s.engine, func(v View) bool { return !v.Sending })
}

func TestSendWhileDisconnectedNotifies(t *testing.T) {
	s := setupEngine(t, Options{Pending: true})
	ctx := context.Background()
	s.engine.Open(ctx, chatWith(5, "2"))
	s.tr.sendErr = websocket.ErrNotConnected

	if err := s.engine.Send(ctx, "hi"); !errors.Is(err, websocket.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	v, _ := s.engine.View(ctx)
	if len(v.Messages) != 0 {
		t.Errorf("expected placeholder to be dropped, got %+v", v.Messages)
	}
	n := s.queue.Drain()
	if len(n) != 1 || n[0].Kind != notify.KindError {
		t.Errorf("expected one error notification, got %+v", n)
	}
}

func TestPendingPlaceholderReplacedByEcho(t *testing.T) {
	s := setupEngine(t, Options{Pending: true})
	ctx := context.Background()
	s.engine.Open(ctx, chatWith(5, "2"))

	if err := s.engine.Send(ctx, "hello"); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	v, _ := s.engine.View(ctx)
	if len(v.Messages) != 1 || !v.Messages[0].Pending() {
		t.Fatalf("expected one pending placeholder, got %+v", v.Messages)
	}

	echo := msg(70, 5, "1", 0)
	echo.Content = "hello"
	echo.SentAt = time.Now()
	s.tr.events <- echo

	v = eventually(t, s.engine, func(v View) bool { return len(v.Messages) == 1 && !v.Messages[0].Pending() })
	if v.Messages[0].ID != 70 {
		t.Errorf("expected echo 70, got %d", v.Messages[0].ID)
	}
}

func TestSendDuringHistoryLoad(t *testing.T) {
	for _, tc := range []struct {
		name    string
		inFetch bool
	}{
		{"echo also in history", true},
		{"echo after history", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := setupEngine(t, Options{Pending: true})
			ctx := context.Background()

			echo := msg(10, 5, "1", 0)
			echo.Content = "hello"
			echo.SentAt = time.Now()
			history := []models.Message{msg(1, 5, "2", 1)}
			if tc.inFetch {
				history = append(history, echo)
			}
			s.gw.history[5] = history
			s.gw.historyGate = make(chan struct{})

			opened := make(chan error, 1)
			go func() { opened <- s.engine.Open(ctx, chatWith(5, "2")) }()
			eventually(t, s.engine, func(v View) bool { return v.Loading })

			if err := s.engine.Send(ctx, "hello"); err != nil {
				t.Fatalf("Failed to send: %v", err)
			}
			s.tr.events <- echo
			for len(s.tr.events) > 0 {
				time.Sleep(time.Millisecond)
			}
			// the push is handled before any later view request
			s.engine.View(ctx)
			close(s.gw.historyGate)

			if err := <-opened; err != nil {
				t.Fatalf("Failed to open chat: %v", err)
			}
			v := eventually(t, s.engine, func(v View) bool { return !v.Loading })
			if got := ids(v.Messages); !equalIDs(got, []int64{1, 10}) {
				t.Errorf("expected [1 10], got %v", got)
			}
			for _, m := range v.Messages {
				if m.Pending() {
					t.Errorf("expected no placeholder left, got %+v", m)
				}
			}
		})
	}
}

func TestStartChat(t *testing.T) {
	s := setupEngine(t, Options{})
	ctx := context.Background()
	s.gw.chats = []models.Chat{chatWith(9, "3")}

	c, err := s.engine.StartChat(ctx, "3")
	if err != nil || c.ID != 9 {
		t.Fatalf("expected existing chat 9, got %d %v", c.ID, err)
	}
	if s.gw.created != nil {
		t.Error("expected no chat to be created")
	}

	c, err = s.engine.StartChat(ctx, "4")
	if err != nil || c.ID != 100 {
		t.Fatalf("expected created chat 100, got %d %v", c.ID, err)
	}
	if len(s.gw.created) != 2 || s.gw.created[0] != "1" || s.gw.created[1] != "4" {
		t.Errorf("unexpected create request: %v", s.gw.created)
	}
	v, _ := s.engine.View(ctx)
	if len(v.Chats) != 2 || v.Chats[0].ID != 100 {
		t.Errorf("expected new chat at top of list, got %+v", v.Chats)
	}

	if _, err := s.engine.StartChat(ctx, "1"); !errors.Is(err, ErrNoPeer) {
		t.Errorf("expected ErrNoPeer, got %v", err)
	}
}

func TestOpenHistoryFailure(t *testing.T) {
	s := setupEngine(t, Options{})
	s.gw.historyErr = errors.New("Chat not found")

	if err := s.engine.Open(context.Background(), chatWith(5, "2")); err == nil {
		t.Fatal("expected open to fail")
	}
	v, _ := s.engine.View(context.Background())
	if v.Loading {
		t.Error("expected loading to end after failure")
	}
	if n := s.queue.Drain(); len(n) != 1 || n[0].Message != "Chat not found" {
		t.Errorf("expected one notification with the server message, got %+v", n)
	}
}
