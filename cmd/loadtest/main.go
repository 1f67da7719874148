package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/api"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/config"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/feed"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/websocket"
)

type settings struct {
	users          int
	opsPerSec      int
	duration       time.Duration
	batchSize      int
	apiURL         string
	wsURL          string
	requestTimeout time.Duration
}

// simUser is one simulated account with its own SDK clients.
type simUser struct {
	index   int
	session models.Session
	client  *api.Client
	ws      *websocket.Client
	chat    models.Chat
	peer    models.UserID

	mu      sync.Mutex
	pending map[string]time.Time
}

func (u *simUser) Token() (string, bool) { return u.session.Token, u.session.Token != "" }

func registerUser(ctx context.Context, cfg settings, id int, runID string) (*simUser, error) {
	public := api.NewClient(cfg.apiURL, nil, api.WithTimeout(cfg.requestTimeout))
	token, err := public.Register(ctx, models.RegisterRequest{
		Username:   fmt.Sprintf("loadtest_%s_%d", runID, id),
		Password:   "testpass123",
		FirstName:  "Load",
		SecondName: fmt.Sprintf("Tester %d", id),
	})
	if err != nil {
		return nil, err
	}
	profile, err := public.ProfileWithToken(ctx, token)
	if err != nil {
		return nil, err
	}

	u := &simUser{
		index:   id,
		session: models.Session{Token: token, User: profile},
		pending: make(map[string]time.Time),
	}
	u.client = api.NewClient(cfg.apiURL, u, api.WithTimeout(cfg.requestTimeout))
	return u, nil
}

func createUsersInParallel(ctx context.Context, cfg settings, start, end int, runID string, users []*simUser, wg *sync.WaitGroup, errChan chan<- error) {
	defer wg.Done()

	for i := start; i < end; i++ {
		user, err := registerUser(ctx, cfg, i, runID)
		if err != nil {
			errChan <- fmt.Errorf("failed to register user %d: %v", i, err)
			continue
		}
		users[i] = user
	}
}

// pairUsers opens a direct chat between consecutive users.
func pairUsers(ctx context.Context, users []*simUser) error {
	var wg sync.WaitGroup
	errChan := make(chan error, len(users))

	for i := 0; i+1 < len(users); i += 2 {
		a, b := users[i], users[i+1]
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := a.client.CreateChat(ctx, a.session.UserID(), b.session.UserID())
			if err != nil {
				errChan <- fmt.Errorf("failed to create chat %d/%d: %v", a.index, b.index, err)
				return
			}
			a.chat, a.peer = c, b.session.UserID()
			b.chat, b.peer = c, a.session.UserID()
		}()
	}
	wg.Wait()
	close(errChan)

	var errs []string
	for err := range errChan {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to create some chats: %s", strings.Join(errs, "; "))
	}
	return nil
}

// watchEchoes measures the time from sending a message to receiving its echo.
func watchEchoes(ctx context.Context, u *simUser, stats *Stats) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-u.ws.Events():
			if m.Sender.ID != u.session.UserID() {
				continue
			}
			u.mu.Lock()
			sent, ok := u.pending[m.Content]
			delete(u.pending, m.Content)
			u.mu.Unlock()
			if ok {
				stats.recordSuccess(time.Since(sent), WriteOperation)
			}
		}
	}
}

func simulateUser(ctx context.Context, cfg settings, u *simUser, board *feed.Board, posts []int64, wg *sync.WaitGroup, stats *Stats) {
	defer wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(cfg.opsPerSec))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r := rand.Float32()
		switch {
		case r < 0.4 && u.chat.ID != 0:
			content := fmt.Sprintf("Test message from user %d %s", u.index, uuid.NewString())
			u.mu.Lock()
			u.pending[content] = time.Now()
			u.mu.Unlock()
			if err := u.ws.Send(u.chat.ID, u.session.UserID(), u.peer, content); err != nil {
				u.mu.Lock()
				delete(u.pending, content)
				u.mu.Unlock()
				stats.recordError()
			}

		case r < 0.8 && u.chat.ID != 0:
			start := time.Now()
			if _, err := u.client.ChatMessages(ctx, u.chat.ID); err != nil {
				stats.recordError()
				continue
			}
			stats.recordSuccess(time.Since(start), ReadOperation)

		case len(posts) > 0:
			id := posts[rand.Intn(len(posts))]
			start := time.Now()
			if err := board.Toggle(ctx, id, u.session.User); err != nil {
				stats.recordError()
				continue
			}
			stats.recordSuccess(time.Since(start), LikeOperation)
		}
	}
}

func main() {
	cfg := config.Load()
	s := settings{}
	flag.IntVar(&s.users, "users", 100, "Number of simulated users")
	flag.IntVar(&s.opsPerSec, "rate", 1, "Operations per second per user")
	flag.DurationVar(&s.duration, "duration", 60*time.Second, "Simulation time")
	flag.IntVar(&s.batchSize, "batch", 10, "Users registered per goroutine")
	flag.StringVar(&s.apiURL, "api", cfg.APIBaseURL, "REST base URL")
	flag.StringVar(&s.wsURL, "ws", cfg.RealtimeURL, "Realtime URL")
	flag.DurationVar(&s.requestTimeout, "timeout", 5*time.Second, "Per-request timeout")
	flag.Parse()
	if s.users < 2 || s.opsPerSec < 1 || s.batchSize < 1 {
		fmt.Fprintln(os.Stderr, "loadtest: need at least 2 users, a rate of 1 and a batch of 1")
		os.Exit(2)
	}

	logger := log.New(os.Stdout, "[LOADTEST] ", log.LstdFlags)
	logger.Printf("Starting load test with %d users, %d operations per second per user, for %v",
		s.users, s.opsPerSec, s.duration)
	logger.Printf("IMPORTANT: Make sure to start the devserver with the -loadtest flag:")
	logger.Printf("  go run ./cmd/devserver -loadtest")

	ctx := context.Background()
	runID := uuid.NewString()[:8]

	users := make([]*simUser, s.users)
	var wg sync.WaitGroup
	errChan := make(chan error, s.users)

	logger.Printf("Creating %d users in parallel batches of %d...", s.users, s.batchSize)
	startTime := time.Now()
	for i := 0; i < s.users; i += s.batchSize {
		end := min(i+s.batchSize, s.users)
		wg.Add(1)
		go createUsersInParallel(ctx, s, i, end, runID, users, &wg, errChan)
	}
	go func() {
		wg.Wait()
		close(errChan)
	}()

	errorCount := 0
	for err := range errChan {
		errorCount++
		if errorCount <= 10 {
			logger.Printf("Error: %v", err)
		}
	}
	registrationDuration := time.Since(startTime)
	logger.Printf("User registration completed in %v (%.2f users/sec)",
		registrationDuration, float64(s.users)/registrationDuration.Seconds())

	var registered []*simUser
	for _, u := range users {
		if u != nil {
			registered = append(registered, u)
		}
	}
	logger.Printf("Successfully registered %d/%d users", len(registered), s.users)
	if len(registered) < s.users/2 {
		logger.Fatalf("Too many registration failures, aborting load test")
	}

	if err := pairUsers(ctx, registered); err != nil {
		logger.Printf("Warning: %v", err)
	}

	var posts []int64
	for _, u := range registered[:min(10, len(registered))] {
		p, err := u.client.CreatePost(ctx, fmt.Sprintf("Load test post by user %d", u.index), nil)
		if err != nil {
			logger.Printf("Warning: failed to create post: %v", err)
			continue
		}
		posts = append(posts, p.ID)
	}

	stats := NewStats()
	runCtx, cancel := context.WithTimeout(ctx, s.duration)
	defer cancel()

	var loadTestWg sync.WaitGroup
	for _, u := range registered {
		u.ws = websocket.NewClient(websocket.Options{URL: s.wsURL, Scheme: cfg.AuthScheme})
		u.ws.Connect(u.session)
		go watchEchoes(runCtx, u, stats)

		board := feed.NewBoard(api.PostLikes{Client: u.client}, nil, feed.Options{})
		initial, err := u.client.Posts(ctx)
		if err == nil {
			for _, p := range initial {
				board.Load(p.ID, p.Likes, p.Comments)
			}
		}

		loadTestWg.Add(1)
		go simulateUser(runCtx, s, u, board, posts, &loadTestWg, stats)
	}

	start := time.Now()
	loadTestWg.Wait()
	duration := time.Since(start)
	for _, u := range registered {
		u.ws.Disconnect()
	}

	stats.calculateStats(duration)

	logger.Printf("Load Test Results:")
	logger.Printf("Total Requests: %d", stats.totalRequests)
	logger.Printf("Successful Requests: %d", stats.successRequests)
	logger.Printf("Failed Requests: %d", stats.failedRequests)
	logger.Printf("Average Latency: %v", stats.averageLatency())
	logger.Printf("Min Latency: %v", stats.minLatency)
	logger.Printf("Max Latency: %v", stats.maxLatency)
	for _, op := range []OperationType{WriteOperation, ReadOperation, LikeOperation} {
		logger.Printf("P50/P99 %s latency: %v / %v", op, stats.P50(op), stats.P99(op))
	}
	logger.Printf("Requests per Second: %.2f", stats.requestsPerSecond)
	logger.Printf("Total Duration: %v", duration)
}
