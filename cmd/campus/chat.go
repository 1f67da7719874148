package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/chat"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/notify"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/websocket"
)

// findUser resolves a username or user id.
func (a *app) findUser(ctx context.Context, who string) (models.User, error) {
	users, err := a.client.Users(ctx)
	if err != nil {
		return models.User{}, err
	}
	who = strings.TrimPrefix(who, "@")
	for _, u := range users {
		if u.ID.String() == who || strings.EqualFold(u.Username, who) {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("no user %q", who)
}

func (a *app) chat(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: campus chat <username|userId>")
	}
	peer, err := a.findUser(ctx, args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := notify.NewQueue(16)
	ws := websocket.NewClient(websocket.Options{
		URL:          a.cfg.RealtimeURL,
		Scheme:       a.cfg.AuthScheme,
		ReconnectMin: a.cfg.ReconnectMin,
		ReconnectMax: a.cfg.ReconnectMax,
		Logger:       a.logger,
	})
	go ws.Follow(ctx, a.holder)

	engine := chat.NewEngine(a.client, ws, a.holder, chat.Options{
		Pending:  a.cfg.PendingMessages,
		Logger:   a.logger,
		Notifier: queue,
	})
	go engine.Run(ctx)

	c, err := engine.StartChat(ctx, peer.ID)
	if err != nil {
		return err
	}
	if err := engine.Open(ctx, c); err != nil {
		return err
	}

	self := a.holder.Current().Session.UserID()
	fmt.Printf("Chatting with %s. Type a message and press enter, Ctrl-D to leave.\n", peer.DisplayName())
	go printUpdates(ctx, engine, self, peer)
	go printNotices(ctx, queue, ws)

	for {
		line, err := a.stdin.ReadString('\n')
		if text := strings.TrimSpace(line); text != "" {
			// failures are reported through the notification queue
			engine.Send(ctx, text)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return engine.Close(ctx)
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func printUpdates(ctx context.Context, engine *chat.Engine, self models.UserID, peer models.User) {
	printed := make(map[int64]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-engine.Updates():
			for _, m := range v.Messages {
				if m.Pending() || printed[m.ID] {
					continue
				}
				printed[m.ID] = true
				name := peer.DisplayName()
				if m.Sender.ID == self {
					name = "you"
				}
				fmt.Printf("[%s] %s: %s\n", m.SentAt.Local().Format("15:04"), name, m.Content)
			}
		}
	}
}

func printNotices(ctx context.Context, queue *notify.Queue, ws *websocket.Client) {
	out := log.New(os.Stderr, "", 0)
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-queue.C():
			out.Printf("! %s: %s", n.Title, n.Message)
		case err := <-ws.Errors():
			out.Printf("! connection: %v", err)
		}
	}
}
