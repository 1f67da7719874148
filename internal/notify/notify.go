// Package notify carries user-visible, dismissible notifications from the
// component that caught a failure to whatever presents them.
package notify

import (
	"log"
	"sync"
	"time"
)

type Kind int

const (
	KindInfo Kind = iota
	KindError
)

func (k Kind) String() string {
	if k == KindError {
		return "error"
	}
	return "info"
}

type Notification struct {
	Kind    Kind
	Title   string
	Message string
	At      time.Time
}

type Notifier interface {
	Notify(n Notification)
}

// Error builds an error notification. Message falls back to a generic hint
// when err is nil or has no text.
func Error(title string, err error) Notification {
	msg := "Please try again."
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Notification{Kind: KindError, Title: title, Message: msg, At: time.Now()}
}

func Info(title, message string) Notification {
	return Notification{Kind: KindInfo, Title: title, Message: message, At: time.Now()}
}

// Queue is a bounded notification buffer. Notify never blocks: when the
// buffer is full the oldest notification is dropped.
type Queue struct {
	mu sync.Mutex
	ch chan Notification
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 16
	}
	return &Queue{ch: make(chan Notification, size)}
}

func (q *Queue) Notify(n Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		select {
		case q.ch <- n:
			return
		default:
		}
		select {
		case <-q.ch:
		default:
		}
	}
}

// C exposes pending notifications; receiving one dismisses it.
func (q *Queue) C() <-chan Notification { return q.ch }

// Drain returns and dismisses everything currently queued.
func (q *Queue) Drain() []Notification {
	var out []Notification
	for {
		select {
		case n := <-q.ch:
			out = append(out, n)
		default:
			return out
		}
	}
}

// Logger writes notifications to a log.
type Logger struct {
	Log *log.Logger
}

func (l Logger) Notify(n Notification) {
	l.Log.Printf("%s: %s: %s", n.Kind, n.Title, n.Message)
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(Notification) {}
