package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/inflight"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/notify"
)

var (
	// ErrPendingLike means an unlike was requested for a like whose server id
	// is still unknown after a refetch.
	ErrPendingLike        = errors.New("like is not confirmed yet")
	ErrEmptyComment       = errors.New("comment is empty")
	ErrLikesUnsupported   = errors.New("resource cannot be liked")
	ErrCommentUnsupported = errors.New("resource cannot be commented")
)

type Liker interface {
	Like(ctx context.Context, id int64) (int64, error)
	Unlike(ctx context.Context, likeID, id int64) error
	Likes(ctx context.Context, id int64) ([]models.Like, error)
}

type Commenter interface {
	Comment(ctx context.Context, id int64, text string) (*models.Comment, error)
}

type Options struct {
	Logger   *log.Logger
	Notifier notify.Notifier
}

type entry struct {
	likes    []models.Like
	comments []models.Comment
}

// Board holds the like and comment state of loaded resources. Either
// collaborator may be nil for resources that do not support the action.
type Board struct {
	mu        sync.Mutex
	items     map[int64]*entry
	liker     Liker
	commenter Commenter
	guard     *inflight.Guard
	notifier  notify.Notifier
	logger    *log.Logger
	now       func() time.Time
}

func NewBoard(liker Liker, commenter Commenter, opts Options) *Board {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Board{
		items:     make(map[int64]*entry),
		liker:     liker,
		commenter: commenter,
		guard:     inflight.NewGuard(),
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Load replaces the local copy of a resource with server state.
func (b *Board) Load(id int64, likes []models.Like, comments []models.Comment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[id] = &entry{
		likes:    append([]models.Like(nil), likes...),
		comments: append([]models.Comment(nil), comments...),
	}
}

func (b *Board) get(id int64) *entry {
	e, ok := b.items[id]
	if !ok {
		e = &entry{}
		b.items[id] = e
	}
	return e
}

func (b *Board) Likes(id int64) []models.Like {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.items[id]; ok {
		return append([]models.Like(nil), e.likes...)
	}
	return nil
}

func (b *Board) Comments(id int64) []models.Comment {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.items[id]; ok {
		return append([]models.Comment(nil), e.comments...)
	}
	return nil
}

func (b *Board) Liked(id int64, user models.UserID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.items[id]; ok {
		return Liked(e.likes, user)
	}
	return false
}

// Busy reports whether a like toggle is in flight for id.
func (b *Board) Busy(id int64) bool {
	return b.guard.Busy(likeKey(id))
}

func likeKey(id int64) string    { return "like:" + models.FormatID(id) }
func commentKey(id int64) string { return "comment:" + models.FormatID(id) }

// Toggle likes or unlikes resource id for user. The local state flips before
// the server is called and flips back if the server refuses. A second toggle
// for the same resource is refused with inflight.ErrBusy until the first
// completes.
func (b *Board) Toggle(ctx context.Context, id int64, user models.User) error {
	if b.liker == nil {
		return ErrLikesUnsupported
	}
	release, err := b.guard.Acquire(likeKey(id))
	if err != nil {
		return err
	}
	defer release()

	b.mu.Lock()
	e := b.get(id)
	tentative, intent := Apply(e.likes, id, user.Ref())
	e.likes = tentative
	b.mu.Unlock()

	outcome := b.execute(ctx, &intent)

	b.mu.Lock()
	e = b.get(id)
	e.likes = Settle(e.likes, intent, outcome)
	b.mu.Unlock()

	if outcome.Err != nil {
		title := "Failed to like"
		if intent.Kind == IntentUnlike {
			title = "Failed to unlike"
		}
		b.logger.Printf("%s resource %d: %v", title, id, outcome.Err)
		b.notifier.Notify(notify.Error(title, outcome.Err))
		return outcome.Err
	}
	return nil
}

func (b *Board) execute(ctx context.Context, intent *Intent) Outcome {
	if intent.Kind == IntentLike {
		likeID, err := b.liker.Like(ctx, intent.ResourceID)
		return Outcome{Err: err, LikeID: likeID}
	}

	if intent.Removed.Pending() {
		likes, err := b.liker.Likes(ctx, intent.ResourceID)
		if err != nil {
			return Outcome{Err: fmt.Errorf("failed to look up like: %w", err)}
		}
		for _, l := range likes {
			if l.User.ID == intent.User.ID && !l.Pending() {
				intent.Removed.ID = l.ID
				break
			}
		}
		if intent.Removed.Pending() {
			return Outcome{Err: ErrPendingLike}
		}
	}
	return Outcome{Err: b.liker.Unlike(ctx, intent.Removed.ID, intent.ResourceID)}
}

// Comment appends text optimistically under a temporary id taken from the
// current time. A failed comment stays in place; only a notification is
// emitted.
func (b *Board) Comment(ctx context.Context, id int64, author *models.User, text string) error {
	if b.commenter == nil {
		return ErrCommentUnsupported
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyComment
	}
	release, err := b.guard.Acquire(commentKey(id))
	if err != nil {
		return err
	}
	defer release()

	now := b.now()
	temp := models.Comment{ID: now.UnixMilli(), Text: text, Author: author, CreatedAt: now}
	b.mu.Lock()
	e := b.get(id)
	e.comments = append(e.comments, temp)
	b.mu.Unlock()

	saved, err := b.commenter.Comment(ctx, id, text)
	if err != nil {
		b.logger.Printf("Failed to comment on resource %d: %v", id, err)
		b.notifier.Notify(notify.Error("Failed to add comment", err))
		return err
	}
	if saved == nil {
		return nil
	}

	c := *saved
	if _, ok := c.By(); !ok {
		c.Author = author
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e = b.get(id)
	for i := range e.comments {
		if e.comments[i].ID == temp.ID && e.comments[i].Text == temp.Text {
			e.comments[i] = c
			break
		}
	}
	return nil
}
