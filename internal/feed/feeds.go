package feed

import (
	"context"
	"sync"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

// PostFeed is a loaded list of posts whose likes and comments are reconciled
// through a Board.
type PostFeed struct {
	fetch func(ctx context.Context) ([]models.Post, error)
	board *Board

	mu    sync.Mutex
	posts []models.Post
}

func NewPostFeed(fetch func(ctx context.Context) ([]models.Post, error), board *Board) *PostFeed {
	return &PostFeed{fetch: fetch, board: board}
}

// Load replaces the feed with the server's posts.
func (f *PostFeed) Load(ctx context.Context) error {
	posts, err := f.fetch(ctx)
	if err != nil {
		return err
	}
	for _, p := range posts {
		f.board.Load(p.ID, p.Likes, p.Comments)
	}
	f.mu.Lock()
	f.posts = posts
	f.mu.Unlock()
	return nil
}

// Posts returns the posts with the reconciled likes and comments.
func (f *PostFeed) Posts() []models.Post {
	f.mu.Lock()
	posts := append([]models.Post(nil), f.posts...)
	f.mu.Unlock()
	for i := range posts {
		posts[i].Likes = f.board.Likes(posts[i].ID)
		posts[i].Comments = f.board.Comments(posts[i].ID)
	}
	return posts
}

func (f *PostFeed) Post(id int64) (models.Post, bool) {
	for _, p := range f.Posts() {
		if p.ID == id {
			return p, true
		}
	}
	return models.Post{}, false
}

func (f *PostFeed) Toggle(ctx context.Context, id int64, user models.User) error {
	return f.board.Toggle(ctx, id, user)
}

func (f *PostFeed) Comment(ctx context.Context, id int64, author models.User, text string) error {
	return f.board.Comment(ctx, id, &author, text)
}

// AnonymousFeed is the anonymous wall. Comments are posted without an author.
type AnonymousFeed struct {
	fetch func(ctx context.Context) ([]models.AnonymousMessage, error)
	board *Board

	mu   sync.Mutex
	msgs []models.AnonymousMessage
}

func NewAnonymousFeed(fetch func(ctx context.Context) ([]models.AnonymousMessage, error), board *Board) *AnonymousFeed {
	return &AnonymousFeed{fetch: fetch, board: board}
}

func (f *AnonymousFeed) Load(ctx context.Context) error {
	msgs, err := f.fetch(ctx)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		f.board.Load(m.ID, m.Likes, m.Comments)
	}
	f.mu.Lock()
	f.msgs = msgs
	f.mu.Unlock()
	return nil
}

func (f *AnonymousFeed) Messages() []models.AnonymousMessage {
	f.mu.Lock()
	msgs := append([]models.AnonymousMessage(nil), f.msgs...)
	f.mu.Unlock()
	for i := range msgs {
		msgs[i].Likes = f.board.Likes(msgs[i].ID)
		msgs[i].Comments = f.board.Comments(msgs[i].ID)
	}
	return msgs
}

func (f *AnonymousFeed) Comment(ctx context.Context, id int64, text string) error {
	return f.board.Comment(ctx, id, nil, text)
}
