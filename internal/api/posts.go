package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

func (c *Client) Posts(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	err := c.get(ctx, "/posts", &posts)
	return posts, err
}

func (c *Client) PostsByUser(ctx context.Context, userID models.UserID) ([]models.Post, error) {
	var posts []models.Post
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/posts",
		query:  url.Values{"userId": {userID.String()}},
	}, &posts)
	return posts, err
}

func (c *Client) Post(ctx context.Context, id int64) (models.Post, error) {
	var p models.Post
	err := c.get(ctx, idPath("posts", id), &p)
	return p, err
}

func (c *Client) CreatePost(ctx context.Context, content string, media []models.Upload) (models.Post, error) {
	files := make([]formFile, 0, len(media))
	for _, m := range media {
		files = append(files, formFile{field: "media", upload: m})
	}
	var p models.Post
	err := c.sendForm(ctx, request{method: http.MethodPost, path: "/posts"},
		[]formField{{"content", content}}, files, &p)
	return p, err
}

// Like likes a post and returns the new like id, or 0 when the server did not
// report one.
func (c *Client) Like(ctx context.Context, postID int64) (int64, error) {
	var res models.LikeResult
	if err := c.sendJSON(ctx, http.MethodPost, idPath("likes", postID), nil, &res); err != nil {
		return 0, err
	}
	return res.Like.ID, nil
}

func (c *Client) Unlike(ctx context.Context, likeID, postID int64) error {
	return c.del(ctx, idPath("likes", likeID, postID), nil)
}

// Comment adds a comment to a post. The returned comment is nil when the
// server acknowledged without echoing it.
func (c *Client) Comment(ctx context.Context, postID int64, text string) (*models.Comment, error) {
	var comment *models.Comment
	err := c.sendJSON(ctx, http.MethodPost, idPath("comments", postID), models.CommentRequest{Text: text}, &comment)
	return comment, err
}

func (c *Client) AnonymousMessages(ctx context.Context) ([]models.AnonymousMessage, error) {
	var msgs []models.AnonymousMessage
	err := c.get(ctx, "/anonymous", &msgs)
	return msgs, err
}

func (c *Client) AnonymousMessage(ctx context.Context, id int64) (models.AnonymousMessage, error) {
	var m models.AnonymousMessage
	err := c.get(ctx, idPath("anonymous", id), &m)
	return m, err
}

func (c *Client) CreateAnonymous(ctx context.Context, message string, media []models.Upload) (models.AnonymousMessage, error) {
	files := make([]formFile, 0, len(media))
	for _, m := range media {
		files = append(files, formFile{field: "media", upload: m})
	}
	var m models.AnonymousMessage
	err := c.sendForm(ctx, request{method: http.MethodPost, path: "/anonymous"},
		[]formField{{"message", message}}, files, &m)
	return m, err
}

func (c *Client) CommentAnonymous(ctx context.Context, id int64, text string) (*models.Comment, error) {
	var comment *models.Comment
	err := c.sendJSON(ctx, http.MethodPost, idPath("anonym-comments", id), models.CommentRequest{Text: text}, &comment)
	return comment, err
}

func (c *Client) DeleteAnonymous(ctx context.Context, id int64) error {
	return c.del(ctx, idPath("anonymous", id), nil)
}

// PostLikes adapts the post endpoints to the feed reconciler.
type PostLikes struct {
	Client *Client
}

func (p PostLikes) Like(ctx context.Context, postID int64) (int64, error) {
	return p.Client.Like(ctx, postID)
}

func (p PostLikes) Unlike(ctx context.Context, likeID, postID int64) error {
	return p.Client.Unlike(ctx, likeID, postID)
}

func (p PostLikes) Likes(ctx context.Context, postID int64) ([]models.Like, error) {
	post, err := p.Client.Post(ctx, postID)
	if err != nil {
		return nil, err
	}
	return post.Likes, nil
}

func (p PostLikes) Comment(ctx context.Context, postID int64, text string) (*models.Comment, error) {
	return p.Client.Comment(ctx, postID, text)
}

// AnonymousComments adapts the anonymous comment endpoint to the feed
// reconciler.
type AnonymousComments struct {
	Client *Client
}

func (a AnonymousComments) Comment(ctx context.Context, id int64, text string) (*models.Comment, error) {
	return a.Client.CommentAnonymous(ctx, id, text)
}
