package api

import (
	"context"
	"net/http"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

func (c *Client) Activities(ctx context.Context) ([]models.Activity, error) {
	var activities []models.Activity
	err := c.get(ctx, "/activities", &activities)
	return activities, err
}

func (c *Client) CreateActivity(ctx context.Context, title, description string, photos []models.Upload) (models.Activity, error) {
	files := make([]formFile, 0, len(photos))
	for _, p := range photos {
		files = append(files, formFile{field: "photos", upload: p})
	}
	var a models.Activity
	err := c.sendForm(ctx, request{method: http.MethodPost, path: "/activities"},
		[]formField{{"title", title}, {"description", description}}, files, &a)
	return a, err
}

func (c *Client) DeleteActivity(ctx context.Context, id int64) error {
	return c.del(ctx, idPath("activities", id), nil)
}

// RegisterActivity signs the current user up for an activity.
func (c *Client) RegisterActivity(ctx context.Context, id int64) error {
	return c.sendJSON(ctx, http.MethodPost, idPath("activities", id, "register"), nil, nil)
}

func (c *Client) News(ctx context.Context) ([]models.NewsItem, error) {
	var news []models.NewsItem
	err := c.get(ctx, "/news", &news)
	return news, err
}

func (c *Client) NewsItem(ctx context.Context, id int64) (models.NewsItem, error) {
	var n models.NewsItem
	err := c.get(ctx, idPath("news", id), &n)
	return n, err
}

func (c *Client) CreateNews(ctx context.Context, title, text string, media []models.Upload) (models.NewsItem, error) {
	files := make([]formFile, 0, len(media))
	for _, m := range media {
		files = append(files, formFile{field: "media", upload: m})
	}
	var n models.NewsItem
	err := c.sendForm(ctx, request{method: http.MethodPost, path: "/news"},
		[]formField{{"title", title}, {"text", text}}, files, &n)
	return n, err
}

func (c *Client) DeleteNews(ctx context.Context, id int64) error {
	return c.del(ctx, idPath("news", id), nil)
}
