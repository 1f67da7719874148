package models

import (
	"errors"
	"io"
	"time"
)

var (
	errEmptyPayload = errors.New("empty payload")
	errMissingID    = errors.New("message without id")
)

type Media struct {
	Type string `json:"type"` // "image" or "video"
	URL  string `json:"url"`
}

// Like is one user's like on a resource. ID is zero until the server confirms.
type Like struct {
	ID   int64   `json:"id,omitempty" db:"id"`
	User UserRef `json:"user"`
}

func (l Like) Pending() bool { return l.ID == 0 }

// Comment author may arrive as "author" or "user" and may be null for
// anonymous comments.
type Comment struct {
	ID        int64     `json:"id" db:"id"`
	Text      string    `json:"text" db:"text"`
	Author    *User     `json:"author"`
	User      *User     `json:"user,omitempty"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

func (c Comment) By() (User, bool) {
	if c.Author != nil {
		return *c.Author, true
	}
	if c.User != nil {
		return *c.User, true
	}
	return User{}, false
}

func (c Comment) AuthorName() string {
	if u, ok := c.By(); ok {
		return u.DisplayName()
	}
	return "Anonymous"
}

type Post struct {
	ID        int64     `json:"id" db:"id"`
	Author    *User     `json:"author"`
	Content   string    `json:"content" db:"content"`
	Media     []Media   `json:"media"`
	Likes     []Like    `json:"likes"`
	Comments  []Comment `json:"comments"`
	Views     int       `json:"views" db:"views"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type AnonymousMessage struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	Media     []Media   `json:"media"`
	Likes     []Like    `json:"likes"`
	Comments  []Comment `json:"comments"`
	Views     int       `json:"views"`
	CreatedAt time.Time `json:"createdAt"`
}

type NewsItem struct {
	ID      int64   `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Media   []Media `json:"media,omitempty"`
}

type Activity struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	Date        time.Time `json:"date"`
}

// Upload is a file attached to a multipart request.
type Upload struct {
	Name   string
	Reader io.Reader
}

type LikeResult struct {
	Like struct {
		ID int64 `json:"id"`
	} `json:"like"`
}

type CommentRequest struct {
	Text string `json:"text"`
}
