package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body, err := json.Marshal(models.LoginRequest{Username: username, Password: password})
	if err != nil {
		return "", err
	}
	var res models.LoginResponse
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/users/login",
		body:        bytes.NewReader(body),
		contentType: "application/json",
		public:      true,
	}, &res)
	if err != nil {
		return "", err
	}
	if res.AccessToken == "" {
		return "", &RejectionError{Op: "POST /users/login", Status: http.StatusOK, Message: "login response carried no token"}
	}
	return res.AccessToken, nil
}

// Register creates an account and returns its access token.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (string, error) {
	fields := []formField{
		{"first_name", req.FirstName},
		{"second_name", req.SecondName},
		{"third_name", req.ThirdName},
		{"username", req.Username},
		{"password", req.Password},
		{"group", req.Group},
		{"bio", req.Bio},
	}
	var files []formFile
	if req.Photo != nil {
		files = append(files, formFile{field: "profilePhoto", upload: *req.Photo})
	}

	var res models.LoginResponse
	r := request{method: http.MethodPost, path: "/users/register", public: true}
	if err := c.sendForm(ctx, r, fields, files, &res); err != nil {
		return "", err
	}
	return res.AccessToken, nil
}

// Profile returns the user the current token belongs to.
func (c *Client) Profile(ctx context.Context) (models.User, error) {
	var u models.User
	err := c.get(ctx, "/users/profile", &u)
	return u, err
}

// ProfileWithToken fetches the profile for a token that is not yet stored in
// the session, as right after login.
func (c *Client) ProfileWithToken(ctx context.Context, token string) (models.User, error) {
	fixed := NewClient(c.baseURL, staticToken(token),
		WithHTTPClient(c.http), WithLogger(c.logger), WithScheme(c.scheme))
	return fixed.Profile(ctx)
}

type staticToken string

func (t staticToken) Token() (string, bool) { return string(t), t != "" }

func (c *Client) Users(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := c.get(ctx, "/users", &users)
	return users, err
}

func (c *Client) User(ctx context.Context, id models.UserID) (models.User, error) {
	var u models.User
	err := c.get(ctx, idPath("users", "one", id), &u)
	return u, err
}

func (c *Client) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (models.User, error) {
	var u models.User
	err := c.sendJSON(ctx, http.MethodPatch, "/users/update", update, &u)
	return u, err
}

func (c *Client) DeleteUser(ctx context.Context, id models.UserID) error {
	return c.del(ctx, idPath("users", id), nil)
}

// Follow subscribes me to target's posts.
func (c *Client) Follow(ctx context.Context, me, target models.UserID) error {
	return c.sendJSON(ctx, http.MethodPost, idPath("subscriptions", me, target), nil, nil)
}

func (c *Client) Unfollow(ctx context.Context, me, target models.UserID) error {
	return c.del(ctx, idPath("subscriptions", me, target), nil)
}

// AdminOverview lists the administrators. Non-admin tokens are rejected.
func (c *Client) AdminOverview(ctx context.Context) ([]models.User, error) {
	var admins []models.User
	err := c.get(ctx, "/admin", &admins)
	return admins, err
}
