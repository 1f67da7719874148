package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

// TokenSource supplies the current session token. session.Holder satisfies it.
type TokenSource interface {
	Token() (string, bool)
}

// Client is the remote data gateway. It never retries and never mutates
// caller state.
type Client struct {
	baseURL        string
	http           *http.Client
	timeout        time.Duration
	tokens         TokenSource
	scheme         models.AuthScheme
	logger         *log.Logger
	onUnauthorized func(reason string)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithScheme(s models.AuthScheme) Option {
	return func(c *Client) { c.scheme = s }
}

// WithUnauthorizedHook registers fn to run when an authenticated request is
// rejected with 401.
func WithUnauthorizedHook(fn func(reason string)) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		tokens:  tokens,
		scheme:  models.AuthBearer,
		logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	public      bool
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, request{method: http.MethodGet, path: path}, out)
}

func (c *Client) del(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, request{method: http.MethodDelete, path: path}, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, request{method: method, path: path, body: body, contentType: "application/json"}, out)
}

type formField struct {
	name  string
	value string
}

type formFile struct {
	field  string
	upload models.Upload
}

func (c *Client) sendForm(ctx context.Context, req request, fields []formField, files []formFile, out interface{}) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", f.name, err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.upload.Name)
		if err != nil {
			return fmt.Errorf("failed to create form file %s: %w", f.upload.Name, err)
		}
		if _, err := io.Copy(part, f.upload.Reader); err != nil {
			return fmt.Errorf("failed to read upload %s: %w", f.upload.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish form: %w", err)
	}
	req.body = &buf
	req.contentType = w.FormDataContentType()
	return c.do(ctx, req, out)
}

func (c *Client) do(ctx context.Context, req request, out interface{}) error {
	op := req.method + " " + req.path
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, req.body)
	if err != nil {
		return fmt.Errorf("failed to build %s: %w", op, err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-ID", requestID)
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	authenticated := false
	if !req.public && c.tokens != nil {
		if token, ok := c.tokens.Token(); ok {
			httpReq.Header.Set("Authorization", c.scheme.Header(token))
			authenticated = true
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Printf("Failed %s after %v [%s]: %v", op, time.Since(start), requestID, err)
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	c.logger.Printf("Completed %s %d %s in %v [%s]",
		op, resp.StatusCode, http.StatusText(resp.StatusCode), time.Since(start), requestID)

	return c.decode(op, resp.StatusCode, body, authenticated, out)
}

func (c *Client) decode(op string, status int, body []byte, authenticated bool, out interface{}) error {
	res, parseErr := parseBody(body)

	if status < 200 || status > 299 {
		rej := &RejectionError{Op: op, Status: status, Message: res.message}
		if rej.Message == "" {
			rej.Message = strings.TrimSpace(string(body))
		}
		if status == http.StatusUnauthorized {
			rej.Err = ErrUnauthorized
			if authenticated && c.onUnauthorized != nil {
				c.onUnauthorized(op + " returned 401")
			}
		}
		return rej
	}
	if parseErr != nil {
		return &RejectionError{Op: op, Status: status, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, parseErr)}
	}
	if !res.success {
		return &RejectionError{Op: op, Status: status, Message: res.message}
	}

	data := bytes.TrimSpace(res.data)
	if out == nil || len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RejectionError{Op: op, Status: status, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return nil
}

type parsedBody struct {
	data    json.RawMessage
	message string
	success bool
}

var errNotJSON = errors.New("response is not JSON")

// parseBody accepts the {success, data, message} envelope as well as a bare
// JSON array or object, which some endpoints return instead.
func parseBody(body []byte) (parsedBody, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return parsedBody{success: true}, nil
	}
	switch body[0] {
	case '[':
		return parsedBody{data: body, success: true}, nil
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(body, &probe); err != nil {
			return parsedBody{}, err
		}
		if _, ok := probe["success"]; !ok {
			return parsedBody{data: body, success: true}, nil
		}
		var env models.Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return parsedBody{}, err
		}
		return parsedBody{
			data:    env.Data,
			message: env.Message,
			success: env.Success == nil || *env.Success,
		}, nil
	default:
		return parsedBody{}, errNotJSON
	}
}

func idPath(parts ...interface{}) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteByte('/')
		switch v := p.(type) {
		case int64:
			b.WriteString(models.FormatID(v))
		case models.UserID:
			b.WriteString(url.PathEscape(string(v)))
		default:
			b.WriteString(fmt.Sprint(v))
		}
	}
	return b.String()
}
