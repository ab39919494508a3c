// Package apiclient is the HTTP transport to the portal Backend API. Every
// endpoint answers with the envelope {success, data, message}; the client
// unwraps it, attaches the session bearer token and a request id, and turns
// failures into *Error values.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader is forwarded to the backend so its logs can be correlated
// with ours.
const RequestIDHeader = "X-Request-ID"

// maxErrorBody bounds how much of a non-JSON error body is kept.
const maxErrorBody = 4096

// Envelope is the response shape shared by every Backend API endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
}

// Error is returned when the backend answers with a non-2xx status or with
// success=false.
type Error struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: backend returned status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: backend returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// IsStatus reports whether err is an *Error carrying the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// TokenSource yields the bearer token for the current session. An empty token
// sends the request unauthenticated.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(cl *Client) { cl.tokens = ts }
}

// WithLogger sets the logger used for per-call debug lines.
func WithLogger(logger zerolog.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

// Client performs envelope-aware calls against a single backend base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     zerolog.Logger
}

// New creates a Client for baseURL with a timeout-bound HTTP client.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     StaticToken(""),
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get issues a GET and decodes the envelope data into out (which may be nil).
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// Post issues a JSON POST.
func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

// Put issues a JSON PUT.
func (c *Client) Put(ctx context.Context, path string, body, out interface{}) error {
	return c.doJSON(ctx, http.MethodPut, path, body, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string, out interface{}) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return c.Do(ctx, method, path, contentType, reader, out)
}

// File is an optional upload attached to a multipart request.
type File struct {
	FieldName string
	FileName  string
	Content   io.Reader
}

// PostMultipart sends fields (and file, when non-nil) as multipart/form-data.
// Empty field values are omitted.
func (c *Client) PostMultipart(ctx context.Context, path string, fields map[string]string, file *File, out interface{}) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, k := range sortedKeys(fields) {
		v := fields[k]
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("write form field %s: %w", k, err)
		}
	}
	if file != nil && file.Content != nil {
		field := file.FieldName
		if field == "" {
			field = "file"
		}
		part, err := w.CreateFormFile(field, file.FileName)
		if err != nil {
			return fmt.Errorf("create form file: %w", err)
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return fmt.Errorf("copy form file: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}
	return c.Do(ctx, http.MethodPost, path, w.FormDataContentType(), &buf, out)
}

// Do sends one request and decodes the envelope. out receives the envelope's
// data field when non-nil.
func (c *Client) Do(ctx context.Context, method, path, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rid := requestIDFrom(ctx)
	req.Header.Set(RequestIDHeader, rid)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("request_id", rid).Str("method", method).Str("path", path).
			Dur("latency", time.Since(start)).Msg("backend call failed")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().Str("request_id", rid).Str("method", method).Str("path", path).
		Int("status", resp.StatusCode).Dur("latency", time.Since(start)).Msg("backend call")

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s response: %w", method, path, err)
	}

	var env Envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if decodeErr != nil {
			msg = truncate(strings.TrimSpace(string(raw)), maxErrorBody)
		}
		return &Error{Method: method, Path: path, StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode %s %s envelope: %w", method, path, decodeErr)
	}
	if !env.Success {
		return &Error{Method: method, Path: path, StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s data: %w", method, path, err)
	}
	return nil
}

type ctxKey struct{}

// WithRequestID returns a context whose outbound calls reuse rid instead of
// minting a fresh id.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ctxKey{}, rid)
}

func requestIDFrom(ctx context.Context) string {
	if rid, ok := ctx.Value(ctxKey{}).(string); ok && rid != "" {
		return rid
	}
	return uuid.New().String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
