// Package api is the HTTP client for the remote reaction endpoints.
//
// Routes, relative to the base URL:
//
//	POST   /events/{id}/like           POST   /events/{eid}/comments/{cid}/like
//	POST   /events/{id}/dislike        POST   /events/{eid}/comments/{cid}/dislike
//	DELETE /events/{id}/reaction       DELETE /events/{eid}/comments/{cid}/reaction
//	GET    /events/{id}/reactions      GET    /events/{eid}/comments/{cid}/reactions
//
// Mutating calls carry the visitor id in X-Visitor. An identity with a token
// adds an Authorization bearer header to every call.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/rxn/internal/ir"
	"github.com/roach88/rxn/internal/visitor"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:8080/api"

// DefaultTimeout bounds every request made with the default http.Client.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is read for the message.
const maxErrorBody = 4096

const userAgent = "rxn/" + ir.ClientVersion

// Client talks to the reaction API. It is safe for concurrent use.
type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for baseURL (DefaultBaseURL when empty).
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.base
}

// SetReaction records a like or dislike for who on target.
func (c *Client) SetReaction(ctx context.Context, who visitor.Identity, target ir.Target, v ir.Value) error {
	var action string
	switch v {
	case ir.Like:
		action = "like"
	case ir.Dislike:
		action = "dislike"
	default:
		return fmt.Errorf("set reaction on %s: %w", target, ErrInvalidValue)
	}
	path, err := targetPath(target)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path+"/"+action, who, true, nil)
}

// ClearReaction removes who's reaction on target.
func (c *Client) ClearReaction(ctx context.Context, who visitor.Identity, target ir.Target) error {
	path, err := targetPath(target)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, path+"/reaction", who, true, nil)
}

// Totals fetches the authoritative counts for target. Negative values in the
// response are clamped to zero.
func (c *Client) Totals(ctx context.Context, who visitor.Identity, target ir.Target) (ir.Counts, error) {
	path, err := targetPath(target)
	if err != nil {
		return ir.Counts{}, err
	}
	var body struct {
		Likes    int64 `json:"likes"`
		Dislikes int64 `json:"dislikes"`
	}
	if err := c.do(ctx, http.MethodGet, path+"/reactions", who, false, &body); err != nil {
		return ir.Counts{}, err
	}
	return ir.Counts{Likes: body.Likes, Dislikes: body.Dislikes}.Clamp(), nil
}

// targetPath returns the route prefix for target.
func targetPath(t ir.Target) (string, error) {
	switch t.Kind {
	case ir.KindEvent:
		return fmt.Sprintf("/events/%d", t.ID), nil
	case ir.KindComment:
		if t.EventID <= 0 {
			return "", fmt.Errorf("comment %d: parent event id required", t.ID)
		}
		return fmt.Sprintf("/events/%d/comments/%d", t.EventID, t.ID), nil
	}
	return "", fmt.Errorf("target %s: %w", t, ir.ErrUnknownKind)
}

// do performs one request. out, when non-nil, receives the decoded JSON body
// of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, who visitor.Identity, mutating bool, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if mutating && who.ID != "" {
		req.Header.Set("X-Visitor", string(who.ID))
	}
	if who.Token != "" {
		req.Header.Set("Authorization", "Bearer "+who.Token)
	}

	c.logger.Debug("api request", "method", method, "path", path, "visitor", string(who.ID))
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &Error{
			Status:  resp.StatusCode,
			Message: errorMessage(raw, resp.StatusCode),
			Method:  method,
			Path:    path,
		}
		c.logger.Debug("api error", "method", method, "path", path, "status", resp.StatusCode, "error", apiErr.Message)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// errorMessage prefers a JSON "message" or "error" field, then the raw
// body, then the status text.
func errorMessage(raw []byte, status int) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}
