// Package backend is the HTTP client for the assistant's backend API: email,
// calendar, search, utility, and browsing endpoints, plus the ephemeral
// realtime credential mint.
//
// Every method performs exactly one HTTP request and returns the parsed JSON
// body as a json.RawMessage. Non-2xx responses become an [*APIError]; the
// tool dispatcher converts those into structured {error: ...} results for the
// model, so nothing here ever reaches the model as an exception.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// APIError describes a non-2xx backend response.
type APIError struct {
	// Status is the HTTP status code.
	Status int

	// Message is taken from the response body's "error" field when present,
	// otherwise from the status text.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("backend: %d: %s", e.Status, e.Message)
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client, primarily for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-request timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// Client talks to the assistant backend. It is safe for concurrent use.
// Requests share a circuit breaker: once the backend stops answering, calls
// fail fast with [ErrUnavailable] instead of stacking up timeouts.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *breaker
}

// New creates a Client rooted at baseURL (e.g. "https://api.example.com").
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("backend: baseURL must not be empty")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		breaker: newBreaker(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ── Ephemeral credential ──────────────────────────────────────────────────────

// tokenResponse covers both shapes the token endpoint is known to return:
// {"client_secret":{"value":"..."}} and {"value":"..."}.
type tokenResponse struct {
	ClientSecret struct {
		Value string `json:"value"`
	} `json:"client_secret"`
	Value string `json:"value"`
}

// Token mints a short-lived realtime credential via POST /token.
func (c *Client) Token(ctx context.Context) (string, error) {
	raw, err := c.do(ctx, http.MethodPost, "/token", nil)
	if err != nil {
		return "", fmt.Errorf("mint ephemeral credential: %w", err)
	}
	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return "", fmt.Errorf("mint ephemeral credential: decode: %w", err)
	}
	secret := tr.ClientSecret.Value
	if secret == "" {
		secret = tr.Value
	}
	if secret == "" {
		return "", errors.New("mint ephemeral credential: response contained no usable secret")
	}
	return secret, nil
}

// ── Email ─────────────────────────────────────────────────────────────────────

// ListEmails fetches the inbox listing via GET /emails.
func (c *Client) ListEmails(ctx context.Context, maxResults int) (json.RawMessage, error) {
	q := url.Values{}
	if maxResults > 0 {
		q.Set("maxResults", strconv.Itoa(maxResults))
	}
	return c.get(ctx, "/emails", q)
}

// GetEmail fetches one email by id via GET /email/:id.
func (c *Client) GetEmail(ctx context.Context, id string) (json.RawMessage, error) {
	return c.get(ctx, "/email/"+url.PathEscape(id), nil)
}

// SearchEmails runs a query via POST /emails/search.
func (c *Client) SearchEmails(ctx context.Context, query string, maxResults int) (json.RawMessage, error) {
	body := map[string]any{"query": query}
	if maxResults > 0 {
		body["maxResults"] = maxResults
	}
	return c.do(ctx, http.MethodPost, "/emails/search", body)
}

// DraftRequest carries the fields of a draft create/update call.
type DraftRequest struct {
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text,omitempty"`
	CC      string `json:"cc,omitempty"`
	BCC     string `json:"bcc,omitempty"`
}

// CreateDraft creates a draft via POST /drafts.
func (c *Client) CreateDraft(ctx context.Context, d DraftRequest) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/drafts", d)
}

// ListDrafts fetches all drafts via GET /drafts.
func (c *Client) ListDrafts(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/drafts", nil)
}

// UpdateDraft updates a draft via PUT /drafts/:id.
func (c *Client) UpdateDraft(ctx context.Context, draftID string, d DraftRequest) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, "/drafts/"+url.PathEscape(draftID), d)
}

// SendDraft sends a draft via POST /drafts/:id/send.
func (c *Client) SendDraft(ctx context.Context, draftID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/drafts/"+url.PathEscape(draftID)+"/send", nil)
}

// DeleteDraft removes a draft via DELETE /drafts/:id.
func (c *Client) DeleteDraft(ctx context.Context, draftID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, "/drafts/"+url.PathEscape(draftID), nil)
}

// Reply answers an email via POST /emails/reply/:id.
func (c *Client) Reply(ctx context.Context, emailID, text, html string) (json.RawMessage, error) {
	body := map[string]any{"text": text}
	if html != "" {
		body["html"] = html
	}
	return c.do(ctx, http.MethodPost, "/emails/reply/"+url.PathEscape(emailID), body)
}

// Forward forwards an email via POST /emails/forward/:id.
func (c *Client) Forward(ctx context.Context, emailID, to, text string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/emails/forward/"+url.PathEscape(emailID), map[string]any{
		"to":   to,
		"text": text,
	})
}

// EmailAction performs a mailbox state change (mark-read, mark-unread, star,
// archive, delete) via POST /emails/{action}.
func (c *Client) EmailAction(ctx context.Context, action, emailID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/emails/"+url.PathEscape(action), map[string]any{
		"emailId": emailID,
	})
}

// ── Calendar ──────────────────────────────────────────────────────────────────

// EventRequest carries the fields of a calendar event create/update call.
type EventRequest struct {
	Summary     string   `json:"summary,omitempty"`
	Start       string   `json:"start,omitempty"`
	End         string   `json:"end,omitempty"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Attendees   []string `json:"attendees,omitempty"`
}

// CreateEvent creates a calendar event via POST /calendar/events.
func (c *Client) CreateEvent(ctx context.Context, e EventRequest) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/calendar/events", e)
}

// ListEvents lists calendar events via GET /calendar/events.
func (c *Client) ListEvents(ctx context.Context, timeMin, timeMax, query string) (json.RawMessage, error) {
	q := url.Values{}
	if timeMin != "" {
		q.Set("timeMin", timeMin)
	}
	if timeMax != "" {
		q.Set("timeMax", timeMax)
	}
	if query != "" {
		q.Set("query", query)
	}
	return c.get(ctx, "/calendar/events", q)
}

// UpdateEvent updates a calendar event via PUT /calendar/events/:id.
func (c *Client) UpdateEvent(ctx context.Context, eventID string, e EventRequest) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, "/calendar/events/"+url.PathEscape(eventID), e)
}

// DeleteEvent removes a calendar event via DELETE /calendar/events/:id.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, "/calendar/events/"+url.PathEscape(eventID), nil)
}

// CreateActionItem records a reminder as a calendar action item via
// POST /calendar/action-item.
func (c *Client) CreateActionItem(ctx context.Context, actionItem, dueDate, priority string) (json.RawMessage, error) {
	body := map[string]any{"actionItem": actionItem}
	if dueDate != "" {
		body["dueDate"] = dueDate
	}
	if priority != "" {
		body["priority"] = priority
	}
	return c.do(ctx, http.MethodPost, "/calendar/action-item", body)
}

// ── Search, utilities, browsing, vision ───────────────────────────────────────

// Search runs one of the search-family endpoints (e.g. "/search",
// "/search/news") with the given request body.
func (c *Client) Search(ctx context.Context, path string, body map[string]any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Utility calls a single-purpose endpoint (weather, calculate, translate, …)
// via POST /{utility}.
func (c *Client) Utility(ctx context.Context, name string, body map[string]any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/"+strings.TrimLeft(name, "/"), body)
}

// Browse fetches a web page via POST /browsing/fetch.
func (c *Client) Browse(ctx context.Context, pageURL string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/browsing/fetch", map[string]any{"url": pageURL})
}

// ExtractStructured pulls structured data out of a page via
// POST /browsing/extract.
func (c *Client) ExtractStructured(ctx context.Context, pageURL, selector string) (json.RawMessage, error) {
	body := map[string]any{"url": pageURL}
	if selector != "" {
		body["selector"] = selector
	}
	return c.do(ctx, http.MethodPost, "/browsing/extract", body)
}

// AnalyzeDocuments submits images for vision analysis via
// POST /vision/analyze-documents.
func (c *Client) AnalyzeDocuments(ctx context.Context, images []string, query string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/vision/analyze-documents", map[string]any{
		"images": images,
		"query":  query,
	})
}

// AuthURL fetches the Google authorization URL via GET /auth-url.
func (c *Client) AuthURL(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/auth-url", nil)
}

// Health probes GET /health. A nil return means the backend answered with a
// 2xx and a parseable body.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.get(ctx, "/health", nil)
	return err
}

// ── Transport ─────────────────────────────────────────────────────────────────

func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	return c.roundTrip(req)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("backend: marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.roundTrip(req)
}

func (c *Client) roundTrip(req *http.Request) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.breaker.guard(func() error {
		var tripErr error
		raw, tripErr = c.send(req)
		return tripErr
	})
	return raw, err
}

func (c *Client) send(req *http.Request) (json.RawMessage, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("backend: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Status:  resp.StatusCode,
			Message: errorMessage(data, resp.StatusCode),
		}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("backend: %s %s: response is not valid JSON", req.Method, req.URL.Path)
	}
	return json.RawMessage(data), nil
}

// errorMessage extracts the "error" field from an error body, falling back to
// the HTTP status text.
func errorMessage(body []byte, status int) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return http.StatusText(status)
}
