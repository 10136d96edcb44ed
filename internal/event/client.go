package event

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/smileynet/eventdeck/internal/logging"
)

// DefaultTimeout bounds a single backend request.
const DefaultTimeout = 10 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

// Client talks to the events REST backend.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	token     string
	timeout   time.Duration
	log       logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Its transport is wrapped,
// not replaced.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends token as a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a Client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("event: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("event: invalid base URL %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL:   u,
		userAgent: "eventdeck",
		timeout:   DefaultTimeout,
		log:       logging.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}

	// Copy so the caller's client is never mutated.
	hc := &http.Client{}
	if c.http != nil {
		*hc = *c.http
	}
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	var rt http.RoundTripper = &userAgentRoundTripper{Wrapped: base, UserAgent: c.userAgent}
	if c.token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token, TokenType: "Bearer"}),
			Base:   rt,
		}
	}
	hc.Transport = rt
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	c.http = hc
	return c, nil
}

// userAgentRoundTripper adds a User-Agent header.
type userAgentRoundTripper struct {
	Wrapped   http.RoundTripper
	UserAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.UserAgent)
	return rt.Wrapped.RoundTrip(clone)
}

// envelope is the backend's response shape. Bare objects are accepted too.
type envelope struct {
	Event   *Event  `json:"event"`
	Events  []Event `json:"events"`
	Message string  `json:"message"`
}

// eventBody is the request shape for writes.
type eventBody struct {
	Event Event `json:"event"`
}

// Get fetches one event.
func (c *Client) Get(ctx context.Context, id string) (Event, error) {
	if err := ValidateID(id); err != nil {
		return Event{}, err
	}
	data, err := c.do(ctx, http.MethodGet, "events/"+url.PathEscape(id), nil, nil, http.StatusOK)
	if err != nil {
		return Event{}, err
	}
	ev, err := decodeEvent(data)
	if err != nil {
		return Event{}, err
	}
	if ev.ID == "" {
		ev.ID = id
	}
	return ev, nil
}

// List fetches the events matching p.
func (c *Client) List(ctx context.Context, p ListParams) ([]Event, error) {
	params := url.Values{}
	if p.Search != "" {
		params.Set("search", p.Search)
	}
	if p.Max > 0 {
		params.Set("max", strconv.Itoa(p.Max))
	}
	data, err := c.do(ctx, http.MethodGet, "events", params, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return decodeEvents(data)
}

// Update replaces the event with ev.ID. It returns the stored event when
// the backend echoes it, otherwise ev.
func (c *Client) Update(ctx context.Context, ev Event) (Event, error) {
	if err := ValidateID(ev.ID); err != nil {
		return Event{}, err
	}
	data, err := c.do(ctx, http.MethodPut, "events/"+url.PathEscape(ev.ID), nil, eventBody{Event: ev}, http.StatusOK)
	if err != nil {
		return Event{}, err
	}
	if out, err := decodeEvent(data); err == nil {
		if out.ID == "" {
			out.ID = ev.ID
		}
		return out, nil
	}
	return ev, nil
}

// Delete removes the event with id.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	_, err := c.do(ctx, http.MethodDelete, "events/"+url.PathEscape(id), nil, nil, http.StatusOK, http.StatusNoContent)
	return err
}

// Create stores a new event and returns it with its backend-assigned ID.
func (c *Client) Create(ctx context.Context, ev Event) (Event, error) {
	ev.ID = ""
	data, err := c.do(ctx, http.MethodPost, "events", nil, eventBody{Event: ev}, http.StatusOK, http.StatusCreated)
	if err != nil {
		return Event{}, err
	}
	return decodeEvent(data)
}

// do performs one request and returns the body when the status is one of
// expected.
func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, body any, expected ...int) ([]byte, error) {
	u, err := c.buildURL(endpoint, params)
	if err != nil {
		return nil, err
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("event: encoding request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("event: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("event: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("event: reading response: %w", err)
	}
	c.log.Debug("event: request", logging.Fields{
		"method":  method,
		"path":    endpoint,
		"status":  resp.StatusCode,
		"elapsed": time.Since(start).String(),
	})

	if !slices.Contains(expected, resp.StatusCode) {
		he := &HTTPError{StatusCode: resp.StatusCode, Body: data}
		_ = json.Unmarshal(data, &he.Info)
		return nil, he
	}
	return data, nil
}

// buildURL resolves endpoint against the base URL and adds params.
func (c *Client) buildURL(endpoint string, params url.Values) (string, error) {
	path, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("event: invalid endpoint: %w", err)
	}
	base := *c.baseURL
	if base.Path != "" && base.Path[len(base.Path)-1] != '/' {
		base.Path += "/"
	}
	full := base.ResolveReference(path)
	if len(params) > 0 {
		full.RawQuery = params.Encode()
	}
	return full.String(), nil
}

func decodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("event: decoding response: %w", err)
	}
	if env.Event != nil {
		return *env.Event, nil
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("event: decoding response: %w", err)
	}
	if ev.ID == "" && ev.Title == "" {
		return Event{}, errors.New("event: response carries no event")
	}
	return ev, nil
}

func decodeEvents(data []byte) ([]Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var evs []Event
		if err := json.Unmarshal(trimmed, &evs); err != nil {
			return nil, fmt.Errorf("event: decoding response: %w", err)
		}
		return evs, nil
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("event: decoding response: %w", err)
	}
	if env.Events == nil {
		return []Event{}, nil
	}
	return env.Events, nil
}
