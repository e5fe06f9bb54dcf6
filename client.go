package blogconsole

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 4 << 20

type blogPostWire struct {
	ID              string     `json:"id" validate:"required"`
	ProducerID      string     `json:"producer_id" validate:"required"`
	Title           string     `json:"title"`
	Slug            string     `json:"slug" validate:"required"`
	Excerpt         string     `json:"excerpt"`
	ContentMarkdown string     `json:"content_markdown"`
	CoverImageURL   *string    `json:"cover_image_url"`
	Tags            []string   `json:"tags"`
	IsDraft         bool       `json:"is_draft"`
	PublishedAt     *time.Time `json:"published_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (w blogPostWire) post() BlogPost {
	p := BlogPost{
		ID:              w.ID,
		ProducerID:      w.ProducerID,
		Title:           w.Title,
		Slug:            w.Slug,
		Excerpt:         w.Excerpt,
		ContentMarkdown: w.ContentMarkdown,
		Tags:            w.Tags,
		IsDraft:         w.IsDraft,
		PublishedAt:     w.PublishedAt,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if w.CoverImageURL != nil && *w.CoverImageURL != "" {
		p.CoverImageURL = w.CoverImageURL
	}
	return p
}

type insightsWire struct {
	TotalPosts      int        `json:"total_posts" validate:"gte=0"`
	PublishedPosts  int        `json:"published_posts" validate:"gte=0"`
	DraftPosts      int        `json:"draft_posts" validate:"gte=0"`
	LastPublishedAt *time.Time `json:"last_published_at"`
}

// blogPostInputWire mirrors the input tri-states: an empty Slug and a nil
// Publish are left out, and CoverImageURL is absent, null or a string.
type blogPostInputWire struct {
	Title           string          `json:"title"`
	Slug            string          `json:"slug,omitempty"`
	Excerpt         string          `json:"excerpt"`
	ContentMarkdown string          `json:"content_markdown"`
	CoverImageURL   json.RawMessage `json:"cover_image_url,omitempty"`
	Tags            []string        `json:"tags"`
	Publish         *bool           `json:"publish,omitempty"`
}

func inputWire(in BlogPostInput) (blogPostInputWire, error) {
	w := blogPostInputWire{
		Title:           in.Title,
		Slug:            in.Slug,
		Excerpt:         in.Excerpt,
		ContentMarkdown: in.ContentMarkdown,
		Tags:            in.Tags,
		Publish:         in.Publish,
	}
	if w.Tags == nil {
		w.Tags = []string{}
	}
	if in.CoverImageURL != nil {
		if *in.CoverImageURL == "" {
			w.CoverImageURL = json.RawMessage("null")
		} else {
			raw, err := json.Marshal(*in.CoverImageURL)
			if err != nil {
				return w, err
			}
			w.CoverImageURL = raw
		}
	}
	return w, nil
}

type credentialsKey struct{}

type credentials struct {
	cookie        string
	authorization string
}

// WithCredentials attaches the caller's session to ctx. HTTPClient forwards
// it to the backend as the Cookie and Authorization headers.
func WithCredentials(ctx context.Context, cookie, authorization string) context.Context {
	return context.WithValue(ctx, credentialsKey{}, credentials{cookie: cookie, authorization: authorization})
}

// HTTPClient talks to the backend's JSON API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) { c.http = hc }
}

func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *HTTPClient) { c.log = l }
}

// NewHTTPClient creates a client for the API at baseURL. timeout bounds
// every request.
func NewHTTPClient(baseURL string, timeout time.Duration, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     discardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func producerPath(producerID string, parts ...string) string {
	p := "/api/v1/producers/" + url.PathEscape(producerID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func storefrontPath(producerID string, parts ...string) string {
	p := "/api/v1/storefronts/" + url.PathEscape(producerID) + "/blog-posts"
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func (c *HTTPClient) ListPosts(ctx context.Context, producerID string) ([]BlogPost, error) {
	return c.getPosts(ctx, producerPath(producerID, "blog-posts"))
}

func (c *HTTPClient) GetPost(ctx context.Context, producerID, postID string) (BlogPost, error) {
	return c.getPost(ctx, producerPath(producerID, "blog-posts", postID))
}

func (c *HTTPClient) CreatePost(ctx context.Context, producerID string, in BlogPostInput) (BlogPost, error) {
	return c.writePost(ctx, http.MethodPost, producerPath(producerID, "blog-posts"), in)
}

func (c *HTTPClient) UpdatePost(ctx context.Context, producerID, postID string, in BlogPostInput) (BlogPost, error) {
	return c.writePost(ctx, http.MethodPut, producerPath(producerID, "blog-posts", postID), in)
}

func (c *HTTPClient) DeletePost(ctx context.Context, producerID, postID string) error {
	return c.do(ctx, http.MethodDelete, producerPath(producerID, "blog-posts", postID), nil, nil)
}

func (c *HTTPClient) GetInsights(ctx context.Context, producerID string) (BlogInsightsSummary, error) {
	var w insightsWire
	if err := c.do(ctx, http.MethodGet, producerPath(producerID, "blog", "insights"), nil, &w); err != nil {
		return BlogInsightsSummary{}, err
	}
	if err := validate.Struct(w); err != nil {
		return BlogInsightsSummary{}, fmt.Errorf("blogconsole: decode insights: %w", err)
	}
	return BlogInsightsSummary{
		TotalPosts:      w.TotalPosts,
		PublishedPosts:  w.PublishedPosts,
		DraftPosts:      w.DraftPosts,
		LastPublishedAt: w.LastPublishedAt,
	}, nil
}

func (c *HTTPClient) ListPublishedPosts(ctx context.Context, producerID string) ([]BlogPost, error) {
	return c.getPosts(ctx, storefrontPath(producerID))
}

func (c *HTTPClient) GetPublishedPost(ctx context.Context, producerID, slug string) (BlogPost, error) {
	return c.getPost(ctx, storefrontPath(producerID, slug))
}

func (c *HTTPClient) getPosts(ctx context.Context, path string) ([]BlogPost, error) {
	var ws []blogPostWire
	if err := c.do(ctx, http.MethodGet, path, nil, &ws); err != nil {
		return nil, err
	}
	posts := make([]BlogPost, 0, len(ws))
	for _, w := range ws {
		if err := validate.Struct(w); err != nil {
			return nil, fmt.Errorf("blogconsole: decode post list: %w", err)
		}
		posts = append(posts, w.post())
	}
	return posts, nil
}

func (c *HTTPClient) getPost(ctx context.Context, path string) (BlogPost, error) {
	var w blogPostWire
	if err := c.do(ctx, http.MethodGet, path, nil, &w); err != nil {
		return BlogPost{}, err
	}
	if err := validate.Struct(w); err != nil {
		return BlogPost{}, fmt.Errorf("blogconsole: decode post: %w", err)
	}
	return w.post(), nil
}

func (c *HTTPClient) writePost(ctx context.Context, method, path string, in BlogPostInput) (BlogPost, error) {
	body, err := inputWire(in)
	if err != nil {
		return BlogPost{}, fmt.Errorf("blogconsole: encode post: %w", err)
	}
	var w blogPostWire
	if err := c.do(ctx, method, path, body, &w); err != nil {
		return BlogPost{}, err
	}
	if err := validate.Struct(w); err != nil {
		return BlogPost{}, fmt.Errorf("blogconsole: decode post: %w", err)
	}
	return w.post(), nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("blogconsole: encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("blogconsole: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if creds, ok := ctx.Value(credentialsKey{}).(credentials); ok {
		if creds.cookie != "" {
			req.Header.Set("Cookie", creds.cookie)
		}
		if creds.authorization != "" {
			req.Header.Set("Authorization", creds.authorization)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("blogconsole: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("blogconsole: read response: %w", err)
	}
	c.log.Debug("api request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiErrorFrom(resp.StatusCode, data)
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("blogconsole: decode response: %w", err)
	}
	return nil
}

// apiErrorFrom builds the error of a failed response. The message is the
// "error" field of a JSON body, else the raw body, else a status line.
func apiErrorFrom(status int, body []byte) *APIError {
	e := &APIError{
		Status:  status,
		Message: fmt.Sprintf("Request failed with status %d", status),
		Body:    string(body),
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		if obj, ok := decoded.(map[string]any); ok {
			if msg, ok := obj["error"].(string); ok {
				e.Message = msg
			}
		}
	} else if text := strings.TrimSpace(string(body)); text != "" {
		e.Message = text
	}
	return e
}
