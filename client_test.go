package blogconsole

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const postJSON = `{
	"id": "p1",
	"producer_id": "acme",
	"title": "First",
	"slug": "first",
	"excerpt": "one",
	"content_markdown": "# One",
	"cover_image_url": "",
	"tags": null,
	"is_draft": false,
	"published_at": "2024-03-01T13:00:00Z",
	"created_at": "2024-03-01T12:00:00Z",
	"updated_at": "2024-03-01T14:00:00Z"
}`

func newTestClient(t *testing.T, mux *http.ServeMux) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL+"/", 5*time.Second)
}

func TestHTTPClientListPosts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/producers/{producer}/blog-posts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "acme", r.PathValue("producer"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		io.WriteString(w, "["+postJSON+"]")
	})
	client := newTestClient(t, mux)

	posts, err := client.ListPosts(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, posts, 1)

	p := posts[0]
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "# One", p.ContentMarkdown)
	assert.Nil(t, p.CoverImageURL)
	assert.Equal(t, []string{}, p.Tags)
	assert.True(t, p.Published())
	require.NotNil(t, p.PublishedAt)
	assert.Equal(t, t0.Add(time.Hour), p.PublishedAt.UTC())
	assert.Equal(t, t0.Add(2*time.Hour), p.UpdatedAt.UTC())
}

func TestHTTPClientRejectsIncompletePost(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/producers/acme/blog-posts/p1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"p1","title":"no slug"}`)
	})
	client := newTestClient(t, mux)

	_, err := client.GetPost(context.Background(), "acme", "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode post")
}

func TestHTTPClientCreateEncodesInput(t *testing.T) {
	var body map[string]json.RawMessage
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/producers/acme/blog-posts", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, postJSON)
	})
	client := newTestClient(t, mux)

	post, err := client.CreatePost(context.Background(), "acme", BlogPostInput{
		Title:           "First",
		Excerpt:         "one",
		ContentMarkdown: "# One",
		CoverImageURL:   ptr(""),
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", post.ID)

	assert.JSONEq(t, `"First"`, string(body["title"]))
	assert.JSONEq(t, `null`, string(body["cover_image_url"]))
	assert.JSONEq(t, `[]`, string(body["tags"]))
	assert.NotContains(t, body, "slug")
	assert.NotContains(t, body, "publish")
}

func TestHTTPClientUpdateUsesPut(t *testing.T) {
	var body map[string]json.RawMessage
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/v1/producers/acme/blog-posts/p1", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		io.WriteString(w, postJSON)
	})
	client := newTestClient(t, mux)

	_, err := client.UpdatePost(context.Background(), "acme", "p1", BlogPostInput{
		Title:         "First",
		Slug:          "first",
		CoverImageURL: ptr("https://cdn.example.com/1.png"),
		Tags:          []string{"go"},
		Publish:       ptr(true),
	})
	require.NoError(t, err)

	assert.JSONEq(t, `"first"`, string(body["slug"]))
	assert.JSONEq(t, `"https://cdn.example.com/1.png"`, string(body["cover_image_url"]))
	assert.JSONEq(t, `["go"]`, string(body["tags"]))
	assert.JSONEq(t, `true`, string(body["publish"]))
}

func TestHTTPClientOmitsUntouchedCover(t *testing.T) {
	var body map[string]json.RawMessage
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/v1/producers/acme/blog-posts/p1", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		io.WriteString(w, postJSON)
	})
	client := newTestClient(t, mux)

	_, err := client.UpdatePost(context.Background(), "acme", "p1", BlogPostInput{Title: "First"})
	require.NoError(t, err)
	assert.NotContains(t, body, "cover_image_url")
}

func TestHTTPClientDelete(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/v1/producers/acme/blog-posts/p1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	client := newTestClient(t, mux)

	require.NoError(t, client.DeletePost(context.Background(), "acme", "p1"))
}

func TestHTTPClientInsights(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/producers/acme/blog/insights", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"total_posts":3,"published_posts":2,"draft_posts":1,"last_published_at":"2024-03-01T15:00:00Z"}`)
	})
	client := newTestClient(t, mux)

	ins, err := client.GetInsights(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 3, ins.TotalPosts)
	assert.Equal(t, 2, ins.PublishedPosts)
	assert.Equal(t, 1, ins.DraftPosts)
	require.NotNil(t, ins.LastPublishedAt)
	assert.Equal(t, t0.Add(3*time.Hour), ins.LastPublishedAt.UTC())
}

func TestHTTPClientRejectsNegativeInsights(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/producers/acme/blog/insights", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"total_posts":-1}`)
	})
	client := newTestClient(t, mux)

	_, err := client.GetInsights(context.Background(), "acme")
	require.Error(t, err)
}

func TestHTTPClientStorefront(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/storefronts/acme/blog-posts", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "["+postJSON+"]")
	})
	mux.HandleFunc("GET /api/v1/storefronts/acme/blog-posts/{slug}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "first", r.PathValue("slug"))
		io.WriteString(w, postJSON)
	})
	client := newTestClient(t, mux)

	posts, err := client.ListPublishedPosts(context.Background(), "acme")
	require.NoError(t, err)
	assert.Len(t, posts, 1)

	post, err := client.GetPublishedPost(context.Background(), "acme", "first")
	require.NoError(t, err)
	assert.Equal(t, "first", post.Slug)
}

func TestHTTPClientForwardsCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/producers/acme/blog-posts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "session=abc", r.Header.Get("Cookie"))
		assert.Equal(t, "Bearer xyz", r.Header.Get("Authorization"))
		io.WriteString(w, "[]")
	})
	client := newTestClient(t, mux)

	ctx := WithCredentials(context.Background(), "session=abc", "Bearer xyz")
	posts, err := client.ListPosts(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestHTTPClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
		check   func(error) bool
	}{
		{"json error field", http.StatusUnprocessableEntity, `{"error":"Slug already in use"}`, "Slug already in use", nil},
		{"unauthorized", http.StatusUnauthorized, `{"error":"Unauthorized"}`, "Unauthorized", IsUnauthorized},
		{"forbidden", http.StatusForbidden, ``, "Request failed with status 403", IsForbidden},
		{"not found", http.StatusNotFound, `{"error":"Post not found"}`, "Post not found", IsNotFound},
		{"plain text", http.StatusInternalServerError, "database is down\n", "database is down", nil},
		{"json without message", http.StatusBadGateway, `{"code":17}`, "Request failed with status 502", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /api/v1/producers/acme/blog-posts/p1", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			client := newTestClient(t, mux)

			_, err := client.GetPost(context.Background(), "acme", "p1")
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, ErrorMessage(err))
			if tt.check != nil {
				assert.True(t, tt.check(err))
			}
		})
	}
}

func TestHTTPClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewHTTPClient(srv.URL, time.Second)

	_, err := client.ListPosts(context.Background(), "acme")
	require.Error(t, err)
	assert.False(t, IsAuthError(err))
	assert.NotEmpty(t, ErrorMessage(err))
}
