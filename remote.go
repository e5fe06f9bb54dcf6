package blogconsole

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Remote is the backend that owns posts and insights. Every call may fail
// with an *APIError; 401 and 403 are left for the caller to turn into a
// login redirect.
type Remote interface {
	ListPosts(ctx context.Context, producerID string) ([]BlogPost, error)
	GetPost(ctx context.Context, producerID, postID string) (BlogPost, error)
	CreatePost(ctx context.Context, producerID string, in BlogPostInput) (BlogPost, error)
	UpdatePost(ctx context.Context, producerID, postID string, in BlogPostInput) (BlogPost, error)
	DeletePost(ctx context.Context, producerID, postID string) error
	GetInsights(ctx context.Context, producerID string) (BlogInsightsSummary, error)
}

// Storefront is the public read side of a producer's blog: published posts
// only, addressed by slug.
type Storefront interface {
	ListPublishedPosts(ctx context.Context, producerID string) ([]BlogPost, error)
	GetPublishedPost(ctx context.Context, producerID, slug string) (BlogPost, error)
}

var (
	// ErrTemporaryID is returned when an update or delete targets a post
	// the backend has not acknowledged yet.
	ErrTemporaryID = errors.New("blogconsole: post has not been saved yet")
	// ErrInvalidForm is returned by Console.Submit for forms that cannot be saved.
	ErrInvalidForm = errors.New("blogconsole: title, excerpt and content are required")
	ErrSlugTaken   = errors.New("blogconsole: slug already in use")
	ErrNotFound    = errors.New("blogconsole: post not found")
)

const fallbackErrorMessage = "Something went wrong"

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
	Body    string

	err error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("blogconsole: remote returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.err
}

func newAPIError(status int, message string, cause error) *APIError {
	return &APIError{Status: status, Message: message, err: cause}
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	return statusOf(err) == http.StatusUnauthorized
}

// IsForbidden reports whether err is a 403 from the backend.
func IsForbidden(err error) bool {
	return statusOf(err) == http.StatusForbidden
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound || errors.Is(err, ErrNotFound)
}

// IsAuthError reports whether err should send the user to the login page.
func IsAuthError(err error) bool {
	return IsUnauthorized(err) || IsForbidden(err)
}

// ErrorMessage extracts a message fit for a toast from err.
func ErrorMessage(err error) string {
	if err == nil {
		return fallbackErrorMessage
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallbackErrorMessage
}
