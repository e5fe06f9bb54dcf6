package blogconsole

import (
	"slices"
	"strings"
	"time"
)

// TempIDPrefix marks client-generated post ids that the backend has not
// assigned yet. Posts carrying such an id are never sent to the Remote.
const TempIDPrefix = "temp-"

// BlogPost is one article owned by a producer.
type BlogPost struct {
	ID              string
	ProducerID      string
	Title           string
	Slug            string
	Excerpt         string
	ContentMarkdown string
	CoverImageURL   *string
	Tags            []string
	IsDraft         bool
	PublishedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BlogPostInput is the payload for create and update calls.
//
// An empty Slug means "not supplied". A nil CoverImageURL leaves the stored
// value untouched while a pointer to "" clears it. A nil Publish keeps the
// publish state on update and creates a draft on create.
type BlogPostInput struct {
	Title           string
	Slug            string
	Excerpt         string
	ContentMarkdown string
	CoverImageURL   *string
	Tags            []string
	Publish         *bool
}

// BlogInsightsSummary is the server-computed aggregate over a producer's posts.
type BlogInsightsSummary struct {
	TotalPosts      int
	PublishedPosts  int
	DraftPosts      int
	LastPublishedAt *time.Time
}

// IsTempID reports whether id was generated locally for an optimistic create.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Published reports whether the post is live on the storefront.
func (p BlogPost) Published() bool {
	return !p.IsDraft
}

// Clone returns a copy of p that shares no memory with it.
func (p BlogPost) Clone() BlogPost {
	c := p
	c.Tags = slices.Clone(p.Tags)
	if p.CoverImageURL != nil {
		v := *p.CoverImageURL
		c.CoverImageURL = &v
	}
	if p.PublishedAt != nil {
		v := *p.PublishedAt
		c.PublishedAt = &v
	}
	return c
}

// ClonePosts deep-copies a post list. A nil list stays nil.
func ClonePosts(posts []BlogPost) []BlogPost {
	if posts == nil {
		return nil
	}
	out := make([]BlogPost, len(posts))
	for i, p := range posts {
		out[i] = p.Clone()
	}
	return out
}

func cloneInsights(s BlogInsightsSummary) BlogInsightsSummary {
	if s.LastPublishedAt != nil {
		v := *s.LastPublishedAt
		s.LastPublishedAt = &v
	}
	return s
}

// PageMeta carries per-page OpenGraph and SEO metadata into the <head> template.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
	OGType      string // "website" or "article"
}

func ptr[T any](v T) *T {
	return &v
}
