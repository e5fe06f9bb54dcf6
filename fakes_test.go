package blogconsole

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeRemote is an in-memory backend. Writes fail with the error set for
// their op and wait on gate when it is non-nil.
type fakeRemote struct {
	mu     sync.Mutex
	posts  map[string][]BlogPost
	nextID int
	now    func() time.Time
	errs   map[string]error
	gate   chan struct{}
	calls  map[string]int
}

func newFakeRemote(now func() time.Time) *fakeRemote {
	return &fakeRemote{
		posts: make(map[string][]BlogPost),
		now:   now,
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeRemote) seed(producerID string, posts ...BlogPost) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[producerID] = append(f.posts[producerID], ClonePosts(posts)...)
}

// failWith makes every op in ops fail with err.
func (f *fakeRemote) failWith(err error, ops ...string) {
	f.mu.Lock()
	for _, op := range ops {
		f.errs[op] = err
	}
	f.mu.Unlock()
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) write(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	gate, err := f.gate, f.errs[op]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeRemote) ListPosts(ctx context.Context, producerID string) ([]BlogPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["list"]++
	return ClonePosts(f.posts[producerID]), nil
}

func (f *fakeRemote) GetPost(ctx context.Context, producerID, postID string) (BlogPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.posts[producerID] {
		if p.ID == postID {
			return p.Clone(), nil
		}
	}
	return BlogPost{}, newAPIError(http.StatusNotFound, "Post not found", ErrNotFound)
}

func (f *fakeRemote) CreatePost(ctx context.Context, producerID string, in BlogPostInput) (BlogPost, error) {
	if err := f.write(ctx, "create"); err != nil {
		return BlogPost{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	post := optimisticPost(producerID, fmt.Sprintf("post-%d", f.nextID), in, f.now())
	f.posts[producerID] = append([]BlogPost{post}, f.posts[producerID]...)
	return post.Clone(), nil
}

func (f *fakeRemote) UpdatePost(ctx context.Context, producerID, postID string, in BlogPostInput) (BlogPost, error) {
	if err := f.write(ctx, "update"); err != nil {
		return BlogPost{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	posts := f.posts[producerID]
	for i := range posts {
		if posts[i].ID == postID {
			posts[i] = patchPost(posts[i], in, f.now())
			return posts[i].Clone(), nil
		}
	}
	return BlogPost{}, newAPIError(http.StatusNotFound, "Post not found", ErrNotFound)
}

func (f *fakeRemote) DeletePost(ctx context.Context, producerID, postID string) error {
	if err := f.write(ctx, "delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	before := len(f.posts[producerID])
	f.posts[producerID] = slices.DeleteFunc(f.posts[producerID], func(p BlogPost) bool { return p.ID == postID })
	if len(f.posts[producerID]) == before {
		return newAPIError(http.StatusNotFound, "Post not found", ErrNotFound)
	}
	return nil
}

func (f *fakeRemote) GetInsights(ctx context.Context, producerID string) (BlogInsightsSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["insights"]++
	var s BlogInsightsSummary
	for _, p := range f.posts[producerID] {
		s.TotalPosts++
		if p.IsDraft {
			s.DraftPosts++
			continue
		}
		s.PublishedPosts++
		if p.PublishedAt != nil && (s.LastPublishedAt == nil || p.PublishedAt.After(*s.LastPublishedAt)) {
			s.LastPublishedAt = ptr(*p.PublishedAt)
		}
	}
	return s, nil
}

// recorder collects toasts.
type recorder struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *recorder) Notify(_ context.Context, t Toast) {
	r.mu.Lock()
	r.toasts = append(r.toasts, t)
	r.mu.Unlock()
}

func (r *recorder) all() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.toasts)
}

func samplePosts() []BlogPost {
	return []BlogPost{
		{
			ID: "p1", ProducerID: "acme", Title: "First", Slug: "first", Excerpt: "one",
			ContentMarkdown: "# One", Tags: []string{"go"}, IsDraft: true,
			CreatedAt: t0, UpdatedAt: t0,
		},
		{
			ID: "p2", ProducerID: "acme", Title: "Second", Slug: "second", Excerpt: "two",
			ContentMarkdown: "# Two", Tags: []string{"go", "web"}, CoverImageURL: ptr("https://cdn.example.com/2.png"),
			PublishedAt: ptr(t0.Add(time.Hour)), CreatedAt: t0.Add(time.Hour), UpdatedAt: t0.Add(2 * time.Hour),
		},
		{
			ID: "p3", ProducerID: "acme", Title: "Third", Slug: "third", Excerpt: "three",
			ContentMarkdown: "# Three", Tags: []string{}, PublishedAt: ptr(t0.Add(3 * time.Hour)),
			CreatedAt: t0.Add(3 * time.Hour), UpdatedAt: t0.Add(3 * time.Hour),
		},
	}
}
