package blogconsole

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// NewPostSelection is the selection value of the editor in new-post mode.
const NewPostSelection = "new"

// Console binds one producer's cached posts and insights to the editor: it
// owns the selection and turns submits and deletes into mutations.
type Console struct {
	producerID string
	cache      *Cache
	coord      *Coordinator
	remote     Remote
	log        *slog.Logger

	mu       sync.Mutex
	selected string
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

func WithConsoleLogger(l *slog.Logger) ConsoleOption {
	return func(c *Console) { c.log = l }
}

// WithSelection starts the console with id selected.
func WithSelection(id string) ConsoleOption {
	return func(c *Console) {
		if id != "" {
			c.selected = id
		}
	}
}

// NewConsole creates the console of producerID. It starts in new-post mode.
func NewConsole(producerID string, cache *Cache, coord *Coordinator, remote Remote, opts ...ConsoleOption) *Console {
	c := &Console{
		producerID: producerID,
		cache:      cache,
		coord:      coord,
		remote:     remote,
		log:        discardLogger(),
		selected:   NewPostSelection,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Console) ProducerID() string {
	return c.producerID
}

// SortPosts returns a copy of posts, most recently updated first. Posts with
// equal UpdatedAt keep their relative order.
func SortPosts(posts []BlogPost) []BlogPost {
	out := ClonePosts(posts)
	slices.SortStableFunc(out, func(a, b BlogPost) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out
}

// Hydrate seeds the cache with data the caller already has, so the first
// read does not go to the Remote.
func (c *Console) Hydrate(posts []BlogPost, insights BlogInsightsSummary) {
	Set(c.cache, PostsKey(c.producerID), posts)
	Set(c.cache, InsightsKey(c.producerID), insights)
}

// Posts returns the producer's posts in display order. A stale list is
// served as is while it is refreshed in the background.
func (c *Console) Posts(ctx context.Context) ([]BlogPost, error) {
	posts, err := Load(ctx, c.cache, PostsKey(c.producerID), func(ctx context.Context) ([]BlogPost, error) {
		return c.remote.ListPosts(ctx, c.producerID)
	})
	if err != nil {
		return nil, err
	}
	return SortPosts(posts), nil
}

// Insights returns the producer's insights summary.
func (c *Console) Insights(ctx context.Context) (BlogInsightsSummary, error) {
	return Load(ctx, c.cache, InsightsKey(c.producerID), func(ctx context.Context) (BlogInsightsSummary, error) {
		return c.remote.GetInsights(ctx, c.producerID)
	})
}

// Open loads the posts and selects the most recently updated one, or enters
// new-post mode when there is none.
func (c *Console) Open(ctx context.Context) error {
	posts, err := c.Posts(ctx)
	if err != nil {
		return err
	}
	c.selectFirst(posts)
	return nil
}

func (c *Console) Select(id string) {
	c.mu.Lock()
	c.selected = id
	c.mu.Unlock()
}

func (c *Console) SelectNew() {
	c.Select(NewPostSelection)
}

// Selected returns the raw selection: a post id or NewPostSelection.
func (c *Console) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Current resolves the selection against the cached posts. It reports false
// in new-post mode and when the selected post is not in the list.
func (c *Console) Current() (BlogPost, bool) {
	id := c.Selected()
	if id == NewPostSelection {
		return BlogPost{}, false
	}
	posts, _ := Get(c.cache, PostsKey(c.producerID))
	for _, p := range posts {
		if p.ID == id {
			return p, true
		}
	}
	return BlogPost{}, false
}

// IsNew reports whether the editor is in new-post mode.
func (c *Console) IsNew() bool {
	_, ok := c.Current()
	return !ok
}

// Form returns the editor state for the current selection.
func (c *Console) Form() FormState {
	if p, ok := c.Current(); ok {
		return FormFromPost(p)
	}
	return EmptyForm()
}

// Submit saves the form: a create in new-post mode, an update of the
// current post otherwise.
func (c *Console) Submit(ctx context.Context, form FormState, opts ...MutateOption) Result {
	current, ok := c.Current()
	kind := MutationCreate
	if ok {
		kind = MutationUpdate
	}
	if err := form.Validate(); err != nil {
		c.log.Debug("form rejected", slog.String("producer_id", c.producerID), slog.Any("err", err))
		return Result{Kind: kind, PostID: current.ID, Err: ErrInvalidForm}
	}

	if !ok {
		opts = append([]MutateOption{OnApplied(func(m Mutation) {
			c.Select(m.TempID)
		})}, opts...)
		res := c.coord.Create(ctx, c.producerID, form.Payload(nil), opts...)
		if res.OK() {
			c.Select(res.PostID)
		} else if c.Selected() == res.TempID {
			c.SelectNew()
		}
		return res
	}
	return c.coord.Update(ctx, c.producerID, current.ID, form.Payload(&current), opts...)
}

// Delete removes the current post. On success the selection moves to the
// first remaining post, or to new-post mode.
func (c *Console) Delete(ctx context.Context, opts ...MutateOption) Result {
	current, ok := c.Current()
	if !ok {
		return Result{Kind: MutationDelete, PostID: c.Selected(), Err: ErrNotFound}
	}
	res := c.coord.Delete(ctx, c.producerID, current.ID, opts...)
	if res.OK() {
		posts, _ := Get(c.cache, PostsKey(c.producerID))
		c.selectFirst(SortPosts(posts))
	}
	return res
}

func (c *Console) selectFirst(sorted []BlogPost) {
	if len(sorted) == 0 {
		c.SelectNew()
		return
	}
	c.Select(sorted[0].ID)
}
