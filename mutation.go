package blogconsole

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MutationKind names the three post mutations.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// Mutation is one in-flight write against a producer's post list. It
// carries the snapshot taken before the optimistic write so a failed call
// can put the list back exactly as it was.
type Mutation struct {
	Kind       MutationKind
	Key        Key[[]BlogPost]
	ProducerID string
	// PostID is the post being changed. For a create it is the temporary id
	// until the backend answers.
	PostID   string
	TempID   string
	Input    BlogPostInput
	Snapshot []BlogPost
	// StartedAt is when the optimistic write was applied.
	StartedAt time.Time

	hadSnapshot bool
}

// Result is the outcome of a mutation. A failed mutation has already been
// rolled back when the Result is returned.
type Result struct {
	Kind MutationKind
	// Post is the backend's copy of the post after a successful create or
	// update.
	Post   BlogPost
	PostID string
	TempID string
	Err    error
}

// OK reports whether the mutation succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Coordinator applies post mutations optimistically to the cache, commits
// them to the Remote and reconciles or rolls back depending on the answer.
// Mutations of one producer's post list run one at a time.
type Coordinator struct {
	cache    *Cache
	remote   Remote
	log      *slog.Logger
	metrics  *Metrics
	notifier Notifier
	now      func() time.Time
	tempID   func() string

	locks *keyedMutex
	wg    sync.WaitGroup
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.log = l }
}

func WithCoordinatorMetrics(m *Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithDefaultNotifier sets the notifier used when a call does not bring its own.
func WithDefaultNotifier(n Notifier) CoordinatorOption {
	return func(c *Coordinator) { c.notifier = n }
}

func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithTempIDs replaces the generator of temporary post ids. Generated ids
// must start with TempIDPrefix.
func WithTempIDs(gen func() string) CoordinatorOption {
	return func(c *Coordinator) { c.tempID = gen }
}

// NewCoordinator creates a Coordinator writing into cache and committing to remote.
func NewCoordinator(cache *Cache, remote Remote, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		cache:  cache,
		remote: remote,
		log:    discardLogger(),
		now:    time.Now,
		tempID: func() string { return TempIDPrefix + uuid.NewString() },
		locks:  newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = NewLogNotifier(c.log)
	}
	return c
}

// MutateOption configures a single Create, Update or Delete call.
type MutateOption func(*mutateOptions)

type mutateOptions struct {
	onApplied  []func(Mutation)
	onResolved []func(Mutation, Result)
	notifier   Notifier
}

// OnApplied runs fn right after the optimistic write, before the Remote is
// called. Hooks run in the order they were given.
func OnApplied(fn func(Mutation)) MutateOption {
	return func(o *mutateOptions) { o.onApplied = append(o.onApplied, fn) }
}

// OnResolved runs fn after the cache has been reconciled or rolled back.
func OnResolved(fn func(Mutation, Result)) MutateOption {
	return func(o *mutateOptions) { o.onResolved = append(o.onResolved, fn) }
}

// WithNotifier sends this call's toasts to n.
func WithNotifier(n Notifier) MutateOption {
	return func(o *mutateOptions) { o.notifier = n }
}

// Create adds a post. The list shows a provisional post under a temporary
// id until the backend returns the real one.
func (c *Coordinator) Create(ctx context.Context, producerID string, in BlogPostInput, opts ...MutateOption) Result {
	tempID := c.tempID()
	m := Mutation{
		Kind:       MutationCreate,
		Key:        PostsKey(producerID),
		ProducerID: producerID,
		PostID:     tempID,
		TempID:     tempID,
		Input:      in,
	}

	return c.run(ctx, m, opts,
		func(posts []BlogPost, now time.Time) []BlogPost {
			return append([]BlogPost{optimisticPost(producerID, tempID, in, now)}, posts...)
		},
		func(ctx context.Context) (BlogPost, error) {
			return c.remote.CreatePost(ctx, producerID, in)
		},
		func(posts []BlogPost, created BlogPost) []BlogPost {
			return placeCreated(posts, tempID, created)
		},
	)
}

// Update patches a post with the fields present in in.
func (c *Coordinator) Update(ctx context.Context, producerID, postID string, in BlogPostInput, opts ...MutateOption) Result {
	m := Mutation{
		Kind:       MutationUpdate,
		Key:        PostsKey(producerID),
		ProducerID: producerID,
		PostID:     postID,
		Input:      in,
	}
	if IsTempID(postID) {
		return c.reject(ctx, m, opts, ErrTemporaryID)
	}

	return c.run(ctx, m, opts,
		func(posts []BlogPost, now time.Time) []BlogPost {
			for i := range posts {
				if posts[i].ID == postID {
					posts[i] = patchPost(posts[i], in, now)
				}
			}
			return posts
		},
		func(ctx context.Context) (BlogPost, error) {
			return c.remote.UpdatePost(ctx, producerID, postID, in)
		},
		func(posts []BlogPost, updated BlogPost) []BlogPost {
			return replacePost(posts, updated.ID, updated)
		},
	)
}

// Delete removes a post.
func (c *Coordinator) Delete(ctx context.Context, producerID, postID string, opts ...MutateOption) Result {
	m := Mutation{
		Kind:       MutationDelete,
		Key:        PostsKey(producerID),
		ProducerID: producerID,
		PostID:     postID,
	}
	if IsTempID(postID) {
		return c.reject(ctx, m, opts, ErrTemporaryID)
	}

	return c.run(ctx, m, opts,
		func(posts []BlogPost, _ time.Time) []BlogPost {
			return slices.DeleteFunc(posts, func(p BlogPost) bool { return p.ID == postID })
		},
		func(ctx context.Context) (BlogPost, error) {
			return BlogPost{}, c.remote.DeletePost(ctx, producerID, postID)
		},
		nil,
	)
}

// Wait blocks until the insights refreshes started by finished mutations
// are done.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) run(
	ctx context.Context,
	m Mutation,
	opts []MutateOption,
	apply func(posts []BlogPost, now time.Time) []BlogPost,
	commit func(context.Context) (BlogPost, error),
	reconcile func([]BlogPost, BlogPost) []BlogPost,
) Result {
	o := collectOptions(opts)
	log := c.log.With(
		slog.String("op", "blogconsole.Coordinator."+string(m.Kind)),
		slog.String("producer_id", m.ProducerID),
		slog.String("post_id", m.PostID),
	)

	unlock, err := c.locks.lock(ctx, m.Key.String())
	if err != nil {
		return c.reject(ctx, m, opts, err)
	}
	defer unlock()

	// Timestamps are taken once the lock is held, so a queued mutation is
	// stamped after the one it waited for.
	m.StartedAt = c.now()
	m.Snapshot, m.hadSnapshot = Get(c.cache, m.Key)
	Mutate(c.cache, m.Key, func(posts []BlogPost) []BlogPost {
		return apply(posts, m.StartedAt)
	})
	for _, fn := range o.onApplied {
		fn(m.clone())
	}

	// The call outlives the caller's context: leaving the page does not
	// abort a write that is already on its way.
	post, err := commit(context.WithoutCancel(ctx))

	res := Result{Kind: m.Kind, PostID: m.PostID, TempID: m.TempID}
	if err != nil {
		c.restore(m)
		res.Err = err
		log.Warn("mutation failed, rolled back", slog.Any("err", err))
		c.notify(ctx, o, failureToast(m.Kind, err))
		c.metrics.observeMutation(m.Kind, "error", c.now().Sub(m.StartedAt))
	} else {
		if reconcile != nil {
			Mutate(c.cache, m.Key, func(posts []BlogPost) []BlogPost {
				return reconcile(posts, post)
			})
			res.Post = post
			res.PostID = post.ID
		}
		log.Info("mutation committed", slog.String("result_id", res.PostID))
		c.refreshInsights(ctx, m.ProducerID)
		c.notify(ctx, o, successToast(m.Kind, post))
		c.metrics.observeMutation(m.Kind, "ok", c.now().Sub(m.StartedAt))
	}

	for _, fn := range o.onResolved {
		fn(m.clone(), res)
	}
	return res
}

// reject fails a mutation before anything was written to the cache.
func (c *Coordinator) reject(ctx context.Context, m Mutation, opts []MutateOption, err error) Result {
	o := collectOptions(opts)
	m.StartedAt = c.now()
	res := Result{Kind: m.Kind, PostID: m.PostID, TempID: m.TempID, Err: err}
	c.log.Warn("mutation rejected",
		slog.String("op", "blogconsole.Coordinator."+string(m.Kind)),
		slog.String("producer_id", m.ProducerID),
		slog.Any("err", err),
	)
	c.notify(ctx, o, failureToast(m.Kind, err))
	c.metrics.observeMutation(m.Kind, "rejected", 0)
	for _, fn := range o.onResolved {
		fn(m, res)
	}
	return res
}

func (c *Coordinator) restore(m Mutation) {
	if m.hadSnapshot {
		Set(c.cache, m.Key, m.Snapshot)
		return
	}
	c.cache.Remove(m.Key)
}

// refreshInsights marks the producer's insights stale and, when someone has
// read them before, refetches them in the background. A failed refetch only
// leaves the entry stale.
func (c *Coordinator) refreshInsights(ctx context.Context, producerID string) {
	key := InsightsKey(producerID)
	c.cache.Invalidate(key)
	if _, ok := c.cache.Meta(key); !ok {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, err := Revalidate(context.WithoutCancel(ctx), c.cache, key, func(ctx context.Context) (BlogInsightsSummary, error) {
			return c.remote.GetInsights(ctx, producerID)
		})
		if err != nil {
			c.log.Warn("insights refresh failed", slog.String("producer_id", producerID), slog.Any("err", err))
		}
	}()
}

func (c *Coordinator) notify(ctx context.Context, o mutateOptions, t Toast) {
	n := o.notifier
	if n == nil {
		n = c.notifier
	}
	n.Notify(ctx, t)
}

func (m Mutation) clone() Mutation {
	m.Snapshot = ClonePosts(m.Snapshot)
	return m
}

func collectOptions(opts []MutateOption) mutateOptions {
	var o mutateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func successToast(kind MutationKind, post BlogPost) Toast {
	switch kind {
	case MutationCreate:
		if post.IsDraft {
			return Toast{Kind: ToastInfo, Title: "Draft saved"}
		}
		return Toast{Kind: ToastSuccess, Title: "Post published"}
	case MutationUpdate:
		if post.IsDraft {
			return Toast{Kind: ToastInfo, Title: "Draft updated"}
		}
		return Toast{Kind: ToastSuccess, Title: "Post updated"}
	default:
		return Toast{Kind: ToastSuccess, Title: "Post deleted"}
	}
}

func failureToast(kind MutationKind, err error) Toast {
	return Toast{
		Kind:        ToastError,
		Title:       "Failed to " + string(kind) + " post",
		Description: ErrorMessage(err),
	}
}

func optimisticPost(producerID, id string, in BlogPostInput, now time.Time) BlogPost {
	slug := in.Slug
	if slug == "" {
		slug = Slugify(in.Title)
	}
	publish := in.Publish != nil && *in.Publish
	p := BlogPost{
		ID:              id,
		ProducerID:      producerID,
		Title:           in.Title,
		Slug:            slug,
		Excerpt:         in.Excerpt,
		ContentMarkdown: in.ContentMarkdown,
		Tags:            slices.Clone(in.Tags),
		IsDraft:         !publish,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.CoverImageURL != nil && *in.CoverImageURL != "" {
		p.CoverImageURL = ptr(*in.CoverImageURL)
	}
	if publish {
		p.PublishedAt = ptr(now)
	}
	return p
}

// patchPost applies the fields present in in to p. Publishing a post that
// is already published keeps its original PublishedAt.
func patchPost(p BlogPost, in BlogPostInput, now time.Time) BlogPost {
	p.Title = in.Title
	p.Excerpt = in.Excerpt
	p.ContentMarkdown = in.ContentMarkdown
	p.Tags = slices.Clone(in.Tags)
	if in.Slug != "" {
		p.Slug = in.Slug
	}
	if in.CoverImageURL != nil {
		if *in.CoverImageURL == "" {
			p.CoverImageURL = nil
		} else {
			p.CoverImageURL = ptr(*in.CoverImageURL)
		}
	}
	if in.Publish != nil && *in.Publish != p.Published() {
		p.IsDraft = !*in.Publish
		if *in.Publish {
			p.PublishedAt = ptr(now)
		} else {
			p.PublishedAt = nil
		}
	}
	p.UpdatedAt = now
	return p
}

// placeCreated swaps the provisional post for the created one. A list
// refetched during the commit no longer holds the provisional post; the
// created post is then prepended unless the refetch already returned it.
func placeCreated(posts []BlogPost, tempID string, created BlogPost) []BlogPost {
	switch {
	case slices.ContainsFunc(posts, func(p BlogPost) bool { return p.ID == tempID }):
		return replacePost(posts, tempID, created)
	case slices.ContainsFunc(posts, func(p BlogPost) bool { return p.ID == created.ID }):
		return replacePost(posts, created.ID, created)
	}
	return append([]BlogPost{created.Clone()}, posts...)
}

func replacePost(posts []BlogPost, id string, post BlogPost) []BlogPost {
	for i := range posts {
		if posts[i].ID == id {
			posts[i] = post.Clone()
		}
	}
	return posts
}

// keyedMutex serializes work per key. Lock entries are dropped once nobody
// holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (m *keyedMutex) lock(ctx context.Context, key string) (unlock func(), err error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			m.release(key, l)
		}, nil
	case <-ctx.Done():
		m.release(key, l)
		return nil, ctx.Err()
	}
}

func (m *keyedMutex) release(key string, l *keyedLock) {
	m.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}
