package blogconsole

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetNeverFetches(t *testing.T) {
	c := NewCache()

	_, ok := Get(c, PostsKey("acme"))
	assert.False(t, ok)

	_, ok = c.Meta(PostsKey("acme"))
	assert.False(t, ok)
}

func TestCacheSetAndGet(t *testing.T) {
	c := NewCache()
	Set(c, PostsKey("acme"), samplePosts())

	got, ok := Get(c, PostsKey("acme"))
	require.True(t, ok)
	assert.Equal(t, samplePosts(), got)
}

func TestCacheKeysDoNotCollide(t *testing.T) {
	c := NewCache()
	Set(c, PostsKey("acme"), samplePosts())
	Set(c, InsightsKey("acme"), BlogInsightsSummary{TotalPosts: 3})

	posts, ok := Get(c, PostsKey("acme"))
	require.True(t, ok)
	assert.Len(t, posts, 3)

	ins, ok := Get(c, InsightsKey("acme"))
	require.True(t, ok)
	assert.Equal(t, 3, ins.TotalPosts)

	_, ok = Get(c, PostsKey("other"))
	assert.False(t, ok)
}

func TestCacheReturnsCopies(t *testing.T) {
	c := NewCache()
	Set(c, PostsKey("acme"), samplePosts())

	got, _ := Get(c, PostsKey("acme"))
	got[0].Title = "changed"
	got[1].Tags[0] = "changed"
	*got[1].CoverImageURL = "changed"

	again, _ := Get(c, PostsKey("acme"))
	assert.Equal(t, samplePosts(), again)
}

func TestCacheMutate(t *testing.T) {
	c := NewCache()
	Set(c, PostsKey("acme"), samplePosts())

	Mutate(c, PostsKey("acme"), func(posts []BlogPost) []BlogPost {
		return posts[1:]
	})

	got, _ := Get(c, PostsKey("acme"))
	require.Len(t, got, 2)
	assert.Equal(t, "p2", got[0].ID)
}

func TestCacheMutateMissingEntryStartsFromZero(t *testing.T) {
	c := NewCache()

	Mutate(c, PostsKey("acme"), func(posts []BlogPost) []BlogPost {
		assert.Nil(t, posts)
		return append(posts, BlogPost{ID: "p1"})
	})

	got, ok := Get(c, PostsKey("acme"))
	require.True(t, ok)
	assert.Len(t, got, 1)
}

func TestCacheInvalidateKeepsValue(t *testing.T) {
	c := NewCache()
	Set(c, PostsKey("acme"), samplePosts())

	c.Invalidate(PostsKey("acme"))

	got, ok := Get(c, PostsKey("acme"))
	require.True(t, ok)
	assert.Len(t, got, 3)

	meta, ok := c.Meta(PostsKey("acme"))
	require.True(t, ok)
	assert.True(t, meta.Stale)
}

func TestCacheSetClearsStaleness(t *testing.T) {
	c := NewCache()
	Set(c, PostsKey("acme"), samplePosts())
	c.Invalidate(PostsKey("acme"))

	Set(c, PostsKey("acme"), nil)

	meta, _ := c.Meta(PostsKey("acme"))
	assert.False(t, meta.Stale)
}

func TestCacheRemove(t *testing.T) {
	c := NewCache()
	Set(c, PostsKey("acme"), samplePosts())

	c.Remove(PostsKey("acme"))

	_, ok := Get(c, PostsKey("acme"))
	assert.False(t, ok)
}

func TestCacheStaleTime(t *testing.T) {
	clock := newTestClock(t0)
	c := NewCache(WithStaleTime(30*time.Second), WithCacheClock(clock.Now))
	Set(c, InsightsKey("acme"), BlogInsightsSummary{TotalPosts: 1})

	meta, _ := c.Meta(InsightsKey("acme"))
	assert.False(t, meta.Stale)

	clock.Advance(31 * time.Second)
	meta, _ = c.Meta(InsightsKey("acme"))
	assert.True(t, meta.Stale)
}

func TestCacheZeroStaleTimeNeverExpires(t *testing.T) {
	clock := newTestClock(t0)
	c := NewCache(WithStaleTime(0), WithCacheClock(clock.Now))
	Set(c, InsightsKey("acme"), BlogInsightsSummary{})

	clock.Advance(24 * time.Hour)
	meta, _ := c.Meta(InsightsKey("acme"))
	assert.False(t, meta.Stale)
}

func TestCacheFetchUsesFreshValue(t *testing.T) {
	c := NewCache()
	Set(c, PostsKey("acme"), samplePosts())

	var calls int
	got, err := Fetch(context.Background(), c, PostsKey("acme"), func(context.Context) ([]BlogPost, error) {
		calls++
		return nil, nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Zero(t, calls)
}

func TestCacheFetchLoadsMissingValue(t *testing.T) {
	c := NewCache()

	got, err := Fetch(context.Background(), c, PostsKey("acme"), func(context.Context) ([]BlogPost, error) {
		return samplePosts(), nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	cached, ok := Get(c, PostsKey("acme"))
	require.True(t, ok)
	assert.Equal(t, got, cached)
}

func TestCacheFetchErrorIsNotStored(t *testing.T) {
	c := NewCache()
	boom := errors.New("boom")

	_, err := Fetch(context.Background(), c, PostsKey("acme"), func(context.Context) ([]BlogPost, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	_, ok := Get(c, PostsKey("acme"))
	assert.False(t, ok)
	meta, _ := c.Meta(PostsKey("acme"))
	assert.False(t, meta.InFlight)
}

func TestCacheConcurrentFetchesShareOneCall(t *testing.T) {
	c := NewCache()
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32

	fn := func(context.Context) ([]BlogPost, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return samplePosts(), nil
	}

	var wg sync.WaitGroup
	results := make([][]BlogPost, 5)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = Fetch(context.Background(), c, PostsKey("acme"), fn)
	}()
	<-started

	meta, ok := c.Meta(PostsKey("acme"))
	require.True(t, ok)
	assert.True(t, meta.InFlight)

	for i := 1; i < len(results); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = Fetch(context.Background(), c, PostsKey("acme"), fn)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Len(t, r, 3)
	}
}

func TestCacheFetchDoesNotOverwriteLocalWrite(t *testing.T) {
	c := NewCache()
	release := make(chan struct{})
	started := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = Revalidate(context.Background(), c, PostsKey("acme"), func(context.Context) ([]BlogPost, error) {
			close(started)
			<-release
			return samplePosts(), nil
		})
	}()
	<-started

	Mutate(c, PostsKey("acme"), func(posts []BlogPost) []BlogPost {
		return append(posts, BlogPost{ID: "local"})
	})
	close(release)
	<-done

	got, _ := Get(c, PostsKey("acme"))
	require.Len(t, got, 1)
	assert.Equal(t, "local", got[0].ID)
}

func TestCacheRevalidateOutlivesCallerContext(t *testing.T) {
	c := NewCache()
	release := make(chan struct{})
	started := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		_, err := Revalidate(ctx, c, PostsKey("acme"), func(context.Context) ([]BlogPost, error) {
			close(started)
			<-release
			return samplePosts(), nil
		})
		errc <- err
	}()
	<-started
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		_, ok := Get(c, PostsKey("acme"))
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestCacheLoadServesStaleAndRefetches(t *testing.T) {
	c := NewCache()
	Set(c, PostsKey("acme"), samplePosts()[:1])
	c.Invalidate(PostsKey("acme"))

	got, err := Load(context.Background(), c, PostsKey("acme"), func(context.Context) ([]BlogPost, error) {
		return samplePosts(), nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	c.Wait()
	refreshed, _ := Get(c, PostsKey("acme"))
	assert.Len(t, refreshed, 3)
	meta, _ := c.Meta(PostsKey("acme"))
	assert.False(t, meta.Stale)
}

func TestCacheLoadBlocksOnlyWhenMissing(t *testing.T) {
	c := NewCache()

	got, err := Load(context.Background(), c, PostsKey("acme"), func(context.Context) ([]BlogPost, error) {
		return samplePosts(), nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestCacheSubscribe(t *testing.T) {
	c := NewCache()
	var events []CacheEvent
	unsubscribe := c.Subscribe(func(ev CacheEvent) {
		events = append(events, ev)
	})

	key := PostsKey("acme")
	Set(c, key, samplePosts())
	Mutate(c, key, func(p []BlogPost) []BlogPost { return p })
	c.Invalidate(key)
	c.Remove(key)
	c.Invalidate(key)

	require.Len(t, events, 4)
	kinds := []CacheEventKind{events[0].Kind, events[1].Kind, events[2].Kind, events[3].Kind}
	assert.Equal(t, []CacheEventKind{EventSet, EventMutate, EventInvalidate, EventRemove}, kinds)
	assert.Equal(t, CacheEvent{Kind: EventSet, Collection: CollectionPosts, ProducerID: "acme"}, events[0])

	unsubscribe()
	Set(c, key, nil)
	assert.Len(t, events, 4)
}

func TestCacheSubscriberMayReadCache(t *testing.T) {
	c := NewCache()
	var seen int
	c.Subscribe(func(ev CacheEvent) {
		posts, _ := Get(c, PostsKey(ev.ProducerID))
		seen = len(posts)
	})

	Set(c, PostsKey("acme"), samplePosts())
	assert.Equal(t, 3, seen)
}
