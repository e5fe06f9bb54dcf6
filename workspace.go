package blogconsole

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// workspace is one caller's view of the backend: the posts and insights
// fetched with their credentials, and the coordinator writing through them.
type workspace struct {
	cache *Cache
	coord *Coordinator
}

func (w *workspace) wait() {
	w.coord.Wait()
	w.cache.Wait()
}

// principal identifies a caller by the credentials forwarded to the
// backend. Callers sending the same credentials share a workspace.
func principal(cookie, authorization string) string {
	sum := sha256.Sum256([]byte(cookie + "\x00" + authorization))
	return hex.EncodeToString(sum[:])
}

// backendCredentials returns the Cookie and Authorization headers to forward
// to the backend. The console's own session and CSRF cookies stay behind.
func backendCredentials(req *http.Request) (cookie, authorization string) {
	var kept []string
	for _, ck := range req.Cookies() {
		if ck.Name == sessionName || ck.Name == csrfCookie {
			continue
		}
		kept = append(kept, ck.Name+"="+ck.Value)
	}
	return strings.Join(kept, "; "), req.Header.Get("Authorization")
}

// newWorkspaces creates the per-caller workspace table. Evicted workspaces
// are retired rather than dropped.
func (a *App) newWorkspaces(ttl time.Duration) *gocache.Cache {
	items := gocache.New(ttl, ttl/2)
	items.OnEvicted(func(owner string, v any) {
		a.Log.Debug("workspace evicted", slog.String("owner", owner[:12]))
		a.retire(v.(*workspace))
	})
	return items
}

func (a *App) newWorkspace(owner string) *workspace {
	log := a.Log.With(slog.String("owner", owner[:12]))
	cache := NewCache(
		WithStaleTime(a.Config.CacheStaleTime),
		WithCacheLogger(log.With(slog.String("component", "cache"))),
		WithCacheMetrics(a.Metrics),
	)
	cache.Subscribe(func(ev CacheEvent) {
		log.Debug("cache event",
			slog.String("kind", string(ev.Kind)),
			slog.String("collection", string(ev.Collection)),
			slog.String("producer_id", ev.ProducerID),
		)
	})
	return &workspace{
		cache: cache,
		coord: NewCoordinator(cache, a.Remote,
			WithCoordinatorLogger(log.With(slog.String("component", "coordinator"))),
			WithCoordinatorMetrics(a.Metrics),
		),
	}
}

// workspaceFor returns the workspace of owner, creating it on first use.
// Every use extends its lifetime by WorkspaceTTL.
func (a *App) workspaceFor(owner string) *workspace {
	a.wsMu.Lock()
	defer a.wsMu.Unlock()

	if v, ok := a.workspaces.Get(owner); ok {
		ws := v.(*workspace)
		a.workspaces.SetDefault(owner, ws)
		return ws
	}
	// Evicts an expired entry the janitor has not reached yet.
	a.workspaces.Delete(owner)
	ws := a.newWorkspace(owner)
	a.workspaces.SetDefault(owner, ws)
	return ws
}

// retire tracks the background work of a workspace that is no longer
// reachable, so Wait still covers it.
func (a *App) retire(ws *workspace) {
	a.retired.Add(1)
	go func() {
		defer a.retired.Done()
		ws.wait()
	}()
}

// Wait blocks until every workspace has finished its in-flight commits and
// background refetches.
func (a *App) Wait() {
	if a.workspaces != nil {
		for _, item := range a.workspaces.Items() {
			item.Object.(*workspace).wait()
		}
	}
	a.retired.Wait()
}
