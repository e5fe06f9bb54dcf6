// Package blogconsole is the producer blog console: an editor for a
// producer's posts that applies changes optimistically over a remote blog
// backend, plus the public storefront pages rendered from the same posts.
//
// The console keeps a typed in-memory Cache of posts and insights, and a
// Coordinator that writes through it, rolling back when the backend says no.
// App keeps one pair per caller and serves them from an Echo server together
// with user-replaceable views.
package blogconsole

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// ViewFuncs holds the templ components the App renders pages with. Nil
// fields fall back to DefaultViews.
type ViewFuncs struct {
	Console     func(page ConsolePage) templ.Component
	StoreIndex  func(page StoreIndexPage) templ.Component
	StorePost   func(page StorePostPage) templ.Component
	NotFound    func() templ.Component
	ServerError func() templ.Component
}

// ConsolePage is everything the console editor page shows.
type ConsolePage struct {
	Site       SiteConfig
	ProducerID string
	Posts      []BlogPost
	Insights   BlogInsightsSummary
	Selected   string
	Current    *BlogPost
	Form       FormState
	Toasts     []Toast
	CSRFToken  string
}

// IsNew reports whether the editor is in new-post mode.
func (p ConsolePage) IsNew() bool {
	return p.Current == nil
}

// StoreIndexPage lists a producer's published posts.
type StoreIndexPage struct {
	Site       SiteConfig
	ProducerID string
	Posts      []BlogPost
	Meta       PageMeta
}

// StorePostPage shows one published post.
type StorePostPage struct {
	Site   SiteConfig
	Post   BlogPost
	Meta   PageMeta
	JSONLD string
}

// App is the console application. It wires together the backend, the
// per-caller workspaces, handlers, middleware, and the views.
type App struct {
	Config     SiteConfig
	Echo       *echo.Echo
	Log        *slog.Logger
	Remote     Remote
	Storefront Storefront
	Pages      PageCache
	Metrics    *Metrics
	Views      ViewFuncs

	// workspaces holds one *workspace per principal. Console data is
	// fetched with the caller's credentials and never served to another.
	workspaces *gocache.Cache
	wsMu       sync.Mutex
	retired    sync.WaitGroup

	store        *Store
	redis        *redis.Client
	writeLimiter *RateLimiter
	customRoutes []func(*App)
	initialized  bool
}

// New creates an App with the given configuration and views.
func New(cfg SiteConfig, views ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		Views:  views.withDefaults(),
	}
	a.Echo.HideBanner = true

	for _, opt := range opts {
		opt(a)
	}
	if a.Log == nil {
		a.Log = NewLogger(cfg.Env, cfg.LogLevel)
	}
	return a
}

func (v ViewFuncs) withDefaults() ViewFuncs {
	d := DefaultViews()
	if v.Console == nil {
		v.Console = d.Console
	}
	if v.StoreIndex == nil {
		v.StoreIndex = d.StoreIndex
	}
	if v.StorePost == nil {
		v.StorePost = d.StorePost
	}
	if v.NotFound == nil {
		v.NotFound = d.NotFound
	}
	if v.ServerError == nil {
		v.ServerError = d.ServerError
	}
	return v
}

// Init builds the backend client, caches, middleware and routes. Start
// calls it; tests call it directly and drive a.Echo.
func (a *App) Init() error {
	if a.initialized {
		return nil
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("blogconsole: SessionSecret is required")
	}
	if a.Remote == nil && !a.Config.UseAPIMocks && a.Config.APIBaseURL == "" {
		return fmt.Errorf("blogconsole: APIBaseURL is required unless UseAPIMocks is set")
	}

	if a.Remote == nil {
		if a.Config.UseAPIMocks {
			store, err := NewStore(a.Config.MockDatabasePath)
			if err != nil {
				return fmt.Errorf("blogconsole: init store: %w", err)
			}
			a.store = store
			a.Remote, a.Storefront = store, store
			a.Log.Info("serving from the local mock store", slog.String("path", a.Config.MockDatabasePath))
		} else {
			client := NewHTTPClient(a.Config.APIBaseURL, a.Config.APITimeout,
				WithClientLogger(a.Log.With(slog.String("component", "api"))))
			a.Remote, a.Storefront = client, client
		}
	}
	if a.Storefront == nil {
		if sf, ok := a.Remote.(Storefront); ok {
			a.Storefront = sf
		} else {
			return errors.New("blogconsole: Remote does not serve the storefront and none was given")
		}
	}

	if a.Metrics == nil {
		a.Metrics = NewMetrics(prometheus.NewRegistry())
	}

	if a.Pages == nil {
		if a.Config.Redis.Addr != "" {
			a.redis = NewRedisClient(a.Config.Redis)
			a.Pages = NewRedisPageCache(a.redis, a.Config.StorefrontTTL)
		} else {
			a.Pages = NewMemoryPageCache(a.Config.StorefrontTTL)
		}
	}

	a.workspaces = a.newWorkspaces(a.Config.WorkspaceTTL)

	a.writeLimiter = NewRateLimiter(a.Config.WriteLimit, a.Config.WriteLimitWindow)

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.initialized = true
	return nil
}

// Start initializes the app and serves until the server is shut down.
func (a *App) Start() error {
	if err := a.Init(); err != nil {
		return err
	}
	a.Log.Info("starting server", slog.String("addr", a.Config.Addr))
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	assets, _ := fs.Sub(EmbeddedAssets, "embedded")
	e.GET("/public/*", echo.WrapHandler(http.StripPrefix("/public/", http.FileServer(http.FS(assets)))))

	e.GET("/", a.handleRoot)
	e.GET("/healthz", a.handleHealth)
	e.GET("/metrics", echo.WrapHandler(a.Metrics.Handler()))

	console := e.Group("/producers/:producerID/blog")
	console.GET("/", a.handleConsole)
	console.POST("/save/", a.handleConsoleSave, a.limitWrites)
	console.POST("/:postID/delete/", a.handleConsoleDelete, a.limitWrites)
	console.DELETE("/:postID/delete/", a.handleConsoleDelete, a.limitWrites)

	store := e.Group("/store/:producerID")
	store.GET("/blog/", a.handleStoreIndex)
	store.GET("/blog/feed.xml", a.handleStoreFeed)
	store.GET("/blog/:slug/", a.handleStorePost)
	store.GET("/sitemap.xml", a.handleStoreSitemap)
}

// Shutdown stops the server, waits for background refreshes and releases
// resources.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Echo.Shutdown(ctx)
	a.Wait()
	return errors.Join(err, a.Close())
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	var errs []error
	if a.writeLimiter != nil {
		a.writeLimiter.Stop()
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
