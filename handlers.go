package blogconsole

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

func (a *App) handleRoot(c echo.Context) error {
	return c.Redirect(http.StatusSeeOther, consoleURL(a.Config.DefaultProducerID, ""))
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

func (a *App) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	checks := map[string]healthChecker{}
	if a.store != nil {
		checks["store"] = a.store
	}
	if hc, ok := a.Pages.(healthChecker); ok {
		checks["page_cache"] = hc
	}
	for name, hc := range checks {
		if err := hc.HealthCheck(ctx); err != nil {
			status[name] = err.Error()
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	return c.JSON(code, status)
}

func (a *App) handleStoreIndex(c echo.Context) error {
	producerID := c.Param("producerID")
	return a.cachedPage(c, producerID, echo.MIMETextHTMLCharsetUTF8, func(ctx context.Context, buf *bytes.Buffer) error {
		posts, err := a.Storefront.ListPublishedPosts(ctx, producerID)
		if err != nil {
			return err
		}
		page := StoreIndexPage{
			Site:       a.Config,
			ProducerID: producerID,
			Posts:      posts,
			Meta: PageMeta{
				Title:       a.Config.Name,
				Description: a.Config.Description,
				URL:         StorefrontURL(a.Config.URL, producerID),
				OGType:      "website",
			},
		}
		return a.Views.StoreIndex(page).Render(ctx, buf)
	})
}

func (a *App) handleStorePost(c echo.Context) error {
	producerID := c.Param("producerID")
	slug := c.Param("slug")
	return a.cachedPage(c, producerID, echo.MIMETextHTMLCharsetUTF8, func(ctx context.Context, buf *bytes.Buffer) error {
		post, err := a.Storefront.GetPublishedPost(ctx, producerID, slug)
		if err != nil {
			return err
		}
		page := StorePostPage{
			Site: a.Config,
			Post: post,
			Meta: PageMeta{
				Title:       post.Title + " | " + a.Config.Name,
				Description: post.Excerpt,
				URL:         StorefrontURL(a.Config.URL, producerID, post.Slug),
				OGType:      "article",
			},
			JSONLD: BlogPostingJsonLD(post, a.Config),
		}
		return a.Views.StorePost(page).Render(ctx, buf)
	})
}

func (a *App) handleStoreFeed(c echo.Context) error {
	producerID := c.Param("producerID")
	return a.cachedPage(c, producerID, "application/rss+xml; charset=utf-8", func(ctx context.Context, buf *bytes.Buffer) error {
		posts, err := a.Storefront.ListPublishedPosts(ctx, producerID)
		if err != nil {
			return err
		}
		return a.writeRSS(buf, producerID, posts)
	})
}

func (a *App) handleStoreSitemap(c echo.Context) error {
	producerID := c.Param("producerID")
	return a.cachedPage(c, producerID, "application/xml; charset=utf-8", func(ctx context.Context, buf *bytes.Buffer) error {
		posts, err := a.Storefront.ListPublishedPosts(ctx, producerID)
		if err != nil {
			return err
		}
		return a.writeSitemap(buf, producerID, posts)
	})
}

// cachedPage serves a storefront page from the page cache, rendering and
// storing it on a miss. Page cache failures only cost a re-render.
func (a *App) cachedPage(c echo.Context, producerID, contentType string, render func(context.Context, *bytes.Buffer) error) error {
	ctx := c.Request().Context()
	path := c.Request().URL.Path

	page, ok, err := a.Pages.Get(ctx, producerID, path)
	if err != nil {
		a.Log.Warn("page cache read failed", slog.String("path", path), slog.Any("err", err))
	}
	if ok {
		a.Metrics.observePage("hit")
		return c.Blob(http.StatusOK, contentType, page)
	}
	a.Metrics.observePage("miss")

	var buf bytes.Buffer
	if err := render(ctx, &buf); err != nil {
		if IsNotFound(err) {
			return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		}
		return err
	}
	if err := a.Pages.Set(ctx, producerID, path, buf.Bytes()); err != nil {
		a.Log.Warn("page cache write failed", slog.String("path", path), slog.Any("err", err))
	}
	return c.Blob(http.StatusOK, contentType, buf.Bytes())
}

// invalidateStorefront drops the producer's cached storefront pages after
// one of its posts changed.
func (a *App) invalidateStorefront(ctx context.Context, producerID string) {
	if err := a.Pages.InvalidateProducer(ctx, producerID); err != nil {
		a.Log.Warn("storefront invalidation failed", slog.String("producer_id", producerID), slog.Any("err", err))
	}
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	ok := errors.As(err, &he)
	if ok && he.Code == http.StatusNotFound {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		a.Log.Error("server error", slog.String("uri", c.Request().RequestURI), slog.Any("err", err))
		_ = RenderStatus(c, code, a.Views.ServerError())
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
