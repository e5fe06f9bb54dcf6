package blogconsole

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/eringen/blogconsole/markdown"
)

const dateLayout = "Jan 2, 2006"

// DefaultViews returns the built-in server-rendered pages. Sites that want
// their own look pass a ViewFuncs with some or all fields set.
func DefaultViews() ViewFuncs {
	return ViewFuncs{
		Console:     consoleView,
		StoreIndex:  storeIndexView,
		StorePost:   storePostView,
		NotFound:    func() templ.Component { return messageView("Not found", "The page you asked for does not exist.") },
		ServerError: func() templ.Component { return messageView("Something went wrong", "Please try again in a moment.") },
	}
}

// Render writes page as a 200 HTML response.
func Render(c echo.Context, page templ.Component) error {
	return RenderStatus(c, http.StatusOK, page)
}

// RenderStatus renders page into a buffer and writes it with code. Nothing
// reaches the client when rendering fails.
func RenderStatus(c echo.Context, code int, page templ.Component) error {
	var buf bytes.Buffer
	if err := page.Render(c.Request().Context(), &buf); err != nil {
		return fmt.Errorf("blogconsole: render page: %w", err)
	}
	return c.HTMLBlob(code, buf.Bytes())
}

// pageWriter writes HTML fragments and keeps the first write error.
type pageWriter struct {
	ctx context.Context
	w   io.Writer
	err error
}

func (p *pageWriter) raw(s string) {
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s)
	}
}

// htmlf writes format with every argument HTML-escaped. Markup belongs in
// the format string; arguments are always text.
func (p *pageWriter) htmlf(format string, args ...string) {
	escaped := make([]any, len(args))
	for i, a := range args {
		escaped[i] = templ.EscapeString(a)
	}
	if p.err == nil {
		_, p.err = fmt.Fprintf(p.w, format, escaped...)
	}
}

// text writes s HTML-escaped.
func (p *pageWriter) text(s string) {
	p.raw(templ.EscapeString(s))
}

func (p *pageWriter) component(c templ.Component) {
	if p.err == nil {
		p.err = c.Render(p.ctx, p.w)
	}
}

func (p *pageWriter) head(site SiteConfig, meta PageMeta) {
	title := meta.Title
	if title == "" {
		title = site.Name
	}
	p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
	p.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	p.raw(`<title>`)
	p.text(title)
	p.raw(`</title>`)
	if meta.Description != "" {
		p.htmlf(`<meta name="description" content="%s">`, meta.Description)
		p.htmlf(`<meta property="og:description" content="%s">`, meta.Description)
	}
	p.htmlf(`<meta property="og:title" content="%s">`, title)
	if meta.OGType != "" {
		p.htmlf(`<meta property="og:type" content="%s">`, meta.OGType)
	}
	if meta.URL != "" {
		p.htmlf(`<link rel="canonical" href="%s">`, meta.URL)
		p.htmlf(`<meta property="og:url" content="%s">`, meta.URL)
	}
	p.raw(`<link rel="stylesheet" href="/public/console.css"></head><body><main>`)
}

func (p *pageWriter) foot() {
	p.raw(`</main></body></html>`)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "Never"
	}
	return t.Format(dateLayout)
}

func consoleView(page ConsolePage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &pageWriter{ctx: ctx, w: w}
		p.head(page.Site, PageMeta{Title: "Blog console | " + page.Site.Name})

		if len(page.Toasts) > 0 {
			p.raw(`<div class="toasts" role="status">`)
			for _, t := range page.Toasts {
				p.htmlf(`<div class="toast %s"><strong>`, string(t.Kind))
				p.text(t.Title)
				p.raw(`</strong>`)
				if t.Description != "" {
					p.raw(`<p>`)
					p.text(t.Description)
					p.raw(`</p>`)
				}
				p.raw(`</div>`)
			}
			p.raw(`</div>`)
		}

		ins := page.Insights
		p.raw(`<section class="panel stats">`)
		for _, s := range []struct{ label, value string }{
			{"Total", strconv.Itoa(ins.TotalPosts)},
			{"Published", strconv.Itoa(ins.PublishedPosts)},
			{"Drafts", strconv.Itoa(ins.DraftPosts)},
			{"Last publish", formatDate(ins.LastPublishedAt)},
		} {
			p.raw(`<div class="stat"><strong>`)
			p.text(s.value)
			p.raw(`</strong><span>`)
			p.text(s.label)
			p.raw(`</span></div>`)
		}
		p.raw(`</section>`)

		p.raw(`<div class="console"><aside class="panel"><ul class="post-list">`)
		p.htmlf(`<li><a href="%s">+ New post</a></li>`, consoleURL(page.ProducerID, NewPostSelection))
		for _, post := range page.Posts {
			href := consoleURL(page.ProducerID, post.ID)
			if page.Current != nil && page.Current.ID == post.ID {
				p.htmlf(`<li><a href="%s" class="active">`, href)
			} else {
				p.htmlf(`<li><a href="%s">`, href)
			}
			p.text(post.Title)
			p.raw(`<div class="meta">`)
			if post.IsDraft {
				p.raw(`<span class="badge draft">Draft</span> `)
			} else {
				p.raw(`<span class="badge published">Published</span> `)
			}
			p.text("Updated " + post.UpdatedAt.Format(dateLayout))
			p.raw(`</div></a></li>`)
		}
		p.raw(`</ul></aside>`)

		form := page.Form
		selected := NewPostSelection
		heading := "New post"
		action := "Save"
		if !page.IsNew() {
			selected = page.Current.ID
			heading = "Edit post"
			action = "Update"
		}
		p.raw(`<section class="panel"><h1>`)
		p.text(heading)
		p.raw(`</h1>`)
		p.htmlf(`<form method="post" action="%s">`, BuildURL("/", "producers", page.ProducerID, "blog", "save"))
		p.htmlf(`<input type="hidden" name="post" value="%s">`, selected)
		p.htmlf(`<input type="hidden" name="_csrf" value="%s">`, page.CSRFToken)
		for _, f := range []struct{ label, name, kind, value string }{
			{"Title", "title", "text", form.Title},
			{"Slug", "slug", "text", form.Slug},
			{"Excerpt", "excerpt", "text", form.Excerpt},
			{"Cover image URL", "cover_image_url", "url", form.CoverImageURL},
			{"Tags", "tags", "text", form.TagsInput},
		} {
			p.raw(`<label>`)
			p.text(f.label)
			p.htmlf(`<input type="%s" name="%s" value="%s"></label>`, f.kind, f.name, f.value)
		}
		p.raw(`<label>Content<textarea name="content_markdown">`)
		p.text(form.ContentMarkdown)
		p.raw(`</textarea></label>`)
		if form.Publish {
			p.raw(`<label><input type="checkbox" name="publish" value="true" checked> Published</label>`)
		} else {
			p.raw(`<label><input type="checkbox" name="publish" value="true"> Published</label>`)
		}
		p.raw(`<button type="submit">`)
		p.text(action)
		p.raw(`</button></form>`)

		if !page.IsNew() {
			p.htmlf(`<form method="post" action="%s">`, BuildURL("/", "producers", page.ProducerID, "blog", page.Current.ID, "delete"))
			p.htmlf(`<input type="hidden" name="_csrf" value="%s">`, page.CSRFToken)
			p.raw(`<button type="submit" class="danger">Delete</button></form>`)
		}
		p.raw(`</section>`)

		if form.ContentMarkdown != "" {
			p.raw(`<section class="panel preview"><h2>Preview</h2>`)
			p.component(markdown.Markdown(form.ContentMarkdown))
			p.raw(`</section>`)
		}
		p.raw(`</div>`)
		p.foot()
		return p.err
	})
}

func storeIndexView(page StoreIndexPage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &pageWriter{ctx: ctx, w: w}
		p.head(page.Site, page.Meta)
		p.raw(`<h1>`)
		p.text(page.Site.Name)
		p.raw(`</h1>`)
		if len(page.Posts) == 0 {
			p.raw(`<p>No posts yet.</p>`)
		}
		for _, post := range page.Posts {
			p.htmlf(`<article class="panel"><h2><a href="%s">`, StorefrontURL("/", page.ProducerID, post.Slug))
			p.text(post.Title)
			p.raw(`</a></h2><p class="meta">`)
			p.text(formatDate(post.PublishedAt))
			p.raw(`</p><p>`)
			p.text(post.Excerpt)
			p.raw(`</p></article>`)
		}
		p.foot()
		return p.err
	})
}

func storePostView(page StorePostPage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &pageWriter{ctx: ctx, w: w}
		p.head(page.Site, page.Meta)
		post := page.Post
		p.raw(`<article class="panel">`)
		if post.CoverImageURL != nil && *post.CoverImageURL != "" {
			p.htmlf(`<img src="%s" alt="">`, *post.CoverImageURL)
		}
		p.raw(`<h1>`)
		p.text(post.Title)
		p.raw(`</h1><p class="meta">`)
		p.text(formatDate(post.PublishedAt))
		for _, tag := range post.Tags {
			p.raw(` <span class="badge">`)
			p.text(tag)
			p.raw(`</span>`)
		}
		p.raw(`</p><div class="preview">`)
		p.component(markdown.Markdown(post.ContentMarkdown))
		p.raw(`</div></article>`)
		if page.JSONLD != "" {
			p.raw(`<script type="application/ld+json">`)
			p.raw(page.JSONLD)
			p.raw(`</script>`)
		}
		p.foot()
		return p.err
	})
}

func messageView(title, body string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &pageWriter{ctx: ctx, w: w}
		p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>`)
		p.text(title)
		p.raw(`</title><link rel="stylesheet" href="/public/console.css"></head><body><main><section class="panel"><h1>`)
		p.text(title)
		p.raw(`</h1><p>`)
		p.text(body)
		p.raw(`</p></section>`)
		p.foot()
		return p.err
	})
}
