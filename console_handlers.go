package blogconsole

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
)

type deleteRequest struct {
	ProducerID string `param:"producerID" validate:"required"`
	PostID     string `param:"postID" validate:"required"`
}

func consoleURL(producerID, selected string) string {
	u := "/producers/" + url.PathEscape(producerID) + "/blog/"
	if selected != "" {
		u += "?" + url.Values{"post": {selected}}.Encode()
	}
	return u
}

// console builds a request-scoped Console over the caller's workspace,
// together with the context carrying the caller's credentials.
func (a *App) console(c echo.Context, producerID, selected string) (*Console, context.Context) {
	cookie, authorization := backendCredentials(c.Request())
	ws := a.workspaceFor(principal(cookie, authorization))
	con := NewConsole(producerID, ws.cache, ws.coord, a.Remote,
		WithConsoleLogger(a.Log),
		WithSelection(selected),
	)
	return con, WithCredentials(c.Request().Context(), cookie, authorization)
}

func (a *App) handleConsole(c echo.Context) error {
	producerID := c.Param("producerID")
	con, ctx := a.console(c, producerID, c.QueryParam("post"))

	if c.QueryParam("post") == "" {
		if err := con.Open(ctx); err != nil {
			return a.remoteError(c, err)
		}
	}
	posts, err := con.Posts(ctx)
	if err != nil {
		return a.remoteError(c, err)
	}
	insights, err := con.Insights(ctx)
	if err != nil {
		return a.remoteError(c, err)
	}

	page := ConsolePage{
		Site:       a.Config,
		ProducerID: producerID,
		Posts:      posts,
		Insights:   insights,
		Selected:   con.Selected(),
		Form:       con.Form(),
		Toasts:     popToasts(c),
		CSRFToken:  CsrfToken(c),
	}
	if current, ok := con.Current(); ok {
		page.Current = &current
	}
	return Render(c, a.Views.Console(page))
}

func (a *App) handleConsoleSave(c echo.Context) error {
	producerID := c.Param("producerID")
	var form FormState
	if err := c.Bind(&form); err != nil {
		return err
	}
	con, ctx := a.console(c, producerID, c.FormValue("post"))
	notifier := sessionNotifier{c: c, log: a.Log}
	if _, err := con.Posts(ctx); err != nil {
		return a.remoteError(c, err)
	}

	res := con.Submit(ctx, form, WithNotifier(notifier))
	switch {
	case res.OK():
		a.invalidateStorefront(ctx, producerID)
	case errors.Is(res.Err, ErrInvalidForm):
		notifier.Notify(ctx, Toast{
			Kind:        ToastError,
			Title:       "Post not saved",
			Description: "Title, excerpt and content are required, and the cover image must be an http(s) URL.",
		})
	case IsAuthError(res.Err):
		return a.redirectToLogin(c)
	}
	return c.Redirect(http.StatusSeeOther, consoleURL(producerID, con.Selected()))
}

func (a *App) handleConsoleDelete(c echo.Context) error {
	var req deleteRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	con, ctx := a.console(c, req.ProducerID, req.PostID)
	if _, err := con.Posts(ctx); err != nil {
		return a.remoteError(c, err)
	}

	res := con.Delete(ctx, WithNotifier(sessionNotifier{c: c, log: a.Log}))
	switch {
	case res.OK():
		a.invalidateStorefront(ctx, req.ProducerID)
	case errors.Is(res.Err, ErrNotFound):
		return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
	case IsAuthError(res.Err):
		return a.redirectToLogin(c)
	}
	return c.Redirect(http.StatusSeeOther, consoleURL(req.ProducerID, con.Selected()))
}

// remoteError turns a failed backend read into a response: the login page
// for auth errors, the not-found page for 404s, a server error otherwise.
func (a *App) remoteError(c echo.Context, err error) error {
	switch {
	case IsAuthError(err):
		return a.redirectToLogin(c)
	case IsNotFound(err):
		return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
	}
	a.Log.Error("backend request failed", slog.String("uri", c.Request().RequestURI), slog.Any("err", err))
	return err
}

func (a *App) redirectToLogin(c echo.Context) error {
	current := c.Request().URL.RequestURI()
	if c.Request().Method != http.MethodGet {
		current = consoleURL(c.Param("producerID"), "")
	}
	return c.Redirect(http.StatusSeeOther, LoginRedirectTarget(a.Config.LoginPath, current))
}
