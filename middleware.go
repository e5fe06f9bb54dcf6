package blogconsole

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	sessionName = "console_session"
	csrfCookie  = "_csrf"
	toastFlash  = "toasts"
)

// echoValidator plugs go-playground/validator into c.Validate.
type echoValidator struct {
	validator *validator.Validate
}

func (v *echoValidator) Validate(i interface{}) error {
	if err := v.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func (a *App) setupMiddleware() {
	e := a.Echo

	e.IPExtractor = echo.ExtractIPFromXFFHeader(
		echo.TrustLoopback(true),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(true),
	)

	e.HTTPErrorHandler = a.httpErrorHandler
	e.Validator = &echoValidator{validator: validate}

	e.Pre(middleware.NonWWWRedirect())

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.Any("err", v.Error))
			}
			a.Log.LogAttrs(context.Background(), level, "request", attrs...)
			return nil
		},
	}))

	e.Use(middleware.Recover())
	e.Use(a.Metrics.Middleware)

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return strings.HasPrefix(p, "/public/") || p == "/metrics"
		},
	}))

	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' https: data:; script-src 'self'",
		HSTSMaxAge:            31536000,
	}))

	e.Use(session.Middleware(a.newSessionStore()))

	e.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
		ContextKey:     middleware.DefaultCSRFConfig.ContextKey,
		TokenLookup:    "header:X-CSRF-Token,form:_csrf",
		CookieName:     csrfCookie,
		CookiePath:     "/",
		CookieSameSite: http.SameSiteLaxMode,
		CookieSecure:   a.Config.CookieSecure,
		ErrorHandler: func(err error, c echo.Context) error {
			return c.String(http.StatusForbidden, "Forbidden")
		},
	}))

	e.Use(middleware.AddTrailingSlashWithConfig(middleware.TrailingSlashConfig{
		RedirectCode: http.StatusMovedPermanently,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return strings.HasPrefix(p, "/public") ||
				strings.HasSuffix(p, ".xml") ||
				p == "/metrics" || p == "/healthz"
		},
	}))

	e.Use(cacheControlMiddleware)
}

func cacheControlMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.Request().URL.Path
		switch {
		case strings.HasPrefix(path, "/public/"):
			c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		case strings.HasPrefix(path, "/store/"):
			c.Response().Header().Set("Cache-Control", "public, max-age=300")
		default:
			c.Response().Header().Set("Cache-Control", "no-store")
		}
		return next(c)
	}
}

func (a *App) newSessionStore() *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(a.Config.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		MaxAge:   60 * 60 * 12,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Config.CookieSecure,
	}
	return store
}

// limitWrites rejects console writes from clients over the write limit.
func (a *App) limitWrites(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !a.writeLimiter.Allow(c.RealIP()) {
			return c.String(http.StatusTooManyRequests, "Too many changes. Try again later.")
		}
		return next(c)
	}
}

// sessionNotifier queues toasts as session flashes; the next console page
// render shows them.
type sessionNotifier struct {
	c   echo.Context
	log *slog.Logger
}

func (n sessionNotifier) Notify(_ context.Context, t Toast) {
	sess, err := session.Get(sessionName, n.c)
	if err != nil {
		n.log.Warn("session unavailable, toast dropped", slog.Any("err", err))
		return
	}
	b, err := json.Marshal(t)
	if err != nil {
		return
	}
	sess.AddFlash(string(b), toastFlash)
	if err := sess.Save(n.c.Request(), n.c.Response()); err != nil {
		n.log.Warn("save session", slog.Any("err", err))
	}
}

// popToasts returns and clears the queued toasts.
func popToasts(c echo.Context) []Toast {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return nil
	}
	flashes := sess.Flashes(toastFlash)
	if len(flashes) == 0 {
		return nil
	}
	toasts := make([]Toast, 0, len(flashes))
	for _, f := range flashes {
		s, ok := f.(string)
		if !ok {
			continue
		}
		var t Toast
		if err := json.Unmarshal([]byte(s), &t); err == nil {
			toasts = append(toasts, t)
		}
	}
	_ = sess.Save(c.Request(), c.Response())
	return toasts
}

// CsrfToken extracts the CSRF token from the Echo context.
func CsrfToken(c echo.Context) string {
	token, _ := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string)
	return token
}
