package blogconsole

import (
	"context"
	"log/slog"
)

// ToastKind selects how a toast is styled.
type ToastKind string

const (
	ToastInfo    ToastKind = "info"
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
)

// Toast is a transient user notification.
type Toast struct {
	Kind        ToastKind `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
}

// Notifier surfaces toasts to the user.
type Notifier interface {
	Notify(ctx context.Context, t Toast)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, t Toast)

func (f NotifierFunc) Notify(ctx context.Context, t Toast) { f(ctx, t) }

type logNotifier struct {
	log *slog.Logger
}

// NewLogNotifier returns a Notifier that only logs toasts.
func NewLogNotifier(log *slog.Logger) Notifier {
	return logNotifier{log: log}
}

func (n logNotifier) Notify(ctx context.Context, t Toast) {
	level := slog.LevelInfo
	if t.Kind == ToastError {
		level = slog.LevelWarn
	}
	n.log.Log(ctx, level, "toast",
		slog.String("kind", string(t.Kind)),
		slog.String("title", t.Title),
		slog.String("description", t.Description),
	)
}
