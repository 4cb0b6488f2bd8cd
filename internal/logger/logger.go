package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// Logger wraps slog.Logger with the helpers used across the service.
type Logger struct {
	*slog.Logger
}

// New creates a logger writing to stdout.  Development environments get
// the text handler, everything else JSON.  The level comes from level
// (usually LOG_LEVEL) and defaults to info.
func New(env, level string) *Logger {
	return NewWithWriter(os.Stdout, env, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, env, level string) *Logger {
	lvl := getLogLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	var handler slog.Handler
	switch strings.ToLower(env) {
	case "dev", "development", "local", "test":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// Discard returns a logger that drops everything.  Tests use it.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// getLogLevel converts string to slog.Level
func getLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component tags every record with the emitting component.
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("component", name))}
}

// WithSeat adds the seat code to logger context
func (l *Logger) WithSeat(seatID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("seat", seatID))}
}

// WithError adds error to logger context
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("error", err.Error()))}
}

// LogHTTPRequest logs one served request.
func (l *Logger) LogHTTPRequest(ctx context.Context, method, uri string, status int, latency time.Duration, ip string, err error) {
	attrs := []any{
		slog.String("method", method),
		slog.String("uri", uri),
		slog.Int("status", status),
		slog.Duration("latency", latency),
		slog.String("ip", ip),
	}
	switch {
	case status >= 500:
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		l.Logger.ErrorContext(ctx, "HTTP Request", attrs...)
	case status >= 400:
		l.Logger.WarnContext(ctx, "HTTP Request", attrs...)
	default:
		l.Logger.InfoContext(ctx, "HTTP Request", attrs...)
	}
}

// EchoLogger returns Echo's request logger middleware configured to write
// through l.
func (l *Logger) EchoLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			l.LogHTTPRequest(req.Context(), req.Method, req.RequestURI, c.Response().Status, time.Since(start), c.RealIP(), err)
			return nil
		}
	}
}
