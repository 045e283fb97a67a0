// Package middleware contains the Gin middleware shared by the arcade API:
// correlation IDs, access logging, panic recovery, identity, idempotency,
// rate limiting, metrics and security headers.
//
// Recommended order: RequestID, Logger (or RedactingLogger), Recovery, then
// the rest. Every middleware that aborts a request writes the same JSON
// envelope as the handlers ({request_id, code, message}).
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// maxQueryLogLength caps the raw query bytes written to access logs.
	maxQueryLogLength = 2048

	// replayedHeader is set by the redeem handler when a stored redemption
	// is served again; access logs flag those requests.
	replayedHeader = "Idempotent-Replayed"
)

// RequestID reuses the caller's X-Request-ID or mints a UUID, then echoes it
// on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// RequestIDFrom returns the correlation ID set by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	v, _ := c.Get(requestIDKey)
	return asString(v)
}

// Logger attaches a request-scoped zerolog.Logger and writes one access log
// line per request.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		route := routeOf(c)

		lc := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", route).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			Int64("bytes_in", c.Request.ContentLength)
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			lc = lc.Str("trace_id", sc.TraceID().String())
		}
		attachLogger(c, lc.Logger())

		c.Next()

		accessEvent(c, start, nil).Msg("request")
	}
}

// accessEvent opens the access-log event at the level the outcome calls
// for: error for 5xx or recorded gin errors, warn for 4xx, info otherwise.
// It reads the logger after the chain ran, so identity added by Auth shows.
// clean, when set, filters the recorded gin errors before they are logged.
func accessEvent(c *gin.Context, start time.Time, clean func(string) string) *zerolog.Event {
	l := LoggerFrom(c)
	status := c.Writer.Status()
	var ev *zerolog.Event
	switch {
	case len(c.Errors) > 0:
		errs := c.Errors.String()
		if clean != nil {
			errs = clean(errs)
		}
		ev = l.Error().Str("errors", errs)
	case status >= http.StatusInternalServerError:
		ev = l.Error()
	case status >= http.StatusBadRequest:
		ev = l.Warn()
	default:
		ev = l.Info()
	}
	if c.Writer.Header().Get(replayedHeader) == "true" {
		ev = ev.Bool("replayed", true)
	}
	return ev.Int("status", status).
		Dur("latency", time.Since(start)).
		Int("bytes_out", c.Writer.Size())
}

// Recovery turns a panic into a logged stack trace and, when nothing was
// written yet, a JSON 500.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")
			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, RequestIDFrom(c))
			abortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// Logger did not run.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.Logger
	return &l
}

// attachLogger makes l the request logger for the Gin context and for the
// request context that services read through zerolog.Ctx.
func attachLogger(c *gin.Context, l zerolog.Logger) {
	c.Set(loggerKey, &l)
	if c.Request != nil {
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
	}
}

// abortJSON stops the chain with the shared error envelope.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       code,
		"message":    msg,
	})
}

// routeOf prefers the matched route pattern so log cardinality stays low.
func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truncate cuts s to max bytes plus an ellipsis; max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
