package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Patterns scrubbed from query strings and header values. UUIDs go first so
// the loose phone pattern never eats their digit groups.
var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// Headers and query parameters that are always masked whole. X-User-ID
// carries a firebase uid in development; code is a redeemable promo code.
var (
	defaultMaskedHeaders = []string{"Authorization", "Cookie", "Set-Cookie", "X-User-ID"}
	defaultMaskedParams  = []string{"code", "token"}
)

// RedactOptions adds names to the built-in mask lists. Matching ignores case.
type RedactOptions struct {
	MaskHeaders []string
	MaskParams  []string
}

// RedactingLogger is a drop-in replacement for Logger for production: the
// access line also lists request headers, and both headers and query are
// scrubbed of credentials, promo codes and obvious PII.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	headers := lowerSet(defaultMaskedHeaders, opts.MaskHeaders)
	params := lowerSet(defaultMaskedParams, opts.MaskParams)

	return func(c *gin.Context) {
		start := time.Now()

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := headers[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = scrub(strings.Join(vv, ", "))
		}

		rid := RequestIDFrom(c)
		if rid == "" {
			rid = c.GetHeader(requestIDHeader)
		}
		// Identity is added later by Auth; nothing else user-supplied goes
		// into the scoped logger.
		attachLogger(c, log.With().Str("request_id", rid).Logger())

		c.Next()

		accessEvent(c, start, scrub).
			Str("method", c.Request.Method).
			Str("path", routeOf(c)).
			Str("query", truncate(scrubQuery(c.Request.URL.RawQuery, params), maxQueryLogLength)).
			Interface("headers", safeHeaders).
			Msg("request")
	}
}

// scrubQuery masks whole values of sensitive parameters, then pattern-scrubs
// the rest. An unparsable query is pattern-scrubbed as a whole.
func scrubQuery(raw string, params map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return scrub(raw)
	}
	for k, vv := range q {
		if _, ok := params[strings.ToLower(k)]; ok {
			q[k] = []string{"[REDACTED]"}
			continue
		}
		for i := range vv {
			vv[i] = scrub(vv[i])
		}
	}
	// Encode sorts keys, which keeps log lines stable across requests.
	enc := q.Encode()
	if s, err := url.QueryUnescape(enc); err == nil {
		return s
	}
	return enc
}

func scrub(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func lowerSet(lists ...[]string) map[string]struct{} {
	m := make(map[string]struct{})
	for _, l := range lists {
		for _, s := range l {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				m[s] = struct{}{}
			}
		}
	}
	return m
}
