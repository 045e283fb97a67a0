package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const testScope = "promo_redeem"

// redeemState is what the handler observed after the middleware ran.
type redeemState struct {
	ran    bool
	key    string
	replay bool
	bypass bool
}

func idemRouter(t *testing.T, identity string, opts IdempotencyOptions, lookup IdempotencyLookup) (*gin.Engine, *redeemState) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := &redeemState{}
	r := gin.New()
	r.Use(RequestID())
	if identity != "" {
		r.Use(func(c *gin.Context) { c.Set(UserIDKey, identity); c.Next() })
	}
	r.Use(IdempotencyValidator(opts, testScope, lookup))
	r.POST("/api/v1/promo_codes/redeem", func(c *gin.Context) {
		st.ran = true
		st.key, _ = GetIdempotencyKey(c)
		st.replay = IsReplay(c)
		st.bypass = IsRateBypass(c)
		c.Status(http.StatusOK)
	})
	return r, st
}

func redeem(r *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/promo_codes/redeem", nil)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyValidator_KeyValidation(t *testing.T) {
	digits := regexp.MustCompile(`^[0-9]+$`)
	cases := []struct {
		name   string
		opts   IdempotencyOptions
		key    string
		status int
	}{
		{"absent", IdempotencyOptions{}, "", http.StatusOK},
		{"default pattern", IdempotencyOptions{}, "order-42:retry.1", http.StatusOK},
		{"space", IdempotencyOptions{}, "two words", http.StatusBadRequest},
		{"default max", IdempotencyOptions{}, strings.Repeat("k", defaultKeyMaxLen), http.StatusOK},
		{"over default max", IdempotencyOptions{}, strings.Repeat("k", defaultKeyMaxLen+1), http.StatusBadRequest},
		{"custom max", IdempotencyOptions{MaxLen: 5}, "abcdef", http.StatusBadRequest},
		{"custom pattern", IdempotencyOptions{Pattern: digits}, "abc123", http.StatusBadRequest},
		{"custom pattern ok", IdempotencyOptions{Pattern: digits}, "123", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, st := idemRouter(t, "", tc.opts, nil)
			w := redeem(r, tc.key)
			if w.Code != tc.status {
				t.Fatalf("status = %d; want %d", w.Code, tc.status)
			}
			if tc.status == http.StatusBadRequest {
				var body map[string]string
				_ = json.Unmarshal(w.Body.Bytes(), &body)
				if st.ran || body["code"] != "bad_idempotency_key" || body["request_id"] == "" {
					t.Fatalf("rejection: ran=%v body=%v", st.ran, body)
				}
				return
			}
			if st.key != tc.key || st.replay || st.bypass {
				t.Fatalf("state = %+v", st)
			}
		})
	}
}

func TestIdempotencyValidator_Lookup(t *testing.T) {
	var calls int
	store := map[string]bool{"fb-1|" + testScope + "|used": true}
	lookup := func(_ context.Context, uid, scope, key string, now time.Time) (bool, error) {
		calls++
		if now.IsZero() || now.Location() != time.UTC {
			t.Errorf("lookup time = %v", now)
		}
		if key == "broken" {
			return false, errors.New("db down")
		}
		return store[uid+"|"+scope+"|"+key], nil
	}

	t.Run("anonymous is never looked up", func(t *testing.T) {
		calls = 0
		r, st := idemRouter(t, "", IdempotencyOptions{}, lookup)
		redeem(r, "used")
		if calls != 0 || st.key != "used" || st.replay {
			t.Fatalf("calls=%d state=%+v", calls, st)
		}
	})

	t.Run("miss", func(t *testing.T) {
		r, st := idemRouter(t, "fb-1", IdempotencyOptions{}, lookup)
		redeem(r, "fresh")
		if !st.ran || st.replay || st.bypass {
			t.Fatalf("state = %+v", st)
		}
	})

	t.Run("other user's key", func(t *testing.T) {
		r, st := idemRouter(t, "fb-2", IdempotencyOptions{}, lookup)
		redeem(r, "used")
		if st.replay {
			t.Fatal("keys are per user")
		}
	})

	t.Run("hit", func(t *testing.T) {
		before := testutil.ToFloat64(idemReplays.WithLabelValues(testScope))
		r, st := idemRouter(t, "fb-1", IdempotencyOptions{}, lookup)
		redeem(r, "used")
		if !st.replay || !st.bypass {
			t.Fatalf("state = %+v", st)
		}
		if got := testutil.ToFloat64(idemReplays.WithLabelValues(testScope)); got != before+1 {
			t.Fatalf("idempotent_replays_total = %v; want %v", got, before+1)
		}
	})

	t.Run("lookup error proceeds as fresh", func(t *testing.T) {
		r, st := idemRouter(t, "fb-1", IdempotencyOptions{}, lookup)
		if w := redeem(r, "broken"); w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if !st.ran || st.replay {
			t.Fatalf("state = %+v", st)
		}
	})
}

func TestIdempotencyAccessors_IgnoreForeignTypes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Set(ctxKeyIdemKey, 123)
	c.Set(ctxKeyIdemReplay, "yes")
	if k, ok := GetIdempotencyKey(c); ok || k != "" {
		t.Fatalf("key = %q ok=%v", k, ok)
	}
	if IsReplay(c) {
		t.Fatal("non-bool replay flag read as true")
	}
}
