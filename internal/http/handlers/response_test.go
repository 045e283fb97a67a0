package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/retronova/arcade-backend/internal/http/middleware"
)

func TestFail_EnvelopeAndLogging(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger())
	r.GET("/promo_codes/:id", func(c *gin.Context) {
		failKind(c, http.StatusNotFound, "promo_code_not_found", "not_found", "promo code not found")
	})
	r.GET("/boom", func(c *gin.Context) { fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error") })

	cases := []struct {
		path   string
		status int
		want   ErrorResponse
		logged bool
	}{
		{"/promo_codes/x", http.StatusNotFound, ErrorResponse{RequestID: "rid-1", Code: "promo_code_not_found", Kind: "not_found", Message: "promo code not found"}, false},
		{"/boom", http.StatusInternalServerError, ErrorResponse{RequestID: "rid-1", Code: ErrCodeInternal, Message: "internal server error"}, true},
	}
	for _, tc := range cases {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		req.Header.Set("X-Request-ID", "rid-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != tc.status {
			t.Fatalf("%s: status = %d", tc.path, w.Code)
		}
		var got ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("%s: body: %v", tc.path, err)
		}
		if got != tc.want {
			t.Fatalf("%s: envelope = %+v; want %+v", tc.path, got, tc.want)
		}
		if logged := strings.Contains(buf.String(), `"code":"`+tc.want.Code+`"`); logged != tc.logged {
			t.Fatalf("%s: error logged = %v:\n%s", tc.path, logged, buf.String())
		}
	}
}

func TestFail_RequestIDFromHeaderWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Header("X-Request-ID", "edge-9"); c.Next() })
	r.NoRoute(func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	var got ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if w.Code != http.StatusNotFound || got.RequestID != "edge-9" || got.Kind != "" {
		t.Fatalf("status=%d envelope=%+v", w.Code, got)
	}
}

func TestSuccessHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/games", func(c *gin.Context) { ok(c, http.StatusCreated, gin.H{"name": "Pong"}) })
	r.DELETE("/games/:id", func(c *gin.Context) { noContent(c) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/games", nil))
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"name":"Pong"`) {
		t.Fatalf("created: %d %s", w.Code, w.Body)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/games/g1", nil))
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("deleted: %d %q", w.Code, w.Body)
	}
}

func TestNewList(t *testing.T) {
	l := newList([]string(nil), 1, 20, 0)
	if l.Items == nil || l.Pagination.TotalPages != 0 || l.Pagination.HasNext {
		t.Fatalf("empty list = %+v", l)
	}
	l = newList([]string{"a", "b"}, 1, 2, 5)
	if l.Pagination.TotalPages != 3 || !l.Pagination.HasNext {
		t.Fatalf("first page = %+v", l.Pagination)
	}
	b, _ := json.Marshal(newList([]int(nil), 1, 20, 0))
	if !strings.Contains(string(b), `"items":[]`) {
		t.Fatalf("nil items must encode as []: %s", b)
	}
}

func TestPageOf(t *testing.T) {
	all := []int{1, 2, 3, 4, 5}

	p := pageOf(all, 2, 2)
	if len(p.Items) != 2 || p.Items[0] != 3 || p.Pagination.Total != 5 || p.Pagination.TotalPages != 3 || !p.Pagination.HasNext {
		t.Fatalf("page 2: %+v", p)
	}
	p = pageOf(all, 9, 2)
	if len(p.Items) != 0 || p.Items == nil || p.Pagination.HasNext {
		t.Fatalf("past the end: %+v", p)
	}
	p = pageOf([]int(nil), 1, 20)
	if p.Items == nil || p.Pagination.TotalPages != 0 {
		t.Fatalf("empty: %+v", p)
	}
}
