package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RouteLabelsAndInflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/api/v1/games/:id", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"id": c.Param("id")}) })
	r.DELETE("/api/v1/games/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	getBase := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/v1/games/:id", "200"))
	delBase := testutil.ToFloat64(httpReqs.WithLabelValues("DELETE", "/api/v1/games/:id", "204"))
	missBase := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedPath, "404"))

	for _, id := range []string{"g1", "g2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/games/"+id, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("GET game %s -> %d", id, w.Code)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/games/g1", nil))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))

	// Two ids, one series.
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/v1/games/:id", "200")); got != getBase+2 {
		t.Fatalf("GET series = %v; want %v", got, getBase+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("DELETE", "/api/v1/games/:id", "204")); got != delBase+1 {
		t.Fatalf("DELETE series = %v; want %v", got, delBase+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedPath, "404")); got != missBase+1 {
		t.Fatalf("unmatched series = %v; want %v", got, missBase+1)
	}
	if v := testutil.ToFloat64(httpInflight); v != 0 {
		t.Fatalf("inflight = %v after requests", v)
	}
}
