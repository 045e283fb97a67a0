package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/retronova/arcade-backend/internal/config"
	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/events"
	"github.com/retronova/arcade-backend/internal/http/middleware"
	"github.com/retronova/arcade-backend/internal/repo"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:routerdb_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:     "/api/v1",
		RateBackend:     "memory",
		RateRPS:         100,
		RateBurst:       10,
		CORS:            config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:        config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:            config.OTELConfig{ServiceName: "test-svc"},
		IdempotencyTTL:  time.Hour,
		PromoCodeLength: 8,
	}
}

func serve(r *gin.Engine, method, path string, body any, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, Deps{DB: newTestDB(t)}, testConfig())

	// /health works
	w := serve(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = serve(r, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	if w = serve(r, http.MethodGet, "/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	if w = serve(r, http.MethodPost, "/health", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}

	// Swagger is off by default
	if w = serve(r, http.MethodGet, "/swagger/index.html", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger disabled expected 404, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	RegisterRoutes(r, Deps{DB: newTestDB(t)}, cfg)

	// Any request runs through CORS middleware; header should reflect origin.
	w := serve(r, http.MethodGet, "/health", nil, "Origin", "http://example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
	if w = serve(r, http.MethodGet, "/api/v2/games", nil); w.Code != http.StatusOK {
		t.Fatalf("GET /api/v2/games = %d", w.Code)
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.SwaggerEnabled = true
	RegisterRoutes(r, Deps{DB: newTestDB(t)}, cfg)

	w := serve(r, http.MethodGet, "/swagger/doc.json", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("/promo_codes/redeem")) {
		t.Fatalf("GET /swagger/doc.json = %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_AuthRequired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{JWTSecret: "s3cret", Required: true}
	RegisterRoutes(r, Deps{DB: newTestDB(t)}, cfg)

	if w := serve(r, http.MethodGet, "/api/v1/users/me", nil, "X-User-ID", "fb-1"); w.Code != http.StatusUnauthorized {
		t.Fatalf("dev header with auth required = %d", w.Code)
	}

	tok, err := middleware.SignToken([]byte("s3cret"), "fb-1", "", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if w := serve(r, http.MethodPost, "/api/v1/users", gin.H{"firebase_id": "fb-1"}, "Authorization", "Bearer "+tok); w.Code != http.StatusCreated {
		t.Fatalf("create user = %d %s", w.Code, w.Body.String())
	}
	w := serve(r, http.MethodGet, "/api/v1/users/me", nil, "Authorization", "Bearer "+tok)
	var me domain.User
	if w.Code != http.StatusOK || json.Unmarshal(w.Body.Bytes(), &me) != nil || me.FirebaseID != "fb-1" {
		t.Fatalf("me = %d %s", w.Code, w.Body.String())
	}
}

// End to end: a redemption publishes one event, and its replay is exempt
// from rate limiting and marked as replayed.
func TestRegisterRoutes_RedeemReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.RateRPS, cfg.RateBurst = 0.001, 3
	rec := &events.Recorder{}
	RegisterRoutes(r, Deps{DB: newTestDB(t), Events: rec}, cfg)

	// Every request below is keyed to fb-1's bucket of 3.
	if w := serve(r, http.MethodPost, "/api/v1/users", gin.H{"firebase_id": "fb-1"}, "X-User-ID", "fb-1"); w.Code != http.StatusCreated {
		t.Fatalf("create user = %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/api/v1/promo_codes", gin.H{"code": "WELCOME", "nb_parties": 2}, "X-User-ID", "fb-1"); w.Code != http.StatusCreated {
		t.Fatalf("create code = %d", w.Code)
	}
	redeem := func() *httptest.ResponseRecorder {
		return serve(r, http.MethodPost, "/api/v1/promo_codes/redeem", gin.H{"code": "welcome"},
			"X-User-ID", "fb-1", middleware.HeaderIdempotencyKey, "once-1")
	}
	if w := redeem(); w.Code != http.StatusOK || w.Header().Get("Idempotent-Replayed") != "" {
		t.Fatalf("first redeem = %d %s", w.Code, w.Body.String())
	}

	// The bucket is empty now; replays still get through.
	for i := 0; i < 3; i++ {
		w := redeem()
		if w.Code != http.StatusOK || w.Header().Get("Idempotent-Replayed") != "true" {
			t.Fatalf("replay %d = %d %s", i, w.Code, w.Body.String())
		}
	}
	if w := serve(r, http.MethodGet, "/api/v1/games", nil, "X-User-ID", "fb-1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("non-replay after burst = %d", w.Code)
	}

	if got := rec.Types(); len(got) != 1 || got[0] != events.PromoRedeemed {
		t.Fatalf("events = %v", got)
	}
}

func Test_redeemLookup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	look := redeemLookup(db)

	if ok, err := look(ctx, "fb-ghost", domain.ScopePromoRedeem, "k", now); ok || err != nil {
		t.Fatalf("unknown identity: %v %v", ok, err)
	}

	u := &domain.User{ID: "u-1", PublicID: "000000000001", FirebaseID: "fb-1",
		Lifecycle: domain.Lifecycle{CreatedAt: now, UpdatedAt: now}}
	if err := repo.Insert(ctx, db, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if ok, err := look(ctx, "fb-1", domain.ScopePromoRedeem, "k", now); ok || err != nil {
		t.Fatalf("miss: %v %v", ok, err)
	}
	// Sent by u-1 on behalf of u-2: found under the sender.
	if _, err := repo.RecordRedemption(ctx, db, "u-1", "u-2", "k", "pc-1", 2, now, time.Hour); err != nil {
		t.Fatalf("seed idempotency: %v", err)
	}
	if ok, err := look(ctx, "fb-1", domain.ScopePromoRedeem, "k", now); !ok || err != nil {
		t.Fatalf("hit: %v %v", ok, err)
	}
	if ok, _ := look(ctx, "fb-1", domain.ScopePromoRedeem, "k", now.Add(2*time.Hour)); ok {
		t.Fatalf("expired record must not count")
	}

	// Closed store surfaces as an error, which the middleware only logs.
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()
	if _, err := look(ctx, "fb-1", domain.ScopePromoRedeem, "k", now); err == nil {
		t.Fatalf("expected error on closed store")
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func Test_joinPath(t *testing.T) {
	cases := map[[2]string]string{
		{"/api/v1", "/x"}: "/api/v1/x",
		{"/", "/x"}:       "/x",
		{"", "/x"}:        "/x",
	}
	for in, want := range cases {
		if got := joinPath(in[0], in[1]); got != want {
			t.Fatalf("joinPath(%q, %q) = %q; want %q", in[0], in[1], got, want)
		}
	}
}
