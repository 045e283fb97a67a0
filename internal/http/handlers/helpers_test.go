package handlers

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
	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/http/middleware"
	"github.com/retronova/arcade-backend/internal/repo"
	"github.com/retronova/arcade-backend/internal/services"
)

// ---------- test DB + API ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	// Enforce FKs and migrate schemas
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type testAPI struct {
	t  *testing.T
	db *gorm.DB
	r  *gin.Engine
}

// newTestAPI wires the real services behind the handlers with optional auth
// (X-User-ID is the identity) and idempotency validation on redeem.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)

	h := New(
		&services.UserService{DB: db},
		&services.FriendshipService{DB: db},
		&services.PromoService{DB: db},
	)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Auth(middleware.AuthOptions{}))
	api := r.Group("/api")
	h.Register(api, middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, domain.ScopePromoRedeem, nil))

	games := &Resource[domain.Game, *domain.Game, services.GamePatch]{
		Name:  "games",
		Store: services.NewGameService(db),
		Stats: func(ctx context.Context, incl bool) (int64, *time.Time, error) {
			return repo.TableStats(ctx, db, &domain.Game{}, incl)
		},
	}
	games.Register(api.Group("/games"))

	return &testAPI{t: t, db: db, r: r}
}

// do sends a JSON request. hdr is a flat list of header name/value pairs.
func (a *testAPI) do(method, path string, body any, hdr ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
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
	a.r.ServeHTTP(w, req)
	return w
}

// mustStatus fails unless w has the wanted status, then decodes into out.
func mustStatus(t *testing.T, w *httptest.ResponseRecorder, want int, out any) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status=%d want %d; body=%s", w.Code, want, w.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("json: %v; body=%s", err, w.Body.String())
		}
	}
}

// mustError asserts the error envelope code (and kind when non-empty).
func mustError(t *testing.T, w *httptest.ResponseRecorder, status int, code, kind string) {
	t.Helper()
	var er ErrorResponse
	mustStatus(t, w, status, &er)
	if er.Code != code || er.Kind != kind {
		t.Fatalf("error = %+v; want code=%q kind=%q", er, code, kind)
	}
	if er.RequestID == "" {
		t.Fatalf("missing request_id: %+v", er)
	}
}

func (a *testAPI) mkUser(firebaseID string) domain.User {
	a.t.Helper()
	var u domain.User
	mustStatus(a.t, a.do(http.MethodPost, "/api/users", gin.H{"firebase_id": firebaseID}), http.StatusCreated, &u)
	return u
}
