package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	// One connection serializes writers like the production SQLite handle.
	sqlDB.SetMaxOpenConns(1)
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// tick is a clock that advances one second per call.
func tick(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func mkUser(t *testing.T, db *gorm.DB, id string) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:         id,
		PublicID:   id,
		FirebaseID: "fb-" + id,
		Lifecycle:  domain.Lifecycle{CreatedAt: t0, UpdatedAt: t0},
	}
	if err := repo.Insert(context.Background(), db, u); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return u
}

func ptr[T any](v T) *T { return &v }

// staleReads makes the next n queries on table run as if a concurrent
// writer had not committed yet. Before each query, hide is applied to the
// statement; after it, patch may rewrite the loaded row. Either may be nil.
func staleReads(t *testing.T, db *gorm.DB, table string, n int, hide bool, patch func(dest any)) {
	t.Helper()
	var left atomic.Int32
	left.Store(int32(n))
	armed := func(tx *gorm.DB) bool { return tx.Statement.Table == table && left.Load() > 0 }

	before, after := "test:stale_before_"+t.Name(), "test:stale_after_"+t.Name()
	err := db.Callback().Query().Before("gorm:query").Register(before, func(tx *gorm.DB) {
		if hide && armed(tx) {
			tx.Statement.AddClause(clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "1 = 0"}}})
		}
	})
	if err != nil {
		t.Fatalf("register %s: %v", before, err)
	}
	err = db.Callback().Query().After("gorm:query").Register(after, func(tx *gorm.DB) {
		if !armed(tx) {
			return
		}
		left.Add(-1)
		if patch != nil && tx.Error == nil {
			patch(tx.Statement.Dest)
		}
	})
	if err != nil {
		t.Fatalf("register %s: %v", after, err)
	}
	t.Cleanup(func() {
		_ = db.Callback().Query().Remove(before)
		_ = db.Callback().Query().Remove(after)
	})
}
