package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/retronova/arcade-backend/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	db.Exec("PRAGMA foreign_keys=ON;")
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func lc(at time.Time) domain.Lifecycle {
	return domain.Lifecycle{CreatedAt: at, UpdatedAt: at}
}

func seedUser(t *testing.T, db *gorm.DB, id string, at time.Time) *domain.User {
	t.Helper()
	u := &domain.User{ID: id, PublicID: id, FirebaseID: "fb-" + id, Lifecycle: lc(at)}
	if err := Insert(context.Background(), db, u); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return u
}

func TestTableStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if _, _, err := TableStats(context.Background(), db, &domain.Game{}, false); err == nil {
		t.Fatalf("expected error due to missing games table")
	}
}

func TestTableStats_ZeroRows(t *testing.T) {
	db := newTestDB(t, &domain.Game{})
	count, maxAt, err := TableStats(context.Background(), db, &domain.Game{}, false)
	if err != nil {
		t.Fatalf("TableStats error: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestTableStats_RespectsLifecycleScope(t *testing.T) {
	db := newTestDB(t, &domain.Game{})
	ctx := context.Background()
	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	live := &domain.Game{ID: "g1", Name: "Pong", NbMinPlayer: 1, NbMaxPlayer: 2, Lifecycle: lc(t1)}
	gone := &domain.Game{ID: "g2", Name: "Qix", NbMinPlayer: 1, NbMaxPlayer: 2, Lifecycle: lc(t2)}
	gone.IsDeleted = true
	gone.DeletedAt = &t2
	for _, g := range []*domain.Game{live, gone} {
		if err := Insert(ctx, db, g); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	count, maxAt, err := TableStats(ctx, db, &domain.Game{}, false)
	if err != nil || count != 1 || maxAt == nil || !maxAt.Equal(t1) {
		t.Fatalf("active stats: count=%d max=%v err=%v", count, maxAt, err)
	}
	count, maxAt, err = TableStats(ctx, db, &domain.Game{}, true)
	if err != nil || count != 2 || maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("all stats: count=%d max=%v err=%v", count, maxAt, err)
	}
}
