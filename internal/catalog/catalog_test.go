package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:catalog_%s?mode=memory&cache=shared", uuid.NewString())
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

const seed = `
games:
  - name: Pong
    nb_min_player: 1
    nb_max_player: 2
  - name: Joust
    description: birds
    nb_min_player: 1
    nb_max_player: 2
machines:
  - name: Cabinet 1
    localisation: Hall A
    game1: Pong
    game2: Joust
  - name: Cabinet 2
    game1: Joust
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(seed))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(c.Games) != 2 || len(c.Machines) != 2 {
		t.Fatalf("unexpected catalog: %+v", c)
	}
	if c.Machines[0].Game2 != "Joust" || c.Games[1].Description != "birds" {
		t.Fatalf("fields not decoded: %+v", c)
	}

	empty, err := Parse(nil)
	if err != nil || len(empty.Games) != 0 {
		t.Fatalf("empty document: %+v %v", empty, err)
	}

	if _, err := Parse([]byte("games:\n  - name: X\n    max_players: 3\n")); err == nil {
		t.Fatal("unknown key must be rejected")
	}
	_, err = Parse([]byte("machines:\n  - name: Lonely\n"))
	if err == nil || !strings.Contains(err.Error(), "game1") {
		t.Fatalf("machine without game1: %v", err)
	}
}

func TestApply_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c, _ := Parse([]byte(seed))

	res, err := Apply(ctx, db, c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Games != 2 || res.Machines != 2 {
		t.Fatalf("first run inserted %+v", res)
	}

	var m domain.ArcadeMachine
	if err := db.Where("name = ?", "Cabinet 1").First(&m).Error; err != nil {
		t.Fatalf("machine not stored: %v", err)
	}
	if m.Game2ID == nil || *m.Localisation != "Hall A" {
		t.Fatalf("machine fields: %+v", m)
	}

	res, err = Apply(ctx, db, c)
	if err != nil || res.Games != 0 || res.Machines != 0 {
		t.Fatalf("second run: %+v %v", res, err)
	}
}

func TestApply_SkipsUnavailableGames(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c, _ := Parse([]byte(`
games:
  - name: Pong
    nb_min_player: 1
    nb_max_player: 2
machines:
  - name: Orphan
    game1: Missing
  - name: Half
    game1: Pong
    game2: Missing
  - name: Good
    game1: Pong
`))
	res, err := Apply(ctx, db, c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Machines != 1 {
		t.Fatalf("only the resolvable machine is seeded, got %+v", res)
	}
}

func TestApply_InvalidGame(t *testing.T) {
	db := newTestDB(t)
	c := &Catalog{Games: []Game{{Name: "Bad", NbMinPlayer: 3, NbMaxPlayer: 1}}}
	if _, err := Apply(context.Background(), db, c); err == nil {
		t.Fatal("invalid player bounds must fail the seed")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil || len(c.Games) != 2 {
		t.Fatalf("load: %+v %v", c, err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file must error")
	}
}
