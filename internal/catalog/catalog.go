// Package catalog loads the games and arcade machines a deployment starts
// with from a YAML file and inserts the ones that are missing.
//
// Example file:
//
//	games:
//	  - name: Pong
//	    nb_min_player: 1
//	    nb_max_player: 2
//	machines:
//	  - name: Cabinet 1
//	    localisation: Hall A
//	    game1: Pong
//
// Machines reference games by name, either from the same file or already
// stored. Apply is idempotent: games and machines are matched by name, so a
// second run inserts nothing.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/lifecycle"
	"github.com/retronova/arcade-backend/internal/services"
)

// Game is a game entry of the seed file.
type Game struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	NbMinPlayer int    `yaml:"nb_min_player"`
	NbMaxPlayer int    `yaml:"nb_max_player"`
}

// Machine is an arcade machine entry; Game1 and Game2 are game names.
type Machine struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Localisation string `yaml:"localisation"`
	Game1        string `yaml:"game1"`
	Game2        string `yaml:"game2"`
}

// Catalog is the parsed seed file.
type Catalog struct {
	Games    []Game    `yaml:"games"`
	Machines []Machine `yaml:"machines"`
}

// Result reports what Apply inserted.
type Result struct {
	Games    int
	Machines int
}

// Load reads and parses the seed file at path.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

// Parse decodes a seed document. Unknown keys are rejected so that typos
// surface at boot.
func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) { // empty document
			return &c, nil
		}
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i, m := range c.Machines {
		if strings.TrimSpace(m.Game1) == "" {
			return nil, fmt.Errorf("parse catalog: machine %d (%q) has no game1", i, m.Name)
		}
	}
	return &c, nil
}

// Apply inserts the entries of c that do not exist yet, through the same
// services the API uses so validation is identical. A machine whose games
// cannot be resolved to active games is skipped with a warning.
func Apply(ctx context.Context, db *gorm.DB, c *Catalog) (Result, error) {
	var res Result
	log := zerolog.Ctx(ctx)
	games := services.NewGameService(db)
	machines := services.NewMachineService(db)

	for _, g := range c.Games {
		name := strings.TrimSpace(g.Name)
		var existing domain.Game
		err := db.WithContext(ctx).Where("name = ?", name).First(&existing).Error
		switch {
		case err == nil:
			if existing.IsDeleted {
				log.Warn().Str("game", name).Msg("seed game exists but is deleted; leaving it")
			}
			continue
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return res, fmt.Errorf("lookup game %q: %w", name, err)
		}

		rec := &domain.Game{
			Name:        name,
			Description: optional(g.Description),
			NbMinPlayer: g.NbMinPlayer,
			NbMaxPlayer: g.NbMaxPlayer,
		}
		if _, err := games.Create(ctx, rec); err != nil {
			return res, fmt.Errorf("seed game %q: %w", name, err)
		}
		res.Games++
		log.Debug().Str("game", name).Msg("seeded game")
	}

	for _, m := range c.Machines {
		name := strings.TrimSpace(m.Name)
		if name != "" {
			var n int64
			if err := db.WithContext(ctx).Model(&domain.ArcadeMachine{}).Where("name = ?", name).Count(&n).Error; err != nil {
				return res, fmt.Errorf("lookup machine %q: %w", name, err)
			}
			if n > 0 {
				continue
			}
		}

		rec := &domain.ArcadeMachine{
			Name:         optional(name),
			Description:  optional(m.Description),
			Localisation: optional(m.Localisation),
		}
		id, err := activeGameID(ctx, db, m.Game1)
		if err != nil {
			return res, err
		}
		if id == "" {
			log.Warn().Str("machine", name).Str("game", m.Game1).Msg("seed machine skipped: game unavailable")
			continue
		}
		rec.Game1ID = id
		if g2 := strings.TrimSpace(m.Game2); g2 != "" {
			id, err := activeGameID(ctx, db, g2)
			if err != nil {
				return res, err
			}
			if id == "" {
				log.Warn().Str("machine", name).Str("game", g2).Msg("seed machine skipped: game unavailable")
				continue
			}
			rec.Game2ID = &id
		}
		if _, err := machines.Create(ctx, rec); err != nil {
			return res, fmt.Errorf("seed machine %q: %w", name, err)
		}
		res.Machines++
		log.Debug().Str("machine", name).Msg("seeded arcade machine")
	}
	return res, nil
}

// activeGameID resolves an active game by name; "" when there is none.
func activeGameID(ctx context.Context, db *gorm.DB, name string) (string, error) {
	var g domain.Game
	err := db.WithContext(ctx).
		Scopes(lifecycle.Active).
		Where("name = ?", strings.TrimSpace(name)).
		First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup game %q: %w", name, err)
	}
	return g.ID, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
