// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/retronova/arcade-backend/internal/lifecycle"
)

// TableStats returns the number of rows of model's table visible under the
// lifecycle scope and the greatest updated_at among them. When there are no
// rows, count is 0 and maxUpdatedAt is nil.
//
// Every mutation refreshes updated_at and every create/delete changes the
// count, so the pair changes whenever a list response would.
func TableStats(ctx context.Context, db *gorm.DB, model any, includeDeleted bool) (count int64, maxUpdatedAt *time.Time, err error) {
	base := func() *gorm.DB {
		return db.WithContext(ctx).Model(model).Scopes(lifecycle.Scope(includeDeleted))
	}

	// Count
	if err = base().Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = base().Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
