// Package repo implements the data persistence layer for domain entities,
// backed by GORM.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition. Lifecycle rules (soft delete, restore,
// stamping) live in the lifecycle package and the services.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - Unique violations can be recognised with IsDuplicate regardless of
//     the driver in use.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/retronova/arcade-backend/internal/lifecycle"
)

// Insert persists rec without touching its associations.
func Insert(ctx context.Context, db *gorm.DB, rec any) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(rec).Error
}

// UpdateFields applies fields to the row of model's table identified by id.
// It returns ErrNotFound when no row matched.
func UpdateFields(ctx context.Context, db *gorm.DB, model any, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(model).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ExistsActive reports whether model's table holds a non-deleted row with id.
func ExistsActive(ctx context.Context, db *gorm.DB, model any, id string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(model).
		Scopes(lifecycle.Active).
		Where("id = ?", id).
		Count(&n).Error
	return n > 0, err
}
