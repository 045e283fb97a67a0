// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/lifecycle"
)

// GetUser fetches a user by id. Soft-deleted users are only returned when
// includeDeleted is true; otherwise ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string, includeDeleted bool) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Scopes(lifecycle.Scope(includeDeleted)).
		Where("id = ?", id).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByFirebaseID fetches a user by the identity provider's id.
func GetUserByFirebaseID(ctx context.Context, db *gorm.DB, firebaseID string, includeDeleted bool) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Scopes(lifecycle.Scope(includeDeleted)).
		Where("firebase_id = ?", firebaseID).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// PublicIDTaken reports whether any user, deleted or not, holds publicID.
func PublicIDTaken(ctx context.Context, db *gorm.DB, publicID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("public_id = ?", publicID).
		Count(&n).Error
	return n > 0, err
}

// CreditTickets adds n tickets to an active user's balance with a single
// relative UPDATE, so concurrent credits never lose each other. It returns
// ErrNotFound when the user is missing or soft-deleted.
func CreditTickets(ctx context.Context, db *gorm.DB, userID string, n int, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Scopes(lifecycle.Active).
		Where("id = ?", userID).
		Updates(map[string]any{
			"nb_ticket":  gorm.Expr("nb_ticket + ?", n),
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
