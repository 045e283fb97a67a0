// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model used to replay promo redemptions safely.
package repo

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retronova/arcade-backend/internal/domain"
)

// GetIdempotency returns a non-expired record for (userID, scope, key) or
// ErrNotFound. A blank key never matches.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("user_id = ? AND scope = ? AND idem_key = ? AND expires_at > ?", userID, scope, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency records the outcome of a request processed at now and
// returns ErrDuplicate on unique violation. The record expires after ttl.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key, resourceID string, amount, status int, now time.Time, ttl time.Duration) (*domain.Idempotency, error) {
	return insertIdempotency(ctx, db, &domain.Idempotency{
		UserID:     userID,
		Scope:      scope,
		Key:        key,
		ResourceID: resourceID,
		Amount:     amount,
		Status:     status,
	}, now, ttl)
}

// RecordRedemption stores a promo redemption under the key of ownerID that
// credited subjectID.
func RecordRedemption(ctx context.Context, db *gorm.DB, ownerID, subjectID, key, promoID string, amount int, now time.Time, ttl time.Duration) (*domain.Idempotency, error) {
	rec := &domain.Idempotency{
		UserID:     ownerID,
		Scope:      domain.ScopePromoRedeem,
		Key:        key,
		ResourceID: promoID,
		Amount:     amount,
		Status:     http.StatusOK,
	}
	if subjectID != ownerID {
		rec.SubjectID = subjectID
	}
	return insertIdempotency(ctx, db, rec, now, ttl)
}

func insertIdempotency(ctx context.Context, db *gorm.DB, rec *domain.Idempotency, now time.Time, ttl time.Duration) (*domain.Idempotency, error) {
	rec.ID = uuid.NewString()
	rec.CreatedAt = now
	rec.ExpiresAt = now.Add(ttl)
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeExpiredIdempotency removes records whose expiry is not after now.
// An expired record still occupies its unique slot, so this runs before a
// key is recorded again.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key string, now time.Time) error {
	return db.WithContext(ctx).
		Where("user_id = ? AND scope = ? AND idem_key = ? AND expires_at <= ?", userID, scope, key, now).
		Delete(&domain.Idempotency{}).Error
}
