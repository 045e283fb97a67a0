// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the PromoCode
// model, including the compare-and-increment used to consume a redemption.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/lifecycle"
)

// PromoFilter narrows promo code listings.
type PromoFilter struct {
	IncludeInactive bool
	IncludeDeleted  bool
}

func (f PromoFilter) apply(db *gorm.DB) *gorm.DB {
	q := db.Scopes(lifecycle.Scope(f.IncludeDeleted))
	if !f.IncludeInactive {
		q = q.Where("is_active = ?", true)
	}
	return q
}

// GetPromoCode fetches a promo code by id.
func GetPromoCode(ctx context.Context, db *gorm.DB, id string, includeDeleted bool) (*domain.PromoCode, error) {
	var p domain.PromoCode
	err := db.WithContext(ctx).
		Scopes(lifecycle.Scope(includeDeleted)).
		Where("id = ?", id).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPromoCodeByCode fetches a promo code by its (already normalized) code.
func GetPromoCodeByCode(ctx context.Context, db *gorm.DB, code string, includeDeleted bool) (*domain.PromoCode, error) {
	var p domain.PromoCode
	err := db.WithContext(ctx).
		Scopes(lifecycle.Scope(includeDeleted)).
		Where("code = ?", code).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CountPromoCodes returns the number of codes matching f.
func CountPromoCodes(ctx context.Context, db *gorm.DB, f PromoFilter) (int64, error) {
	var n int64
	err := f.apply(db.WithContext(ctx).Model(&domain.PromoCode{})).Count(&n).Error
	return n, err
}

// ListPromoCodesPage returns a page of codes matching f, newest first.
func ListPromoCodesPage(ctx context.Context, db *gorm.DB, f PromoFilter, offset, limit int) ([]domain.PromoCode, error) {
	var out []domain.PromoCode
	q := f.apply(db.WithContext(ctx)).Order("created_at desc").Order("id")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ClaimPromoUse consumes one use of an active promo code. The increment is
// conditional on the cap in the same statement, so two concurrent claims can
// never push used_count past max_uses. It reports false when the code had no
// use left (or vanished) at the time of the UPDATE.
func ClaimPromoUse(ctx context.Context, db *gorm.DB, id string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.PromoCode{}).
		Scopes(lifecycle.Active).
		Where("id = ? AND is_active = ?", id, true).
		Where("(max_uses IS NULL OR used_count < max_uses)").
		Updates(map[string]any{
			"used_count": gorm.Expr("used_count + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
