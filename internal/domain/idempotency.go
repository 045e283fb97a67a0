// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency scopes.
const (
	// ScopePromoRedeem marks a recorded promo-code redemption.
	ScopePromoRedeem = "promo_redeem"
)

// Idempotency is a recorded redemption, keyed by the account that sent the
// key (user_id, scope, key). SubjectID is the account the tickets went to
// when that differs from the sender; a replay answers from this record and
// credits nothing.
type Idempotency struct {
	ID         string    `gorm:"type:varchar(36);primaryKey"`
	UserID     string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope      string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_user_scope_key,priority:2"`
	Key        string    `gorm:"column:idem_key;type:varchar(128);not null;uniqueIndex:ux_user_scope_key,priority:3"`
	SubjectID  string    `gorm:"type:varchar(36)"`
	ResourceID string    `gorm:"type:varchar(36);not null"`
	Amount     int       `gorm:"not null;default:0"`
	Status     int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// Subject is the account the recorded effect applied to.
func (i *Idempotency) Subject() string {
	if i.SubjectID != "" {
		return i.SubjectID
	}
	return i.UserID
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
