// Package lifecycle implements the soft-delete / restore / hard-delete state
// machine shared by every entity kind.
//
// A record is either Active (is_deleted=false) or Deleted (is_deleted=true,
// deleted_at set). SoftDelete moves Active to Deleted, Restore moves Deleted
// back to Active and HardDelete removes the row from either state.
//
// Two layers are exposed:
//
//   - Transaction-level helpers (MarkDeleted, MarkRestored, Remove, Stamp,
//     Touch) that operate on an already-loaded record through the supplied
//     *gorm.DB. Services call these inside their own transactions.
//   - Manager[T], a generic by-id facade that opens one transaction per call
//     and is enough for entity kinds without relationship rules.
//
// Timestamps are always stamped here, never by ORM hooks.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/retronova/arcade-backend/internal/domain"
)

// activeSQL tolerates legacy rows whose flag was never written.
const activeSQL = "(is_deleted = ? OR is_deleted IS NULL)"

// Scope returns a GORM scope that hides soft-deleted rows unless
// includeDeleted is true.
//
//	db.Scopes(lifecycle.Scope(false)).Where("code = ?", code).First(&pc)
func Scope(includeDeleted bool) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if includeDeleted {
			return db
		}
		return db.Where(activeSQL, false)
	}
}

// Active is Scope(false).
func Active(db *gorm.DB) *gorm.DB { return db.Where(activeSQL, false) }

// Stamp initializes the lifecycle columns of a record about to be inserted.
func Stamp(rec domain.Deletable, now time.Time) {
	s := rec.State()
	s.CreatedAt = now
	s.UpdatedAt = now
	s.DeletedAt = nil
	s.IsDeleted = false
}

// Touch refreshes updated_at on a record about to be saved.
func Touch(rec domain.Deletable, now time.Time) {
	rec.State().UpdatedAt = now
}

// MarkDeleted soft-deletes rec. It fails with domain.ErrAlreadyDeleted when
// rec is already deleted.
func MarkDeleted(tx *gorm.DB, rec domain.Deletable, now time.Time) error {
	s := rec.State()
	if s.IsDeleted {
		return domain.ErrAlreadyDeleted
	}
	if err := tx.Model(rec).Updates(map[string]any{
		"is_deleted": true,
		"deleted_at": now,
		"updated_at": now,
	}).Error; err != nil {
		return err
	}
	s.IsDeleted = true
	s.DeletedAt = &now
	s.UpdatedAt = now
	return nil
}

// MarkRestored restores a soft-deleted rec. It fails with
// domain.ErrNotDeleted when rec is active.
func MarkRestored(tx *gorm.DB, rec domain.Deletable, now time.Time) error {
	s := rec.State()
	if !s.IsDeleted {
		return domain.ErrNotDeleted
	}
	if err := tx.Model(rec).Updates(map[string]any{
		"is_deleted": false,
		"deleted_at": nil,
		"updated_at": now,
	}).Error; err != nil {
		return err
	}
	s.IsDeleted = false
	s.DeletedAt = nil
	s.UpdatedAt = now
	return nil
}

// Remove deletes rec permanently regardless of its state.
func Remove(tx *gorm.DB, rec domain.Deletable) error {
	return tx.Delete(rec).Error
}

// Manager bundles the by-id lifecycle operations for one entity kind.
// P is the pointer type of T; it is inferred when calling New.
type Manager[T any, P interface {
	*T
	domain.Deletable
}] struct {
	DB *gorm.DB
	// NotFound is returned when the id does not resolve. Defaults to
	// domain.ErrNotFound.
	NotFound error
	// Now is the clock used for stamping. Defaults to time.Now in UTC.
	Now func() time.Time
}

// New constructs a Manager for T.
//
//	games := lifecycle.New[domain.Game](db, domain.ErrGameNotFound)
func New[T any, P interface {
	*T
	domain.Deletable
}](db *gorm.DB, notFound error) *Manager[T, P] {
	if notFound == nil {
		notFound = domain.ErrNotFound
	}
	return &Manager[T, P]{DB: db, NotFound: notFound}
}

// Clock returns the current time from the configured clock.
func (m *Manager[T, P]) Clock() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

// FindTx loads a record by id through tx. When includeDeleted is false a
// soft-deleted record is reported as missing.
func (m *Manager[T, P]) FindTx(tx *gorm.DB, id string, includeDeleted bool) (*T, error) {
	var rec T
	err := tx.Scopes(Scope(includeDeleted)).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, m.NotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Find loads a record by id.
func (m *Manager[T, P]) Find(ctx context.Context, id string, includeDeleted bool) (*T, error) {
	return m.FindTx(m.DB.WithContext(ctx), id, includeDeleted)
}

// SoftDelete marks the record as deleted and returns it.
func (m *Manager[T, P]) SoftDelete(ctx context.Context, id string) (*T, error) {
	var out *T
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := m.FindTx(tx, id, true)
		if err != nil {
			return err
		}
		if err := MarkDeleted(tx, P(rec), m.Clock()); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// Restore brings a soft-deleted record back and returns it.
func (m *Manager[T, P]) Restore(ctx context.Context, id string) (*T, error) {
	var out *T
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := m.FindTx(tx, id, true)
		if err != nil {
			return err
		}
		if err := MarkRestored(tx, P(rec), m.Clock()); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// HardDelete removes the record whatever its state.
func (m *Manager[T, P]) HardDelete(ctx context.Context, id string) error {
	return m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := m.FindTx(tx, id, true)
		if err != nil {
			return err
		}
		return Remove(tx, P(rec))
	})
}

// Delete dispatches to HardDelete or SoftDelete.
func (m *Manager[T, P]) Delete(ctx context.Context, id string, hard bool) error {
	if hard {
		return m.HardDelete(ctx, id)
	}
	_, err := m.SoftDelete(ctx, id)
	return err
}

// List returns a page of records ordered by creation time (newest first)
// together with the total count under the same scope.
func (m *Manager[T, P]) List(ctx context.Context, includeDeleted bool, offset, limit int) ([]T, int64, error) {
	base := func() *gorm.DB {
		return m.DB.WithContext(ctx).Model(new(T)).Scopes(Scope(includeDeleted))
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	out := []T{}
	if total == 0 {
		return out, 0, nil
	}
	q := base().Order("created_at desc").Order("id")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	err := q.Find(&out).Error
	return out, total, err
}
