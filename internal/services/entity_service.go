package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/lifecycle"
	"github.com/retronova/arcade-backend/internal/repo"
)

// Patch is an explicit, per-entity partial update.
type Patch[T any] interface {
	// Apply merges the set fields into rec and returns the changed columns.
	Apply(rec *T) map[string]any
}

// EntityService is the CRUD and lifecycle surface shared by the catalog
// entities. It embeds the lifecycle manager, so Find, SoftDelete,
// HardDelete and Restore are available as is; Delete is wrapped to report
// restricting foreign keys.
type EntityService[T any, P interface {
	*T
	domain.Entity
}] struct {
	*lifecycle.Manager[T, P]

	// Name labels spans, e.g. "GameService".
	Name string
	// Validate checks a record before it is inserted or after a patch was
	// merged. It runs inside the write transaction.
	Validate func(ctx context.Context, tx *gorm.DB, rec *T) error
	// Duplicate replaces unique violations. Nil leaves them untouched.
	Duplicate error
}

func (s *EntityService[T, P]) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/"+s.Name).Start(ctx, op, trace.WithAttributes(attrs...))
}

func (s *EntityService[T, P]) translate(op string, err error) error {
	switch {
	case s.Duplicate != nil && repo.IsDuplicate(err):
		return s.Duplicate
	case op == opDelete && repo.IsForeignKey(err):
		return domain.ErrStillReferenced
	}
	return wrapStore(op+" "+s.Name, err)
}

const (
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
)

// Create validates rec, stamps it and inserts it. An empty id is filled in.
func (s *EntityService[T, P]) Create(ctx context.Context, rec *T) (*T, error) {
	ctx, span := s.span(ctx, "Create")
	defer span.End()

	p := P(rec)
	if strings.TrimSpace(p.GetID()) == "" {
		p.SetID(uuid.NewString())
	}
	lifecycle.Stamp(p, s.Clock())

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.Validate != nil {
			if err := s.Validate(ctx, tx, rec); err != nil {
				return err
			}
		}
		return repo.Insert(ctx, tx, rec)
	})
	if err != nil {
		span.RecordError(err)
		return nil, s.translate(opCreate, err)
	}
	return rec, nil
}

// Get returns a record by id.
func (s *EntityService[T, P]) Get(ctx context.Context, id string, includeDeleted bool) (*T, error) {
	ctx, span := s.span(ctx, "Get", attribute.String("id", id))
	defer span.End()

	rec, err := s.Find(ctx, id, includeDeleted)
	return rec, wrapStore("get "+s.Name, err)
}

// Delete soft-deletes a record, or removes it when hard is set. A hard
// delete refused by a restricting foreign key is domain.ErrStillReferenced.
func (s *EntityService[T, P]) Delete(ctx context.Context, id string, hard bool) error {
	ctx, span := s.span(ctx, "Delete", attribute.String("id", id), attribute.Bool("hard", hard))
	defer span.End()

	if err := s.Manager.Delete(ctx, id, hard); err != nil {
		span.RecordError(err)
		return s.translate(opDelete, err)
	}
	return nil
}

// Page returns a page of records, newest first, with the total count.
func (s *EntityService[T, P]) Page(ctx context.Context, includeDeleted bool, offset, limit int) ([]T, int64, error) {
	ctx, span := s.span(ctx, "List", attribute.Int("offset", offset), attribute.Int("limit", limit))
	defer span.End()

	items, total, err := s.List(ctx, includeDeleted, offset, limit)
	return items, total, wrapStore("list "+s.Name, err)
}

// Update merges patch into an active record and saves the changed columns.
func (s *EntityService[T, P]) Update(ctx context.Context, id string, patch Patch[T]) (*T, error) {
	ctx, span := s.span(ctx, "Update", attribute.String("id", id))
	defer span.End()

	var out *T
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := s.FindTx(tx, id, false)
		if err != nil {
			return err
		}
		changed := patch.Apply(rec)
		out = rec
		if len(changed) == 0 {
			return nil
		}
		if s.Validate != nil {
			if err := s.Validate(ctx, tx, rec); err != nil {
				return err
			}
		}
		now := s.Clock()
		lifecycle.Touch(P(rec), now)
		changed["updated_at"] = now
		return repo.UpdateFields(ctx, tx, new(T), id, changed)
	})
	if err != nil {
		span.RecordError(err)
		return nil, s.translate(opUpdate, err)
	}
	return out, nil
}
