// Package services – UserService
//
// Users are keyed by a UUID, identified externally by their firebase id and
// shared between players through a 12-digit public id generated here.
package services

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/lifecycle"
	"github.com/retronova/arcade-backend/internal/repo"
)

const (
	publicIDLength   = 12
	publicIDAttempts = 10
)

// UserService manages user accounts.
type UserService struct {
	DB  *gorm.DB
	Now func() time.Time
}

// UserInput describes an account to create.
type UserInput struct {
	FirebaseID string  `json:"firebase_id"`
	FirstName  *string `json:"first_name"`
	LastName   *string `json:"last_name"`
	NbTicket   int     `json:"nb_ticket"`
	Bar        bool    `json:"bar"`
}

// UserPatch is the allow-list of fields a client may change. The firebase
// and public ids are immutable.
type UserPatch struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	NbTicket  *int    `json:"nb_ticket"`
	Bar       *bool   `json:"bar"`
}

func (s *UserService) users() *lifecycle.Manager[domain.User, *domain.User] {
	m := lifecycle.New[domain.User](s.DB, domain.ErrUserNotFound)
	m.Now = s.Now
	return m
}

func (s *UserService) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/UserService").Start(ctx, name, trace.WithAttributes(attrs...))
}

// Create registers a new user. A firebase id already on record, even on a
// soft-deleted account, fails with domain.ErrDuplicateUser; deleted accounts
// come back through Restore.
func (s *UserService) Create(ctx context.Context, in UserInput) (*domain.User, error) {
	ctx, span := s.span(ctx, "Create")
	defer span.End()

	in.FirebaseID = strings.TrimSpace(in.FirebaseID)
	if in.FirebaseID == "" {
		return nil, domain.ErrMissingFirebaseID
	}
	if in.NbTicket < 0 {
		return nil, domain.ErrNegativeTickets
	}

	now := clock(s.Now)
	var out *domain.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch _, err := repo.GetUserByFirebaseID(ctx, tx, in.FirebaseID, true); {
		case err == nil:
			return domain.ErrDuplicateUser
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}

		publicID, err := newPublicID(ctx, tx)
		if err != nil {
			return err
		}
		u := &domain.User{
			ID:         uuid.NewString(),
			PublicID:   publicID,
			FirebaseID: in.FirebaseID,
			FirstName:  in.FirstName,
			LastName:   in.LastName,
			NbTicket:   in.NbTicket,
			Bar:        in.Bar,
		}
		lifecycle.Stamp(u, now)
		if err := repo.Insert(ctx, tx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if repo.IsDuplicate(err) {
		return nil, domain.ErrDuplicateUser
	}
	if err != nil {
		return nil, wrapStore("create user", err)
	}
	return out, nil
}

// newPublicID draws 12-digit ids until one is free.
func newPublicID(ctx context.Context, tx *gorm.DB) (string, error) {
	for i := 0; i < publicIDAttempts; i++ {
		id := publicIDFrom(uuid.New())
		taken, err := repo.PublicIDTaken(ctx, tx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", errors.New("could not allocate a free public id")
}

// publicIDFrom takes the leading decimal digits of u read as a 128-bit
// integer, left-padded with zeros for the rare short value.
func publicIDFrom(u uuid.UUID) string {
	digits := new(big.Int).SetBytes(u[:]).String()
	if len(digits) < publicIDLength {
		digits = strings.Repeat("0", publicIDLength-len(digits)) + digits
	}
	return digits[:publicIDLength]
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string, includeDeleted bool) (*domain.User, error) {
	ctx, span := s.span(ctx, "Get", attribute.String("user.id", id))
	defer span.End()

	rec, err := s.users().Find(ctx, id, includeDeleted)
	return rec, wrapStore("get user", err)
}

// GetByFirebaseID returns the active user bound to firebaseID.
func (s *UserService) GetByFirebaseID(ctx context.Context, firebaseID string) (*domain.User, error) {
	ctx, span := s.span(ctx, "GetByFirebaseID")
	defer span.End()

	u, err := repo.GetUserByFirebaseID(ctx, s.DB, firebaseID, false)
	if err != nil {
		return nil, wrapStore("get user by firebase id", notFoundAs(err, domain.ErrUserNotFound))
	}
	return u, nil
}

// List returns a page of users, newest first, with the total count.
func (s *UserService) List(ctx context.Context, includeDeleted bool, offset, limit int) ([]domain.User, int64, error) {
	ctx, span := s.span(ctx, "List", attribute.Int("offset", offset), attribute.Int("limit", limit))
	defer span.End()

	items, total, err := s.users().List(ctx, includeDeleted, offset, limit)
	return items, total, wrapStore("list users", err)
}

// Update applies patch to an active user.
func (s *UserService) Update(ctx context.Context, id string, patch UserPatch) (*domain.User, error) {
	ctx, span := s.span(ctx, "Update", attribute.String("user.id", id))
	defer span.End()

	if patch.NbTicket != nil && *patch.NbTicket < 0 {
		return nil, domain.ErrNegativeTickets
	}

	m := s.users()
	var out *domain.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := m.FindTx(tx, id, false)
		if err != nil {
			return err
		}
		changed := map[string]any{}
		if patch.FirstName != nil {
			u.FirstName = patch.FirstName
			changed["first_name"] = *patch.FirstName
		}
		if patch.LastName != nil {
			u.LastName = patch.LastName
			changed["last_name"] = *patch.LastName
		}
		if patch.NbTicket != nil {
			u.NbTicket = *patch.NbTicket
			changed["nb_ticket"] = u.NbTicket
		}
		if patch.Bar != nil {
			u.Bar = *patch.Bar
			changed["bar"] = u.Bar
		}
		out = u
		if len(changed) == 0 {
			return nil
		}
		now := m.Clock()
		lifecycle.Touch(u, now)
		changed["updated_at"] = now
		return repo.UpdateFields(ctx, tx, &domain.User{}, u.ID, changed)
	})
	if err != nil {
		return nil, wrapStore("update user", err)
	}
	return out, nil
}

// Delete soft-deletes a user, or removes the account and everything that
// cascades from it when hard is set.
func (s *UserService) Delete(ctx context.Context, id string, hard bool) error {
	ctx, span := s.span(ctx, "Delete", attribute.String("user.id", id), attribute.Bool("hard", hard))
	defer span.End()

	return wrapStore("delete user", s.users().Delete(ctx, id, hard))
}

// Restore reactivates a soft-deleted user.
func (s *UserService) Restore(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := s.span(ctx, "Restore", attribute.String("user.id", id))
	defer span.End()

	u, err := s.users().Restore(ctx, id)
	return u, wrapStore("restore user", err)
}
