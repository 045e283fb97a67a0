// Package services – FriendshipService
//
// This file implements the friendship state machine. An edge goes from the
// requester to the target and starts pending; the target accepts or declines
// it through Update. At most one edge exists per unordered pair of users:
// the application checks both directions inside the transaction and the
// pair_key unique index settles concurrent requests that race past the
// checks.
//
// Observability: public methods open an OpenTelemetry span; Create feeds the
// friendship_requests_total counter. Events are published after commit.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/events"
	"github.com/retronova/arcade-backend/internal/lifecycle"
	"github.com/retronova/arcade-backend/internal/repo"
)

// FriendshipService manages friendship edges.
type FriendshipService struct {
	DB *gorm.DB
	// Events receives friendship.* events. Nil disables publishing.
	Events events.Publisher
	// Now overrides the clock in tests.
	Now func() time.Time
}

// FriendshipPatch is the allow-list of fields a client may change on an
// edge. Nil fields are left untouched.
type FriendshipPatch struct {
	Accepted *bool `json:"accepted"`
	Declined *bool `json:"declined"`
}

// apply merges p into f and returns the columns that actually changed.
func (p FriendshipPatch) apply(f *domain.Friendship) map[string]any {
	changed := map[string]any{}
	if p.Accepted != nil && *p.Accepted != f.Accepted {
		f.Accepted = *p.Accepted
		changed["accepted"] = f.Accepted
	}
	if p.Declined != nil && *p.Declined != f.Declined {
		f.Declined = *p.Declined
		changed["declined"] = f.Declined
	}
	return changed
}

func (s *FriendshipService) edges() *lifecycle.Manager[domain.Friendship, *domain.Friendship] {
	m := lifecycle.New[domain.Friendship](s.DB, domain.ErrFriendshipNotFound)
	m.Now = s.Now
	return m
}

func (s *FriendshipService) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/FriendshipService").Start(ctx, name, trace.WithAttributes(attrs...))
}

// Create sends a friend request from fromID to toID.
//
// A soft-deleted edge in the same direction is brought back as a fresh
// pending request and keeps its id. Any edge in the opposite direction,
// deleted or not, blocks the request with domain.ErrReverseDuplicate.
func (s *FriendshipService) Create(ctx context.Context, fromID, toID string) (*domain.Friendship, error) {
	ctx, span := s.span(ctx, "Create",
		attribute.String("friendship.from", fromID),
		attribute.String("friendship.to", toID),
	)
	defer span.End()

	f, resurrected, err := s.create(ctx, strings.TrimSpace(fromID), strings.TrimSpace(toID))
	label := "created"
	if resurrected {
		label = "resurrected"
	}
	friendshipRequests.WithLabelValues(outcome(err, label)).Inc()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	publish(ctx, s.Events, events.New(events.FriendshipRequested, f.ID, map[string]any{
		"from_user_id": f.FromUserID,
		"to_user_id":   f.ToUserID,
		"resurrected":  resurrected,
	}))
	return f, nil
}

func (s *FriendshipService) create(ctx context.Context, fromID, toID string) (*domain.Friendship, bool, error) {
	if fromID == "" || toID == "" {
		return nil, false, domain.ErrMissingField
	}
	if fromID == toID {
		return nil, false, domain.ErrSelfFriendship
	}

	now := clock(s.Now)
	var (
		out         *domain.Friendship
		resurrected bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		same, err := repo.FindEdge(ctx, tx, fromID, toID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if same != nil {
			if !same.IsDeleted {
				return domain.ErrDuplicateFriendship
			}
			if err := requireUsers(ctx, tx, fromID, toID); err != nil {
				return err
			}
			if err := lifecycle.MarkRestored(tx, same, now); err != nil {
				return err
			}
			if !same.Pending() {
				if err := repo.UpdateFields(ctx, tx, &domain.Friendship{}, same.ID, map[string]any{
					"accepted": false,
					"declined": false,
				}); err != nil {
					return err
				}
				same.Accepted, same.Declined = false, false
			}
			out, resurrected = same, true
			return nil
		}

		switch _, err := repo.FindEdge(ctx, tx, toID, fromID); {
		case err == nil:
			return domain.ErrReverseDuplicate
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}

		if err := requireUsers(ctx, tx, fromID, toID); err != nil {
			return err
		}

		f := &domain.Friendship{
			ID:         uuid.NewString(),
			FromUserID: fromID,
			ToUserID:   toID,
			PairKey:    domain.PairKey(fromID, toID),
		}
		lifecycle.Stamp(f, now)
		if err := repo.Insert(ctx, tx, f); err != nil {
			return err
		}
		out = f
		return nil
	})
	if err != nil && repo.IsDuplicate(err) {
		// Another request won the pair_key slot between our checks and the
		// insert. The transaction is gone, so classify on a fresh handle.
		return nil, false, s.classifyPairConflict(ctx, fromID, toID)
	}
	if err != nil {
		return nil, false, wrapStore("create friendship", err)
	}
	return out, resurrected, nil
}

// classifyPairConflict names the conflict caused by the edge currently stored
// for {fromID, toID}.
func (s *FriendshipService) classifyPairConflict(ctx context.Context, fromID, toID string) error {
	winner, err := repo.GetFriendshipByPair(ctx, s.DB, fromID, toID)
	if err != nil {
		return wrapStore("classify friendship conflict", err)
	}
	if winner.FromUserID == fromID {
		return domain.ErrDuplicateFriendship
	}
	return domain.ErrReverseDuplicate
}

// requireUsers fails with domain.ErrUserNotFound unless every id is an
// active user.
func requireUsers(ctx context.Context, tx *gorm.DB, ids ...string) error {
	for _, id := range ids {
		ok, err := repo.ExistsActive(ctx, tx, &domain.User{}, id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrUserNotFound
		}
	}
	return nil
}

// Get returns an edge by id.
func (s *FriendshipService) Get(ctx context.Context, id string, includeDeleted bool) (*domain.Friendship, error) {
	ctx, span := s.span(ctx, "Get", attribute.String("friendship.id", id))
	defer span.End()

	rec, err := s.edges().Find(ctx, id, includeDeleted)
	return rec, wrapStore("get friendship", err)
}

// Update accepts or declines an active edge. A patch whose result would be
// both accepted and declined is rejected with domain.ErrConflictingStatus.
func (s *FriendshipService) Update(ctx context.Context, id string, patch FriendshipPatch) (*domain.Friendship, error) {
	ctx, span := s.span(ctx, "Update", attribute.String("friendship.id", id))
	defer span.End()

	var (
		out                      *domain.Friendship
		nowAccepted, nowDeclined bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := s.edges().FindTx(tx, id, false)
		if err != nil {
			return err
		}
		wasAccepted, wasDeclined := f.Accepted, f.Declined

		changed := patch.apply(f)
		if f.Accepted && f.Declined {
			return domain.ErrConflictingStatus
		}
		if len(changed) == 0 {
			out = f
			return nil
		}
		now := clock(s.Now)
		lifecycle.Touch(f, now)
		changed["updated_at"] = now
		if err := repo.UpdateFields(ctx, tx, &domain.Friendship{}, f.ID, changed); err != nil {
			return err
		}
		nowAccepted = !wasAccepted && f.Accepted
		nowDeclined = !wasDeclined && f.Declined
		out = f
		return nil
	})
	if err != nil {
		return nil, wrapStore("update friendship", err)
	}

	data := map[string]any{"from_user_id": out.FromUserID, "to_user_id": out.ToUserID}
	if nowAccepted {
		publish(ctx, s.Events, events.New(events.FriendshipAccepted, out.ID, data))
	}
	if nowDeclined {
		publish(ctx, s.Events, events.New(events.FriendshipDeclined, out.ID, data))
	}
	return out, nil
}

// Delete soft-deletes an edge, or removes it for good when hard is set.
// A soft-deleted edge can be recreated by its requester.
func (s *FriendshipService) Delete(ctx context.Context, id string, hard bool) error {
	ctx, span := s.span(ctx, "Delete",
		attribute.String("friendship.id", id),
		attribute.Bool("hard", hard),
	)
	defer span.End()

	return wrapStore("delete friendship", s.edges().Delete(ctx, id, hard))
}

// Restore brings a soft-deleted edge back. It refuses with
// domain.ErrReverseDuplicate when another live edge now links the same pair.
func (s *FriendshipService) Restore(ctx context.Context, id string) (*domain.Friendship, error) {
	ctx, span := s.span(ctx, "Restore", attribute.String("friendship.id", id))
	defer span.End()

	m := s.edges()
	var out *domain.Friendship
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := m.FindTx(tx, id, true)
		if err != nil {
			return err
		}
		if !f.IsDeleted {
			return domain.ErrNotDeleted
		}
		n, err := repo.CountLivePairEdges(ctx, tx, f.FromUserID, f.ToUserID, f.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrReverseDuplicate
		}
		if err := lifecycle.MarkRestored(tx, f, m.Clock()); err != nil {
			return err
		}
		out = f
		return nil
	})
	if err != nil {
		return nil, wrapStore("restore friendship", err)
	}
	return out, nil
}

// FriendsOf returns the accepted edges touching userID.
func (s *FriendshipService) FriendsOf(ctx context.Context, userID string) ([]domain.Friendship, error) {
	ctx, span := s.span(ctx, "FriendsOf", attribute.String("user.id", userID))
	defer span.End()

	out, err := repo.ListFriendsOf(ctx, s.DB, userID)
	return nonNil(out), wrapStore("list friends", err)
}

// PendingReceived returns the requests waiting for userID's answer.
func (s *FriendshipService) PendingReceived(ctx context.Context, userID string) ([]domain.Friendship, error) {
	ctx, span := s.span(ctx, "PendingReceived", attribute.String("user.id", userID))
	defer span.End()

	out, err := repo.ListPendingReceived(ctx, s.DB, userID)
	return nonNil(out), wrapStore("list pending received", err)
}

// PendingSent returns the unanswered requests sent by userID.
func (s *FriendshipService) PendingSent(ctx context.Context, userID string) ([]domain.Friendship, error) {
	ctx, span := s.span(ctx, "PendingSent", attribute.String("user.id", userID))
	defer span.End()

	out, err := repo.ListPendingSent(ctx, s.DB, userID)
	return nonNil(out), wrapStore("list pending sent", err)
}

// ByStatus returns the edges touching userID filtered on the given flags.
func (s *FriendshipService) ByStatus(ctx context.Context, userID string, accepted, declined *bool, includeDeleted bool) ([]domain.Friendship, error) {
	ctx, span := s.span(ctx, "ByStatus", attribute.String("user.id", userID))
	defer span.End()

	out, err := repo.ListFriendships(ctx, s.DB, repo.FriendshipFilter{
		UserID:         userID,
		Accepted:       accepted,
		Declined:       declined,
		IncludeDeleted: includeDeleted,
	})
	return nonNil(out), wrapStore("list friendships by status", err)
}

// List returns every edge, oldest first.
func (s *FriendshipService) List(ctx context.Context, includeDeleted bool) ([]domain.Friendship, error) {
	ctx, span := s.span(ctx, "List")
	defer span.End()

	out, err := repo.ListFriendships(ctx, s.DB, repo.FriendshipFilter{IncludeDeleted: includeDeleted})
	return nonNil(out), wrapStore("list friendships", err)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
