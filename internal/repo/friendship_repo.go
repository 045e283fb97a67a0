// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Friendship
// model (table "friends").
//
// Edge lookups used by the uniqueness rules (FindEdge, GetFriendshipByPair)
// deliberately ignore the deletion flag: a soft-deleted edge still blocks or
// resurrects. Listing queries apply the default lifecycle scope.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/lifecycle"
)

// FriendshipFilter narrows ListFriendships. Nil flags are not filtered on.
type FriendshipFilter struct {
	UserID         string // either endpoint; empty means all users
	Accepted       *bool
	Declined       *bool
	IncludeDeleted bool
}

// GetFriendship fetches an edge by id.
func GetFriendship(ctx context.Context, db *gorm.DB, id string, includeDeleted bool) (*domain.Friendship, error) {
	var f domain.Friendship
	err := db.WithContext(ctx).
		Scopes(lifecycle.Scope(includeDeleted)).
		Where("id = ?", id).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// FindEdge returns the directed edge from -> to in any deletion state.
func FindEdge(ctx context.Context, db *gorm.DB, from, to string) (*domain.Friendship, error) {
	var f domain.Friendship
	err := db.WithContext(ctx).
		Where("from_user_id = ? AND to_user_id = ?", from, to).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFriendshipByPair returns the edge stored for the unordered pair {a, b}
// in any direction and deletion state.
func GetFriendshipByPair(ctx context.Context, db *gorm.DB, a, b string) (*domain.Friendship, error) {
	var f domain.Friendship
	err := db.WithContext(ctx).
		Where("pair_key = ?", domain.PairKey(a, b)).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// CountLivePairEdges counts active edges between a and b in either
// direction, excluding exceptID.
func CountLivePairEdges(ctx context.Context, db *gorm.DB, a, b, exceptID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Friendship{}).
		Scopes(lifecycle.Active).
		Where("((from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?))", a, b, b, a).
		Where("id <> ?", exceptID).
		Count(&n).Error
	return n, err
}

// ListFriendsOf returns accepted active edges where userID is either endpoint.
func ListFriendsOf(ctx context.Context, db *gorm.DB, userID string) ([]domain.Friendship, error) {
	var out []domain.Friendship
	err := db.WithContext(ctx).
		Scopes(lifecycle.Active).
		Where("(from_user_id = ? OR to_user_id = ?)", userID, userID).
		Where("accepted = ?", true).
		Order("created_at asc").Order("id").
		Find(&out).Error
	return out, err
}

// ListPendingReceived returns active pending edges addressed to userID.
func ListPendingReceived(ctx context.Context, db *gorm.DB, userID string) ([]domain.Friendship, error) {
	return listPending(ctx, db, "to_user_id", userID)
}

// ListPendingSent returns active pending edges sent by userID.
func ListPendingSent(ctx context.Context, db *gorm.DB, userID string) ([]domain.Friendship, error) {
	return listPending(ctx, db, "from_user_id", userID)
}

func listPending(ctx context.Context, db *gorm.DB, column, userID string) ([]domain.Friendship, error) {
	var out []domain.Friendship
	err := db.WithContext(ctx).
		Scopes(lifecycle.Active).
		Where(column+" = ?", userID).
		Where("accepted = ? AND declined = ?", false, false).
		Order("created_at asc").Order("id").
		Find(&out).Error
	return out, err
}

// ListFriendships returns edges matching f, oldest first.
func ListFriendships(ctx context.Context, db *gorm.DB, f FriendshipFilter) ([]domain.Friendship, error) {
	q := db.WithContext(ctx).Scopes(lifecycle.Scope(f.IncludeDeleted))
	if f.UserID != "" {
		q = q.Where("(from_user_id = ? OR to_user_id = ?)", f.UserID, f.UserID)
	}
	if f.Accepted != nil {
		q = q.Where("accepted = ?", *f.Accepted)
	}
	if f.Declined != nil {
		q = q.Where("declined = ?", *f.Declined)
	}
	var out []domain.Friendship
	err := q.Order("created_at asc").Order("id").Find(&out).Error
	return out, err
}
