package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/retronova/arcade-backend/internal/domain"
)

func seedEdge(t *testing.T, db *gorm.DB, id, from, to string, at time.Time, mutate func(*domain.Friendship)) *domain.Friendship {
	t.Helper()
	f := &domain.Friendship{ID: id, FromUserID: from, ToUserID: to, PairKey: domain.PairKey(from, to), Lifecycle: lc(at)}
	if mutate != nil {
		mutate(f)
	}
	if err := Insert(context.Background(), db, f); err != nil {
		t.Fatalf("seed edge %s: %v", id, err)
	}
	return f
}

func friendsDB(t *testing.T) (*gorm.DB, time.Time) {
	t.Helper()
	db := newTestDB(t, &domain.User{}, &domain.Friendship{})
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c", "d"} {
		seedUser(t, db, id, now)
	}
	return db, now
}

func TestFindEdge_AndPairLookup_IgnoreDeletion(t *testing.T) {
	db, now := friendsDB(t)
	ctx := context.Background()
	seedEdge(t, db, "ab", "a", "b", now, func(f *domain.Friendship) {
		f.IsDeleted = true
		f.DeletedAt = &now
	})

	if f, err := FindEdge(ctx, db, "a", "b"); err != nil || f.ID != "ab" {
		t.Fatalf("FindEdge same direction: %+v %v", f, err)
	}
	if _, err := FindEdge(ctx, db, "b", "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindEdge is directional, got %v", err)
	}
	if f, err := GetFriendshipByPair(ctx, db, "b", "a"); err != nil || f.ID != "ab" {
		t.Fatalf("GetFriendshipByPair reversed: %+v %v", f, err)
	}
	if _, err := GetFriendship(ctx, db, "ab", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetFriendship default scope must hide deleted, got %v", err)
	}
	if _, err := GetFriendship(ctx, db, "ab", true); err != nil {
		t.Fatalf("GetFriendship includeDeleted: %v", err)
	}
}

func TestCountLivePairEdges(t *testing.T) {
	db, now := friendsDB(t)
	ctx := context.Background()
	seedEdge(t, db, "ab", "a", "b", now, nil)

	if n, err := CountLivePairEdges(ctx, db, "b", "a", "other"); err != nil || n != 1 {
		t.Fatalf("want 1 live edge, got %d (%v)", n, err)
	}
	if n, _ := CountLivePairEdges(ctx, db, "a", "b", "ab"); n != 0 {
		t.Fatalf("excluded id must not count, got %d", n)
	}
}

func TestFriendQueries(t *testing.T) {
	db, now := friendsDB(t)
	ctx := context.Background()

	seedEdge(t, db, "ab", "a", "b", now, func(f *domain.Friendship) { f.Accepted = true })
	seedEdge(t, db, "ca", "c", "a", now.Add(time.Second), func(f *domain.Friendship) { f.Accepted = true })
	seedEdge(t, db, "ad", "a", "d", now.Add(2*time.Second), nil)
	seedEdge(t, db, "bc", "b", "c", now.Add(3*time.Second), func(f *domain.Friendship) { f.Declined = true })
	deletedAt := now.Add(time.Hour)
	seedEdge(t, db, "db", "d", "b", now.Add(4*time.Second), func(f *domain.Friendship) {
		f.Accepted = true
		f.IsDeleted = true
		f.DeletedAt = &deletedAt
	})

	friends, err := ListFriendsOf(ctx, db, "a")
	if err != nil || len(friends) != 2 || friends[0].ID != "ab" || friends[1].ID != "ca" {
		t.Fatalf("FriendsOf(a): %+v %v", friends, err)
	}
	if friends, _ := ListFriendsOf(ctx, db, "b"); len(friends) != 1 || friends[0].ID != "ab" {
		t.Fatalf("FriendsOf(b) must skip declined and deleted edges: %+v", friends)
	}

	if got, _ := ListPendingReceived(ctx, db, "d"); len(got) != 1 || got[0].ID != "ad" {
		t.Fatalf("PendingReceived(d): %+v", got)
	}
	if got, _ := ListPendingSent(ctx, db, "a"); len(got) != 1 || got[0].ID != "ad" {
		t.Fatalf("PendingSent(a): %+v", got)
	}
	if got, _ := ListPendingReceived(ctx, db, "a"); len(got) != 0 {
		t.Fatalf("PendingReceived(a) should be empty: %+v", got)
	}

	yes, no := true, false
	got, err := ListFriendships(ctx, db, FriendshipFilter{UserID: "b", Accepted: &yes, IncludeDeleted: true})
	if err != nil || len(got) != 2 {
		t.Fatalf("status filter with deleted: %+v %v", got, err)
	}
	got, _ = ListFriendships(ctx, db, FriendshipFilter{UserID: "b", Accepted: &no, Declined: &yes})
	if len(got) != 1 || got[0].ID != "bc" {
		t.Fatalf("declined filter: %+v", got)
	}
	if all, _ := ListFriendships(ctx, db, FriendshipFilter{}); len(all) != 4 {
		t.Fatalf("unfiltered active list: want 4, got %d", len(all))
	}
}
