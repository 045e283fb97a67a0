package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/retronova/arcade-backend/internal/domain"
)

func TestGetIdempotency_BlankKey_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	rec, err := GetIdempotency(context.Background(), db, "u1", domain.ScopePromoRedeem, "   ", time.Now().UTC())
	if rec != nil || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected (nil, ErrNotFound) for blank key, got (%v, %v)", rec, err)
	}
}

func TestGetIdempotency_ExpiredOrMissing_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()
	now := time.Now().UTC()

	exp := &domain.Idempotency{
		ID: "expired", UserID: "u1", Scope: domain.ScopePromoRedeem, Key: "k1",
		ResourceID: "p1", Status: 200, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}
	if err := db.Create(exp).Error; err != nil {
		t.Fatalf("seed expired: %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "u1", domain.ScopePromoRedeem, "k1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired record must not match, got %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "u1", domain.ScopePromoRedeem, "other", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing record must not match, got %v", err)
	}

	// Purging frees the slot so the key can be recorded again.
	if err := PurgeExpiredIdempotency(ctx, db, "u1", domain.ScopePromoRedeem, "k1", now); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", domain.ScopePromoRedeem, "k1", "p1", 3, 200, time.Now().UTC(), time.Hour); err != nil {
		t.Fatalf("re-create after purge: %v", err)
	}
}

func TestCreateIdempotency_RoundTrip_AndDuplicate(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, "u1", domain.ScopePromoRedeem, "k1", "p1", 3, 200, time.Now().UTC(), time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == "" || !rec.ExpiresAt.After(rec.CreatedAt) {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "u1", domain.ScopePromoRedeem, "k1", time.Now().UTC())
	if err != nil {
		t.Fatalf("GetIdempotency: %v", err)
	}
	if got.ResourceID != "p1" || got.Amount != 3 || got.Status != 200 {
		t.Fatalf("unexpected readback: %+v", got)
	}

	if _, err := CreateIdempotency(ctx, db, "u1", domain.ScopePromoRedeem, "k1", "p2", 1, 200, time.Now().UTC(), time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// A different user may reuse the same key.
	if _, err := CreateIdempotency(ctx, db, "u2", domain.ScopePromoRedeem, "k1", "p1", 3, 200, time.Now().UTC(), time.Hour); err != nil {
		t.Fatalf("other user: %v", err)
	}
}

func TestCreateIdempotency_NoTable_PropagatesError(t *testing.T) {
	db := newTestDB(t)
	_, err := CreateIdempotency(context.Background(), db, "u1", domain.ScopePromoRedeem, "k1", "p1", 1, 200, time.Now().UTC(), time.Hour)
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected raw DB error, got %v", err)
	}
}

func TestRecordRedemption_SubjectOnlyWhenDifferent(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()
	now := time.Now().UTC()

	own, err := RecordRedemption(ctx, db, "u1", "u1", "k1", "p1", 5, now, time.Hour)
	if err != nil {
		t.Fatalf("own: %v", err)
	}
	if own.SubjectID != "" || own.Subject() != "u1" || own.Status != 200 || own.Scope != domain.ScopePromoRedeem {
		t.Fatalf("own record = %+v", own)
	}
	gift, err := RecordRedemption(ctx, db, "u1", "u2", "k2", "p1", 5, now, time.Hour)
	if err != nil {
		t.Fatalf("gift: %v", err)
	}
	got, err := GetIdempotency(ctx, db, "u1", domain.ScopePromoRedeem, "k2", now)
	if err != nil || got.ID != gift.ID || got.Subject() != "u2" {
		t.Fatalf("lookup by sender = %+v, %v", got, err)
	}
	if _, err := RecordRedemption(ctx, db, "u1", "u3", "k2", "p1", 5, now, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second record for the same sender key: %v", err)
	}
}
