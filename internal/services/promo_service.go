// Package services – PromoService
//
// This file implements the promo code ledger: code generation, creation
// with resurrect-on-recreate, and redemption.
//
// A redemption validates the code (active, not expired, quota left), then in
// the same transaction consumes one use with a conditional increment and
// credits the user's balance with a relative update. Either both writes
// commit or neither does. The conditional increment is what keeps used_count
// within max_uses when several requests redeem the same code at once; the
// pre-checks only produce precise errors for the common case.
package services

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/events"
	"github.com/retronova/arcade-backend/internal/lifecycle"
	"github.com/retronova/arcade-backend/internal/repo"
)

// Code length bounds for generated codes. Stored codes may be shorter.
const (
	MinCodeLength     = 6
	MaxCodeLength     = 12
	DefaultCodeLength = 8

	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// generateAttempts bounds GenerateAndCreate's retries on collision.
	generateAttempts = 5

	defaultIdempotencyTTL = 24 * time.Hour
)

// NormalizeCode trims and upper-cases code and checks that it is 1 to 12
// ASCII letters or digits.
func NormalizeCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" || len(code) > MaxCodeLength {
		return "", domain.ErrMalformedCode
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return "", domain.ErrMalformedCode
		}
	}
	// Casers keep state, so each call gets its own.
	return cases.Upper(language.Und).String(code), nil
}

// PromoService manages promo codes and their redemption.
type PromoService struct {
	DB *gorm.DB
	// Events receives promo.redeemed events. Nil disables publishing.
	Events events.Publisher
	Now    func() time.Time

	// IdempotencyTTL is how long a redemption key is remembered.
	IdempotencyTTL time.Duration
	// CodeLength is used by GenerateAndCreate when no length is given.
	CodeLength int
	// Rand is the entropy source for Generate; crypto/rand when nil.
	Rand io.Reader
}

// PromoCodeInput describes a code to create.
type PromoCodeInput struct {
	Code      string     `json:"code"`
	NbParties int        `json:"nb_parties"` // 0 means 1
	IsActive  *bool      `json:"is_active"`  // nil means true
	ExpiresAt *time.Time `json:"expires_at"`
	MaxUses   *int       `json:"max_uses"`
}

// PromoCodePatch is the allow-list of mutable fields. used_count is not
// patchable. The Clear flags reset the optional columns to NULL.
type PromoCodePatch struct {
	Code           *string    `json:"code"`
	NbParties      *int       `json:"nb_parties"`
	IsActive       *bool      `json:"is_active"`
	ExpiresAt      *time.Time `json:"expires_at"`
	ClearExpiresAt bool       `json:"clear_expires_at"`
	MaxUses        *int       `json:"max_uses"`
	ClearMaxUses   bool       `json:"clear_max_uses"`
}

// RedeemResult is the outcome of a successful redemption.
type RedeemResult struct {
	PromoCodeID string `json:"promo_code_id"`
	Code        string `json:"code"`
	UserID      string `json:"user_id"`
	Credited    int    `json:"credited"`
	NbTicket    int    `json:"nb_ticket"`
	UsedCount   int    `json:"used_count"`
	// Replayed is set when the result comes from an earlier request with
	// the same idempotency key; nothing was credited this time.
	Replayed bool `json:"replayed"`
}

func (s *PromoService) codes() *lifecycle.Manager[domain.PromoCode, *domain.PromoCode] {
	m := lifecycle.New[domain.PromoCode](s.DB, domain.ErrInvalidCode)
	m.Now = s.Now
	return m
}

func (s *PromoService) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/PromoService").Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *PromoService) ttl() time.Duration {
	if s.IdempotencyTTL > 0 {
		return s.IdempotencyTTL
	}
	return defaultIdempotencyTTL
}

// Redeem applies code to userID's balance.
func (s *PromoService) Redeem(ctx context.Context, code, userID string) (*RedeemResult, error) {
	return s.RedeemWithKey(ctx, code, userID, "")
}

// RedeemWithKey is Redeem with an optional idempotency key. A repeated key
// from the same user returns the first result with Replayed set and credits
// nothing; reusing the key for another code fails with domain.ErrKeyReused.
func (s *PromoService) RedeemWithKey(ctx context.Context, code, userID, key string) (*RedeemResult, error) {
	return s.RedeemOnBehalf(ctx, code, userID, userID, key)
}

// RedeemOnBehalf credits userID while the idempotency key belongs to
// ownerID, the account that sent the request. Keys are looked up and
// recorded under the owner, so a retry is recognised whoever it credits.
// Reusing a key for another code or another beneficiary fails with
// domain.ErrKeyReused.
func (s *PromoService) RedeemOnBehalf(ctx context.Context, code, userID, ownerID, key string) (*RedeemResult, error) {
	ctx, span := s.span(ctx, "Redeem",
		attribute.String("user.id", userID),
		attribute.Bool("idempotent", key != ""),
	)
	defer span.End()

	userID = strings.TrimSpace(userID)
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		ownerID = userID
	}
	res, err := s.redeem(ctx, code, userID, ownerID, strings.TrimSpace(key))
	ok := "ok"
	if res != nil && res.Replayed {
		ok = "replayed"
	}
	promoRedemptions.WithLabelValues(outcome(err, ok)).Inc()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if !res.Replayed {
		publish(ctx, s.Events, events.New(events.PromoRedeemed, res.PromoCodeID, map[string]any{
			"code":     res.Code,
			"user_id":  res.UserID,
			"credited": res.Credited,
		}))
	}
	return res, nil
}

func (s *PromoService) redeem(ctx context.Context, rawCode, userID, ownerID, key string) (*RedeemResult, error) {
	code, err := NormalizeCode(rawCode)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, domain.ErrMissingField
	}

	now := clock(s.Now)
	var res *RedeemResult
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if key != "" {
			prev, err := repo.GetIdempotency(ctx, tx, ownerID, domain.ScopePromoRedeem, key, now)
			switch {
			case err == nil:
				res, err = s.replay(ctx, tx, prev, code, userID)
				return err
			case !errors.Is(err, repo.ErrNotFound):
				return err
			}
			if err := repo.PurgeExpiredIdempotency(ctx, tx, ownerID, domain.ScopePromoRedeem, key, now); err != nil {
				return err
			}
		}

		pc, err := repo.GetPromoCodeByCode(ctx, tx, code, false)
		if err != nil {
			return notFoundAs(err, domain.ErrInvalidCode)
		}
		switch {
		case !pc.IsActive:
			return domain.ErrCodeInactive
		case pc.Expired(now):
			return domain.ErrCodeExpired
		case pc.Exhausted():
			return domain.ErrQuotaExceeded
		}
		if err := requireUsers(ctx, tx, userID); err != nil {
			return err
		}

		claimed, err := repo.ClaimPromoUse(ctx, tx, pc.ID, now)
		if err != nil {
			return err
		}
		if !claimed {
			return domain.ErrQuotaExceeded
		}
		if err := repo.CreditTickets(ctx, tx, userID, pc.NbParties, now); err != nil {
			return notFoundAs(err, domain.ErrUserNotFound)
		}
		if key != "" {
			if _, err := repo.RecordRedemption(ctx, tx, ownerID, userID, key, pc.ID, pc.NbParties, now, s.ttl()); err != nil {
				return err
			}
		}

		u, err := repo.GetUser(ctx, tx, userID, false)
		if err != nil {
			return err
		}
		res = &RedeemResult{
			PromoCodeID: pc.ID,
			Code:        pc.Code,
			UserID:      userID,
			Credited:    pc.NbParties,
			NbTicket:    u.NbTicket,
			UsedCount:   pc.UsedCount + 1,
		}
		return nil
	})
	if err != nil && key != "" && errors.Is(err, repo.ErrDuplicate) {
		// A concurrent request with the same key committed first; our credit
		// was rolled back with the transaction. Answer with its result.
		return s.replayAfterRace(ctx, ownerID, key, code, userID)
	}
	if err != nil {
		return nil, wrapStore("redeem promo code", err)
	}
	return res, nil
}

func (s *PromoService) replay(ctx context.Context, tx *gorm.DB, prev *domain.Idempotency, code, userID string) (*RedeemResult, error) {
	pc, err := repo.GetPromoCode(ctx, tx, prev.ResourceID, true)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrInvalidCode)
	}
	if pc.Code != code || prev.Subject() != userID {
		return nil, domain.ErrKeyReused
	}
	u, err := repo.GetUser(ctx, tx, prev.Subject(), true)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrUserNotFound)
	}
	return &RedeemResult{
		PromoCodeID: pc.ID,
		Code:        pc.Code,
		UserID:      prev.Subject(),
		Credited:    prev.Amount,
		NbTicket:    u.NbTicket,
		UsedCount:   pc.UsedCount,
		Replayed:    true,
	}, nil
}

func (s *PromoService) replayAfterRace(ctx context.Context, ownerID, key, code, userID string) (*RedeemResult, error) {
	var res *RedeemResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := repo.GetIdempotency(ctx, tx, ownerID, domain.ScopePromoRedeem, key, clock(s.Now))
		if err != nil {
			return err
		}
		res, err = s.replay(ctx, tx, prev, code, userID)
		return err
	})
	if err != nil {
		return nil, wrapStore("replay promo redemption", err)
	}
	return res, nil
}

// Generate returns a random code of length characters drawn uniformly from
// A-Z and 0-9.
func (s *PromoService) Generate(length int) (string, error) {
	if length < MinCodeLength || length > MaxCodeLength {
		return "", domain.ErrInvalidLength
	}
	src := s.Rand
	if src == nil {
		src = rand.Reader
	}
	alphabet := big.NewInt(int64(len(codeAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(src, alphabet)
		if err != nil {
			return "", err
		}
		out[i] = codeAlphabet[n.Int64()]
	}
	return string(out), nil
}

func (in PromoCodeInput) validate() error {
	if in.NbParties < 0 {
		return domain.ErrInvalidGrant
	}
	if in.MaxUses != nil && *in.MaxUses <= 0 {
		return domain.ErrInvalidQuota
	}
	return nil
}

// Create stores a new promo code. When a soft-deleted code with the same
// text exists, that row is reused: same id, fields overwritten, used_count
// back to 0, restored.
func (s *PromoService) Create(ctx context.Context, in PromoCodeInput) (*domain.PromoCode, error) {
	ctx, span := s.span(ctx, "Create")
	defer span.End()

	code, err := NormalizeCode(in.Code)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("promo.code", code))

	nbParties := in.NbParties
	if nbParties == 0 {
		nbParties = 1
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	now := clock(s.Now)
	var out *domain.PromoCode
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := repo.GetPromoCodeByCode(ctx, tx, code, true)
		switch {
		case err == nil && !prev.IsDeleted:
			return domain.ErrDuplicateCode
		case err == nil:
			if err := lifecycle.MarkRestored(tx, prev, now); err != nil {
				return err
			}
			if err := repo.UpdateFields(ctx, tx, &domain.PromoCode{}, prev.ID, map[string]any{
				"nb_parties": nbParties,
				"is_active":  active,
				"expires_at": in.ExpiresAt,
				"max_uses":   in.MaxUses,
				"used_count": 0,
			}); err != nil {
				return err
			}
			prev.NbParties, prev.IsActive = nbParties, active
			prev.ExpiresAt, prev.MaxUses, prev.UsedCount = in.ExpiresAt, in.MaxUses, 0
			out = prev
			return nil
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}

		pc := &domain.PromoCode{
			ID:        uuid.NewString(),
			Code:      code,
			NbParties: nbParties,
			IsActive:  active,
			ExpiresAt: in.ExpiresAt,
			MaxUses:   in.MaxUses,
		}
		lifecycle.Stamp(pc, now)
		if err := repo.Insert(ctx, tx, pc); err != nil {
			return err
		}
		out = pc
		return nil
	})
	if repo.IsDuplicate(err) {
		return nil, domain.ErrDuplicateCode
	}
	if err != nil {
		return nil, wrapStore("create promo code", err)
	}
	return out, nil
}

// GenerateAndCreate creates a code with a random text of length characters
// (CodeLength, then DefaultCodeLength, when 0). in.Code is ignored.
func (s *PromoService) GenerateAndCreate(ctx context.Context, in PromoCodeInput, length int) (*domain.PromoCode, error) {
	if length == 0 {
		length = s.CodeLength
	}
	if length == 0 {
		length = DefaultCodeLength
	}
	var lastErr error
	for i := 0; i < generateAttempts; i++ {
		code, err := s.Generate(length)
		if err != nil {
			return nil, err
		}
		in.Code = code
		pc, err := s.Create(ctx, in)
		if !errors.Is(err, domain.ErrDuplicateCode) {
			return pc, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// Get returns a code by id.
func (s *PromoService) Get(ctx context.Context, id string, includeDeleted bool) (*domain.PromoCode, error) {
	ctx, span := s.span(ctx, "Get", attribute.String("promo.id", id))
	defer span.End()

	rec, err := s.codes().Find(ctx, id, includeDeleted)
	return rec, wrapStore("get promo code", err)
}

// GetByCode returns a code by its text, case-insensitively.
func (s *PromoService) GetByCode(ctx context.Context, code string, includeDeleted bool) (*domain.PromoCode, error) {
	ctx, span := s.span(ctx, "GetByCode")
	defer span.End()

	norm, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	pc, err := repo.GetPromoCodeByCode(ctx, s.DB, norm, includeDeleted)
	if err != nil {
		return nil, wrapStore("get promo code", notFoundAs(err, domain.ErrInvalidCode))
	}
	return pc, nil
}

// List returns a page of codes, newest first, with the total under f.
func (s *PromoService) List(ctx context.Context, f repo.PromoFilter, offset, limit int) ([]domain.PromoCode, int64, error) {
	ctx, span := s.span(ctx, "List",
		attribute.Bool("include_inactive", f.IncludeInactive),
		attribute.Bool("include_deleted", f.IncludeDeleted),
	)
	defer span.End()

	total, err := repo.CountPromoCodes(ctx, s.DB, f)
	if err != nil {
		return nil, 0, wrapStore("count promo codes", err)
	}
	if total == 0 {
		return []domain.PromoCode{}, 0, nil
	}
	items, err := repo.ListPromoCodesPage(ctx, s.DB, f, offset, limit)
	if err != nil {
		return nil, 0, wrapStore("list promo codes", err)
	}
	return nonNil(items), total, nil
}

// Update applies patch to an active code.
func (s *PromoService) Update(ctx context.Context, id string, patch PromoCodePatch) (*domain.PromoCode, error) {
	ctx, span := s.span(ctx, "Update", attribute.String("promo.id", id))
	defer span.End()

	var out *domain.PromoCode
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pc, err := s.codes().FindTx(tx, id, false)
		if err != nil {
			return err
		}
		changed := map[string]any{}

		if patch.Code != nil {
			code, err := NormalizeCode(*patch.Code)
			if err != nil {
				return err
			}
			if code != pc.Code {
				switch _, err := repo.GetPromoCodeByCode(ctx, tx, code, true); {
				case err == nil:
					return domain.ErrDuplicateCode
				case !errors.Is(err, repo.ErrNotFound):
					return err
				}
				pc.Code = code
				changed["code"] = code
			}
		}
		if patch.NbParties != nil {
			if *patch.NbParties <= 0 {
				return domain.ErrInvalidGrant
			}
			pc.NbParties = *patch.NbParties
			changed["nb_parties"] = pc.NbParties
		}
		if patch.IsActive != nil {
			pc.IsActive = *patch.IsActive
			changed["is_active"] = pc.IsActive
		}
		switch {
		case patch.ClearExpiresAt:
			pc.ExpiresAt = nil
			changed["expires_at"] = nil
		case patch.ExpiresAt != nil:
			pc.ExpiresAt = patch.ExpiresAt
			changed["expires_at"] = *patch.ExpiresAt
		}
		switch {
		case patch.ClearMaxUses:
			pc.MaxUses = nil
			changed["max_uses"] = nil
		case patch.MaxUses != nil:
			if *patch.MaxUses <= 0 {
				return domain.ErrInvalidQuota
			}
			if *patch.MaxUses < pc.UsedCount {
				return domain.ErrQuotaBelowUse
			}
			pc.MaxUses = patch.MaxUses
			changed["max_uses"] = *patch.MaxUses
		}

		if len(changed) == 0 {
			out = pc
			return nil
		}
		now := clock(s.Now)
		lifecycle.Touch(pc, now)
		changed["updated_at"] = now
		if err := repo.UpdateFields(ctx, tx, &domain.PromoCode{}, pc.ID, changed); err != nil {
			return err
		}
		out = pc
		return nil
	})
	if repo.IsDuplicate(err) {
		return nil, domain.ErrDuplicateCode
	}
	if err != nil {
		return nil, wrapStore("update promo code", err)
	}
	return out, nil
}

// Delete soft-deletes a code, or removes it when hard is set.
func (s *PromoService) Delete(ctx context.Context, id string, hard bool) error {
	ctx, span := s.span(ctx, "Delete", attribute.String("promo.id", id), attribute.Bool("hard", hard))
	defer span.End()

	return wrapStore("delete promo code", s.codes().Delete(ctx, id, hard))
}

// Restore brings a soft-deleted code back with its usage intact.
func (s *PromoService) Restore(ctx context.Context, id string) (*domain.PromoCode, error) {
	ctx, span := s.span(ctx, "Restore", attribute.String("promo.id", id))
	defer span.End()

	pc, err := s.codes().Restore(ctx, id)
	return pc, wrapStore("restore promo code", err)
}
