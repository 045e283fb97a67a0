// Package domain defines the persistence models and the error taxonomy shared
// by the lifecycle, repository, service and HTTP layers.
//
// Errors are plain sentinel values of type *Error. Each carries a Kind that
// the transport layer maps to a status code, and a stable Reason that is sent
// to clients as the machine-readable error code. Callers match them with
// errors.Is against the sentinel, or with KindOf when only the class matters.
package domain

import "errors"

// Kind classifies a domain error.
type Kind int

const (
	// KindInternal is any failure that is not part of the taxonomy
	// (store connectivity, driver errors, bugs).
	KindInternal Kind = iota
	// KindNotFound means the referenced id or code does not resolve to an
	// active record in the requested scope.
	KindNotFound
	// KindConflict means the operation would violate a uniqueness rule.
	KindConflict
	// KindInvalidState means the record exists but is in the wrong state for
	// the requested transition.
	KindInvalidState
	// KindValidation means the input was rejected before touching the store.
	KindValidation
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidState:
		return "invalid_state"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Error is a typed domain error.
type Error struct {
	Kind    Kind
	Reason  string // stable snake_case identifier, e.g. "duplicate_friendship"
	Message string // human-readable text, safe to show to users
}

// Error implements the error interface.
func (e *Error) Error() string { return e.Message }

// newErr declares a sentinel.
func newErr(kind Kind, reason, msg string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: msg}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// ReasonOf returns the Reason of the first *Error in err's chain, or "".
func ReasonOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}

// Lifecycle errors.
var (
	// ErrNotFound is the generic lookup miss used by the lifecycle manager.
	ErrNotFound = newErr(KindNotFound, "not_found", "record not found")

	// ErrNotDeleted is returned by Restore on a record that is not soft-deleted.
	ErrNotDeleted = newErr(KindInvalidState, "not_deleted", "record is not deleted")

	// ErrAlreadyActive is an alias of ErrNotDeleted kept for callers that
	// phrase the same precondition from the restore side.
	ErrAlreadyActive = ErrNotDeleted

	// ErrAlreadyDeleted is returned by SoftDelete on a soft-deleted record.
	ErrAlreadyDeleted = newErr(KindInvalidState, "already_deleted", "record is already deleted")

	// ErrStillReferenced is returned by a hard delete that a restricting
	// foreign key refuses, e.g. a game still used by a machine.
	ErrStillReferenced = newErr(KindConflict, "still_referenced", "record is still referenced by other records")
)

// User errors.
var (
	ErrUserNotFound      = newErr(KindNotFound, "user_not_found", "user not found")
	ErrDuplicateUser     = newErr(KindConflict, "duplicate_user", "a user with this firebase id already exists")
	ErrNegativeTickets   = newErr(KindValidation, "negative_tickets", "nb_ticket must be >= 0")
	ErrMissingFirebaseID = newErr(KindValidation, "missing_firebase_id", "firebase_id is required")
)

// Friendship errors.
var (
	ErrFriendshipNotFound  = newErr(KindNotFound, "friendship_not_found", "friendship not found")
	ErrDuplicateFriendship = newErr(KindConflict, "duplicate_friendship", "friendship already exists")
	ErrReverseDuplicate    = newErr(KindConflict, "reverse_duplicate", "a friendship already exists in the opposite direction")
	ErrSelfFriendship      = newErr(KindValidation, "self_friendship", "a user cannot befriend themselves")
	ErrConflictingStatus   = newErr(KindValidation, "conflicting_status", "a friendship cannot be both accepted and declined")
)

// Promo code errors.
var (
	ErrInvalidCode   = newErr(KindNotFound, "invalid_code", "invalid promo code")
	ErrMalformedCode = newErr(KindValidation, "malformed_code", "promo code must be 1-12 alphanumeric characters")
	ErrCodeInactive  = newErr(KindInvalidState, "code_inactive", "promo code is no longer active")
	ErrCodeExpired   = newErr(KindInvalidState, "code_expired", "promo code has expired")
	ErrQuotaExceeded = newErr(KindInvalidState, "quota_exceeded", "promo code has reached its maximum number of uses")
	ErrDuplicateCode = newErr(KindConflict, "duplicate_code", "a promo code with this code already exists")
	ErrInvalidLength = newErr(KindValidation, "invalid_length", "promo code length must be between 6 and 12")
	ErrInvalidGrant  = newErr(KindValidation, "invalid_grant", "nb_parties must be > 0")
	ErrInvalidQuota  = newErr(KindValidation, "invalid_quota", "max_uses must be > 0")
	ErrQuotaBelowUse = newErr(KindValidation, "quota_below_usage", "max_uses cannot be lower than used_count")
	ErrKeyReused     = newErr(KindConflict, "idempotency_key_reused", "idempotency key was already used for another promo code")
)

// Catalog errors.
var (
	ErrGameNotFound     = newErr(KindNotFound, "game_not_found", "game not found")
	ErrMachineNotFound  = newErr(KindNotFound, "arcade_machine_not_found", "arcade machine not found")
	ErrPaymentNotFound  = newErr(KindNotFound, "payment_not_found", "payment not found")
	ErrPartyNotFound    = newErr(KindNotFound, "party_not_found", "party not found")
	ErrDuplicateGame    = newErr(KindConflict, "duplicate_game", "a game with this name already exists")
	ErrDuplicatePayment = newErr(KindConflict, "duplicate_payment", "a payment with this session token already exists")
	ErrInvalidPlayers   = newErr(KindValidation, "invalid_players", "player bounds must satisfy 1 <= nb_min_player <= nb_max_player")
	ErrInvalidAmount    = newErr(KindValidation, "invalid_amount", "amount and nb_ticket must be > 0")
	ErrMissingField     = newErr(KindValidation, "missing_field", "a required field is missing")
)
