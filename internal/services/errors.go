// Package services implements the business rules of the platform: the
// friendship state machine, the promo redemption ledger, users and the
// catalog entities.
//
// Services return the typed errors declared in the domain package so that
// handlers can map them to HTTP results consistently. Store misses surfaced
// by the repo package (gorm.ErrRecordNotFound) are translated here into the
// entity-specific sentinel; any other store error is wrapped and passed on.
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/retronova/arcade-backend/internal/repo"
)

// notFoundAs replaces a repository miss with sentinel and leaves every
// other error untouched.
func notFoundAs(err, sentinel error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return sentinel
	}
	return err
}

// wrapStore annotates a store failure with the operation that produced it.
// Domain errors pass through unchanged.
func wrapStore(op string, err error) error {
	if err == nil || isDomain(err) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// clock returns now() in UTC, defaulting to the wall clock.
func clock(now func() time.Time) time.Time {
	if now != nil {
		return now().UTC()
	}
	return time.Now().UTC()
}
