package services

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/events"
)

var (
	// promoRedemptions counts Redeem outcomes: "ok", "replayed", or the
	// domain reason of the failure ("quota_exceeded", "code_expired", ...).
	promoRedemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arcade",
			Name:      "promo_redemptions_total",
			Help:      "Promo code redemption attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// friendshipRequests counts Create outcomes: "created", "resurrected",
	// or the domain reason of the failure.
	friendshipRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arcade",
			Name:      "friendship_requests_total",
			Help:      "Friendship creation attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(promoRedemptions, friendshipRequests)
}

// outcome turns an error into a bounded label value.
func outcome(err error, ok string) string {
	if err == nil {
		return ok
	}
	if r := domain.ReasonOf(err); r != "" {
		return r
	}
	return "error"
}

func isDomain(err error) bool {
	var de *domain.Error
	return errors.As(err, &de)
}

// publish hands e to p after the originating transaction committed. A broker
// failure is logged through the request logger and otherwise ignored.
func publish(ctx context.Context, p events.Publisher, e events.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Str("event", e.Type).
			Str("subject", e.Subject).
			Msg("event publish failed")
	}
}
