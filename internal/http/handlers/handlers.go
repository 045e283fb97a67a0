// Package handlers exposes the REST endpoints of the arcade platform.
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. Domain errors are mapped to
// statuses in one place (failErr), so handlers never pick a status for a
// service error themselves.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/http/middleware"
	"github.com/retronova/arcade-backend/internal/repo"
	"github.com/retronova/arcade-backend/internal/services"
	"github.com/retronova/arcade-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// UserService defines account operations consumed by HTTP handlers.
type UserService interface {
	Create(ctx context.Context, in services.UserInput) (*domain.User, error)
	Get(ctx context.Context, id string, includeDeleted bool) (*domain.User, error)
	GetByFirebaseID(ctx context.Context, firebaseID string) (*domain.User, error)
	List(ctx context.Context, includeDeleted bool, offset, limit int) ([]domain.User, int64, error)
	Update(ctx context.Context, id string, patch services.UserPatch) (*domain.User, error)
	Delete(ctx context.Context, id string, hard bool) error
	Restore(ctx context.Context, id string) (*domain.User, error)
}

// FriendshipService defines the friendship state machine operations.
type FriendshipService interface {
	Create(ctx context.Context, fromID, toID string) (*domain.Friendship, error)
	Get(ctx context.Context, id string, includeDeleted bool) (*domain.Friendship, error)
	Update(ctx context.Context, id string, patch services.FriendshipPatch) (*domain.Friendship, error)
	Delete(ctx context.Context, id string, hard bool) error
	Restore(ctx context.Context, id string) (*domain.Friendship, error)
	FriendsOf(ctx context.Context, userID string) ([]domain.Friendship, error)
	PendingReceived(ctx context.Context, userID string) ([]domain.Friendship, error)
	PendingSent(ctx context.Context, userID string) ([]domain.Friendship, error)
	ByStatus(ctx context.Context, userID string, accepted, declined *bool, includeDeleted bool) ([]domain.Friendship, error)
	List(ctx context.Context, includeDeleted bool) ([]domain.Friendship, error)
}

// PromoService defines promo code management and redemption.
type PromoService interface {
	RedeemOnBehalf(ctx context.Context, code, userID, ownerID, key string) (*services.RedeemResult, error)
	Create(ctx context.Context, in services.PromoCodeInput) (*domain.PromoCode, error)
	GenerateAndCreate(ctx context.Context, in services.PromoCodeInput, length int) (*domain.PromoCode, error)
	Get(ctx context.Context, id string, includeDeleted bool) (*domain.PromoCode, error)
	GetByCode(ctx context.Context, code string, includeDeleted bool) (*domain.PromoCode, error)
	List(ctx context.Context, f repo.PromoFilter, offset, limit int) ([]domain.PromoCode, int64, error)
	Update(ctx context.Context, id string, patch services.PromoCodePatch) (*domain.PromoCode, error)
	Delete(ctx context.Context, id string, hard bool) error
	Restore(ctx context.Context, id string) (*domain.PromoCode, error)
}

//
// Handler wiring
//

// Handlers groups the user, friendship and promo code endpoints. The
// catalog entities are served by Resource.
type Handlers struct {
	users   UserService
	friends FriendshipService
	promos  PromoService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(users UserService, friends FriendshipService, promos PromoService) *Handlers {
	return &Handlers{users: users, friends: friends, promos: promos}
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// boolQuery reads a boolean query flag; on a malformed value it writes a 400
// and returns ok=false.
func boolQuery(c *gin.Context, name string, def bool) (v, ok bool) {
	v, err := utils.ParseBoolDefault(c.Query(name), def)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a boolean")
		return false, false
	}
	return v, true
}

// optBoolQuery is boolQuery for tri-state filters.
func optBoolQuery(c *gin.Context, name string) (v *bool, ok bool) {
	v, err := utils.ParseOptBool(c.Query(name))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a boolean")
		return nil, false
	}
	return v, true
}

// caller resolves the authenticated identity to an active account. It
// writes 401 when the request is anonymous and the mapped error when the
// identity has no active account.
func (h *Handlers) caller(c *gin.Context) (*domain.User, bool) {
	fid, ok := middleware.UserIDFrom(c)
	if !ok {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return nil, false
	}
	u, err := h.users.GetByFirebaseID(c.Request.Context(), fid)
	if err != nil {
		failErr(c, err)
		return nil, false
	}
	return u, true
}

// Register mounts the user, friendship and promo code routes on api. The
// redeem chain runs in front of the redemption endpoint (idempotency
// validation in production).
func (h *Handlers) Register(api *gin.RouterGroup, redeem ...gin.HandlerFunc) {
	u := api.Group("/users")
	u.POST("", h.CreateUser)
	u.GET("", h.ListUsers)
	u.GET("/me", h.Me)
	u.GET("/:id", h.GetUser)
	u.PATCH("/:id", h.UpdateUser)
	u.DELETE("/:id", h.DeleteUser)
	u.POST("/:id/restore", h.RestoreUser)
	u.GET("/:id/friends", h.UserFriends)
	u.GET("/:id/friends/pending/received", h.UserPendingReceived)
	u.GET("/:id/friends/pending/sent", h.UserPendingSent)

	f := api.Group("/friends")
	f.POST("", h.CreateFriendship)
	f.GET("", h.ListFriendships)
	f.GET("/status/:user_id", h.FriendshipsByStatus)
	f.GET("/:id", h.GetFriendship)
	f.PATCH("/:id", h.UpdateFriendship)
	f.DELETE("/:id", h.DeleteFriendship)
	f.POST("/:id/restore", h.RestoreFriendship)

	p := api.Group("/promo_codes")
	p.POST("", h.CreatePromoCode)
	p.POST("/generate", h.GeneratePromoCode)
	p.POST("/redeem", append(redeem, h.RedeemPromoCode)...)
	p.GET("", h.ListPromoCodes)
	p.GET("/code/:code", h.GetPromoCodeByCode)
	p.GET("/:id", h.GetPromoCode)
	p.PATCH("/:id", h.UpdatePromoCode)
	p.DELETE("/:id", h.DeletePromoCode)
	p.POST("/:id/restore", h.RestorePromoCode)
}
