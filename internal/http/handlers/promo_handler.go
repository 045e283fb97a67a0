// Promo code HTTP handlers.
//
//   - POST   /promo_codes                  (create with a chosen code)
//   - POST   /promo_codes/generate         (create with a random code)
//   - GET    /promo_codes                  (list, paginated)
//   - GET    /promo_codes/{id}             (read)
//   - GET    /promo_codes/code/{code}      (read by code text)
//   - PATCH  /promo_codes/{id}             (partial update)
//   - DELETE /promo_codes/{id}?hard=       (soft or hard delete)
//   - POST   /promo_codes/{id}/restore     (undo a soft delete)
//   - POST   /promo_codes/redeem           (credit tickets, idempotent)
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/retronova/arcade-backend/internal/http/middleware"
	"github.com/retronova/arcade-backend/internal/repo"
	"github.com/retronova/arcade-backend/internal/services"
	"github.com/retronova/arcade-backend/internal/utils"
)

// HeaderReplayed is set to "true" on a redemption answered from an earlier
// request with the same Idempotency-Key.
const HeaderReplayed = "Idempotent-Replayed"

// RedeemRequest is the JSON payload for redeeming a code.
type RedeemRequest struct {
	Code string `json:"code" binding:"required" example:"SPRING24"`
	// UserID defaults to the caller's account when empty.
	UserID string `json:"user_id" example:"5b0c1f0e-6f0f-4d55-9a55-0e5f3f1c2b11"`
}

// CreatePromoCode godoc
// @ID          createPromoCode
// @Summary     Create a promo code
// @Description The code is stored upper-cased. nb_parties defaults to 1 and is_active to true.
// @Tags        PromoCodes
// @Accept      json
// @Produce     json
//
// @Param       body  body  services.PromoCodeInput  true  "Promo code"
//
// @Success     201  {object}  domain.PromoCode
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Code already exists"
// @Router      /promo_codes [post]
func (h *Handlers) CreatePromoCode(c *gin.Context) {
	var in services.PromoCodeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	pc, err := h.promos.Create(c.Request.Context(), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, pc)
}

// GeneratePromoCode godoc
// @ID          generatePromoCode
// @Summary     Create a promo code with a random text
// @Description Query parameters override the optional body. Any code in the body is ignored.
// @Tags        PromoCodes
// @Accept      json
// @Produce     json
//
// @Param       nb_parties  query  int                      false  "Tickets per redemption"  minimum(1)
// @Param       length      query  int                      false  "Code length"  minimum(6) maximum(12)
// @Param       body        body   services.PromoCodeInput  false  "Other attributes"
//
// @Success     201  {object}  domain.PromoCode
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /promo_codes/generate [post]
func (h *Handlers) GeneratePromoCode(c *gin.Context) {
	var in services.PromoCodeInput
	if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if s := c.Query("nb_parties"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "nb_parties must be an integer")
			return
		}
		in.NbParties = n
	}
	length := 0
	if s := c.Query("length"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "length must be an integer")
			return
		}
		length = n
	}
	pc, err := h.promos.GenerateAndCreate(c.Request.Context(), in, length)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, pc)
}

// ListPromoCodes godoc
// @ID          listPromoCodes
// @Summary     List promo codes (paginated)
// @Description Active, non-deleted codes by default.
// @Tags        PromoCodes
// @Produce     json
//
// @Param       include_inactive  query  bool  false  "Include deactivated codes"
// @Param       include_deleted   query  bool  false  "Include soft-deleted codes"
// @Param       page              query  int   false  "Page number"     minimum(1) default(1)
// @Param       page_size         query  int   false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListResponse[domain.PromoCode]
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /promo_codes [get]
func (h *Handlers) ListPromoCodes(c *gin.Context) {
	var f repo.PromoFilter
	var okq bool
	if f.IncludeInactive, okq = boolQuery(c, "include_inactive", false); !okq {
		return
	}
	if f.IncludeDeleted, okq = boolQuery(c, "include_deleted", false); !okq {
		return
	}
	page, pageSize := clampPagination(c)
	off, lim := utils.Window(page, pageSize)
	items, total, err := h.promos.List(c.Request.Context(), f, off, lim)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, newList(items, page, pageSize, total))
}

// GetPromoCode godoc
// @ID          getPromoCode
// @Summary     Get a promo code
// @Tags        PromoCodes
// @Produce     json
//
// @Param       id               path   string  true   "Promo code ID"  format(uuid)
// @Param       include_deleted  query  bool    false  "Resolve soft-deleted codes too"
//
// @Success     200  {object}  domain.PromoCode
// @Failure     404  {object}  handlers.ErrorResponse  "Promo code not found"
// @Router      /promo_codes/{id} [get]
func (h *Handlers) GetPromoCode(c *gin.Context) {
	incl, okq := boolQuery(c, "include_deleted", false)
	if !okq {
		return
	}
	pc, err := h.promos.Get(c.Request.Context(), c.Param("id"), incl)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, pc)
}

// GetPromoCodeByCode godoc
// @ID          getPromoCodeByCode
// @Summary     Look up a promo code by its text
// @Description Matching is case-insensitive.
// @Tags        PromoCodes
// @Produce     json
//
// @Param       code             path   string  true   "Code text"  example(SPRING24)
// @Param       include_deleted  query  bool    false  "Resolve soft-deleted codes too"
//
// @Success     200  {object}  domain.PromoCode
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed code"
// @Failure     404  {object}  handlers.ErrorResponse  "Invalid code"
// @Router      /promo_codes/code/{code} [get]
func (h *Handlers) GetPromoCodeByCode(c *gin.Context) {
	incl, okq := boolQuery(c, "include_deleted", false)
	if !okq {
		return
	}
	pc, err := h.promos.GetByCode(c.Request.Context(), c.Param("code"), incl)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, pc)
}

// UpdatePromoCode godoc
// @ID          updatePromoCode
// @Summary     Update a promo code
// @Description used_count cannot be changed. clear_expires_at and clear_max_uses reset the optional limits.
// @Tags        PromoCodes
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                   true  "Promo code ID"  format(uuid)
// @Param       body  body  services.PromoCodePatch  true  "Fields to change"
//
// @Success     200  {object}  domain.PromoCode
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Promo code not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Code already exists"
// @Router      /promo_codes/{id} [patch]
func (h *Handlers) UpdatePromoCode(c *gin.Context) {
	var p services.PromoCodePatch
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	pc, err := h.promos.Update(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, pc)
}

// DeletePromoCode godoc
// @ID          deletePromoCode
// @Summary     Delete a promo code
// @Tags        PromoCodes
//
// @Param       id    path   string  true   "Promo code ID"  format(uuid)
// @Param       hard  query  bool    false  "Remove permanently"  default(false)
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Promo code not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already deleted"
// @Router      /promo_codes/{id} [delete]
func (h *Handlers) DeletePromoCode(c *gin.Context) {
	deleteWith(c, h.promos.Delete)
}

// RestorePromoCode godoc
// @ID          restorePromoCode
// @Summary     Restore a soft-deleted promo code
// @Tags        PromoCodes
// @Produce     json
//
// @Param       id  path  string  true  "Promo code ID"  format(uuid)
//
// @Success     200  {object}  domain.PromoCode
// @Failure     404  {object}  handlers.ErrorResponse  "Promo code not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not deleted or code taken"
// @Router      /promo_codes/{id}/restore [post]
func (h *Handlers) RestorePromoCode(c *gin.Context) {
	pc, err := h.promos.Restore(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, pc)
}

// RedeemPromoCode godoc
// @ID          redeemPromoCode
// @Summary     Redeem a promo code
// @Description Credits nb_parties tickets to the user. With an Idempotency-Key, a retry returns the first result and credits nothing.
// @Tags        PromoCodes
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string                   false  "Deduplicates retries"  example(3f1c2b11-redeem)
// @Param       body             body    handlers.RedeemRequest   true   "Code and optional user"
//
// @Success     200  {object}  services.RedeemResult
// @Header      200  {string}  Idempotent-Replayed  "true when answered from an earlier request"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "No user_id and no caller"
// @Failure     404  {object}  handlers.ErrorResponse  "Invalid code or user"
// @Failure     409  {object}  handlers.ErrorResponse  "Inactive, expired, exhausted or key reused"
// @Router      /promo_codes/redeem [post]
func (h *Handlers) RedeemPromoCode(c *gin.Context) {
	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code required")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	owner := userID
	if userID == "" {
		me, okc := h.caller(c)
		if !okc {
			return
		}
		userID, owner = me.ID, me.ID
	} else if fid, signed := middleware.UserIDFrom(c); signed {
		// The key belongs to whoever sent the request.
		if me, err := h.users.GetByFirebaseID(c.Request.Context(), fid); err == nil {
			owner = me.ID
		}
	}
	key, _ := middleware.GetIdempotencyKey(c)

	res, err := h.promos.RedeemOnBehalf(c.Request.Context(), req.Code, userID, owner, key)
	if err != nil {
		failErr(c, err)
		return
	}
	if res.Replayed {
		c.Header(HeaderReplayed, "true")
	}
	ok(c, http.StatusOK, res)
}
