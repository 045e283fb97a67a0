// Friendship HTTP handlers.
//
//   - POST   /friends                    (send a request)
//   - GET    /friends                    (list, paginated)
//   - GET    /friends/{id}               (read)
//   - PATCH  /friends/{id}               (accept or decline)
//   - DELETE /friends/{id}?hard=         (soft or hard delete)
//   - POST   /friends/{id}/restore       (undo a soft delete)
//   - GET    /friends/status/{user_id}   (filter a user's edges by status)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/retronova/arcade-backend/internal/services"
)

// CreateFriendshipRequest is the JSON payload for a friend request.
type CreateFriendshipRequest struct {
	// FromUserID defaults to the caller's account when empty.
	FromUserID string `json:"from_user_id" example:"5b0c1f0e-6f0f-4d55-9a55-0e5f3f1c2b11"`
	ToUserID   string `json:"to_user_id" binding:"required" example:"0c6a8e4e-39e8-4a1f-8c1a-0c0f3ad1c9d2"`
}

// CreateFriendship godoc
// @ID          createFriendship
// @Summary     Send a friend request
// @Description Creates a pending edge. Omitting from_user_id sends the request as the caller.
// @Tags        Friends
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.CreateFriendshipRequest  true  "Request payload"
//
// @Success     201  {object}  domain.Friendship
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request or self friendship"
// @Failure     401  {object}  handlers.ErrorResponse  "No from_user_id and no caller"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Pair already linked"
// @Router      /friends [post]
func (h *Handlers) CreateFriendship(c *gin.Context) {
	var req CreateFriendshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "to_user_id required")
		return
	}
	from := strings.TrimSpace(req.FromUserID)
	if from == "" {
		me, okc := h.caller(c)
		if !okc {
			return
		}
		from = me.ID
	}
	f, err := h.friends.Create(c.Request.Context(), from, strings.TrimSpace(req.ToUserID))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, f)
}

// ListFriendships godoc
// @ID          listFriendships
// @Summary     List friendships (paginated)
// @Tags        Friends
// @Produce     json
//
// @Param       include_deleted  query  bool  false  "Include soft-deleted edges"
// @Param       page             query  int   false  "Page number"     minimum(1) default(1)
// @Param       page_size        query  int   false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListResponse[domain.Friendship]
// @Router      /friends [get]
func (h *Handlers) ListFriendships(c *gin.Context) {
	incl, okq := boolQuery(c, "include_deleted", false)
	if !okq {
		return
	}
	all, err := h.friends.List(c.Request.Context(), incl)
	if err != nil {
		failErr(c, err)
		return
	}
	page, pageSize := clampPagination(c)
	ok(c, http.StatusOK, pageOf(all, page, pageSize))
}

// GetFriendship godoc
// @ID          getFriendship
// @Summary     Get a friendship
// @Tags        Friends
// @Produce     json
//
// @Param       id               path   string  true   "Friendship ID"  format(uuid)
// @Param       include_deleted  query  bool    false  "Resolve soft-deleted edges too"
//
// @Success     200  {object}  domain.Friendship
// @Failure     404  {object}  handlers.ErrorResponse  "Friendship not found"
// @Router      /friends/{id} [get]
func (h *Handlers) GetFriendship(c *gin.Context) {
	incl, okq := boolQuery(c, "include_deleted", false)
	if !okq {
		return
	}
	f, err := h.friends.Get(c.Request.Context(), c.Param("id"), incl)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, f)
}

// UpdateFriendship godoc
// @ID          updateFriendship
// @Summary     Accept or decline a request
// @Description Sets accepted and/or declined. Both true is rejected.
// @Tags        Friends
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                    true  "Friendship ID"  format(uuid)
// @Param       body  body  services.FriendshipPatch  true  "Status change"
//
// @Success     200  {object}  domain.Friendship
// @Failure     400  {object}  handlers.ErrorResponse  "Conflicting status"
// @Failure     404  {object}  handlers.ErrorResponse  "Friendship not found"
// @Router      /friends/{id} [patch]
func (h *Handlers) UpdateFriendship(c *gin.Context) {
	var p services.FriendshipPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	f, err := h.friends.Update(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, f)
}

// DeleteFriendship godoc
// @ID          deleteFriendship
// @Summary     Delete a friendship
// @Tags        Friends
//
// @Param       id    path   string  true   "Friendship ID"  format(uuid)
// @Param       hard  query  bool    false  "Remove permanently"  default(false)
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Friendship not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already deleted"
// @Router      /friends/{id} [delete]
func (h *Handlers) DeleteFriendship(c *gin.Context) {
	deleteWith(c, h.friends.Delete)
}

// RestoreFriendship godoc
// @ID          restoreFriendship
// @Summary     Restore a soft-deleted friendship
// @Description Fails when either user is gone or another edge now links the pair.
// @Tags        Friends
// @Produce     json
//
// @Param       id  path  string  true  "Friendship ID"  format(uuid)
//
// @Success     200  {object}  domain.Friendship
// @Failure     404  {object}  handlers.ErrorResponse  "Friendship or user not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not deleted or pair taken"
// @Router      /friends/{id}/restore [post]
func (h *Handlers) RestoreFriendship(c *gin.Context) {
	f, err := h.friends.Restore(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, f)
}

// FriendshipsByStatus godoc
// @ID          friendshipsByStatus
// @Summary     A user's edges filtered by status
// @Description Edges where the user is either side. Omitted flags are not filtered.
// @Tags        Friends
// @Produce     json
//
// @Param       user_id          path   string  true   "User ID"  format(uuid)
// @Param       accepted         query  bool    false  "Filter on accepted"
// @Param       declined         query  bool    false  "Filter on declined"
// @Param       include_deleted  query  bool    false  "Include soft-deleted edges"
// @Param       page             query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size        query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListResponse[domain.Friendship]
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /friends/status/{user_id} [get]
func (h *Handlers) FriendshipsByStatus(c *gin.Context) {
	accepted, okq := optBoolQuery(c, "accepted")
	if !okq {
		return
	}
	declined, okq := optBoolQuery(c, "declined")
	if !okq {
		return
	}
	incl, okq := boolQuery(c, "include_deleted", false)
	if !okq {
		return
	}
	edges, err := h.friends.ByStatus(c.Request.Context(), c.Param("user_id"), accepted, declined, incl)
	if err != nil {
		failErr(c, err)
		return
	}
	page, pageSize := clampPagination(c)
	ok(c, http.StatusOK, pageOf(edges, page, pageSize))
}
