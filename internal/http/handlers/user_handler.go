// User HTTP handlers.
//
// This file exposes REST endpoints for user accounts:
//   - POST   /users                               (create)
//   - GET    /users                               (list, paginated)
//   - GET    /users/me                            (caller's account)
//   - GET    /users/{id}                          (read)
//   - PATCH  /users/{id}                          (partial update)
//   - DELETE /users/{id}?hard=                    (soft or hard delete)
//   - POST   /users/{id}/restore                  (undo a soft delete)
//   - GET    /users/{id}/friends                  (accepted friendships)
//   - GET    /users/{id}/friends/pending/received (incoming requests)
//   - GET    /users/{id}/friends/pending/sent     (outgoing requests)
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/services"
	"github.com/retronova/arcade-backend/internal/utils"
)

// CreateUser godoc
// @ID          createUser
// @Summary     Create a user
// @Description Registers an account for a firebase identity. A 12-digit public id is assigned.
// @Tags        Users
// @Accept      json
// @Produce     json
//
// @Param       body  body  services.UserInput  true  "Account payload"
//
// @Success     201  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Firebase id already registered"
// @Router      /users [post]
func (h *Handlers) CreateUser(c *gin.Context) {
	var in services.UserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	u, err := h.users.Create(c.Request.Context(), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List users (paginated)
// @Tags        Users
// @Produce     json
//
// @Param       include_deleted  query  bool  false  "Include soft-deleted users"  default(false)
// @Param       page             query  int   false  "Page number"     minimum(1) default(1)
// @Param       page_size        query  int   false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListResponse[domain.User]
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	incl, okq := boolQuery(c, "include_deleted", false)
	if !okq {
		return
	}
	page, pageSize := clampPagination(c)
	off, lim := utils.Window(page, pageSize)
	items, total, err := h.users.List(c.Request.Context(), incl, off, lim)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, newList(items, page, pageSize, total))
}

// Me godoc
// @ID          getMe
// @Summary     Current account
// @Description Returns the account bound to the authenticated firebase identity.
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     404  {object}  handlers.ErrorResponse  "No account for this identity"
// @Router      /users/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, okc := h.caller(c)
	if !okc {
		return
	}
	ok(c, http.StatusOK, u)
}

// GetUser godoc
// @ID          getUser
// @Summary     Get a user
// @Tags        Users
// @Produce     json
//
// @Param       id               path   string  true   "User ID"  format(uuid)
// @Param       include_deleted  query  bool    false  "Resolve soft-deleted users too"
//
// @Success     200  {object}  domain.User
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	incl, okq := boolQuery(c, "include_deleted", false)
	if !okq {
		return
	}
	u, err := h.users.Get(c.Request.Context(), c.Param("id"), incl)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdateUser godoc
// @ID          updateUser
// @Summary     Update a user
// @Description Changes names, ticket balance or the bar flag. Ids are immutable.
// @Tags        Users
// @Accept      json
// @Produce     json
//
// @Param       id    path  string              true  "User ID"  format(uuid)
// @Param       body  body  services.UserPatch  true  "Fields to change"
//
// @Success     200  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id} [patch]
func (h *Handlers) UpdateUser(c *gin.Context) {
	var p services.UserPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	u, err := h.users.Update(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// DeleteUser godoc
// @ID          deleteUser
// @Summary     Delete a user
// @Description Soft-deletes by default; hard=true removes the row and its friendships.
// @Tags        Users
//
// @Param       id    path   string  true   "User ID"  format(uuid)
// @Param       hard  query  bool    false  "Remove permanently"  default(false)
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already deleted"
// @Router      /users/{id} [delete]
func (h *Handlers) DeleteUser(c *gin.Context) {
	deleteWith(c, h.users.Delete)
}

// RestoreUser godoc
// @ID          restoreUser
// @Summary     Restore a soft-deleted user
// @Tags        Users
// @Produce     json
//
// @Param       id  path  string  true  "User ID"  format(uuid)
//
// @Success     200  {object}  domain.User
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     409  {object}  handlers.ErrorResponse  "User is not deleted"
// @Router      /users/{id}/restore [post]
func (h *Handlers) RestoreUser(c *gin.Context) {
	u, err := h.users.Restore(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// UserFriends godoc
// @ID          listUserFriends
// @Summary     Accepted friendships of a user
// @Tags        Users
// @Produce     json
//
// @Param       id         path   string  true   "User ID"  format(uuid)
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListResponse[domain.Friendship]
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id}/friends [get]
func (h *Handlers) UserFriends(c *gin.Context) {
	h.userEdges(c, h.friends.FriendsOf)
}

// UserPendingReceived godoc
// @ID          listUserPendingReceived
// @Summary     Pending requests sent to a user
// @Tags        Users
// @Produce     json
//
// @Param       id  path  string  true  "User ID"  format(uuid)
//
// @Success     200  {object}  handlers.ListResponse[domain.Friendship]
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id}/friends/pending/received [get]
func (h *Handlers) UserPendingReceived(c *gin.Context) {
	h.userEdges(c, h.friends.PendingReceived)
}

// UserPendingSent godoc
// @ID          listUserPendingSent
// @Summary     Pending requests sent by a user
// @Tags        Users
// @Produce     json
//
// @Param       id  path  string  true  "User ID"  format(uuid)
//
// @Success     200  {object}  handlers.ListResponse[domain.Friendship]
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id}/friends/pending/sent [get]
func (h *Handlers) UserPendingSent(c *gin.Context) {
	h.userEdges(c, h.friends.PendingSent)
}

// userEdges checks that the user is active, then pages the result of q.
func (h *Handlers) userEdges(c *gin.Context, q func(context.Context, string) ([]domain.Friendship, error)) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.users.Get(ctx, id, false); err != nil {
		failErr(c, err)
		return
	}
	edges, err := q(ctx, id)
	if err != nil {
		failErr(c, err)
		return
	}
	page, pageSize := clampPagination(c)
	ok(c, http.StatusOK, pageOf(edges, page, pageSize))
}

// deleteWith runs a soft or hard delete depending on ?hard.
func deleteWith(c *gin.Context, del func(ctx context.Context, id string, hard bool) error) {
	hard, okq := boolQuery(c, "hard", false)
	if !okq {
		return
	}
	if err := del(c.Request.Context(), c.Param("id"), hard); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
