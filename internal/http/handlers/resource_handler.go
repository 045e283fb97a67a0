// Catalog HTTP handlers.
//
// Games, arcade machines, payments and parties share one CRUD and lifecycle
// surface, served by the generic Resource:
//   - POST   /{collection}               (create)
//   - GET    /{collection}               (list, paginated, ETag support)
//   - GET    /{collection}/{id}          (read)
//   - PATCH  /{collection}/{id}          (partial update)
//   - DELETE /{collection}/{id}?hard=    (soft or hard delete)
//   - POST   /{collection}/{id}/restore  (undo a soft delete)
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/services"
	"github.com/retronova/arcade-backend/internal/utils"
)

// EntityStore is the service surface a Resource needs. services.EntityService
// implements it.
type EntityStore[T any] interface {
	Create(ctx context.Context, rec *T) (*T, error)
	Get(ctx context.Context, id string, includeDeleted bool) (*T, error)
	Page(ctx context.Context, includeDeleted bool, offset, limit int) ([]T, int64, error)
	Update(ctx context.Context, id string, patch services.Patch[T]) (*T, error)
	Delete(ctx context.Context, id string, hard bool) error
	Restore(ctx context.Context, id string) (*T, error)
}

// StatsFunc reports the row count and latest updated_at of a collection.
type StatsFunc func(ctx context.Context, includeDeleted bool) (int64, *time.Time, error)

// Resource serves one catalog collection. U is the collection's patch type.
type Resource[T any, P interface {
	*T
	domain.Entity
}, U services.Patch[T]] struct {
	// Name prefixes list ETags, e.g. "games".
	Name  string
	Store EntityStore[T]
	// Stats enables weak ETags on the list endpoint. Optional.
	Stats StatsFunc
}

// Register mounts the collection routes on g.
func (r *Resource[T, P, U]) Register(g *gin.RouterGroup) {
	g.POST("", r.Create)
	g.GET("", r.List)
	g.GET("/:id", r.Get)
	g.PATCH("/:id", r.Update)
	g.DELETE("/:id", r.Delete)
	g.POST("/:id/restore", r.Restore)
}

// Create binds a record and inserts it. Any client-supplied id is dropped.
func (r *Resource[T, P, U]) Create(c *gin.Context) {
	rec := new(T)
	if err := c.ShouldBindJSON(rec); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	P(rec).SetID("")
	out, err := r.Store.Create(c.Request.Context(), rec)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, out)
}

// List returns a page of the collection, newest first. When Stats is set,
// a weak ETag is computed first and a matching If-None-Match yields 304.
func (r *Resource[T, P, U]) List(c *gin.Context) {
	ctx := c.Request.Context()
	incl, okq := boolQuery(c, "include_deleted", false)
	if !okq {
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if r.Stats != nil {
		count, maxTS, err := r.Stats(ctx, incl)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"%s:%t:%d:%d:%d:%d"`, r.Name, incl, page, pageSize, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	off, lim := utils.Window(page, pageSize)
	items, total, err := r.Store.Page(ctx, incl, off, lim)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, newList(items, page, pageSize, total))
}

// Get returns one record.
func (r *Resource[T, P, U]) Get(c *gin.Context) {
	incl, okq := boolQuery(c, "include_deleted", false)
	if !okq {
		return
	}
	out, err := r.Store.Get(c.Request.Context(), c.Param("id"), incl)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// Update applies a U patch to an active record.
func (r *Resource[T, P, U]) Update(c *gin.Context) {
	var patch U
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	out, err := r.Store.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// Delete soft-deletes, or removes with ?hard=true.
func (r *Resource[T, P, U]) Delete(c *gin.Context) {
	deleteWith(c, r.Store.Delete)
}

// Restore undoes a soft delete.
func (r *Resource[T, P, U]) Restore(c *gin.Context) {
	out, err := r.Store.Restore(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}
