package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/retronova/arcade-backend/internal/http/middleware"
	"github.com/retronova/arcade-backend/internal/utils"
)

// ErrorResponse is the error envelope of every endpoint:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "reverse_duplicate",
//	  "kind": "conflict",
//	  "message": "a request already exists in the other direction"
//	}
//
// Code is stable and machine-readable; Kind is set for domain errors only.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Kind      string `json:"kind,omitempty" example:"invalid_state"`
	Message   string `json:"message" example:"resource not found"`
}

func fail(c *gin.Context, status int, code, msg string) {
	failKind(c, status, code, "", msg)
}

// failKind writes the envelope and aborts. Server errors are also logged
// on the request logger.
func failKind(c *gin.Context, status int, code, kind, msg string) {
	rid := middleware.RequestIDFrom(c)
	if rid == "" {
		rid = c.Writer.Header().Get("X-Request-ID")
	}
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Msg(msg)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{RequestID: rid, Code: code, Kind: kind, Message: msg})
}

// Fail lets the router answer NoRoute and NoMethod with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }

// Pagination describes the page returned by a list endpoint.
type Pagination struct {
	Page       int   `json:"page" example:"1"`
	PageSize   int   `json:"page_size" example:"20"`
	Total      int64 `json:"total" example:"42"`
	TotalPages int   `json:"total_pages" example:"3"`
	HasNext    bool  `json:"has_next"`
}

// ListResponse is the envelope of every list endpoint.
type ListResponse[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

func newList[T any](items []T, page, pageSize int, total int64) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	pages := utils.TotalPages(total, pageSize)
	return ListResponse[T]{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: pages,
			HasNext:    page < pages,
		},
	}
}

// pageOf slices an in-memory result set. Used by the friendship queries,
// which return whole sets.
func pageOf[T any](all []T, page, pageSize int) ListResponse[T] {
	off, lim := utils.Window(page, pageSize)
	total := int64(len(all))
	if off > len(all) {
		off = len(all)
	}
	end := off + lim
	if end > len(all) {
		end = len(all)
	}
	return newList(all[off:end], page, pageSize, total)
}
