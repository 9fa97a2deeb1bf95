package api

import (
	"errors"

	"github.com/voxforge/voxforge/internal/resilience"
	"github.com/voxforge/voxforge/pkg/middleware"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// errorEnvelope is the JSON body of every non-2xx response (spec §4.7):
// request_id is always present so a client can correlate a failure
// with server-side logs.
type errorEnvelope struct {
	Error     string         `json:"error"`
	ErrorKind string         `json:"error_kind"`
	RequestID string         `json:"request_id"`
	Details   map[string]any `json:"details,omitempty"`
}

// respondError maps err onto the right HTTP status and the uniform
// error envelope. A bare gorm.ErrRecordNotFound (from a repository
// call a handler forgot to translate) still renders as 404 rather
// than leaking a 500.
func respondError(c *gin.Context, err error) {
	var rerr *resilience.Error
	if !errors.As(err, &rerr) {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rerr = resilience.New(resilience.KindNotFound, "resource not found")
		} else {
			rerr = resilience.Wrap(resilience.KindInternal, "internal error", err)
		}
	}

	c.JSON(rerr.Kind.HTTPStatus(), errorEnvelope{
		Error:     rerr.Message,
		ErrorKind: string(rerr.Kind),
		RequestID: c.GetString(middleware.RequestIDKey),
		Details:   rerr.Fields,
	})
}
