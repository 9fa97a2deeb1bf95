package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader is the response header every request, success or
// error, carries its correlation id on.
const RequestIDHeader = "X-Request-ID"

// RequestIDKey is the gin.Context key the id is stored under.
const RequestIDKey = "request_id"

// RequestID stamps every inbound request with a fresh UUID-shaped
// correlation handle, echoes it on the response, and makes it
// available to handlers via c.GetString(RequestIDKey).
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
