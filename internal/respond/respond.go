// Package respond writes the JSON error body shared by every HTTP handler.
package respond

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

type ErrorBody struct {
	Detail string `json:"detail"`
}

// Detail aborts the request with {"detail": msg}.
func Detail(c *gin.Context, status int, format string, args ...interface{}) {
	c.AbortWithStatusJSON(status, ErrorBody{Detail: fmt.Sprintf(format, args...)})
}
