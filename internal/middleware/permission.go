package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-report-api/internal/service"
	"github.com/noah-isme/sma-report-api/pkg/response"
)

// Permission rejects callers whose role may not run op. Routes and services
// read the same permission table.
func Permission(op service.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := service.Authorize(Claims(c).Principal(), op); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}
