package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-report-api/internal/middleware"
	"github.com/noah-isme/sma-report-api/internal/models"
)

func principal(c *gin.Context) models.Principal {
	return middleware.Claims(c).Principal()
}
