package controllers

import (
	"net/http"
	"strconv"

	"github.com/dev-maui0806/e-siremart-backend/logger"
	"github.com/dev-maui0806/e-siremart-backend/middleware"
	"github.com/dev-maui0806/e-siremart-backend/models"
	"github.com/dev-maui0806/e-siremart-backend/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func errorBody(kind services.ErrorKind, message string) gin.H {
	return gin.H{"error": gin.H{"kind": kind, "message": message}}
}

// renderError writes a ServiceError. Causes of internal failures are logged,
// never returned.
func (oc *OrderController) renderError(c *gin.Context, err *services.ServiceError) {
	status := err.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		logger.WithRequest(c, oc.logger).Error("Request failed",
			zap.String("kind", string(err.Kind)),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(status, errorBody(err.Kind, err.Message))
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorBody(services.KindValidation, message))
}

func currentPrincipal(c *gin.Context) (models.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"kind": "unauthorized", "message": "Unauthorized"}})
	}
	return p, ok
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// parsePaginationParams extracts and clamps page and limit.
func parsePaginationParams(c *gin.Context) (int, int) {
	const (
		maxLimit     = 100
		defaultPage  = 1
		defaultLimit = 10
	)
	page, limit := defaultPage, defaultLimit
	if p, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil && l > 0 {
		limit = min(l, maxLimit)
	}
	return page, limit
}
