package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mintoons-server/internal/models"
)

const (
	ctxUserIDKey     = "user_id"
	ctxRolesKey      = "user_roles"
	ctxAccessUUIDKey = "access_uuid"
)

// AuthMiddleware verifies the bearer token and loads the caller's
// identity into the gin context. Suspended and deleted accounts are
// rejected here, before any handler runs.
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			tokenVerificationsTotal.WithLabelValues("access", "failure").Inc()
			handleServiceError(c, models.ErrTokenInvalid)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			zap.L().Warn("Invalid Authorization header format")
			tokenVerificationsTotal.WithLabelValues("access", "failure").Inc()
			handleServiceError(c, models.ErrTokenInvalid)
			return
		}

		claims, err := h.authService.ValidateAndGetClaims(c.Request.Context(), parts[1])
		if err != nil {
			zap.L().Warn("Access token verification failed", zap.Error(err))
			tokenVerificationsTotal.WithLabelValues("access", "failure").Inc()
			handleServiceError(c, err)
			return
		}

		tokenVerificationsTotal.WithLabelValues("access", "success").Inc()
		c.Set(ctxUserIDKey, claims.UserID)
		c.Set(ctxRolesKey, claims.Roles)
		c.Set(ctxAccessUUIDKey, claims.ID)
		c.Next()
	}
}

// RequireRoles allows the request through when the caller holds at
// least one of the given roles. Must run after AuthMiddleware.
func (h *Handler) RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		callerRoles := currentRoles(c)
		for _, role := range roles {
			if models.HasRole(callerRoles, role) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{
			Code:    models.ErrCodeForbidden,
			Message: "Insufficient privileges",
		})
	}
}

// currentUserID returns the authenticated caller's ID. Only valid after
// AuthMiddleware; a zero UUID means the middleware did not run.
func currentUserID(c *gin.Context) uuid.UUID {
	raw, ok := c.Get(ctxUserIDKey)
	if !ok {
		return uuid.Nil
	}
	id, _ := raw.(uuid.UUID)
	return id
}

func currentRoles(c *gin.Context) []string {
	raw, ok := c.Get(ctxRolesKey)
	if !ok {
		return nil
	}
	roles, _ := raw.([]string)
	return roles
}

// parseIDParam parses a UUID path parameter, writing a 400 on failure.
// The bool result tells the caller whether to continue.
func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		abortBadRequest(c, "Invalid "+name+" parameter, expected a UUID")
		return uuid.Nil, false
	}
	return id, true
}
