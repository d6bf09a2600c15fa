package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mintoons-server/internal/models"
)

func (h *Handler) adminStats(c *gin.Context) {
	stats, err := h.adminService.GetDashboardStats(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) adminListUsers(c *gin.Context) {
	cursor, limit := pageParams(c)
	users, next, err := h.adminService.ListUsers(c.Request.Context(), cursor, limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "next_cursor": next})
}

func (h *Handler) adminSuspendUser(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.adminService.SuspendUser(c.Request.Context(), id); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User suspended"})
}

func (h *Handler) adminRestoreUser(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.adminService.RestoreUser(c.Request.Context(), id); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User restored"})
}

func (h *Handler) adminSetUserRoles(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req setRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.adminService.SetUserRoles(c.Request.Context(), id, req.Roles); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Roles updated"})
}

func (h *Handler) adminAddAIKey(c *gin.Context) {
	var req addAIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	key, err := h.adminService.AddAIKey(c.Request.Context(), models.AIProvider(req.Provider), req.Label, req.Key)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, key)
}

func (h *Handler) adminListAIKeys(c *gin.Context) {
	keys, err := h.adminService.ListAIKeys(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

func (h *Handler) adminSetAIKeyActive(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req setAIKeyActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.adminService.SetAIKeyActive(c.Request.Context(), id, req.Active); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Key updated"})
}

func (h *Handler) adminDeleteAIKey(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.adminService.DeleteAIKey(c.Request.Context(), id); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
