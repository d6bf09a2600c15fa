package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mintoons-server/internal/models"
)

func (h *Handler) requestAssist(c *gin.Context) {
	storyID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req assistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	kind := models.AssistKind(req.Kind)
	result, err := h.assistService.RequestAssist(c.Request.Context(), currentUserID(c), storyID, kind, req.Prompt)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	assistRequestsTotal.WithLabelValues(string(kind)).Inc()

	// 202: the actual generation happens on the worker; poll the task
	// or wait for the WebSocket notification.
	c.JSON(http.StatusAccepted, result)
}

func (h *Handler) getAssistResult(c *gin.Context) {
	taskID := c.Param("taskID")
	if taskID == "" {
		abortBadRequest(c, "Missing taskID parameter")
		return
	}

	result, err := h.assistService.GetResult(c.Request.Context(), currentUserID(c), taskID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
