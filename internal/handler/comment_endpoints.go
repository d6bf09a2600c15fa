package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mintoons-server/internal/models"
	"mintoons-server/internal/service"
)

func (h *Handler) createComment(c *gin.Context) {
	storyID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	comment, err := h.commentService.Create(c.Request.Context(), currentUserID(c), storyID, service.CommentInput{
		Type:            models.CommentType(req.Type),
		Content:         req.Content,
		HighlightedText: req.HighlightedText,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, comment)
}

func (h *Handler) listComments(c *gin.Context) {
	storyID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	comments, err := h.commentService.ListByStory(c.Request.Context(), currentUserID(c), currentRoles(c), storyID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (h *Handler) resolveComment(c *gin.Context) {
	commentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req resolveCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.commentService.Resolve(c.Request.Context(), currentUserID(c), currentRoles(c), commentID, req.Resolved); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Comment updated"})
}

func (h *Handler) deleteComment(c *gin.Context) {
	commentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.commentService.Delete(c.Request.Context(), currentUserID(c), currentRoles(c), commentID); err != nil {
		handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
