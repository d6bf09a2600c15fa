package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mintoons-server/internal/service"
	"mintoons-server/pkg/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// pageParams reads cursor/limit query parameters.
func pageParams(c *gin.Context) (string, int) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	return c.Query("cursor"), utils.ClampLimit(limit, defaultPageSize, maxPageSize)
}

func (h *Handler) createStory(c *gin.Context) {
	var req storyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	story, err := h.storyService.Create(c.Request.Context(), currentUserID(c), service.StoryInput{
		Title:   req.Title,
		Content: req.Content,
		Genre:   req.Genre,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	storiesCreatedTotal.Inc()
	c.JSON(http.StatusCreated, story)
}

func (h *Handler) getStory(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	story, err := h.storyService.Get(c.Request.Context(), currentUserID(c), currentRoles(c), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, story)
}

func (h *Handler) updateStory(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req storyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	story, err := h.storyService.Update(c.Request.Context(), currentUserID(c), id, service.StoryInput{
		Title:   req.Title,
		Content: req.Content,
		Genre:   req.Genre,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, story)
}

func (h *Handler) deleteStory(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.storyService.Delete(c.Request.Context(), currentUserID(c), currentRoles(c), id); err != nil {
		handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) submitStory(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.storyService.Submit(c.Request.Context(), currentUserID(c), id); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Story submitted for review"})
}

func (h *Handler) approveStory(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.storyService.Approve(c.Request.Context(), currentUserID(c), id); err != nil {
		handleServiceError(c, err)
		return
	}

	storiesPublishedTotal.Inc()
	c.JSON(http.StatusOK, gin.H{"message": "Story published"})
}

func (h *Handler) requestChanges(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req requestChangesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.storyService.RequestChanges(c.Request.Context(), currentUserID(c), id, req.Note); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Changes requested, story returned to draft"})
}

func (h *Handler) listOwnStories(c *gin.Context) {
	cursor, limit := pageParams(c)
	stories, next, err := h.storyService.ListOwn(c.Request.Context(), currentUserID(c), cursor, limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": stories, "next_cursor": next})
}

func (h *Handler) listPublishedStories(c *gin.Context) {
	cursor, limit := pageParams(c)
	stories, next, err := h.storyService.ListPublished(c.Request.Context(), cursor, limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": stories, "next_cursor": next})
}

func (h *Handler) listReviewQueue(c *gin.Context) {
	cursor, limit := pageParams(c)
	stories, next, err := h.storyService.ListReviewQueue(c.Request.Context(), cursor, limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": stories, "next_cursor": next})
}

func (h *Handler) likeStory(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.storyService.Like(c.Request.Context(), currentUserID(c), id); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Liked"})
}

func (h *Handler) unlikeStory(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.storyService.Unlike(c.Request.Context(), currentUserID(c), id); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Unliked"})
}

func (h *Handler) exportStory(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportText)))
	if format != service.ExportText && format != service.ExportHTML {
		abortBadRequest(c, "Unsupported format, expected txt or html")
		return
	}

	export, err := h.storyService.ExportStory(c.Request.Context(), currentUserID(c), id, format)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.FileName+`"`)
	c.Data(http.StatusOK, export.ContentType, export.Body)
}
