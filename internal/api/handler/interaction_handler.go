package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/feed-engine/internal/service"
	"github.com/d60-Lab/feed-engine/pkg/response"
)

type interactionRequest struct {
	UserID          string         `json:"user_id" binding:"required"`
	ContentType     string         `json:"content_type" binding:"required,oneof=post seller category hashtag"`
	ContentID       string         `json:"content_id" binding:"required"`
	InteractionType string         `json:"interaction_type" binding:"required,max=32"`
	Metadata        map[string]any `json:"metadata"`
}

// RecordInteraction 记录一次用户交互并更新兴趣
// @Summary 记录交互
// @Tags 兴趣
// @Accept json
// @Produce json
// @Param request body interactionRequest true "交互信息"
// @Success 200 {object} response.Response{data=map[string]string}
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/interactions [post]
func (h *Handler) RecordInteraction(c *gin.Context) {
	var req interactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	it, err := h.interestService.RecordInteraction(c.Request.Context(), service.InteractionInput{
		UserID:          req.UserID,
		ContentType:     req.ContentType,
		ContentID:       req.ContentID,
		InteractionType: req.InteractionType,
		Metadata:        req.Metadata,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"id": it.ID})
}
