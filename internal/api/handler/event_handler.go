package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/feed-engine/internal/events"
	"github.com/d60-Lab/feed-engine/pkg/response"
)

// PostEvent 接收内容事件并放入本地分发队列（未启用 kafka 时的入口）
// @Summary 投递内容事件
// @Tags 内部
// @Accept json
// @Produce json
// @Param request body object true "{\"type\":\"post.created\",\"data\":{...}}"
// @Success 202 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /internal/events/posts [post]
func (h *Handler) PostEvent(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ev, err := events.DecodePost(body)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !h.dispatcher.Enqueue(ev) {
		response.ServiceUnavailable(c, "dispatch queue full")
		return
	}
	c.JSON(http.StatusAccepted, response.Response{Code: 0, Message: "accepted"})
}
