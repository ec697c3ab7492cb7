package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/feed-engine/pkg/response"
)

// FollowingFeed 关注时间线，按发布时间倒序
// @Summary 关注时间线
// @Tags 时间线
// @Produce json
// @Param user_id path string true "用户ID"
// @Param limit query int false "每页数量" default(20)
// @Param offset query int false "偏移量" default(0)
// @Success 200 {object} response.Response{data=service.FeedPage}
// @Failure 400 {object} response.Response
// @Router /api/v1/feeds/{user_id}/following [get]
func (h *Handler) FollowingFeed(c *gin.Context) {
	limit, offset, ok := pageParams(c)
	if !ok {
		return
	}
	page, err := h.feedService.GetFollowingFeed(c.Request.Context(), c.Param("user_id"), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, page)
}

// ForYouFeed 推荐时间线：关注 60% + 兴趣推荐 30% + 热门 10%
// @Summary 推荐时间线
// @Tags 时间线
// @Produce json
// @Param user_id path string true "用户ID"
// @Param limit query int false "每页数量" default(20)
// @Param offset query int false "偏移量" default(0)
// @Success 200 {object} response.Response{data=service.FeedPage}
// @Failure 400 {object} response.Response
// @Router /api/v1/feeds/{user_id}/for-you [get]
func (h *Handler) ForYouFeed(c *gin.Context) {
	limit, offset, ok := pageParams(c)
	if !ok {
		return
	}
	page, err := h.feedService.GetForYouFeed(c.Request.Context(), c.Param("user_id"), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, page)
}

// ExploreFeed 发现页：热门 60% + 兴趣推荐 40%
// @Summary 发现页
// @Tags 时间线
// @Produce json
// @Param user_id path string true "用户ID"
// @Param limit query int false "每页数量" default(20)
// @Param offset query int false "偏移量" default(0)
// @Success 200 {object} response.Response{data=service.FeedPage}
// @Failure 400 {object} response.Response
// @Router /api/v1/feeds/{user_id}/explore [get]
func (h *Handler) ExploreFeed(c *gin.Context) {
	limit, offset, ok := pageParams(c)
	if !ok {
		return
	}
	page, err := h.feedService.GetExploreFeed(c.Request.Context(), c.Param("user_id"), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, page)
}

// RefreshFeed 清理该用户已过期的时间线项
// @Summary 刷新时间线
// @Tags 时间线
// @Produce json
// @Param user_id path string true "用户ID"
// @Success 200 {object} response.Response{data=map[string]int64}
// @Router /api/v1/feeds/{user_id}/refresh [post]
func (h *Handler) RefreshFeed(c *gin.Context) {
	n, err := h.feedService.RefreshFeed(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"expired_removed": n})
}
