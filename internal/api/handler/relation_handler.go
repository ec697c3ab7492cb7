package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/feed-engine/internal/model"
	"github.com/d60-Lab/feed-engine/internal/service"
	"github.com/d60-Lab/feed-engine/pkg/response"
)

type relationRequest struct {
	FromUserID string `json:"from_user_id" binding:"required"`
	ToUserID   string `json:"to_user_id" binding:"required"`
}

type blockRequest struct {
	relationRequest
	Reason *string `json:"reason" binding:"omitempty,max=255"`
}

type muteRequest struct {
	relationRequest
	MutePosts    *bool  `json:"mute_posts"`
	MuteComments *bool  `json:"mute_comments"`
	Duration     string `json:"duration" binding:"omitempty,muteduration"`
}

type followView struct {
	FollowerID  string    `json:"follower_id"`
	FollowingID string    `json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type statsView struct {
	UserID         string `json:"user_id"`
	FollowerCount  int64  `json:"follower_count"`
	FollowingCount int64  `json:"following_count"`
}

type blockView struct {
	BlockedID string    `json:"blocked_id"`
	Reason    *string   `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type muteView struct {
	MutedID      string     `json:"muted_id"`
	MutePosts    bool       `json:"mute_posts"`
	MuteComments bool       `json:"mute_comments"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toMuteView(m *model.Mute) muteView {
	return muteView{
		MutedID:      m.MutedID,
		MutePosts:    m.MutePosts,
		MuteComments: m.MuteComments,
		ExpiresAt:    m.ExpiresAt,
		CreatedAt:    m.CreatedAt,
	}
}

func toFollowViews(list []*model.Follow) []followView {
	out := make([]followView, len(list))
	for i, f := range list {
		out[i] = followView{FollowerID: f.FollowerID, FollowingID: f.FollowingID, CreatedAt: f.CreatedAt}
	}
	return out
}

// Follow 建立关注
// @Summary 关注用户
// @Tags 关系链
// @Accept json
// @Produce json
// @Param request body relationRequest true "关注信息"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/relations/follow [post]
func (h *Handler) Follow(c *gin.Context) {
	var req relationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.relService.Follow(c.Request.Context(), req.FromUserID, req.ToUserID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// Unfollow 取消关注
// @Summary 取消关注
// @Tags 关系链
// @Accept json
// @Produce json
// @Param request body relationRequest true "取消关注信息"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/relations/unfollow [post]
func (h *Handler) Unfollow(c *gin.Context) {
	var req relationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.relService.Unfollow(c.Request.Context(), req.FromUserID, req.ToUserID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// Block 拉黑，同时解除双向关注并清理双方时间线
// @Summary 拉黑用户
// @Tags 关系链
// @Accept json
// @Produce json
// @Param request body blockRequest true "拉黑信息"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/relations/block [post]
func (h *Handler) Block(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.relService.Block(c.Request.Context(), req.FromUserID, req.ToUserID, req.Reason); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// Unblock 解除拉黑
// @Summary 解除拉黑
// @Tags 关系链
// @Accept json
// @Produce json
// @Param request body relationRequest true "解除拉黑信息"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/relations/unblock [post]
func (h *Handler) Unblock(c *gin.Context) {
	var req relationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.relService.Unblock(c.Request.Context(), req.FromUserID, req.ToUserID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// Mute 静音；duration 取 1h/24h/7d/30d/forever，缺省 forever
// @Summary 静音用户
// @Tags 关系链
// @Accept json
// @Produce json
// @Param request body muteRequest true "静音信息"
// @Success 200 {object} response.Response{data=muteView}
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/relations/mute [post]
func (h *Handler) Mute(c *gin.Context) {
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	opts := service.MuteOptions{MutePosts: true, MuteComments: true, Duration: service.MuteDuration(req.Duration)}
	if req.MutePosts != nil {
		opts.MutePosts = *req.MutePosts
	}
	if req.MuteComments != nil {
		opts.MuteComments = *req.MuteComments
	}
	if opts.Duration == "" {
		opts.Duration = service.MuteForever
	}
	m, err := h.relService.Mute(c.Request.Context(), req.FromUserID, req.ToUserID, opts)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, toMuteView(m))
}

// Unmute 解除静音
// @Summary 解除静音
// @Tags 关系链
// @Accept json
// @Produce json
// @Param request body relationRequest true "解除静音信息"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/relations/unmute [post]
func (h *Handler) Unmute(c *gin.Context) {
	var req relationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.relService.Unmute(c.Request.Context(), req.FromUserID, req.ToUserID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// ListFollowing 查询某用户关注的人
// @Summary 查询关注列表
// @Tags 关系链
// @Param user_id path string true "用户ID"
// @Param limit query int false "每页数量" default(20)
// @Param offset query int false "偏移量" default(0)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/relations/{user_id}/following [get]
func (h *Handler) ListFollowing(c *gin.Context) {
	limit, offset, ok := pageParams(c)
	if !ok {
		return
	}
	list, err := h.relService.ListFollowing(c.Request.Context(), c.Param("user_id"), offset, limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"limit": limit, "offset": offset, "list": toFollowViews(list)})
}

// ListFollowers 查询某用户的粉丝
// @Summary 查询粉丝列表
// @Tags 关系链
// @Param user_id path string true "用户ID"
// @Param limit query int false "每页数量" default(20)
// @Param offset query int false "偏移量" default(0)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/relations/{user_id}/followers [get]
func (h *Handler) ListFollowers(c *gin.Context) {
	limit, offset, ok := pageParams(c)
	if !ok {
		return
	}
	list, err := h.relService.ListFollowers(c.Request.Context(), c.Param("user_id"), offset, limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"limit": limit, "offset": offset, "list": toFollowViews(list)})
}

// Stats 关注/粉丝计数
// @Summary 关注计数
// @Tags 关系链
// @Param user_id path string true "用户ID"
// @Success 200 {object} response.Response{data=statsView}
// @Router /api/v1/relations/{user_id}/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.relService.GetStats(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, statsView{UserID: st.UserID, FollowerCount: st.FollowerCount, FollowingCount: st.FollowingCount})
}

// ListBlocked 拉黑列表
// @Summary 拉黑列表
// @Tags 关系链
// @Param user_id path string true "用户ID"
// @Success 200 {object} response.Response{data=[]blockView}
// @Router /api/v1/relations/{user_id}/blocked [get]
func (h *Handler) ListBlocked(c *gin.Context) {
	list, err := h.relService.GetBlockedUsers(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]blockView, len(list))
	for i, b := range list {
		out[i] = blockView{BlockedID: b.BlockedID, Reason: b.Reason, CreatedAt: b.CreatedAt}
	}
	response.Success(c, out)
}

// ListMuted 未过期的静音列表
// @Summary 静音列表
// @Tags 关系链
// @Param user_id path string true "用户ID"
// @Success 200 {object} response.Response{data=[]muteView}
// @Router /api/v1/relations/{user_id}/muted [get]
func (h *Handler) ListMuted(c *gin.Context) {
	list, err := h.relService.GetMutedUsers(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]muteView, len(list))
	for i, m := range list {
		out[i] = toMuteView(m)
	}
	response.Success(c, out)
}
