package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/feed-engine/internal/model"
	"github.com/d60-Lab/feed-engine/pkg/response"
)

type trendingView struct {
	ContentType  string    `json:"content_type"`
	ContentID    string    `json:"content_id"`
	Rank         int       `json:"rank"`
	Score        float64   `json:"score"`
	ViewCount    int64     `json:"view_count"`
	LikeCount    int64     `json:"like_count"`
	CommentCount int64     `json:"comment_count"`
	ShareCount   int64     `json:"share_count"`
	SaveCount    int64     `json:"save_count"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
}

type hashtagView struct {
	Hashtag         string    `json:"hashtag"`
	Rank            int       `json:"rank"`
	Score           float64   `json:"score"`
	PostCount       int64     `json:"post_count"`
	RecentPostCount int64     `json:"recent_post_count"`
	WindowDate      time.Time `json:"window_date"`
}

// TrendingPosts 最近一次计算的热榜
// @Summary 热门内容
// @Tags 热榜
// @Produce json
// @Param window query string false "窗口 hourly|daily|weekly|monthly" default(daily)
// @Param limit query int false "数量" default(100)
// @Success 200 {object} response.Response{data=[]trendingView}
// @Failure 400 {object} response.Response
// @Router /api/v1/trending/posts [get]
func (h *Handler) TrendingPosts(c *gin.Context) {
	wt := model.WindowType(c.DefaultQuery("window", string(model.WindowDaily)))
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.trendingService.GetTrendingPosts(c.Request.Context(), wt, limit)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]trendingView, len(rows))
	for i, r := range rows {
		out[i] = trendingView{
			ContentType:  r.ContentType,
			ContentID:    r.ContentID,
			Rank:         r.Rank,
			Score:        r.Score,
			ViewCount:    r.ViewCount,
			LikeCount:    r.LikeCount,
			CommentCount: r.CommentCount,
			ShareCount:   r.ShareCount,
			SaveCount:    r.SaveCount,
			WindowStart:  r.WindowStart,
			WindowEnd:    r.WindowEnd,
		}
	}
	response.Success(c, out)
}

// TrendingHashtags 最近一次计算的话题榜
// @Summary 热门话题
// @Tags 热榜
// @Produce json
// @Param limit query int false "数量" default(50)
// @Success 200 {object} response.Response{data=[]hashtagView}
// @Router /api/v1/trending/hashtags [get]
func (h *Handler) TrendingHashtags(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.trendingService.GetTrendingHashtags(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]hashtagView, len(rows))
	for i, r := range rows {
		out[i] = hashtagView{
			Hashtag:         r.Hashtag,
			Rank:            r.Rank,
			Score:           r.Score,
			PostCount:       r.PostCount,
			RecentPostCount: r.RecentPostCount,
			WindowDate:      r.WindowDate,
		}
	}
	response.Success(c, out)
}
