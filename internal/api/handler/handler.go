package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/feed-engine/internal/events"
	"github.com/d60-Lab/feed-engine/internal/service"
	"github.com/d60-Lab/feed-engine/pkg/response"
)

// Handler 聚合各业务服务的 HTTP 入口
type Handler struct {
	relService      service.RelationService
	feedService     service.FeedService
	interestService *service.InterestService
	trendingService *service.TrendingService
	dispatcher      *events.Dispatcher
}

func New(
	rel service.RelationService,
	feed service.FeedService,
	interests *service.InterestService,
	trending *service.TrendingService,
	dispatcher *events.Dispatcher,
) *Handler {
	return &Handler{
		relService:      rel,
		feedService:     feed,
		interestService: interests,
		trendingService: trending,
		dispatcher:      dispatcher,
	}
}

// fail 按服务层错误类型选择状态码
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrInvalidArgument), errors.Is(err, service.ErrSelfRelation):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrBlocked):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrUpstreamUnavailable):
		response.ServiceUnavailable(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

// pageParams 解析 limit/offset；缺省 limit 交给服务层决定
func pageParams(c *gin.Context) (limit, offset int, ok bool) {
	var err error
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			response.BadRequest(c, "limit must be an integer")
			return 0, 0, false
		}
	}
	if v := c.Query("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			response.BadRequest(c, "offset must be an integer")
			return 0, 0, false
		}
	}
	return limit, offset, true
}
