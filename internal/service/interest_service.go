package service

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/d60-Lab/feed-engine/config"
	"github.com/d60-Lab/feed-engine/internal/content"
	"github.com/d60-Lab/feed-engine/internal/model"
	"github.com/d60-Lab/feed-engine/internal/repository"
	"github.com/d60-Lab/feed-engine/pkg/logger"
	"github.com/d60-Lab/feed-engine/pkg/metrics"
)

// 交互对象类型
const (
	ContentPost     = "post"
	ContentSeller   = "seller"
	ContentCategory = "category"
	ContentHashtag  = "hashtag"
)

// InteractionInput 一次用户交互
type InteractionInput struct {
	UserID          string
	ContentType     string
	ContentID       string
	InteractionType string
	Metadata        map[string]any
}

// InterestService 兴趣模型：记录交互并累加到类目/话题/商家亲和度
type InterestService struct {
	repo   repository.InterestRepository
	source content.Source
	cfg    config.InterestConfig
	now    func() time.Time
}

func NewInterestService(repo repository.InterestRepository, source content.Source, cfg config.InterestConfig) *InterestService {
	if cfg.DefaultWeight <= 0 {
		cfg.DefaultWeight = 0.1
	}
	if cfg.HashtagMultiplier <= 0 {
		cfg.HashtagMultiplier = 0.5
	}
	if cfg.SellerMultiplier <= 0 {
		cfg.SellerMultiplier = 0.3
	}
	if cfg.DecayFactor <= 0 || cfg.DecayFactor >= 1 {
		cfg.DecayFactor = 0.9
	}
	if cfg.Floor <= 0 {
		cfg.Floor = 0.01
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 7 * 24 * time.Hour
	}
	return &InterestService{repo: repo, source: source, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// Weight 交互类型权重，未知类型取默认值。
// 配置键统一用下划线，click-product 与 click_product 视为同一类型
func (s *InterestService) Weight(interactionType string) float64 {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(interactionType)), "-", "_")
	if w, ok := s.cfg.Weights[key]; ok {
		return w
	}
	return s.cfg.DefaultWeight
}

// RecordInteraction 先落原始日志，再尽力累加兴趣分；累加失败不影响日志
func (s *InterestService) RecordInteraction(ctx context.Context, in InteractionInput) (*model.Interaction, error) {
	if in.UserID == "" || in.ContentType == "" || in.ContentID == "" || in.InteractionType == "" {
		return nil, invalid("userId, contentType, contentId and interactionType are required")
	}

	now := s.now()
	weight := s.Weight(in.InteractionType)
	it := &model.Interaction{
		UserID:          in.UserID,
		ContentType:     in.ContentType,
		ContentID:       in.ContentID,
		InteractionType: in.InteractionType,
		Weight:          weight,
		CreatedAt:       now,
	}
	if len(in.Metadata) > 0 {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, invalid("metadata: %v", err)
		}
		it.Metadata = datatypes.JSON(raw)
	}
	if err := s.repo.AppendInteraction(ctx, it); err != nil {
		return nil, err
	}
	metrics.InteractionsTotal.WithLabelValues(in.InteractionType).Inc()

	deltas, err := s.deltas(ctx, in, weight)
	if err != nil {
		logger.Warn("interest fold skipped",
			zap.String("user", in.UserID), zap.String("content", in.ContentID), zap.Error(err))
		return it, nil
	}
	if err := s.repo.Increment(ctx, in.UserID, deltas, now); err != nil {
		logger.Warn("interest fold failed",
			zap.String("user", in.UserID), zap.String("content", in.ContentID), zap.Error(err))
	}
	return it, nil
}

// deltas 把一次交互展开为各兴趣维度的增量
func (s *InterestService) deltas(ctx context.Context, in InteractionInput, weight float64) ([]repository.InterestDelta, error) {
	switch in.ContentType {
	case ContentPost:
		post, err := s.source.GetPost(ctx, in.ContentID)
		if err != nil {
			return nil, upstream("get post", err)
		}
		var out []repository.InterestDelta
		if post.CategoryID != "" {
			out = append(out, repository.InterestDelta{Type: model.InterestCategory, Value: post.CategoryID, Score: weight})
		}
		for _, tag := range dedup(post.Hashtags) {
			out = append(out, repository.InterestDelta{Type: model.InterestHashtag, Value: tag, Score: weight * s.cfg.HashtagMultiplier})
		}
		for _, seller := range post.Sellers() {
			out = append(out, repository.InterestDelta{Type: model.InterestSeller, Value: seller, Score: weight * s.cfg.SellerMultiplier})
		}
		return out, nil
	case ContentSeller:
		return []repository.InterestDelta{{Type: model.InterestSeller, Value: in.ContentID, Score: weight}}, nil
	case ContentCategory:
		return []repository.InterestDelta{{Type: model.InterestCategory, Value: in.ContentID, Score: weight}}, nil
	case ContentHashtag:
		return []repository.InterestDelta{{Type: model.InterestHashtag, Value: in.ContentID, Score: weight}}, nil
	}
	return nil, nil
}

// DecayInterests 对超过 StaleAfter 未交互的兴趣乘以 factor 并删除低于下限的行；factor<=0 使用配置值
func (s *InterestService) DecayInterests(ctx context.Context, factor float64) (decayed, pruned int64, err error) {
	if factor <= 0 {
		factor = s.cfg.DecayFactor
	}
	if factor >= 1 {
		return 0, 0, invalid("decay factor must be below 1")
	}
	before := s.now().Add(-s.cfg.StaleAfter)
	decayed, pruned, err = s.repo.Decay(ctx, before, factor, s.cfg.Floor)
	if err != nil {
		return 0, 0, err
	}
	logger.Info("interests decayed", zap.Int64("decayed", decayed), zap.Int64("pruned", pruned), zap.Float64("factor", factor))
	return decayed, pruned, nil
}

// GetUserInterests 按分数降序的前 limit 个兴趣
func (s *InterestService) GetUserInterests(ctx context.Context, userID string, limit int) ([]*model.UserInterest, error) {
	if userID == "" {
		return nil, invalid("user id is required")
	}
	if limit <= 0 {
		limit = s.cfg.SuggestionInterest
	}
	if limit <= 0 {
		limit = 20
	}
	return s.repo.Top(ctx, userID, limit)
}

// PruneBelowFloor 删除低于下限的兴趣行
func (s *InterestService) PruneBelowFloor(ctx context.Context) (int64, error) {
	return s.repo.DeleteBelow(ctx, s.cfg.Floor)
}

func dedup(xs []string) []string {
	seen := make(map[string]struct{}, len(xs))
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if x == "" {
			continue
		}
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	return out
}
