package jobs

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/d60-Lab/feed-engine/config"
	"github.com/d60-Lab/feed-engine/internal/model"
	"github.com/d60-Lab/feed-engine/internal/service"
)

// 任务名
const (
	HourlyTrending  = "trending_hourly"
	DailyTrending   = "trending_daily"
	WeeklyTrending  = "trending_weekly"
	MonthlyTrending = "trending_monthly"
	Hashtags        = "trending_hashtags"
	Sweep           = "sweep"
	TrendingCleanup = "trending_cleanup"
	InterestDecay   = "interest_decay"
)

// Deps 周期任务依赖的服务
type Deps struct {
	Trending  *service.TrendingService
	Interests *service.InterestService
	Sweeper   *service.Sweeper
}

// Build 根据配置生成全部周期任务；间隔 <=0 的任务不启用
func Build(cfg config.JobsConfig, d Deps) []*Job {
	var out []*Job
	add := func(name string, every time.Duration, run RunFunc, opts ...Option) {
		if every <= 0 {
			return
		}
		if cfg.RunTimeout > 0 {
			opts = append(opts, WithTimeout(cfg.RunTimeout))
		}
		out = append(out, New(name, every, run, opts...))
	}

	trending := func(wt model.WindowType) RunFunc {
		return func(ctx context.Context) error {
			_, err := d.Trending.ComputeTrending(ctx, wt)
			return err
		}
	}
	add(HourlyTrending, cfg.HourlyTrending, trending(model.WindowHourly), RunOnStart())
	add(DailyTrending, cfg.DailyTrending, trending(model.WindowDaily), RunOnStart())
	add(WeeklyTrending, cfg.LongTrending, trending(model.WindowWeekly))
	add(MonthlyTrending, cfg.LongTrending, trending(model.WindowMonthly))
	add(Hashtags, cfg.Hashtags, func(ctx context.Context) error {
		_, err := d.Trending.ComputeTrendingHashtags(ctx)
		return err
	}, RunOnStart())
	add(TrendingCleanup, cfg.TrendingCleanup, func(ctx context.Context) error {
		_, _, err := d.Trending.CleanupOldTrending(ctx, 0)
		return err
	})
	add(Sweep, cfg.Sweep, func(ctx context.Context) error {
		_, err := d.Sweeper.Sweep(ctx)
		return err
	})
	add(InterestDecay, cfg.InterestDecay, func(ctx context.Context) error {
		_, _, err := d.Interests.DecayInterests(ctx, 0)
		return err
	})
	return out
}

// NewSupervisor 监督树根节点，事件写入 zap
func NewSupervisor(name string, cfg config.JobsConfig, log *zap.Logger) *suture.Supervisor {
	return suture.New(name, suture.Spec{
		EventHook:        EventHook(log),
		FailureThreshold: cfg.FailureThreshold,
		FailureBackoff:   cfg.FailureBackoff,
	})
}

// EventHook 把 suture 事件转为结构化日志
func EventHook(log *zap.Logger) suture.EventHook {
	return func(ev suture.Event) {
		fields := make([]zap.Field, 0, 4)
		for k, v := range ev.Map() {
			fields = append(fields, zap.Any(k, v))
		}
		switch ev.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeServiceTerminate, suture.EventTypeStopTimeout:
			log.Error(ev.String(), fields...)
		case suture.EventTypeBackoff:
			log.Warn(ev.String(), fields...)
		default:
			log.Info(ev.String(), fields...)
		}
	}
}
