// Package jobs 周期任务：热榜计算、话题榜、过期清理、兴趣衰减。
// 每个任务是一个 suture.Service，由同一棵监督树托管。
package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/feed-engine/pkg/logger"
	"github.com/d60-Lab/feed-engine/pkg/metrics"
	"github.com/d60-Lab/feed-engine/pkg/monitor"
)

// RunFunc 单次任务执行
type RunFunc func(ctx context.Context) error

// Job 按固定间隔执行 RunFunc。单次失败只记录日志并上报，不终止循环。
type Job struct {
	name       string
	interval   time.Duration
	timeout    time.Duration
	runOnStart bool
	run        RunFunc
	log        *zap.Logger
}

// Option 调整 Job 行为
type Option func(*Job)

// WithTimeout 单次执行的超时
func WithTimeout(d time.Duration) Option { return func(j *Job) { j.timeout = d } }

// RunOnStart 启动后立即执行一次，而不是等第一个 tick
func RunOnStart() Option { return func(j *Job) { j.runOnStart = true } }

func New(name string, interval time.Duration, run RunFunc, opts ...Option) *Job {
	j := &Job{
		name:     name,
		interval: interval,
		timeout:  10 * time.Minute,
		run:      run,
		log:      logger.Named("jobs").With(zap.String("job", name)),
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Serve 实现 suture.Service
func (j *Job) Serve(ctx context.Context) error {
	if j.interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", j.name)
	}
	if j.runOnStart {
		j.RunOnce(ctx)
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce 执行一次并返回错误（同时已记录日志、指标与上报）
func (j *Job) RunOnce(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	timer := metrics.NewTimer()
	err := j.safeRun(runCtx)
	d := timer.ObserveDuration(metrics.JobDuration, j.name)
	if err != nil {
		metrics.JobRunsTotal.WithLabelValues(j.name, "error").Inc()
		j.log.Error("job failed", zap.Duration("took", d), zap.Error(err))
		monitor.Capture(err, map[string]string{"job": j.name})
		return err
	}
	metrics.JobRunsTotal.WithLabelValues(j.name, "ok").Inc()
	j.log.Debug("job done", zap.Duration("took", d))
	return nil
}

// safeRun 把 panic 转成错误，避免一次异常拖垮整个循环
func (j *Job) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}
	}()
	return j.run(ctx)
}

func (j *Job) Name() string { return j.name }

func (j *Job) String() string { return "job:" + j.name }
