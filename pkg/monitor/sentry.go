package monitor

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/d60-Lab/feed-engine/config"
)

var enabled bool

// InitSentry 初始化 sentry；DSN 为空时不上报
func InitSentry(cfg *config.Config) error {
	if cfg.Sentry.DSN == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		Environment:      cfg.App.Env,
		ServerName:       cfg.App.Name,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
	})
	if err != nil {
		return err
	}
	enabled = true
	return nil
}

// Enabled 是否已启用上报
func Enabled() bool { return enabled }

// Capture 上报错误并附带标签
func Capture(err error, tags map[string]string) {
	if !enabled || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Flush 退出前等待事件发送
func Flush() {
	if enabled {
		sentry.Flush(2 * time.Second)
	}
}
