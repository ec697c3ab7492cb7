package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/d60-Lab/feed-engine/config"
	"github.com/d60-Lab/feed-engine/internal/app"
	"github.com/d60-Lab/feed-engine/internal/model"
	"github.com/d60-Lab/feed-engine/pkg/logger"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "feedctl",
	Short: "Run feed engine maintenance jobs by hand",
	Long: `feedctl runs the periodic jobs of the feed engine once against the
configured database: trending computation, hashtag ranking, interest decay,
the retention sweep and trending cleanup.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "directory containing config.yaml")

	trendingCmd.Flags().StringSlice("window", []string{"hourly", "daily", "weekly", "monthly"}, "window types to compute")
	decayCmd.Flags().Float64("factor", 0, "decay factor in (0,1); 0 uses the configured value")
	cleanupCmd.Flags().Int("days", 0, "retention in days; 0 uses the configured value")

	rootCmd.AddCommand(trendingCmd, hashtagsCmd, decayCmd, sweepCmd, cleanupCmd)
}

// withApp 加载配置并组装服务后执行 fn
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log.Level, "console"); err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "Recompute trending content for the given windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		windows, _ := cmd.Flags().GetStringSlice("window")
		return withApp(func(ctx context.Context, a *app.App) error {
			for _, w := range windows {
				n, err := a.Trending.ComputeTrending(ctx, model.WindowType(w))
				if err != nil {
					return fmt.Errorf("%s: %w", w, err)
				}
				fmt.Printf("%-8s %d items\n", w, n)
			}
			return nil
		})
	},
}

var hashtagsCmd = &cobra.Command{
	Use:   "hashtags",
	Short: "Recompute today's trending hashtags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			n, err := a.Trending.ComputeTrendingHashtags(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("hashtags %d items\n", n)
			return nil
		})
	},
}

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Decay stale interests and prune those below the floor",
	RunE: func(cmd *cobra.Command, args []string) error {
		factor, _ := cmd.Flags().GetFloat64("factor")
		return withApp(func(ctx context.Context, a *app.App) error {
			decayed, pruned, err := a.Interests.DecayInterests(ctx, factor)
			if err != nil {
				return err
			}
			fmt.Printf("decayed %d, pruned %d\n", decayed, pruned)
			return nil
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired feed entries, expired mutes and dead interests",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			res, err := a.Sweeper.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("feed entries %d, mutes %d, interests %d\n", res.FeedEntries, res.Mutes, res.Interests)
			return nil
		})
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete trending rows older than the retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		return withApp(func(ctx context.Context, a *app.App) error {
			contents, hashtags, err := a.Trending.CleanupOldTrending(ctx, days)
			if err != nil {
				return err
			}
			fmt.Printf("trending contents %d, hashtags %d\n", contents, hashtags)
			return nil
		})
	},
}
