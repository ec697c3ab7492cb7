// relbench 压测关系写入与查询：N 个用户并发关注同一个大 V，
// 然后测量粉丝/关注列表、计数以及屏蔽集合的读取延迟。
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/feed-engine/config"
	"github.com/d60-Lab/feed-engine/internal/app"
	"github.com/d60-Lab/feed-engine/internal/service"
	"github.com/d60-Lab/feed-engine/pkg/logger"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func timed(f func()) time.Duration {
	st := time.Now()
	f()
	return time.Since(st)
}

func main() {
	cfg := must(config.Load())
	_ = logger.Init("warn", "console")
	ctx := context.Background()
	a := must(app.New(ctx, cfg))
	defer a.Close()

	N := 10000
	if s := os.Getenv("N"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			N = n
		}
	}
	CONC := 4
	if s := os.Getenv("CONC"); s != "" {
		if c, err := strconv.Atoi(s); err == nil && c > 0 {
			CONC = c
		}
	}
	PAGE := 50
	if s := os.Getenv("PAGE"); s != "" {
		if p, err := strconv.Atoi(s); err == nil && p > 0 && p <= 100 {
			PAGE = p
		}
	}

	celeb := "celeb-" + uuid.New().String()[:8]
	users := make([]string, N)
	for i := range users {
		users[i] = uuid.New().String()
	}

	followCh := make(chan time.Duration, N)
	feed := make(chan int, N)
	for i := 0; i < N; i++ {
		feed <- i
	}
	close(feed)
	done := make(chan struct{}, CONC)
	t0 := time.Now()
	for w := 0; w < CONC; w++ {
		go func() {
			for i := range feed {
				followCh <- timed(func() { _ = a.Relations.Follow(ctx, users[i], celeb) })
			}
			done <- struct{}{}
		}()
	}
	for w := 0; w < CONC; w++ {
		<-done
	}
	close(followCh)
	followDur := time.Since(t0)
	follows := make([]time.Duration, 0, N)
	for d := range followCh {
		follows = append(follows, d)
	}

	// 重复关注应为 no-op
	dupDur := timed(func() {
		for i := 0; i < N && i < 1000; i++ {
			_ = a.Relations.Follow(ctx, users[i], celeb)
		}
	})

	// 前 1% 的用户拉黑/静音大 V，观察屏蔽集合构建成本
	hiders := N / 100
	if hiders == 0 {
		hiders = 1
	}
	for i := 0; i < hiders; i++ {
		if i%2 == 0 {
			_ = a.Relations.Block(ctx, users[i], celeb, nil)
		} else {
			_, _ = a.Relations.Mute(ctx, users[i], celeb, service.MuteOptions{MutePosts: true, Duration: service.MuteForever})
		}
	}

	fansDur := timed(func() { _, _ = a.Relations.ListFollowers(ctx, celeb, 0, PAGE) })
	deepDur := timed(func() { _, _ = a.Relations.ListFollowers(ctx, celeb, N/2, PAGE) })
	follDur := timed(func() { _, _ = a.Relations.ListFollowing(ctx, users[N-1], 0, PAGE) })
	statsDur := timed(func() { _, _ = a.Relations.GetStats(ctx, celeb) })
	idsDur := timed(func() { _, _ = a.Relations.GetFollowerIDs(ctx, celeb) })
	hiddenCold := timed(func() { _, _ = a.Relations.HiddenAuthorIDs(ctx, users[0]) })
	hiddenWarm := timed(func() { _, _ = a.Relations.HiddenAuthorIDs(ctx, users[0]) })

	unfollowDur := timed(func() {
		for i := hiders; i < N; i++ {
			_ = a.Relations.Unfollow(ctx, users[i], celeb)
		}
	})

	fmt.Printf("N=%d, CONC=%d, PAGE=%d\n", N, CONC, PAGE)
	fmt.Printf("Follow total: %v, per op: %v, p50: %v, p95: %v, p99: %v\n",
		followDur, followDur/time.Duration(N), pct(follows, 0.50), pct(follows, 0.95), pct(follows, 0.99))
	fmt.Printf("Duplicate follow (no-op) x%d: %v\n", min(N, 1000), dupDur)
	fmt.Printf("Query followers(%d) latency: %v, at offset %d: %v\n", PAGE, fansDur, N/2, deepDur)
	fmt.Printf("Query following(%d) latency: %v\n", PAGE, follDur)
	fmt.Printf("Stats latency: %v, follower ids(%d) latency: %v\n", statsDur, N, idsDur)
	fmt.Printf("Hidden authors cold: %v, warm: %v\n", hiddenCold, hiddenWarm)
	fmt.Printf("Unfollow x%d total: %v\n", N-hiders, unfollowDur)
}
