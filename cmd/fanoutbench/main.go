// fanoutbench 压测写扩散：一个作者 N 个粉丝，连续发布 POSTS 条内容，
// 统计每次扩散耗时，以及粉丝读取 following 时间线的延迟。
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/feed-engine/config"
	"github.com/d60-Lab/feed-engine/internal/app"
	"github.com/d60-Lab/feed-engine/internal/content"
	"github.com/d60-Lab/feed-engine/pkg/logger"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
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

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range vs {
		sum += d
	}
	return sum / time.Duration(len(vs))
}

func main() {
	cfg := must(config.Load())
	_ = logger.Init("warn", "console")

	n := envInt("N", 20000)
	posts := envInt("POSTS", 100)
	conc := envInt("CONC", 8)
	page := envInt("PAGE", 20)
	reads := envInt("READS", 200)

	ctx := context.Background()
	src := content.NewMemorySource()
	a := must(app.New(ctx, cfg, app.WithSource(src)))
	defer a.Close()

	author := "bench-author-" + uuid.New().String()[:8]
	fans := make([]string, n)
	for i := range fans {
		fans[i] = "bench-fan-" + uuid.New().String()
	}

	// 并发建立关注关系
	t0 := time.Now()
	feed := make(chan string, n)
	for _, id := range fans {
		feed <- id
	}
	close(feed)
	var wg sync.WaitGroup
	for w := 0; w < conc; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range feed {
				_ = a.Relations.Follow(ctx, id, author)
			}
		}()
	}
	wg.Wait()
	seedDur := time.Since(t0)

	fanouts := make([]time.Duration, 0, posts)
	var written int
	for i := 0; i < posts; i++ {
		p := &content.Post{ID: uuid.New().String(), UserID: author, PublishedAt: time.Now().UTC()}
		src.Put(p)
		st := time.Now()
		cnt, err := a.Fanout.FanOutToFollowers(ctx, author, p.ID, p.PublishedAt)
		fanouts = append(fanouts, time.Since(st))
		if err != nil {
			fmt.Fprintf(os.Stderr, "fanout %s: %v\n", p.ID, err)
			continue
		}
		written += cnt
	}

	readRecs := make([]time.Duration, 0, reads)
	for i := 0; i < reads; i++ {
		uid := fans[i%len(fans)]
		st := time.Now()
		_, _ = a.Feed.GetFollowingFeed(ctx, uid, page, 0)
		readRecs = append(readRecs, time.Since(st))
	}

	fmt.Printf("N=%d POSTS=%d CONC=%d PAGE=%d READS=%d\n", n, posts, conc, page, reads)
	fmt.Printf("Follow seed total: %v, per op: %v\n", seedDur, seedDur/time.Duration(n))
	fmt.Printf("Fan-out per post: avg=%v p50=%v p95=%v p99=%v, followers written=%d\n",
		avg(fanouts), pct(fanouts, 0.50), pct(fanouts, 0.95), pct(fanouts, 0.99), written)
	fmt.Printf("Following feed(%d): avg=%v p50=%v p95=%v p99=%v\n",
		page, avg(readRecs), pct(readRecs, 0.50), pct(readRecs, 0.95), pct(readRecs, 0.99))
}
