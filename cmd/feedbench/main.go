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

	"github.com/d60-Lab/social-feed/config"
	"github.com/d60-Lab/social-feed/internal/feed"
	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/search"
	"github.com/d60-Lab/social-feed/internal/service"
	"github.com/d60-Lab/social-feed/pkg/database"
)

func must[T any](v T, err error) T { if err != nil { panic(err) }; return v }

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 { return 0 }
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 { k = 0 }
	if k >= len(xs) { k = len(xs)-1 }
	return xs[k]
}

// feedbench: 一边并发发帖/删帖制造数据抖动，一边用游标翻完整个 feed，
// 校验任何已返回的帖子不会在后续页再次出现
func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))

	N := 5000    // seed posts
	CHURN := 20  // concurrent writers
	PAGE := 50
	if s := os.Getenv("N"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { N = v } }
	if s := os.Getenv("CHURN"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { CHURN = v } }
	if s := os.Getenv("PAGE"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { PAGE = v } }

	_ = db.Exec("TRUNCATE TABLE inbox, outbox, comments, post_saves, posts, fans, follows, users RESTART IDENTITY CASCADE").Error

	stats := service.NewStatsSynchronizer()
	ledger := service.NewLedger(db, stats, nil, nil, cfg.Server.OpTimeout)
	engine := feed.NewEngine(db, PAGE, cfg.Feed.MaxPageSize)
	ctx := context.Background()

	// seed one author and N posts
	author := model.User{ID: "bench-author", Username: "bench-author", Email: "bench@example.com", Password: "p"}
	_ = db.Where("id = ?", author.ID).FirstOrCreate(&author).Error
	ids := make([]string, 0, N)
	for i := 0; i < N; i++ {
		id := must(ledger.CreatePost(ctx, author.ID, fmt.Sprintf("seed %s", uuid.New().String()[:8])))
		ids = append(ids, id)
	}

	// churn: concurrent create/delete while the reader pages through
	stopChurn := make(chan struct{})
	var churnWG sync.WaitGroup
	for w := 0; w < CHURN; w++ {
		churnWG.Add(1)
		go func(w int) {
			defer churnWG.Done()
			i := w
			for {
				select {
				case <-stopChurn:
					return
				default:
				}
				if i%2 == 0 {
					_, _ = ledger.CreatePost(ctx, author.ID, fmt.Sprintf("churn %d", i))
				} else if len(ids) > 0 {
					_ = ledger.DeletePost(ctx, ids[i%len(ids)], author.ID)
				}
				i += CHURN
			}
		}(w)
	}

	// page through the whole feed under churn
	seen := make(map[string]int)
	dups := 0
	pages := 0
	lat := make([]time.Duration, 0, N/PAGE+1)
	var cur *feed.Cursor
	t0 := time.Now()
	for {
		st := time.Now()
		posts, next, err := engine.Page(ctx, cur, PAGE)
		if err != nil { panic(err) }
		lat = append(lat, time.Since(st))
		pages++
		for _, p := range posts {
			seen[p.ID]++
			if seen[p.ID] > 1 { dups++ }
		}
		if next == nil { break }
		cur = next
	}
	total := time.Since(t0)
	close(stopChurn)
	churnWG.Wait()

	fmt.Printf("N=%d CHURN=%d PAGE=%d\n", N, CHURN, PAGE)
	fmt.Printf("Walked %d pages, %d distinct posts in %v\n", pages, len(seen), total)
	fmt.Printf("Page latency: p50=%v p95=%v p99=%v\n", pct(lat, 0.50), pct(lat, 0.95), pct(lat, 0.99))
	if dups > 0 {
		fmt.Printf("FAIL: %d duplicate posts across pages\n", dups)
		os.Exit(1)
	}
	fmt.Println("OK: no duplicates across page fetches under churn")

	// coalescer phase: 打一串模拟按键，统计真正落库的查询次数
	KEYS := 200
	if s := os.Getenv("KEYS"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { KEYS = v } }

	var lookupN, renderN int64
	var searchMu sync.Mutex
	done := make(chan struct{})
	co := search.NewCoalescer(cfg.Feed.DebounceWindow,
		func(ctx context.Context, q string) ([]*model.Post, error) {
			searchMu.Lock()
			lookupN++
			searchMu.Unlock()
			return engine.Search(ctx, q, PAGE)
		},
		func(q string, posts []*model.Post) {
			searchMu.Lock()
			renderN++
			searchMu.Unlock()
			select {
			case done <- struct{}{}:
			default:
			}
		}, nil)
	defer co.Close()

	for i := 0; i < KEYS; i++ {
		co.Input(fmt.Sprintf("seed %s", "abcdef"[:1+i%6]))
		time.Sleep(2 * time.Millisecond)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		fmt.Println("FAIL: search burst never rendered")
		os.Exit(1)
	}
	fmt.Printf("Search burst: %d keystrokes -> %d lookups, %d renders\n", KEYS, lookupN, renderN)
}
