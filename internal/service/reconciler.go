package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/pkg/feederr"
	"github.com/d60-Lab/social-feed/pkg/logger"
)

// Reconciler 对账器：后台低优先级地从权威集合重算计数器，发现漂移
// 直接覆盖（防御增量事件丢失）。只纠偏、不引入漂移：写入值来自
// COUNT，天然非负。不持有任何会阻塞前台读的锁。
type Reconciler struct {
	db         *gorm.DB
	users      repository.UserRepository
	follows    repository.FollowRepository
	posts      repository.PostRepository
	interval   time.Duration
	batchSize  int
	workers    int
	corrected  atomic.Int64
	opTimeout  time.Duration
	maxRetries int
}

func NewReconciler(db *gorm.DB, interval time.Duration, batchSize, workers int, opTimeout time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if workers <= 0 {
		workers = 4
	}
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &Reconciler{
		db:         db,
		users:      repository.NewUserRepository(db),
		follows:    repository.NewFollowRepository(db),
		posts:      repository.NewPostRepository(db),
		interval:   interval,
		batchSize:  batchSize,
		workers:    workers,
		opTimeout:  opTimeout,
		maxRetries: 2,
	}
}

// Start 启动周期对账；返回停止函数
func (r *Reconciler) Start() func(context.Context) error {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if n, err := r.RunOnce(context.Background()); err != nil {
					logger.Warn("reconcile pass failed", zap.Error(err))
				} else if n > 0 {
					logger.Info("reconcile pass corrected counters", zap.Int("corrected", n))
				}
			}
		}
	}()
	return func(ctx context.Context) error { close(stop); return nil }
}

// RunOnce 全量扫一遍用户，返回纠正的计数器个数
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	var corrected atomic.Int64
	offset := 0
	for {
		ids, err := r.users.ListIDs(ctx, offset, r.batchSize)
		if err != nil {
			return int(corrected.Load()), err
		}
		if len(ids) == 0 {
			break
		}

		p := pool.New().WithMaxGoroutines(r.workers)
		for _, id := range ids {
			id := id
			p.Go(func() {
				n, err := r.ReconcileUser(ctx, id)
				if err != nil {
					logger.Warn("reconcile user failed", zap.String("user", id), zap.Error(err))
					return
				}
				corrected.Add(int64(n))
			})
		}
		p.Wait()

		if len(ids) < r.batchSize {
			break
		}
		offset += r.batchSize
	}
	r.corrected.Add(corrected.Load())
	return int(corrected.Load()), nil
}

// ReconcileUser 对单个用户做一次重算覆盖，返回纠正的字段数
func (r *Reconciler) ReconcileUser(ctx context.Context, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, feederr.FromDB("load user", err)
	}

	posts, err := r.posts.CountByAuthor(ctx, userID)
	if err != nil {
		return 0, feederr.FromDB("count posts", err)
	}
	followers, err := r.follows.CountFollowers(ctx, userID)
	if err != nil {
		return 0, feederr.FromDB("count followers", err)
	}
	following, err := r.follows.CountFollowing(ctx, userID)
	if err != nil {
		return 0, feederr.FromDB("count following", err)
	}

	fixed := 0
	for _, c := range []struct {
		field  CounterField
		stored int64
		truth  int64
	}{
		{FieldPostsCount, user.PostsCount, posts},
		{FieldFollowersCount, user.FollowersCount, followers},
		{FieldFollowingCount, user.FollowingCount, following},
	} {
		if c.stored == c.truth {
			continue
		}
		applied, err := r.overwrite(ctx, userID, c.field, c.stored, c.truth)
		if err != nil {
			return fixed, err
		}
		if !applied {
			// 读数和覆盖之间有合法增量落库，让路，下一轮重算
			continue
		}
		fixed++
		logger.Warn("consistency warning: counter drift corrected",
			zap.String("user", userID),
			zap.String("field", string(c.field)),
			zap.Int64("stored", c.stored),
			zap.Int64("truth", c.truth))
		if hub := sentry.CurrentHub(); hub.Client() != nil {
			hub.CaptureMessage(fmt.Sprintf("counter drift: user=%s field=%s stored=%d truth=%d",
				userID, c.field, c.stored, c.truth))
		}
	}
	return fixed, nil
}

// overwrite 条件覆盖一个计数器：只在列值仍等于读数时写入（CAS），
// 对账期间被合法增量抢先则放弃本轮。超时按固定次数退避重试；
// 每次尝试用独立的超时预算，上一次的截止不拖累重试
func (r *Reconciler) overwrite(ctx context.Context, userID string, field CounterField, stored, truth int64) (bool, error) {
	backoff := 100 * time.Millisecond
	var err error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opTimeout)
		res := r.db.WithContext(wctx).
			Model(&model.User{}).
			Where("id = ?", userID).
			Where(fmt.Sprintf("%s = ?", field), stored).
			UpdateColumn(string(field), truth)
		cancel()
		if res.Error == nil {
			return res.RowsAffected > 0, nil
		}
		err = feederr.FromDB("overwrite counter", res.Error)
		if feederr.KindOf(err) != feederr.KindTimeout {
			return false, err
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return false, err
}

// CorrectedTotal 历史累计纠正数（诊断用）
func (r *Reconciler) CorrectedTotal() int64 { return r.corrected.Load() }
