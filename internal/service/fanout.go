package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/pkg/logger"
)

// FanoutWorker 从 outbox 认领 pending 事件并写入粉丝的 inbox 时间线。
// 认领用 FOR UPDATE SKIP LOCKED，多实例不会抢同一批；inbox 上的
// (user, post) 唯一键保证重试/重复认领幂等。
type FanoutWorker struct {
	db           *gorm.DB
	fanRepo      repository.FanRepository
	batchSize    int
	claimLimit   int
	pollInterval time.Duration
	staleAfter   time.Duration
	workers      int
	metricsCh    chan time.Duration // outbox 创建 -> done 的落地耗时
}

func NewFanoutWorker(db *gorm.DB, fanRepo repository.FanRepository, workers, batchSize, claimLimit int, pollInterval, staleAfter time.Duration) *FanoutWorker {
	if workers <= 0 {
		workers = 4
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if claimLimit <= 0 {
		claimLimit = 128
	}
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	if staleAfter <= 0 {
		staleAfter = time.Minute
	}
	return &FanoutWorker{
		db: db, fanRepo: fanRepo,
		workers: workers, batchSize: batchSize, claimLimit: claimLimit,
		pollInterval: pollInterval, staleAfter: staleAfter,
		metricsCh: make(chan time.Duration, 65536),
	}
}

func (w *FanoutWorker) Metrics() <-chan time.Duration { return w.metricsCh }

// Start 启动轮询 worker；返回停止函数
func (w *FanoutWorker) Start() func(context.Context) error {
	stop := make(chan struct{})
	for i := 0; i < w.workers; i++ {
		go w.loop(stop)
	}
	return func(ctx context.Context) error { close(stop); return nil }
}

func (w *FanoutWorker) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := w.ProcessOnce(context.Background()); err != nil {
				logger.Warn("fanout pass failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce 认领一批 pending outbox 并扇出；导出给测试和手动补偿用
func (w *FanoutWorker) ProcessOnce(ctx context.Context) error {
	type claimed struct {
		ID        string
		PostID    string
		AuthorID  string
		CreatedAt time.Time
	}

	// worker 崩溃会留下悬空的 processing 认领，超时放回 pending
	cutoff := time.Now().Add(-w.staleAfter)
	if err := w.db.WithContext(ctx).Model(&model.Outbox{}).
		Where("status = ? AND claimed_at < ?", "processing", cutoff).
		Update("status", "pending").Error; err != nil {
		logger.Warn("fanout: requeue stale claims failed", zap.Error(err))
	}

	// sqlite（测试环境）没有行锁子句，退化为普通 SELECT
	lock := "FOR UPDATE SKIP LOCKED"
	if w.db.Dialector.Name() == "sqlite" {
		lock = ""
	}

	var batch []claimed
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(`
			SELECT id, post_id, author_id, created_at
			FROM outbox
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT ? `+lock, w.claimLimit).Scan(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]string, len(batch))
		for i, b := range batch {
			ids[i] = b.ID
		}
		return tx.Model(&model.Outbox{}).Where("id IN ?", ids).
			Updates(map[string]any{"status": "processing", "claimed_at": time.Now()}).Error
	})
	if err != nil || len(batch) == 0 {
		return err
	}

	for _, b := range batch {
		score := b.CreatedAt.UnixNano()
		totalWritten := int64(0)
		failed := false
		offset := 0
		for {
			fans, err := w.fanRepo.ListFans(ctx, b.AuthorID, offset, w.batchSize)
			if err != nil {
				logger.Warn("fanout: list fans failed", zap.String("author", b.AuthorID), zap.Error(err))
				failed = true
				break
			}
			if len(fans) == 0 {
				break
			}
			now := time.Now()
			records := make([]model.Inbox, 0, len(fans))
			for _, f := range fans {
				records = append(records, model.Inbox{
					ID: uuid.New().String(), UserID: f.FanID, PostID: b.PostID,
					Score: score, CreatedAt: now,
				})
			}
			if err := w.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&records).Error; err != nil {
				logger.Warn("fanout: inbox insert failed", zap.String("post", b.PostID), zap.Error(err))
				failed = true
				break
			}
			totalWritten += int64(len(records))
			if len(fans) < w.batchSize {
				break
			}
			offset += w.batchSize
		}

		// 投递失败的事件留在 processing，等超时回收后重新认领；
		// inbox 的 (user, post) 唯一键保证重投递不会重复写
		if failed {
			continue
		}

		now := time.Now()
		if err := w.db.WithContext(ctx).Model(&model.Outbox{}).
			Where("id = ?", b.ID).
			Updates(map[string]any{"status": "done", "processed_at": now, "fanout_count": totalWritten}).Error; err != nil {
			logger.Warn("fanout: mark done failed", zap.String("outbox", b.ID), zap.Error(err))
		}
		if !b.CreatedAt.IsZero() {
			select {
			case w.metricsCh <- time.Since(b.CreatedAt):
			default:
			}
		}
	}
	return nil
}
