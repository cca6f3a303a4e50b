package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/pkg/logger"
)

type replicateAction int

const (
	actionAdd replicateAction = iota + 1
	actionRemove
)

type replicateJob struct {
	action replicateAction
	userID string
	fanID  string
	enqAt  time.Time
}

// FanReplicator 把 follows 的变更异步冗余到 fans 表（fanout 的读侧索引）。
// 队列满时丢弃并告警：fans 只是冗余，丢失的条目由下一次对 follows 的
// 重放/对账补齐，不影响权威数据。
type FanReplicator struct {
	fanRepo   repository.FanRepository
	ch        chan replicateJob
	metricsCh chan time.Duration
}

func NewFanReplicator(fanRepo repository.FanRepository, queueSize int) *FanReplicator {
	if queueSize <= 0 {
		queueSize = 10000
	}
	return &FanReplicator{
		fanRepo:   fanRepo,
		ch:        make(chan replicateJob, queueSize),
		metricsCh: make(chan time.Duration, 65536),
	}
}

// Start 启动 workers 个消费协程；返回的 stop 函数会等待队列短暂排空
func (r *FanReplicator) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	for i := 0; i < workers; i++ {
		go r.loop(stopCh)
	}
	return func(ctx context.Context) error {
		close(stopCh)
		timeout := time.After(2 * time.Second)
		for {
			select {
			case <-timeout:
				return nil
			default:
				if len(r.ch) == 0 {
					return nil
				}
				time.Sleep(50 * time.Millisecond)
			}
		}
	}
}

func (r *FanReplicator) loop(stopCh <-chan struct{}) {
	for {
		select {
		case job := <-r.ch:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			var err error
			switch job.action {
			case actionAdd:
				err = r.fanRepo.Create(ctx, job.userID, job.fanID)
			case actionRemove:
				err = r.fanRepo.Delete(ctx, job.userID, job.fanID)
			}
			cancel()
			if err != nil {
				logger.Warn("fan replication failed",
					zap.String("user", job.userID), zap.String("fan", job.fanID), zap.Error(err))
			}
			if !job.enqAt.IsZero() {
				select {
				case r.metricsCh <- time.Since(job.enqAt):
				default:
				}
			}
		case <-stopCh:
			return
		}
	}
}

func (r *FanReplicator) EnqueueAdd(userID, fanID string) {
	select {
	case r.ch <- replicateJob{action: actionAdd, userID: userID, fanID: fanID, enqAt: time.Now()}:
	default:
		logger.Warn("replicator queue full, drop add", zap.String("user", userID), zap.String("fan", fanID))
	}
}

func (r *FanReplicator) EnqueueRemove(userID, fanID string) {
	select {
	case r.ch <- replicateJob{action: actionRemove, userID: userID, fanID: fanID, enqAt: time.Now()}:
	default:
		logger.Warn("replicator queue full, drop remove", zap.String("user", userID), zap.String("fan", fanID))
	}
}

// Metrics 返回冗余落地耗时的只读通道（每处理一条发送一次 duration）
func (r *FanReplicator) Metrics() <-chan time.Duration { return r.metricsCh }

// QueueLen 当前队列长度（采样值）
func (r *FanReplicator) QueueLen() int { return len(r.ch) }
