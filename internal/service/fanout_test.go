package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/repository"
)

func addFan(t *testing.T, db *gorm.DB, userID, fanID string) {
	t.Helper()
	require.NoError(t, repository.NewFanRepository(db).Create(context.Background(), userID, fanID))
}

func TestFanoutDeliversToAllFans(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "celeb")
	for _, id := range []string{"f1", "f2", "f3"} {
		mustUser(t, db, id)
		addFan(t, db, "celeb", id)
	}
	l := newTestLedger(db)
	ctx := context.Background()

	postID, err := l.CreatePost(ctx, "celeb", "announcement")
	require.NoError(t, err)

	w := NewFanoutWorker(db, repository.NewFanRepository(db), 1, 100, 10, time.Millisecond, time.Minute)
	require.NoError(t, w.ProcessOnce(ctx))

	var inboxCnt int64
	require.NoError(t, db.Model(&model.Inbox{}).Where("post_id = ?", postID).Count(&inboxCnt).Error)
	require.EqualValues(t, 3, inboxCnt)

	var out model.Outbox
	require.NoError(t, db.First(&out, "post_id = ?", postID).Error)
	require.Equal(t, "done", out.Status)
	require.EqualValues(t, 3, out.FanoutCount)
	require.NotNil(t, out.ProcessedAt)
}

func TestFanoutReprocessIsIdempotent(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "celeb")
	mustUser(t, db, "fan")
	addFan(t, db, "celeb", "fan")
	l := newTestLedger(db)
	ctx := context.Background()

	postID, err := l.CreatePost(ctx, "celeb", "once")
	require.NoError(t, err)

	w := NewFanoutWorker(db, repository.NewFanRepository(db), 1, 100, 10, time.Millisecond, time.Minute)
	require.NoError(t, w.ProcessOnce(ctx))

	// 把事件拨回 pending 模拟重复认领；inbox 唯一键兜底
	require.NoError(t, db.Model(&model.Outbox{}).Where("post_id = ?", postID).
		Update("status", "pending").Error)
	require.NoError(t, w.ProcessOnce(ctx))

	var inboxCnt int64
	require.NoError(t, db.Model(&model.Inbox{}).
		Where("post_id = ? AND user_id = ?", postID, "fan").Count(&inboxCnt).Error)
	require.EqualValues(t, 1, inboxCnt)
}

func TestFanoutNoFansStillCompletes(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "loner")
	l := newTestLedger(db)
	ctx := context.Background()

	postID, err := l.CreatePost(ctx, "loner", "into the void")
	require.NoError(t, err)

	w := NewFanoutWorker(db, repository.NewFanRepository(db), 1, 100, 10, time.Millisecond, time.Minute)
	require.NoError(t, w.ProcessOnce(ctx))

	var out model.Outbox
	require.NoError(t, db.First(&out, "post_id = ?", postID).Error)
	require.Equal(t, "done", out.Status)
	require.Zero(t, out.FanoutCount)
}

type brokenFanRepo struct {
	repository.FanRepository
}

func (brokenFanRepo) ListFans(context.Context, string, int, int) ([]*model.Fan, error) {
	return nil, errors.New("fans unavailable")
}

func TestFanoutDeliveryFailureKeepsEventClaimable(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "celeb")
	mustUser(t, db, "fan")
	addFan(t, db, "celeb", "fan")
	l := newTestLedger(db)
	ctx := context.Background()

	postID, err := l.CreatePost(ctx, "celeb", "flaky")
	require.NoError(t, err)

	// 粉丝列表读不出来：事件不能被标成 done，否则投递永久丢失
	w := NewFanoutWorker(db, brokenFanRepo{}, 1, 100, 10, time.Millisecond, time.Minute)
	require.NoError(t, w.ProcessOnce(ctx))

	var out model.Outbox
	require.NoError(t, db.First(&out, "post_id = ?", postID).Error)
	require.Equal(t, "processing", out.Status)
	require.Zero(t, out.FanoutCount)
	var inboxCnt int64
	require.NoError(t, db.Model(&model.Inbox{}).Where("post_id = ?", postID).Count(&inboxCnt).Error)
	require.Zero(t, inboxCnt)

	// 认领超时后恢复正常的 worker 重新投递
	stale := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&model.Outbox{}).Where("post_id = ?", postID).
		Update("claimed_at", stale).Error)
	good := NewFanoutWorker(db, repository.NewFanRepository(db), 1, 100, 10, time.Millisecond, time.Minute)
	require.NoError(t, good.ProcessOnce(ctx))

	require.NoError(t, db.First(&out, "post_id = ?", postID).Error)
	require.Equal(t, "done", out.Status)
	require.EqualValues(t, 1, out.FanoutCount)
	require.NoError(t, db.Model(&model.Inbox{}).Where("post_id = ?", postID).Count(&inboxCnt).Error)
	require.EqualValues(t, 1, inboxCnt)
}

func TestFanoutRequeuesStaleClaims(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "celeb")
	l := newTestLedger(db)
	ctx := context.Background()

	postID, err := l.CreatePost(ctx, "celeb", "orphaned claim")
	require.NoError(t, err)

	// 模拟 worker 崩溃：认领留在 processing，没有人再碰它
	stale := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&model.Outbox{}).Where("post_id = ?", postID).
		Updates(map[string]any{"status": "processing", "claimed_at": stale}).Error)

	w := NewFanoutWorker(db, repository.NewFanRepository(db), 1, 100, 10, time.Millisecond, time.Minute)
	require.NoError(t, w.ProcessOnce(ctx))

	var out model.Outbox
	require.NoError(t, db.First(&out, "post_id = ?", postID).Error)
	require.Equal(t, "done", out.Status)
}

func TestReplicatorMirrorsFollowEdges(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "alice")
	mustUser(t, db, "bob")

	fanRepo := repository.NewFanRepository(db)
	rep := NewFanReplicator(fanRepo, 16)
	stop := rep.Start(1)
	defer stop(context.Background())

	l := NewLedger(db, NewStatsSynchronizer(), rep, nil, 0)
	ctx := context.Background()
	require.NoError(t, l.Follow(ctx, "bob", "alice"))

	waitFor := func(want int64) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			var cnt int64
			require.NoError(t, db.Model(&model.Fan{}).
				Where("user_id = ? AND fan_id = ?", "alice", "bob").Count(&cnt).Error)
			if cnt == want {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("fan edge never reached count %d", want)
	}
	waitFor(1)

	require.NoError(t, l.Unfollow(ctx, "bob", "alice"))
	waitFor(0)
}
