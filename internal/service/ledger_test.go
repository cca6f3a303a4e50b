package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/pkg/database"
	"github.com/d60-Lab/social-feed/pkg/feederr"
)

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	// 内存库必须限制到单连接，否则每个连接各开一个库
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return db
}

func mustUser(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	require.NoError(t, db.Create(&model.User{
		ID: id, Username: "u-" + id, Email: id + "@example.com", Password: "x",
	}).Error)
}

func loadUser(t *testing.T, db *gorm.DB, id string) *model.User {
	t.Helper()
	var u model.User
	require.NoError(t, db.First(&u, "id = ?", id).Error)
	return &u
}

func newTestLedger(db *gorm.DB) *Ledger {
	return NewLedger(db, NewStatsSynchronizer(), nil, nil, 0)
}

func TestFollowSelfRejected(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "alice")
	l := newTestLedger(db)

	err := l.Follow(context.Background(), "alice", "alice")
	require.Equal(t, feederr.KindInvalidOperation, feederr.KindOf(err))
}

func TestFollowUnknownUser(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "alice")
	l := newTestLedger(db)

	err := l.Follow(context.Background(), "alice", "ghost")
	require.Equal(t, feederr.KindNotFound, feederr.KindOf(err))

	// 失败的操作不留任何痕迹
	require.Zero(t, loadUser(t, db, "alice").FollowingCount)
}

func TestFollowIdempotent(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "alice")
	mustUser(t, db, "bob")
	l := newTestLedger(db)
	ctx := context.Background()

	require.NoError(t, l.Follow(ctx, "alice", "bob"))
	require.NoError(t, l.Follow(ctx, "alice", "bob"))

	require.EqualValues(t, 1, loadUser(t, db, "alice").FollowingCount)
	require.EqualValues(t, 1, loadUser(t, db, "bob").FollowersCount)
}

func TestConcurrentFollowCountsOnce(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "alice")
	mustUser(t, db, "bob")
	l := newTestLedger(db)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- l.Follow(context.Background(), "alice", "bob")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.EqualValues(t, 1, loadUser(t, db, "alice").FollowingCount)
	require.EqualValues(t, 1, loadUser(t, db, "bob").FollowersCount)
	exists, err := repository.NewFollowRepository(db).Exists(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestUnfollowToggleNoDrift(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "alice")
	mustUser(t, db, "bob")
	l := newTestLedger(db)
	ctx := context.Background()

	// 未关注时 unfollow 幂等
	require.NoError(t, l.Unfollow(ctx, "alice", "bob"))
	require.Zero(t, loadUser(t, db, "bob").FollowersCount)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Follow(ctx, "alice", "bob"))
		require.NoError(t, l.Unfollow(ctx, "alice", "bob"))
	}
	require.NoError(t, l.Follow(ctx, "alice", "bob"))

	require.EqualValues(t, 1, loadUser(t, db, "alice").FollowingCount)
	require.EqualValues(t, 1, loadUser(t, db, "bob").FollowersCount)
}

func TestCreateAndDeletePostCounters(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "alice")
	l := newTestLedger(db)
	ctx := context.Background()

	postID, err := l.CreatePost(ctx, "alice", "hello world")
	require.NoError(t, err)
	require.EqualValues(t, 1, loadUser(t, db, "alice").PostsCount)

	// 事务内同时落地 outbox 事件
	var outCnt int64
	require.NoError(t, db.Model(&model.Outbox{}).Where("post_id = ?", postID).Count(&outCnt).Error)
	require.EqualValues(t, 1, outCnt)

	require.NoError(t, l.DeletePost(ctx, postID, "alice"))
	require.EqualValues(t, 0, loadUser(t, db, "alice").PostsCount)

	err = l.DeletePost(ctx, postID, "alice")
	require.Equal(t, feederr.KindNotFound, feederr.KindOf(err))
}

func TestDeletePostForbidden(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "alice")
	mustUser(t, db, "mallory")
	l := newTestLedger(db)
	ctx := context.Background()

	postID, err := l.CreatePost(ctx, "alice", "mine")
	require.NoError(t, err)

	err = l.DeletePost(ctx, postID, "mallory")
	require.Equal(t, feederr.KindForbidden, feederr.KindOf(err))
	require.EqualValues(t, 1, loadUser(t, db, "alice").PostsCount)
}

func TestDeletePostCascades(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "alice")
	mustUser(t, db, "bob")
	l := newTestLedger(db)
	ctx := context.Background()

	postID, err := l.CreatePost(ctx, "alice", "discuss")
	require.NoError(t, err)
	_, err = l.CreateComment(ctx, postID, "bob", "nice")
	require.NoError(t, err)
	require.NoError(t, l.SavePost(ctx, postID, "bob"))

	require.NoError(t, l.DeletePost(ctx, postID, "alice"))

	var comments, saves int64
	require.NoError(t, db.Model(&model.Comment{}).Where("post_id = ?", postID).Count(&comments).Error)
	require.NoError(t, db.Model(&model.PostSave{}).Where("post_id = ?", postID).Count(&saves).Error)
	require.Zero(t, comments)
	require.Zero(t, saves)
}

func TestSaveUnsaveIdempotent(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "alice")
	mustUser(t, db, "bob")
	l := newTestLedger(db)
	ctx := context.Background()

	postID, err := l.CreatePost(ctx, "alice", "keep this")
	require.NoError(t, err)

	require.NoError(t, l.SavePost(ctx, postID, "bob"))
	require.NoError(t, l.SavePost(ctx, postID, "bob"))
	var saves int64
	require.NoError(t, db.Model(&model.PostSave{}).Where("post_id = ?", postID).Count(&saves).Error)
	require.EqualValues(t, 1, saves)

	require.NoError(t, l.UnsavePost(ctx, postID, "bob"))
	require.NoError(t, l.UnsavePost(ctx, postID, "bob"))

	// 收藏不触碰任何计数器
	require.EqualValues(t, 1, loadUser(t, db, "alice").PostsCount)
}

func TestListSaved(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "alice")
	mustUser(t, db, "bob")
	l := newTestLedger(db)
	ctx := context.Background()

	p1, err := l.CreatePost(ctx, "alice", "first")
	require.NoError(t, err)
	p2, err := l.CreatePost(ctx, "alice", "second")
	require.NoError(t, err)
	require.NoError(t, l.SavePost(ctx, p1, "bob"))
	require.NoError(t, l.SavePost(ctx, p2, "bob"))

	ids, err := l.ListSaved(ctx, "bob", 1, 10)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{p1, p2}, ids)

	ids, err = l.ListSaved(ctx, "alice", 1, 10)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestCommentOnMissingPost(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "bob")
	l := newTestLedger(db)

	_, err := l.CreateComment(context.Background(), "nope", "bob", "hello?")
	require.Equal(t, feederr.KindNotFound, feederr.KindOf(err))
}

func TestListCommentsCountsOnRead(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "alice")
	mustUser(t, db, "bob")
	l := newTestLedger(db)
	ctx := context.Background()

	postID, err := l.CreatePost(ctx, "alice", "thread")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = l.CreateComment(ctx, postID, "bob", "reply")
		require.NoError(t, err)
	}

	items, total, err := l.ListComments(ctx, postID, 1, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, items, 2)
}

func TestDeactivateHidesPosts(t *testing.T) {
	db := setupServiceDB(t)
	mustUser(t, db, "alice")
	l := newTestLedger(db)
	ctx := context.Background()

	postID, err := l.CreatePost(ctx, "alice", "soon gone")
	require.NoError(t, err)

	require.NoError(t, l.Deactivate(ctx, "alice"))
	require.NotNil(t, loadUser(t, db, "alice").DeactivatedAt)

	var p model.Post
	require.NoError(t, db.First(&p, "id = ?", postID).Error)
	require.True(t, p.Hidden)

	// 重复注销幂等；注销账号不能再发帖
	require.NoError(t, l.Deactivate(ctx, "alice"))
	_, err = l.CreatePost(ctx, "alice", "zombie")
	require.Equal(t, feederr.KindNotFound, feederr.KindOf(err))
}
