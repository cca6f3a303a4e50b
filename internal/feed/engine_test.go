package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/pkg/database"
)

func setupEngineDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return db
}

// seedPosts 从 base 开始每秒一条，返回按插入序的 ID（p0 最旧）
func seedPosts(t *testing.T, db *gorm.DB, n int) []string {
	t.Helper()
	base := time.Now().Add(-time.Duration(n+10) * time.Second).Truncate(time.Second)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("p%03d", i)
		ids[i] = id
		require.NoError(t, db.Create(&model.Post{
			ID: id, AuthorID: "author", Content: fmt.Sprintf("post %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}).Error)
	}
	return ids
}

func TestPageWalksNewestFirst(t *testing.T) {
	db := setupEngineDB(t)
	ids := seedPosts(t, db, 5)
	e := NewEngine(db, 20, 100)
	ctx := context.Background()

	posts, next, err := e.Page(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Equal(t, ids[4], posts[0].ID)
	require.Equal(t, ids[3], posts[1].ID)
	require.NotNil(t, next)

	posts, next, err = e.Page(ctx, next, 2)
	require.NoError(t, err)
	require.Equal(t, []string{ids[2], ids[1]}, []string{posts[0].ID, posts[1].ID})
	require.NotNil(t, next)

	posts, next, err = e.Page(ctx, next, 2)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, ids[0], posts[0].ID)
	require.Nil(t, next)
}

func TestPageInsertAheadNeverDuplicates(t *testing.T) {
	db := setupEngineDB(t)
	ids := seedPosts(t, db, 6)
	e := NewEngine(db, 20, 100)
	ctx := context.Background()

	first, next, err := e.Page(ctx, nil, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.NotNil(t, next)

	// 持有游标期间头部插入新帖
	require.NoError(t, db.Create(&model.Post{
		ID: "p-new", AuthorID: "author", Content: "fresh",
		CreatedAt: time.Now().Truncate(time.Second),
	}).Error)

	seen := map[string]bool{}
	for _, p := range first {
		seen[p.ID] = true
	}
	for cur := next; cur != nil; {
		posts, n, err := e.Page(ctx, cur, 3)
		require.NoError(t, err)
		for _, p := range posts {
			require.False(t, seen[p.ID], "post %s returned twice", p.ID)
			seen[p.ID] = true
		}
		cur = n
	}
	// 旧帖全部恰好一次；头部新帖不属于这个游标流
	for _, id := range ids {
		require.True(t, seen[id])
	}
	require.False(t, seen["p-new"])
}

func TestPageDeleteAheadIsSilent(t *testing.T) {
	db := setupEngineDB(t)
	ids := seedPosts(t, db, 6)
	e := NewEngine(db, 20, 100)
	ctx := context.Background()

	_, next, err := e.Page(ctx, nil, 2)
	require.NoError(t, err)
	require.NotNil(t, next)

	// 删掉游标前方的一条
	require.NoError(t, db.Delete(&model.Post{}, "id = ?", ids[2]).Error)

	posts, _, err := e.Page(ctx, next, 10)
	require.NoError(t, err)
	got := map[string]bool{}
	for _, p := range posts {
		got[p.ID] = true
	}
	require.False(t, got[ids[2]], "deleted post must simply be omitted")
	require.True(t, got[ids[3]])
	require.True(t, got[ids[0]])
}

func TestPageTieBreakByIDAscending(t *testing.T) {
	db := setupEngineDB(t)
	ts := time.Now().Add(-time.Hour).Truncate(time.Second)
	for _, id := range []string{"b", "c", "a"} {
		require.NoError(t, db.Create(&model.Post{ID: id, AuthorID: "author", Content: id, CreatedAt: ts}).Error)
	}
	e := NewEngine(db, 20, 100)
	ctx := context.Background()

	posts, next, err := e.Page(ctx, nil, 2)
	require.NoError(t, err)
	require.Equal(t, "a", posts[0].ID)
	require.Equal(t, "b", posts[1].ID)
	require.NotNil(t, next)

	posts, _, err = e.Page(ctx, next, 2)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "c", posts[0].ID)
}

func TestPageSkipsHiddenPosts(t *testing.T) {
	db := setupEngineDB(t)
	ids := seedPosts(t, db, 3)
	require.NoError(t, db.Model(&model.Post{}).Where("id = ?", ids[1]).Update("hidden", true).Error)

	e := NewEngine(db, 20, 100)
	posts, _, err := e.Page(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	for _, p := range posts {
		require.NotEqual(t, ids[1], p.ID)
	}
}

func TestSearchMatchesContentCaseInsensitive(t *testing.T) {
	db := setupEngineDB(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, db.Create(&model.Post{ID: "s1", AuthorID: "a", Content: "Hello Gopher", CreatedAt: base}).Error)
	require.NoError(t, db.Create(&model.Post{ID: "s2", AuthorID: "a", Content: "unrelated", CreatedAt: base.Add(time.Second)}).Error)
	require.NoError(t, db.Create(&model.Post{ID: "s3", AuthorID: "a", Content: "gopher again", CreatedAt: base.Add(2 * time.Second)}).Error)

	e := NewEngine(db, 20, 100)
	posts, err := e.Search(context.Background(), "GOPHER", 10)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Equal(t, "s3", posts[0].ID) // newest first
	require.Equal(t, "s1", posts[1].ID)
}

func TestTimelinePage(t *testing.T) {
	db := setupEngineDB(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("tp%d", i)
		ts := base.Add(time.Duration(i) * time.Second)
		require.NoError(t, db.Create(&model.Post{ID: id, AuthorID: "celeb", Content: id, CreatedAt: ts}).Error)
		require.NoError(t, db.Create(&model.Inbox{
			ID: fmt.Sprintf("in%d", i), UserID: "fan", PostID: id,
			Score: ts.UnixNano(), CreatedAt: ts,
		}).Error)
	}

	e := NewEngine(db, 20, 100)
	ctx := context.Background()
	posts, next, err := e.TimelinePage(ctx, "fan", nil, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"tp3", "tp2", "tp1"}, []string{posts[0].ID, posts[1].ID, posts[2].ID})
	require.NotNil(t, next)

	// 已删除帖子的 inbox 残留行被 join 掩掉
	require.NoError(t, db.Delete(&model.Post{}, "id = ?", "tp0").Error)
	posts, next, err = e.TimelinePage(ctx, "fan", next, 3)
	require.NoError(t, err)
	require.Empty(t, posts)
	require.Nil(t, next)
}
