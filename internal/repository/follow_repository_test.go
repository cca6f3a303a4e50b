package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/pkg/database"
)

func setupRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return db
}

func TestFollowCreateIsConditional(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	applied, err := repo.Create(ctx, "a", "b")
	require.NoError(t, err)
	require.True(t, applied)

	// 重复插入不生效也不报错
	applied, err = repo.Create(ctx, "a", "b")
	require.NoError(t, err)
	require.False(t, applied)

	exists, err := repo.Exists(ctx, "a", "b")
	require.NoError(t, err)
	require.True(t, exists)

	// 方向有区分
	exists, err = repo.Exists(ctx, "b", "a")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestFollowDeleteReportsEffect(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	applied, err := repo.Delete(ctx, "a", "b")
	require.NoError(t, err)
	require.False(t, applied)

	_, err = repo.Create(ctx, "a", "b")
	require.NoError(t, err)
	applied, err = repo.Delete(ctx, "a", "b")
	require.NoError(t, err)
	require.True(t, applied)
}

func TestFollowCounts(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.Create(ctx, fmt.Sprintf("fan%d", i), "celeb")
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, "fan0", "other")
	require.NoError(t, err)

	followers, err := repo.CountFollowers(ctx, "celeb")
	require.NoError(t, err)
	require.EqualValues(t, 3, followers)

	following, err := repo.CountFollowing(ctx, "fan0")
	require.NoError(t, err)
	require.EqualValues(t, 2, following)
}

func TestUserExistAllSkipsDeactivated(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		require.NoError(t, repo.Create(ctx, &model.User{
			ID: id, Username: "u-" + id, Email: id + "@example.com", Password: "x",
		}))
	}

	ok, err := repo.ExistAll(ctx, "a", "b")
	require.NoError(t, err)
	require.True(t, ok)

	applied, err := repo.Deactivate(ctx, "b")
	require.NoError(t, err)
	require.True(t, applied)

	// 注销的用户在存在性校验里视同不存在
	ok, err = repo.ExistAll(ctx, "a", "b")
	require.NoError(t, err)
	require.False(t, ok)

	// 重复注销不生效
	applied, err = repo.Deactivate(ctx, "b")
	require.NoError(t, err)
	require.False(t, applied)
}

func TestUserListIDsIsStable(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, repo.Create(ctx, &model.User{
			ID: id, Username: "u-" + id, Email: id + "@example.com", Password: "x",
		}))
	}

	ids, err := repo.ListIDs(ctx, 0, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)

	ids, err = repo.ListIDs(ctx, 2, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, ids)
}
