package service

import (
	"context"

	"github.com/d60-Lab/social-feed/internal/cache"
	"github.com/d60-Lab/social-feed/internal/feed"
	"github.com/d60-Lab/social-feed/internal/model"
)

// FeedService 在游标引擎前面套一层首页缓存；带游标的请求永远直达
// 引擎（游标页无法安全缓存，底层集合在变）
type FeedService struct {
	engine      *feed.Engine
	cache       *cache.FeedCache
	searchLimit int
}

func NewFeedService(engine *feed.Engine, feedCache *cache.FeedCache, searchLimit int) *FeedService {
	if searchLimit <= 0 {
		searchLimit = 50
	}
	return &FeedService{engine: engine, cache: feedCache, searchLimit: searchLimit}
}

// Page 解析游标并取一页；token 为空表示从头开始
func (s *FeedService) Page(ctx context.Context, token string, pageSize int) ([]*model.Post, string, error) {
	var cur *feed.Cursor
	if token != "" {
		c, err := feed.Decode(token)
		if err != nil {
			return nil, "", err
		}
		cur = &c
	}

	// 版本号在查询前捕获：查询期间若有 Invalidate，写入落在旧版本键上
	// 成为孤儿，绝不会以新版本的身份被读到
	var ver int64
	if cur == nil && s.cache != nil {
		ver = s.cache.Version(ctx)
		if posts, next, ok := s.cache.GetFirstPage(ctx, pageSize, ver); ok {
			return posts, next, nil
		}
	}

	posts, next, err := s.engine.Page(ctx, cur, pageSize)
	if err != nil {
		return nil, "", err
	}
	nextToken := ""
	if next != nil {
		nextToken = feed.Encode(*next)
	}
	if cur == nil && s.cache != nil {
		s.cache.SetFirstPage(ctx, pageSize, ver, posts, nextToken)
	}
	return posts, nextToken, nil
}

// Search 搜索路径，只被 Search Coalescer 消费，与滚动分页互斥
func (s *FeedService) Search(ctx context.Context, query string) ([]*model.Post, error) {
	return s.engine.Search(ctx, query, s.searchLimit)
}

// Timeline 个人时间线分页，同一套游标契约
func (s *FeedService) Timeline(ctx context.Context, userID, token string, pageSize int) ([]*model.Post, string, error) {
	var cur *feed.Cursor
	if token != "" {
		c, err := feed.Decode(token)
		if err != nil {
			return nil, "", err
		}
		cur = &c
	}
	posts, next, err := s.engine.TimelinePage(ctx, userID, cur, pageSize)
	if err != nil {
		return nil, "", err
	}
	nextToken := ""
	if next != nil {
		nextToken = feed.Encode(*next)
	}
	return posts, nextToken, nil
}
