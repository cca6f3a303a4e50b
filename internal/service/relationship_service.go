package service

import (
	"context"

	"github.com/samber/lo"

	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/pkg/feederr"
)

// RelationshipService 关系链读服务；写路径统一走 Ledger
type RelationshipService interface {
	ListFollowing(ctx context.Context, userID string, page, pageSize int) ([]string, error)
	ListFans(ctx context.Context, userID string, page, pageSize int) ([]string, error)
	IsFollowing(ctx context.Context, fromUserID, toUserID string) (bool, error)
}

type relationshipService struct {
	followRepo repository.FollowRepository
	fanRepo    repository.FanRepository
}

func NewRelationshipService(followRepo repository.FollowRepository, fanRepo repository.FanRepository) RelationshipService {
	return &relationshipService{followRepo: followRepo, fanRepo: fanRepo}
}

func (s *relationshipService) ListFollowing(ctx context.Context, userID string, page, pageSize int) ([]string, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	items, err := s.followRepo.ListFollowings(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, feederr.FromDB("list following", err)
	}
	return lo.Map(items, func(f *model.Follow, _ int) string { return f.FolloweeID }), nil
}

func (s *relationshipService) ListFans(ctx context.Context, userID string, page, pageSize int) ([]string, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	items, err := s.fanRepo.ListFans(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, feederr.FromDB("list fans", err)
	}
	return lo.Map(items, func(f *model.Fan, _ int) string { return f.FanID }), nil
}

func (s *relationshipService) IsFollowing(ctx context.Context, fromUserID, toUserID string) (bool, error) {
	ok, err := s.followRepo.Exists(ctx, fromUserID, toUserID)
	if err != nil {
		return false, feederr.FromDB("check following", err)
	}
	return ok, nil
}
