package handler

import (
	"github.com/d60-Lab/social-feed/internal/service"
)

// Handler 聚合所有 HTTP handler 的依赖
type Handler struct {
	ledger   *service.Ledger
	relSvc   service.RelationshipService
	feedSvc  *service.FeedService
	userSvc  *service.UserService
	pageSize int
}

func New(ledger *service.Ledger, relSvc service.RelationshipService, feedSvc *service.FeedService, userSvc *service.UserService, defaultPageSize int) *Handler {
	if defaultPageSize <= 0 {
		defaultPageSize = 20
	}
	return &Handler{ledger: ledger, relSvc: relSvc, feedSvc: feedSvc, userSvc: userSvc, pageSize: defaultPageSize}
}
