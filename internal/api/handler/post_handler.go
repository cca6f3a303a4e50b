package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/social-feed/internal/api/middleware"
	"github.com/d60-Lab/social-feed/pkg/response"
)

type createPostRequest struct {
	AuthorID string `json:"author_id" binding:"required"`
	Content  string `json:"content" binding:"required"`
}

// CreatePost 发帖（帖子 + outbox 事件 + posts_count 同事务落地）
// @Summary 发帖
// @Tags 帖子
// @Accept json
// @Produce json
// @Param request body createPostRequest true "帖子内容"
// @Success 200 {object} response.Response{data=map[string]string}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	postID, err := h.ledger.CreatePost(c.Request.Context(), req.AuthorID, req.Content)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"post_id": postID})
}

// DeletePost 删帖；只有作者本人可删
// @Summary 删帖
// @Tags 帖子
// @Param id path string true "帖子ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{id} [delete]
func (h *Handler) DeletePost(c *gin.Context) {
	postID := c.Param("id")
	requester := middleware.ActorID(c)
	if requester == "" {
		requester = c.Query("requester_id")
	}
	if err := h.ledger.DeletePost(c.Request.Context(), postID, requester); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

type saveRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// SavePost 收藏帖子（幂等）
// @Summary 收藏帖子
// @Tags 帖子
// @Param id path string true "帖子ID"
// @Param request body saveRequest true "收藏者"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{id}/save [post]
func (h *Handler) SavePost(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.ledger.SavePost(c.Request.Context(), c.Param("id"), req.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// UnsavePost 取消收藏（幂等）
// @Summary 取消收藏
// @Tags 帖子
// @Param id path string true "帖子ID"
// @Param request body saveRequest true "收藏者"
// @Success 200 {object} response.Response
// @Router /api/v1/posts/{id}/unsave [post]
func (h *Handler) UnsavePost(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.ledger.UnsavePost(c.Request.Context(), c.Param("id"), req.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ListSaved 某用户收藏的帖子
// @Summary 收藏列表
// @Tags 帖子
// @Param id path string true "用户ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/users/{id}/saves [get]
func (h *Handler) ListSaved(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	ids, err := h.ledger.ListSaved(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": ids})
}

type createCommentRequest struct {
	AuthorID string `json:"author_id" binding:"required"`
	Body     string `json:"body" binding:"required"`
}

// CreateComment 评论
// @Summary 评论帖子
// @Tags 帖子
// @Param id path string true "帖子ID"
// @Param request body createCommentRequest true "评论内容"
// @Success 200 {object} response.Response{data=map[string]string}
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{id}/comments [post]
func (h *Handler) CreateComment(c *gin.Context) {
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	comment, err := h.ledger.CreateComment(c.Request.Context(), c.Param("id"), req.AuthorID, req.Body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"comment_id": comment.ID})
}

// ListComments 帖子的评论列表，总数读时统计
// @Summary 评论列表
// @Tags 帖子
// @Param id path string true "帖子ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/posts/{id}/comments [get]
func (h *Handler) ListComments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	items, total, err := h.ledger.ListComments(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"total": total, "page": page, "page_size": pageSize, "list": items})
}
