package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/social-feed/pkg/response"
)

// Feed 全局 feed 分页；cursor 为空表示从头开始，next_cursor 为空表示到底
// @Summary 全局 feed
// @Tags feed
// @Param cursor query string false "上一页返回的游标"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Failure 400 {object} response.Response
// @Router /api/v1/feed [get]
func (h *Handler) Feed(c *gin.Context) {
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(h.pageSize)))
	items, next, err := h.feedSvc.Page(c.Request.Context(), c.Query("cursor"), pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	data := gin.H{"items": items}
	if next != "" {
		data["next_cursor"] = next
	}
	response.Success(c, data)
}

// SearchFeed 搜索路径；只被客户端的 Search Coalescer 调用，
// 不参与滚动分页
// @Summary 搜索帖子
// @Tags feed
// @Param q query string true "查询词"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/feed/search [get]
func (h *Handler) SearchFeed(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		response.BadRequest(c, "q is required")
		return
	}
	items, err := h.feedSvc.Search(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"items": items})
}

// Timeline 个人时间线（fanout 产物）分页
// @Summary 个人时间线
// @Tags feed
// @Param user_id path string true "用户ID"
// @Param cursor query string false "上一页返回的游标"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/timeline/{user_id} [get]
func (h *Handler) Timeline(c *gin.Context) {
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(h.pageSize)))
	items, next, err := h.feedSvc.Timeline(c.Request.Context(), c.Param("user_id"), c.Query("cursor"), pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	data := gin.H{"items": items}
	if next != "" {
		data["next_cursor"] = next
	}
	response.Success(c, data)
}
