package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/social-feed/pkg/feederr"
)

// Response 统一响应结构
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "ok", Data: data})
}

func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Code: http.StatusBadRequest, Message: msg})
}

func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Response{Code: http.StatusNotFound, Message: msg})
}

func Forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, Response{Code: http.StatusForbidden, Message: msg})
}

func Unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, Response{Code: http.StatusUnauthorized, Message: msg})
}

func InternalError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, Response{Code: http.StatusInternalServerError, Message: err.Error()})
}

// Error 按错误分类映射 HTTP 状态码
func Error(c *gin.Context, err error) {
	switch feederr.KindOf(err) {
	case feederr.KindInvalidOperation:
		BadRequest(c, err.Error())
	case feederr.KindNotFound:
		NotFound(c, err.Error())
	case feederr.KindForbidden:
		Forbidden(c, err.Error())
	case feederr.KindTimeout:
		c.JSON(http.StatusGatewayTimeout, Response{Code: http.StatusGatewayTimeout, Message: err.Error()})
	default:
		InternalError(c, err)
	}
}
