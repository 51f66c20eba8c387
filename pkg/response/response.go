package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body 统一响应结构
type Body struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Success 业务成功响应
func Success(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Body{Code: 0, Message: message, Data: data})
}

// Fail 业务失败响应（HTTP 200，业务码非 0）
func Fail(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Body{Code: 1, Message: message, Data: data})
}

// FailWithStatus 携带 HTTP 状态码的失败响应
func FailWithStatus(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Body{Code: 1, Message: message, Data: data})
}
