package middleware

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// InjectDB 把数据库句柄放进请求上下文，供模型层取用
func InjectDB(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("db", db)
		c.Next()
	}
}
