package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/mssola/user_agent"
)

// OperationRecord 一次写操作的审计信息
type OperationRecord struct {
	Action    string // HTTP 方法
	Target    string // API 路径
	IPAddress string
	Device    string
	Browser   string
	OS        string
}

// OperationSink 消费审计记录，由上层接到持久化
type OperationSink func(c *gin.Context, record OperationRecord)

// OperationLogMiddleware 记录写操作的审计日志。
// 只记录会改变数据的方法，读请求不落库。
func OperationLogMiddleware(sink OperationSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		switch c.Request.Method {
		case "POST", "PUT", "PATCH", "DELETE":
		default:
			return
		}
		if sink == nil {
			return
		}

		ua := user_agent.New(c.GetHeader("User-Agent"))
		browser, version := ua.Browser()

		sink(c, OperationRecord{
			Action:    c.Request.Method,
			Target:    c.Request.URL.Path,
			IPAddress: c.ClientIP(),
			Device:    ua.Platform(),
			Browser:   browser + version,
			OS:        ua.OS(),
		})
	}
}
