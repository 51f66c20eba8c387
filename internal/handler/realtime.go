package handlers

import (
	"fmt"
	"time"

	"NeighborSafe/internal/models"
	"NeighborSafe/pkg/websocket"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) registerRealtimeRoutes(r *gin.RouterGroup) {
	rt := r.Group("/realtime", models.AuthRequired)
	{
		rt.GET("/ws", h.handleWebSocket)
		rt.GET("/events", h.handleSSE)
	}
}

// handleWebSocket 升级连接。客户端连上后发 join_group 按表名订阅，
// 之后按分组收到 change 帧。
func (h *Handlers) handleWebSocket(c *gin.Context) {
	user := models.CurrentUser(c)
	websocket.HandleWebSocket(h.hub, c.Writer, c.Request, fmt.Sprintf("%d", user.ID))
	if h.metrics != nil {
		h.metrics.SetRealtimeConnections(h.hub.GetConnectionCount())
	}
}

// handleSSE 降级通道，?table= 指定订阅的表
func (h *Handlers) handleSSE(c *gin.Context) {
	user := models.CurrentUser(c)
	clientID := fmt.Sprintf("%d-%d", user.ID, time.Now().UnixNano())
	h.sseHub.Serve(c, clientID)
}
