package handlers

import (
	"net/http"

	"NeighborSafe/internal/models"
	"NeighborSafe/pkg/middleware"
	"NeighborSafe/pkg/response"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	r.GET("/health", h.handleHealthCheck)
	system := r.Group("/system", models.AuthRequired, moderatorRequired)
	{
		system.GET("/rate-limit", h.handleGetRateLimiterConfig)
		system.PUT("/rate-limit", h.handleUpdateRateLimiterConfig)
	}
}

func moderatorRequired(c *gin.Context) {
	user := models.CurrentUser(c)
	if user == nil || !user.IsModerator {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "moderator only"})
		return
	}
	c.Next()
}

// handleHealthCheck 健康检查接口
func (h *Handlers) handleHealthCheck(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
		return
	}
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handlers) handleGetRateLimiterConfig(c *gin.Context) {
	if h.limiter == nil {
		response.Fail(c, "rate limiter disabled", nil)
		return
	}
	response.Success(c, "success", gin.H{"config": h.limiter.Config()})
}

// handleUpdateRateLimiterConfig 更新限流配置
func (h *Handlers) handleUpdateRateLimiterConfig(c *gin.Context) {
	if h.limiter == nil {
		response.Fail(c, "rate limiter disabled", nil)
		return
	}
	var cfg middleware.RateLimiterConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}
	h.limiter.UpdateConfig(cfg)
	response.Success(c, "rate limiter config updated", nil)
}
