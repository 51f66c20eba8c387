package handlers

import (
	"fmt"
	"time"

	"NeighborSafe/internal/models"
	"NeighborSafe/internal/service"
	"NeighborSafe/pkg/cache"
	"NeighborSafe/pkg/config"
	"NeighborSafe/pkg/errors"
	"NeighborSafe/pkg/geocode"
	"NeighborSafe/pkg/metrics"
	"NeighborSafe/pkg/middleware"
	"NeighborSafe/pkg/response"
	"NeighborSafe/pkg/sse"
	"NeighborSafe/pkg/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handlers struct {
	db       *gorm.DB
	resolver *service.CorrelationResolver
	status   *service.StatusService
	fanout   *service.FanoutNotifier
	geocoder geocode.Reverser
	hub      *websocket.Hub
	sseHub   *sse.Hub
	cache    cache.Cache
	metrics  *metrics.Metrics
	limiter  *middleware.RateLimiter
}

func NewHandlers(
	db *gorm.DB,
	resolver *service.CorrelationResolver,
	status *service.StatusService,
	fanout *service.FanoutNotifier,
	geocoder geocode.Reverser,
	hub *websocket.Hub,
	sseHub *sse.Hub,
	c cache.Cache,
	m *metrics.Metrics,
	limiter *middleware.RateLimiter,
) *Handlers {
	return &Handlers{
		db:       db,
		resolver: resolver,
		status:   status,
		fanout:   fanout,
		geocoder: geocoder,
		hub:      hub,
		sseHub:   sseHub,
		cache:    c,
		metrics:  m,
		limiter:  limiter,
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	r := engine.Group(config.GlobalConfig.APIPrefix)

	// Register Global Singleton DB
	r.Use(middleware.InjectDB(h.db))
	if h.limiter != nil {
		r.Use(h.limiter.Middleware())
	}
	if h.metrics != nil {
		r.Use(metrics.MonitorMiddleware(h.metrics))
	}

	h.registerSystemRoutes(r)
	h.registerAuthRoutes(r)
	h.registerPanicRoutes(r)
	h.registerAlertRoutes(r)
	h.registerContactRoutes(r)
	h.registerNotificationRoutes(r)
	h.registerRealtimeRoutes(r)
}

func (h *Handlers) registerAuthRoutes(r *gin.RouterGroup) {
	auth := r.Group(config.GlobalConfig.AuthPrefix)
	{
		auth.POST("/register", h.handleUserSignup)
		auth.POST("/login", h.handleUserSignin)
		auth.GET("/logout", models.AuthRequired, h.handleUserLogout)
		auth.GET("/info", models.AuthRequired, h.handleUserInfo)
	}
}

func (h *Handlers) registerPanicRoutes(r *gin.RouterGroup) {
	p := r.Group("/panic", models.AuthRequired)
	{
		// 触发必须幂等，客户端重试不能造成二次扩散。
		// 幂等键按用户隔离：不同用户的相同请求体是两次独立求助。
		p.POST("", middleware.IdempotencyMiddleware(middleware.IdempotencyConfig{
			TTL: 5 * time.Minute,
			Scope: func(c *gin.Context) string {
				if user := models.CurrentUser(c); user != nil {
					return fmt.Sprintf("u%d", user.ID)
				}
				return c.ClientIP()
			},
		}), h.handlePanicTrigger)
		p.GET("/recent", h.handlePanicRecent)
		p.GET("/:id", h.handlePanicGet)
		p.POST("/:id/resolve", h.handlePanicResolve)
	}
}

func (h *Handlers) registerAlertRoutes(r *gin.RouterGroup) {
	a := r.Group("/alerts", models.AuthRequired)
	{
		a.GET("", h.handleAlertList)
		a.POST("", h.handleAlertCreate)
		a.GET("/:id", h.handleAlertGet)
		a.PUT("/:id/status", h.handleAlertStatusUpdate)
		a.GET("/:id/responses", h.handleAlertResponses)
		a.POST("/:id/responses", h.handleAlertRespond)
	}
}

func (h *Handlers) registerContactRoutes(r *gin.RouterGroup) {
	c := r.Group("/contacts", models.AuthRequired)
	{
		c.GET("", h.handleContactList)
		c.POST("", h.handleContactCreate)
		c.PUT("/:id", h.handleContactUpdate)
		c.DELETE("/:id", h.handleContactDelete)
	}
}

func (h *Handlers) registerNotificationRoutes(r *gin.RouterGroup) {
	n := r.Group("/notifications", models.AuthRequired)
	{
		n.GET("", h.handleNotificationList)
		n.GET("/unread-count", h.handleNotificationUnreadCount)
		n.PUT("/:id/read", h.handleNotificationMarkRead)
		n.PUT("/read-all", h.handleNotificationMarkAllRead)
	}
}

// failWith 按错误分类码映射HTTP状态
func failWith(c *gin.Context, err error) {
	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		response.FailWithStatus(c, 404, errors.GetMessage(err), nil)
	case errors.CodePermission:
		response.FailWithStatus(c, 403, errors.GetMessage(err), nil)
	case errors.CodeValidation:
		response.FailWithStatus(c, 422, errors.GetMessage(err), nil)
	case errors.CodeDependency:
		response.FailWithStatus(c, 502, errors.GetMessage(err), nil)
	default:
		response.FailWithStatus(c, 500, errors.GetMessage(err), nil)
	}
}
