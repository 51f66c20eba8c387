package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimiterConfig 限流配置
//
// Rate: "100-M"、PerRouteRates: {"/api/panic": "10-M"}
// SkipPaths: ["/health", "/metrics"] 前缀匹配
type RateLimiterConfig struct {
	Rate          string            `json:"rate"`
	PerRouteRates map[string]string `json:"per_route_rates"`
	SkipPaths     []string          `json:"skip_paths"`
	AddHeaders    bool              `json:"add_headers"`
	DenyStatus    int               `json:"deny_status"`
	DenyMessage   string            `json:"deny_message"`
}

// RateLimiter 面向实例的限流器，按速率字符串缓存 limiter
type RateLimiter struct {
	cfg            *RateLimiterConfig
	store          limiter.Store
	limitersByRate map[string]*limiter.Limiter
	mu             sync.RWMutex
}

// NewRateLimiter 构造函数，store 为空时使用内存存储
func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) *RateLimiter {
	if store == nil {
		store = memory.NewStore()
	}
	return &RateLimiter{
		cfg:            &cfg,
		store:          store,
		limitersByRate: make(map[string]*limiter.Limiter),
	}
}

// Config 当前限流配置快照
func (l *RateLimiter) Config() RateLimiterConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return *l.cfg
}

// UpdateConfig 运行时更新限流配置
func (l *RateLimiter) UpdateConfig(cfg RateLimiterConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = &cfg
	l.limitersByRate = make(map[string]*limiter.Limiter)
}

func (l *RateLimiter) limiterFor(rate string) (*limiter.Limiter, error) {
	l.mu.RLock()
	if lim, ok := l.limitersByRate[rate]; ok {
		l.mu.RUnlock()
		return lim, nil
	}
	l.mu.RUnlock()

	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	lim := limiter.New(l.store, parsed)

	l.mu.Lock()
	l.limitersByRate[rate] = lim
	l.mu.Unlock()
	return lim, nil
}

// Middleware 返回gin中间件
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := l.Config()
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if strings.HasPrefix(path, skip) {
				c.Next()
				return
			}
		}

		rate := cfg.Rate
		if override, ok := cfg.PerRouteRates[path]; ok {
			rate = override
		}
		if rate == "" {
			c.Next()
			return
		}

		lim, err := l.limiterFor(rate)
		if err != nil {
			c.Next()
			return
		}

		key := c.ClientIP() + ":" + path
		lctx, err := lim.Get(c.Request.Context(), key)
		if err != nil {
			c.Next()
			return
		}

		if cfg.AddHeaders {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))
		}

		if lctx.Reached {
			status := cfg.DenyStatus
			if status == 0 {
				status = http.StatusTooManyRequests
			}
			message := cfg.DenyMessage
			if message == "" {
				message = "too many requests"
			}
			c.AbortWithStatusJSON(status, gin.H{"error": message})
			return
		}
		c.Next()
	}
}
