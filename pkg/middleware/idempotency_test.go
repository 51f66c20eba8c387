package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newIdemRouter(cfg IdempotencyConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/panic", IdempotencyMiddleware(cfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func postWithKey(r *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/panic", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyDuplicateKeyRejected(t *testing.T) {
	r := newIdemRouter(IdempotencyConfig{TTL: time.Minute})

	assert.Equal(t, http.StatusOK, postWithKey(r, "abc-123", `{}`).Code)
	assert.Equal(t, http.StatusConflict, postWithKey(r, "abc-123", `{}`).Code)
	// 不同的键互不影响
	assert.Equal(t, http.StatusOK, postWithKey(r, "abc-124", `{}`).Code)
}

func TestIdempotencyBodyHashFallback(t *testing.T) {
	r := newIdemRouter(IdempotencyConfig{TTL: time.Minute})

	// 无请求头时以请求体哈希作为幂等键
	assert.Equal(t, http.StatusOK, postWithKey(r, "", `{"situationType":"fire"}`).Code)
	assert.Equal(t, http.StatusConflict, postWithKey(r, "", `{"situationType":"fire"}`).Code)
	assert.Equal(t, http.StatusOK, postWithKey(r, "", `{"situationType":"flood"}`).Code)
}

func TestIdempotencyScopeSeparatesCallers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/panic", IdempotencyMiddleware(IdempotencyConfig{
		TTL:   time.Minute,
		Scope: func(c *gin.Context) string { return c.GetHeader("X-User") },
	}), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	post := func(user, body string) int {
		req := httptest.NewRequest(http.MethodPost, "/panic", strings.NewReader(body))
		req.Header.Set("X-User", user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	// 两个用户提交字节相同的请求体，互不挡掉
	assert.Equal(t, http.StatusOK, post("u1", `{"situationType":"fire"}`))
	assert.Equal(t, http.StatusOK, post("u2", `{"situationType":"fire"}`))
	// 同一用户的重复提交仍被拒绝，带键的路径同样隔离
	assert.Equal(t, http.StatusConflict, post("u1", `{"situationType":"fire"}`))
}

func TestIdempotencyKeyExpires(t *testing.T) {
	r := newIdemRouter(IdempotencyConfig{TTL: 30 * time.Millisecond})

	assert.Equal(t, http.StatusOK, postWithKey(r, "short-lived", `{}`).Code)
	time.Sleep(60 * time.Millisecond)
	// 窗口过后同一个键可以再次提交
	assert.Equal(t, http.StatusOK, postWithKey(r, "short-lived", `{}`).Code)
}
