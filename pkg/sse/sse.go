package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Client 一条SSE订阅连接
type Client struct {
	id     string
	tables map[string]bool
	ch     chan string
	done   chan struct{}
}

// Hub 按表名分发行变更事件的SSE中心，
// 作为不支持WebSocket的客户端的备用通道
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	tables   map[string]map[string]bool // table -> clientID set
	interval time.Duration
	retryMs  int
}

func NewHub(interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Hub{
		clients:  make(map[string]*Client),
		tables:   make(map[string]map[string]bool),
		interval: interval,
		retryMs:  5000,
	}
}

func (h *Hub) addClient(id string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &Client{id: id, tables: make(map[string]bool), ch: make(chan string, 64), done: make(chan struct{})}
	h.clients[id] = c
	return c
}

func (h *Hub) removeClient(id string) {
	h.mu.Lock()
	if c, ok := h.clients[id]; ok {
		close(c.done)
		for t := range c.tables {
			delete(h.tables[t], id)
		}
		delete(h.clients, id)
	}
	h.mu.Unlock()
}

// Join 订阅一张表的变更
func (h *Hub) Join(id, table string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	c.tables[table] = true
	if h.tables[table] == nil {
		h.tables[table] = make(map[string]bool)
	}
	h.tables[table][id] = true
}

// PublishChange 把一条行变更推给该表的全部订阅者
func (h *Hub) PublishChange(table string, change interface{}) {
	b, err := json.Marshal(change)
	if err != nil {
		return
	}
	msg := fmt.Sprintf("event: change\ndata: %s\n\n", b)
	h.mu.RLock()
	ids := h.tables[table]
	for id := range ids {
		if c := h.clients[id]; c != nil {
			select {
			case c.ch <- msg:
			default:
			}
		}
	}
	h.mu.RUnlock()
}

// SubscriberCount 某张表当前的订阅连接数
func (h *Hub) SubscriberCount(table string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tables[table])
}

// Serve 以SSE流服务一条连接，table 查询参数指定订阅的表
func (h *Hub) Serve(c *gin.Context, clientID string) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.retryMs)

	client := h.addClient(clientID)
	defer h.removeClient(clientID)
	if table := c.Query("table"); table != "" {
		h.Join(clientID, table)
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}
	ping := time.NewTicker(h.interval)
	defer ping.Stop()

	for {
		select {
		case <-client.done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			fmt.Fprintf(c.Writer, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case msg := <-client.ch:
			c.Writer.Write([]byte(msg))
			flusher.Flush()
		}
	}
}
