package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// PanicContext 派发边缘函数收到的完整事件上下文，
// 用于驱动带外通道（短信/推送/邮件）。
type PanicContext struct {
	PanicEventID  string  `json:"panicEventId"`
	UserID        uint    `json:"userId"`
	DisplayName   string  `json:"displayName"`
	SituationType string  `json:"situationType"`
	Message       string  `json:"message,omitempty"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Address       string  `json:"address,omitempty"`
}

// Dispatcher 带外通道派发接口
type Dispatcher interface {
	DispatchPanic(ctx context.Context, pc *PanicContext) error
}

// EdgeDispatcher 通过 HTTP 调用派发边缘函数
type EdgeDispatcher struct {
	client *resty.Client
	url    string
}

// NewEdgeDispatcher 创建边缘函数派发客户端
func NewEdgeDispatcher(url string, timeout time.Duration) *EdgeDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0) // 派发失败只记录，不自动重试，避免重复告警
	return &EdgeDispatcher{client: client, url: url}
}

// DispatchPanic 推送完整求助上下文到边缘函数
func (d *EdgeDispatcher) DispatchPanic(ctx context.Context, pc *PanicContext) error {
	if d.url == "" {
		return fmt.Errorf("dispatch url not configured")
	}
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(pc).
		Post(d.url)
	if err != nil {
		return fmt.Errorf("dispatch panic %s: %w", pc.PanicEventID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("dispatch panic %s: status %d", pc.PanicEventID, resp.StatusCode())
	}
	return nil
}
