package geocode

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Reverser 逆地理编码接口，坐标换可读地址
type Reverser interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}

// Client 逆地理编码 HTTP 客户端。尽力而为：失败不阻塞警报创建，
// 调用方降级为裸坐标。
type Client struct {
	client *resty.Client
	url    string
}

type reverseResponse struct {
	Address string `json:"address"`
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		client: resty.New().SetTimeout(timeout),
		url:    url,
	}
}

// Reverse 坐标转地址
func (c *Client) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	if c.url == "" {
		return "", fmt.Errorf("geocode url not configured")
	}
	var out reverseResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("lat", fmt.Sprintf("%f", lat)).
		SetQueryParam("lng", fmt.Sprintf("%f", lng)).
		SetResult(&out).
		Get(c.url)
	if err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("reverse geocode: status %d", resp.StatusCode())
	}
	return out.Address, nil
}

// FallbackAddress 逆编码失败时的降级地址（裸坐标文本）
func FallbackAddress(lat, lng float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lng)
}
