package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// SubscriptionDetail 网关订阅详情，用于补全事件缺失的字段
type SubscriptionDetail struct {
	ID          string  `json:"id"`
	Customer    string  `json:"customer"`
	Status      string  `json:"status"`
	Cycle       string  `json:"cycle"`
	Description string  `json:"description"`
	Value       float64 `json:"value"`
	NextDueDate string  `json:"nextDueDate"`
	EndDate     string  `json:"endDate"`
}

type Client struct {
	baseURL string
	apiKey  string
	http    *fasthttp.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &fasthttp.Client{
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// GetSubscription 查询网关订阅详情。调用方把失败当作可忽略的补充信息缺失，
// 不因此中断事件处理。
func (c *Client) GetSubscription(subscriptionID string) (*SubscriptionDetail, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/subscriptions/%s", c.baseURL, subscriptionID))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("access_token", c.apiKey)

	if err := c.http.DoTimeout(req, resp, 10*time.Second); err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode())
	}

	detail := &SubscriptionDetail{}
	if err := json.Unmarshal(resp.Body(), detail); err != nil {
		return nil, fmt.Errorf("failed to decode subscription detail: %w", err)
	}
	return detail, nil
}

// ParseDate 网关日期格式为 yyyy-MM-dd
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
