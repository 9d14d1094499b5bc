package discord

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client는 Discord 웹훅으로 알림을 보냅니다
type Client struct {
	webhook      string
	errorWebhook string
	httpClient   *http.Client
	now          func() time.Time
}

// ClientOption은 클라이언트 생성 옵션을 정의합니다
type ClientOption func(*Client)

// WithTimeout은 HTTP 클라이언트의 타임아웃을 설정합니다
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithErrorWebhook은 에러 알림을 별도 채널로 보낼 웹훅을 설정합니다
func WithErrorWebhook(url string) ClientOption {
	return func(c *Client) {
		c.errorWebhook = url
	}
}

// WithHTTPClient는 HTTP 클라이언트를 교체합니다
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithClock은 임베드 타임스탬프에 사용할 시간 함수를 설정합니다
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient는 새로운 Discord 클라이언트를 생성합니다
func NewClient(webhook string, opts ...ClientOption) *Client {
	c := &Client{
		webhook:    webhook,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.errorWebhook == "" {
		c.errorWebhook = c.webhook
	}
	return c
}

// sendToWebhook은 메시지를 웹훅으로 전송합니다
func (c *Client) sendToWebhook(webhookURL string, msg WebhookMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("메시지 인코딩 실패: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("요청 생성 실패: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("웹훅 전송 실패: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("웹훅 응답 오류 (HTTP %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}
