// Package rest는 봇 관리 서버의 REST API 클라이언트를 구현합니다.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/assist-by/cockpit/internal/backend"
)

const (
	// DefaultBaseURL은 개발 서버 기본 주소입니다
	DefaultBaseURL = "http://localhost:8000/api/v1"
	// DefaultTimeout은 모든 요청에 적용되는 기본 제한 시간입니다
	DefaultTimeout = 10 * time.Second

	maxBodySize = 4 << 20
)

// TokenSource는 현재 활성화된 인증 토큰을 읽기 전용으로 제공합니다
type TokenSource interface {
	Token() string
}

// TokenFunc는 함수를 TokenSource로 사용할 수 있게 합니다
type TokenFunc func() string

// Token은 TokenSource를 구현합니다
func (f TokenFunc) Token() string { return f() }

type noToken struct{}

func (noToken) Token() string { return "" }

// Client는 봇 관리 서버 API 클라이언트를 구현합니다
type Client struct {
	baseURL        string
	timeout        time.Duration
	httpClient     *http.Client
	tokens         TokenSource
	onUnauthorized func(token string)
	logger         *slog.Logger
}

// ClientOption은 클라이언트 생성 옵션을 정의합니다
type ClientOption func(*Client)

// WithTimeout은 요청 제한 시간을 설정합니다
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithBaseURL은 기본 URL을 설정합니다
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient는 내부 HTTP 클라이언트를 교체합니다
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTokenSource는 인증 토큰 공급자를 설정합니다
func WithTokenSource(ts TokenSource) ClientOption {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithUnauthorizedHandler는 토큰을 실은 요청이 인증 실패했을 때 호출될 함수를 설정합니다.
// 함수는 거부된 요청에 실렸던 토큰을 받습니다.
func WithUnauthorizedHandler(fn func(token string)) ClientOption {
	return func(c *Client) {
		c.onUnauthorized = fn
	}
}

// WithLogger는 로거를 설정합니다
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient는 새로운 API 클라이언트를 생성합니다
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
		tokens:     noToken{},
		logger:     slog.Default(),
	}

	// 옵션 적용
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient.Timeout == 0 || c.httpClient.Timeout > c.timeout {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}

	return c
}

// BaseURL은 설정된 기본 URL을 반환합니다
func (c *Client) BaseURL() string {
	return c.baseURL
}

// requestConfig는 요청마다 현재 세션 상태로부터 새로 만들어지는 불변 설정입니다
type requestConfig struct {
	token     string
	requestID string
}

func (c *Client) newRequestConfig() requestConfig {
	return requestConfig{
		token:     c.tokens.Token(),
		requestID: uuid.NewString(),
	}
}

// doRequest는 HTTP 요청을 한 번 실행하고 응답을 out에 디코딩합니다. 재시도하지 않습니다.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, out any) error {
	op := method + " " + endpoint
	cfg := c.newRequestConfig()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &backend.Error{Kind: backend.KindValidation, Op: op, Message: "요청 본문 생성 실패", Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	// 요청 생성
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return &backend.Error{Kind: backend.KindNetwork, Op: op, Message: "요청 생성 실패", Err: err}
	}

	// 헤더 설정
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", cfg.requestID)
	if cfg.token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.token)
	}

	// 요청 실행
	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("API 요청 실패", "op", op, "request_id", cfg.requestID, "error", err)
		return classifyTransportError(op, err)
	}
	defer resp.Body.Close()

	// 응답 읽기
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return classifyTransportError(op, err)
	}

	c.logger.Debug("API 응답",
		"op", op,
		"status", resp.StatusCode,
		"request_id", cfg.requestID,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)

	// 상태 코드 확인
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newStatusError(op, resp.StatusCode, raw, cfg.token != "")
		if apiErr.Kind == backend.KindAuth && cfg.token != "" && c.onUnauthorized != nil {
			c.onUnauthorized(cfg.token)
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &backend.Error{
			Kind:    backend.KindDecode,
			Status:  resp.StatusCode,
			Op:      op,
			Message: "응답 파싱 실패",
			Err:     err,
		}
	}
	return nil
}

// classifyTransportError는 응답을 받지 못한 실패를 분류합니다
func classifyTransportError(op string, err error) *backend.Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &backend.Error{Kind: backend.KindTimeout, Op: op, Message: "요청 시간이 초과되었습니다", Err: err}
	}
	return &backend.Error{Kind: backend.KindNetwork, Op: op, Message: "서버에 연결할 수 없습니다", Err: err}
}

// newStatusError는 실패 응답을 정규화합니다
func newStatusError(op string, status int, body []byte, withToken bool) *backend.Error {
	e := &backend.Error{Status: status, Op: op, Message: serverMessage(body)}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = backend.KindAuth
	case status == http.StatusForbidden && withToken:
		e.Kind = backend.KindAuth
	case status >= 500:
		e.Kind = backend.KindServer
	default:
		e.Kind = backend.KindValidation
	}

	if e.Message == "" {
		e.Message = backend.FallbackMessage
	}
	e.Err = fmt.Errorf("HTTP %d", status)
	return e
}

// serverMessage는 서버 응답 본문에서 사람이 읽을 메시지를 추출합니다.
// {"detail": "..."}, {"detail": [{"msg": "..."}]}, {"message": "..."}, {"error": "..."} 형태를 지원합니다.
func serverMessage(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	if len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil && s != "" {
			return s
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(payload.Detail, &items); err == nil && len(items) > 0 && items[0].Msg != "" {
			return items[0].Msg
		}
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
