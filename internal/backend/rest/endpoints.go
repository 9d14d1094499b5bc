package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/assist-by/cockpit/internal/backend"
	"github.com/assist-by/cockpit/internal/domain"
)

var _ backend.Backend = (*Client)(nil)

// Login은 이메일/비밀번호를 토큰으로 교환합니다
func (c *Client) Login(ctx context.Context, email, password string) (*domain.LoginResponse, error) {
	var resp domain.LoginResponse
	req := domain.LoginRequest{Email: email, Password: password}
	if err := c.doRequest(ctx, http.MethodPost, "/auth/superuser/login", req, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &backend.Error{
			Kind:    backend.KindDecode,
			Status:  http.StatusOK,
			Op:      "POST /auth/superuser/login",
			Message: "응답에 토큰이 없습니다",
		}
	}
	if resp.TokenType != "" && !strings.EqualFold(resp.TokenType, "bearer") {
		return nil, &backend.Error{
			Kind:    backend.KindDecode,
			Status:  http.StatusOK,
			Op:      "POST /auth/superuser/login",
			Message: fmt.Sprintf("지원하지 않는 토큰 유형: %s", resp.TokenType),
		}
	}
	return &resp, nil
}

// CurrentUser는 인증된 사용자 정보를 조회합니다
func (c *Client) CurrentUser(ctx context.Context) (*domain.UserProfile, error) {
	var profile domain.UserProfile
	if err := c.doRequest(ctx, http.MethodGet, "/users/me/full", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Portfolio는 자산별 평가액을 조회합니다
func (c *Client) Portfolio(ctx context.Context) ([]domain.PortfolioAsset, error) {
	var assets []domain.PortfolioAsset
	if err := c.doRequest(ctx, http.MethodGet, "/users/me/portfolio", nil, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// ListBots는 봇 목록을 조회합니다
func (c *Client) ListBots(ctx context.Context) ([]domain.Bot, error) {
	var bots []domain.Bot
	if err := c.doRequest(ctx, http.MethodGet, "/bots/", nil, &bots); err != nil {
		return nil, err
	}
	return bots, nil
}

// GetBot은 봇 상세 정보를 조회합니다
func (c *Client) GetBot(ctx context.Context, id int64) (*domain.Bot, error) {
	var bot domain.Bot
	if err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/bots/%d", id), nil, &bot); err != nil {
		return nil, err
	}
	return &bot, nil
}

// BotLogs는 봇의 체결 기록을 조회합니다
func (c *Client) BotLogs(ctx context.Context, id int64) ([]domain.TradeLog, error) {
	var logs []domain.TradeLog
	if err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/bots/%d/logs", id), nil, &logs); err != nil {
		return nil, err
	}
	for i := range logs {
		if logs[i].BotID == 0 {
			logs[i].BotID = id
		}
	}
	return logs, nil
}

// CreateBot은 새 봇을 생성합니다
func (c *Client) CreateBot(ctx context.Context, req domain.CreateBotRequest) (*domain.Bot, error) {
	var bot domain.Bot
	if err := c.doRequest(ctx, http.MethodPost, "/bots/", req, &bot); err != nil {
		return nil, err
	}
	if bot.ID == 0 {
		return nil, &backend.Error{
			Kind:    backend.KindDecode,
			Status:  http.StatusCreated,
			Op:      "POST /bots/",
			Message: "응답에 봇 ID가 없습니다",
		}
	}
	return &bot, nil
}

// StartBot은 봇을 시작합니다
func (c *Client) StartBot(ctx context.Context, id int64) error {
	return c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/bots/%d/start", id), nil, nil)
}

// StopBot은 봇을 중지합니다
func (c *Client) StopBot(ctx context.Context, id int64) error {
	return c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/bots/%d/stop", id), nil, nil)
}

// WalletBalances는 지갑 잔고를 조회합니다
func (c *Client) WalletBalances(ctx context.Context) ([]domain.WalletBalance, error) {
	var balances []domain.WalletBalance
	if err := c.doRequest(ctx, http.MethodGet, "/wallet/balances", nil, &balances); err != nil {
		return nil, err
	}
	return balances, nil
}

// WalletTransactions는 거래 내역을 조회합니다
func (c *Client) WalletTransactions(ctx context.Context) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	if err := c.doRequest(ctx, http.MethodGet, "/wallet/transactions", nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// DepositAddress는 자산 입금 주소를 조회합니다
func (c *Client) DepositAddress(ctx context.Context, asset string) (*domain.DepositAddress, error) {
	var addr domain.DepositAddress
	endpoint := "/wallet/deposit/address/" + url.PathEscape(asset)
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &addr); err != nil {
		return nil, err
	}
	if addr.Asset == "" {
		addr.Asset = asset
	}
	return &addr, nil
}
