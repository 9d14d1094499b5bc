// Package backend는 봇 관리 서버와의 상호작용 계약을 정의합니다.
package backend

import (
	"context"

	"github.com/assist-by/cockpit/internal/domain"
)

// Backend는 봇 관리 서버와의 상호작용을 위한 인터페이스입니다.
type Backend interface {
	// 인증
	Login(ctx context.Context, email, password string) (*domain.LoginResponse, error)
	CurrentUser(ctx context.Context) (*domain.UserProfile, error)

	// 포트폴리오
	Portfolio(ctx context.Context) ([]domain.PortfolioAsset, error)

	// 봇 조회
	ListBots(ctx context.Context) ([]domain.Bot, error)
	GetBot(ctx context.Context, id int64) (*domain.Bot, error)
	BotLogs(ctx context.Context, id int64) ([]domain.TradeLog, error)

	// 봇 변경
	CreateBot(ctx context.Context, req domain.CreateBotRequest) (*domain.Bot, error)
	StartBot(ctx context.Context, id int64) error
	StopBot(ctx context.Context, id int64) error

	// 지갑
	WalletBalances(ctx context.Context) ([]domain.WalletBalance, error)
	WalletTransactions(ctx context.Context) ([]domain.Transaction, error)
	DepositAddress(ctx context.Context, asset string) (*domain.DepositAddress, error)
}
