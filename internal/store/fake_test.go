package store

import (
	"context"
	"errors"
	"sync"

	"github.com/assist-by/cockpit/internal/backend"
	"github.com/assist-by/cockpit/internal/domain"
)

// fakeBackend는 함수 필드로 동작을 바꿀 수 있는 테스트용 서버입니다
type fakeBackend struct {
	mu sync.Mutex

	list   func(ctx context.Context) ([]domain.Bot, error)
	get    func(ctx context.Context, id int64) (*domain.Bot, error)
	logs   func(ctx context.Context, id int64) ([]domain.TradeLog, error)
	create func(ctx context.Context, req domain.CreateBotRequest) (*domain.Bot, error)
	start  func(ctx context.Context, id int64) error
	stop   func(ctx context.Context, id int64) error

	balances func(ctx context.Context) ([]domain.WalletBalance, error)
	txs      func(ctx context.Context) ([]domain.Transaction, error)
	address  func(ctx context.Context, asset string) (*domain.DepositAddress, error)

	calls map[string]int
}

func newFake() *fakeBackend {
	return &fakeBackend{calls: make(map[string]int)}
}

func (f *fakeBackend) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) ListBots(ctx context.Context) ([]domain.Bot, error) {
	f.hit("list")
	return f.list(ctx)
}

func (f *fakeBackend) GetBot(ctx context.Context, id int64) (*domain.Bot, error) {
	f.hit("get")
	return f.get(ctx, id)
}

func (f *fakeBackend) BotLogs(ctx context.Context, id int64) ([]domain.TradeLog, error) {
	f.hit("logs")
	return f.logs(ctx, id)
}

func (f *fakeBackend) CreateBot(ctx context.Context, req domain.CreateBotRequest) (*domain.Bot, error) {
	f.hit("create")
	return f.create(ctx, req)
}

func (f *fakeBackend) StartBot(ctx context.Context, id int64) error {
	f.hit("start")
	return f.start(ctx, id)
}

func (f *fakeBackend) StopBot(ctx context.Context, id int64) error {
	f.hit("stop")
	return f.stop(ctx, id)
}

func (f *fakeBackend) WalletBalances(ctx context.Context) ([]domain.WalletBalance, error) {
	f.hit("balances")
	return f.balances(ctx)
}

func (f *fakeBackend) WalletTransactions(ctx context.Context) ([]domain.Transaction, error) {
	f.hit("txs")
	return f.txs(ctx)
}

func (f *fakeBackend) DepositAddress(ctx context.Context, asset string) (*domain.DepositAddress, error) {
	f.hit("address")
	return f.address(ctx, asset)
}

func apiError(kind backend.Kind, status int, msg string) error {
	return &backend.Error{Kind: kind, Status: status, Message: msg, Op: "test", Err: errors.New(msg)}
}

func bot(id int64, name string, active bool) domain.Bot {
	return domain.Bot{
		ID:           id,
		Name:         name,
		Symbol:       "BTCUSDT",
		Exchange:     "binance",
		StrategyName: "grid",
		MarketType:   domain.MarketSpot,
		IsActive:     active,
	}
}

func names(bots []domain.Bot) []string {
	out := make([]string, len(bots))
	for i, b := range bots {
		out[i] = b.Name
	}
	return out
}
