package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/assist-by/cockpit/internal/app"
	"github.com/assist-by/cockpit/internal/backend/rest"
	"github.com/assist-by/cockpit/internal/config"
	"github.com/assist-by/cockpit/internal/domain"
	"github.com/assist-by/cockpit/internal/mockapi"
	"github.com/assist-by/cockpit/internal/notification"
	"github.com/assist-by/cockpit/internal/scheduler"
	"github.com/assist-by/cockpit/internal/secret"
)

func newTestCLI(t *testing.T, opts ...app.Option) (*cli, *mockapi.Server, *bytes.Buffer) {
	t.Helper()
	srv, err := mockapi.New(mockapi.Config{
		Email:      "admin@example.com",
		Password:   "secret",
		FullName:   "Admin",
		JWTSecret:  []byte("test-secret"),
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	opts = append([]app.Option{app.WithClientOptions(rest.WithBaseURL(ts.URL + srv.Prefix()))}, opts...)
	a := app.New(secret.NewMemoryStore(), opts...)
	t.Cleanup(a.Close)

	out := &bytes.Buffer{}
	return &cli{app: a, cfg: &config.Config{}, out: out, logger: slog.Default()}, srv, out
}

func TestCLI_RequiresLogin(t *testing.T) {
	c, _, _ := newTestCLI(t)
	assert.ErrorIs(t, c.run(context.Background(), "bots", nil), app.ErrNotAuthenticated)
}

func TestCLI_LoginAndCommands(t *testing.T) {
	c, srv, out := newTestCLI(t)
	ctx := context.Background()
	srv.SeedBots(domain.Bot{ID: 1, Name: "grid-btc", Symbol: "BTCUSDT", Exchange: "binance", StrategyName: "grid", MarketType: domain.MarketSpot})
	srv.SetPortfolio(domain.PortfolioAsset{Asset: "BTC", USDValue: decimal.RequireFromString("1234.5")})

	c.in = strings.NewReader("secret\n")
	require.NoError(t, c.run(ctx, "login", []string{"-email", "admin@example.com", "-password", ""}))
	assert.Contains(t, out.String(), "admin@example.com 계정으로 로그인했습니다")

	out.Reset()
	require.NoError(t, c.run(ctx, "bots", nil))
	assert.Contains(t, out.String(), "grid-btc")
	assert.Contains(t, out.String(), "중지됨")

	out.Reset()
	require.NoError(t, c.run(ctx, "start", []string{"1"}))
	assert.Contains(t, out.String(), "봇 #1 실행 중")

	err := c.run(ctx, "start", []string{"1"})
	require.Error(t, err)
	assert.Equal(t, "Bot is already running", err.Error())

	out.Reset()
	require.NoError(t, c.run(ctx, "create", []string{
		"-name", "dca", "-symbol", "ethusdt", "-strategy", "dca", "-market", "futures", "-leverage", "3", "-params", `{"step": 0.5}`,
	}))
	assert.Contains(t, out.String(), "생성됨")

	out.Reset()
	require.NoError(t, c.run(ctx, "portfolio", nil))
	assert.Contains(t, out.String(), "1234.50")

	err = c.run(ctx, "bot", []string{"abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "봇 ID")
	assert.ErrorIs(t, c.run(ctx, "bot", nil), errUsage)
}

func TestCLI_LoginFailureShowsServerMessage(t *testing.T) {
	c, _, _ := newTestCLI(t)
	err := c.run(context.Background(), "login", []string{"-email", "admin@example.com", "-password", "wrong"})
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())
}

func TestCLI_UnknownCommand(t *testing.T) {
	c, _, _ := newTestCLI(t)
	require.NoError(t, c.run(context.Background(), "login", []string{"-email", "admin@example.com", "-password", "secret"}))
	assert.ErrorIs(t, c.run(context.Background(), "nope", nil), errUsage)
}

// errorRecorder는 SendError로 들어온 에러만 기록합니다
type errorRecorder struct {
	notification.Nop
	mu   sync.Mutex
	errs []error
}

func (r *errorRecorder) SendError(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	return nil
}

func (r *errorRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func TestCLI_WatchReportsRefreshFailure(t *testing.T) {
	rec := &errorRecorder{}
	c, srv, _ := newTestCLI(t, app.WithNotifier(rec))
	c.cfg.Refresh.Interval = time.Hour
	c.retry = &scheduler.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Factor: 1}

	require.NoError(t, c.run(context.Background(), "login", []string{"-email", "admin@example.com", "-password", "secret"}))
	srv.Fail(mockapi.RouteListBots, 503, "maintenance")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.run(ctx, "watch", nil) }()

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Contains(t, rec.errs[0].Error(), "maintenance")
	assert.Equal(t, 2, srv.Hits(mockapi.RouteListBots))
}
