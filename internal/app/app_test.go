package app

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/assist-by/cockpit/internal/backend/rest"
	"github.com/assist-by/cockpit/internal/config"
	"github.com/assist-by/cockpit/internal/domain"
	"github.com/assist-by/cockpit/internal/mockapi"
	"github.com/assist-by/cockpit/internal/secret"
	"github.com/assist-by/cockpit/internal/session"
)

const (
	testEmail    = "admin@example.com"
	testPassword = "secret"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changed []domain.Bot
	created []domain.Bot
	expired []string
	errs    []error
}

func (r *recordingNotifier) BotStateChanged(b domain.Bot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, b)
	return nil
}

func (r *recordingNotifier) BotCreated(b domain.Bot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, b)
	return nil
}

func (r *recordingNotifier) SessionExpired(email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired = append(r.expired, email)
	return nil
}

func (r *recordingNotifier) SendError(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	return nil
}

type fixture struct {
	srv      *mockapi.Server
	secrets  *secret.MemoryStore
	notifier *recordingNotifier
	app      *App
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv, err := mockapi.New(mockapi.Config{
		Email:      testEmail,
		Password:   testPassword,
		FullName:   "Admin",
		JWTSecret:  []byte("test-secret"),
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	f := &fixture{srv: srv, secrets: secret.NewMemoryStore(), notifier: &recordingNotifier{}}
	f.app = New(f.secrets,
		WithNotifier(f.notifier),
		WithClientOptions(rest.WithBaseURL(ts.URL+srv.Prefix())),
	)
	t.Cleanup(f.app.Close)
	return f
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, f.app.Login(context.Background(), testEmail, testPassword))
	require.True(t, f.app.IsAuthenticated())
}

func TestApp_RequiresLogin(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.app.FetchBots(context.Background()), ErrNotAuthenticated)
	assert.ErrorIs(t, f.app.StartBot(context.Background(), 1), ErrNotAuthenticated)
	assert.ErrorIs(t, f.app.FetchWallet(context.Background()), ErrNotAuthenticated)
	_, err := f.app.Portfolio(context.Background(), false)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	assert.Zero(t, f.srv.Hits(mockapi.RouteListBots))
	assert.Zero(t, f.srv.Hits(mockapi.RouteBalances))
}

func TestApp_BotFlow(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedBots(
		domain.Bot{ID: 1, Name: "grid-btc", Symbol: "BTCUSDT", Exchange: "binance", StrategyName: "grid", MarketType: domain.MarketSpot},
		domain.Bot{ID: 2, Name: "dca-eth", Symbol: "ETHUSDT", Exchange: "binance", StrategyName: "dca", MarketType: domain.MarketSpot},
	)
	f.login(t)

	require.NoError(t, f.app.FetchBots(context.Background()))
	assert.Len(t, f.app.Bots().Bots, 2)

	require.NoError(t, f.app.StartBot(context.Background(), 1))
	got, ok := f.srv.Bot(1)
	require.True(t, ok)
	assert.True(t, got.IsActive)
	assert.True(t, f.app.Bots().Bots[0].IsActive)

	err := f.app.StartBot(context.Background(), 1)
	require.Error(t, err)
	state := f.app.Bots()
	assert.Equal(t, domain.StatusFailed, state.MutationStatus)
	assert.Equal(t, "Bot is already running", state.MutationError)

	created, err := f.app.CreateBot(context.Background(), domain.CreateBotRequest{
		Name: "new", Symbol: "SOLUSDT", Exchange: "binance", StrategyName: "grid", MarketType: domain.MarketSpot,
	})
	require.NoError(t, err)
	assert.Len(t, f.app.Bots().Bots, 3)

	f.srv.SetLogs(created.ID, domain.TradeLog{ID: 1, BotID: created.ID, Side: domain.Buy})
	require.NoError(t, f.app.OpenBot(context.Background(), created.ID))
	state = f.app.Bots()
	require.NotNil(t, state.Selected)
	assert.Equal(t, created.ID, state.Selected.ID)
	assert.Len(t, state.SelectedLogs, 1)

	f.app.CloseBot()
	assert.Nil(t, f.app.Bots().Selected)

	f.app.Close()
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	require.Len(t, f.notifier.changed, 1)
	assert.Equal(t, "grid-btc", f.notifier.changed[0].Name)
	require.Len(t, f.notifier.created, 1)
	assert.Equal(t, "new", f.notifier.created[0].Name)
}

func TestApp_WalletAndPortfolio(t *testing.T) {
	f := newFixture(t)
	f.srv.SetBalances(domain.WalletBalance{Asset: "USDT", Balance: decimal.NewFromInt(1000)})
	f.srv.SetPortfolio(
		domain.PortfolioAsset{Asset: "USDT", USDValue: decimal.NewFromInt(1000)},
		domain.PortfolioAsset{Asset: "BTC", USDValue: decimal.NewFromInt(500)},
	)
	f.srv.SetDepositAddress(domain.DepositAddress{Asset: "usdt", Address: "TXYZ", Network: "TRC20"})
	f.login(t)

	require.NoError(t, f.app.FetchWallet(context.Background()))
	_, ok := f.app.Wallet().Balance("USDT")
	assert.True(t, ok)

	addr, err := f.app.DepositAddress(context.Background(), "usdt", false)
	require.NoError(t, err)
	assert.Equal(t, "TXYZ", addr.Address)

	p, err := f.app.Portfolio(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, p.TotalUSD().Equal(decimal.NewFromInt(1500)))

	_, err = f.app.Portfolio(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.srv.Hits(mockapi.RoutePortfolio))

	cached, ok := f.app.CachedPortfolio()
	require.True(t, ok)
	assert.Len(t, cached.Assets, 2)
}

func TestApp_LogoutClearsEverything(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedBots(domain.Bot{ID: 1, Name: "a", Symbol: "BTCUSDT", Exchange: "binance", StrategyName: "grid", MarketType: domain.MarketSpot})
	f.srv.SetPortfolio(domain.PortfolioAsset{Asset: "BTC", USDValue: decimal.NewFromInt(1)})
	f.login(t)
	require.NoError(t, f.app.FetchBots(context.Background()))
	_, err := f.app.Portfolio(context.Background(), false)
	require.NoError(t, err)

	f.app.Logout(context.Background())

	assert.False(t, f.app.IsAuthenticated())
	assert.Empty(t, f.app.Bots().Bots)
	_, ok := f.app.CachedPortfolio()
	assert.False(t, ok)
	_, ok, err = f.secrets.Get(context.Background(), secret.TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApp_UnauthorizedAfterLoginLogsOut(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedBots(domain.Bot{ID: 1, Name: "a", Symbol: "BTCUSDT", Exchange: "binance", StrategyName: "grid", MarketType: domain.MarketSpot})
	f.login(t)
	require.NoError(t, f.app.FetchBots(context.Background()))

	token := f.app.session.Token()
	require.NotEmpty(t, token)
	f.srv.Revoke(token)

	err := f.app.FetchBots(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)

	state := f.app.Session()
	assert.Equal(t, session.PhaseIdle, state.Phase)
	assert.False(t, state.IsAuthenticated)
	assert.Empty(t, f.app.session.Token())
	assert.Empty(t, f.app.Bots().Bots, "이전 사용자의 데이터가 남으면 안 됨")

	_, ok, err := f.secrets.Get(context.Background(), secret.TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)

	f.app.Close()
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	assert.Equal(t, []string{testEmail}, f.notifier.expired)
}

func TestApp_StaleUnauthorizedKeepsNewSession(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedBots(domain.Bot{ID: 1, Name: "a", Symbol: "BTCUSDT", Exchange: "binance", StrategyName: "grid", MarketType: domain.MarketSpot})
	f.login(t)
	old := f.app.session.Token()

	release := f.srv.Hold(mockapi.RouteListBots)
	done := make(chan error, 1)
	go func() { done <- f.app.FetchBots(context.Background()) }()
	require.Eventually(t, func() bool { return f.srv.Hits(mockapi.RouteListBots) == 1 }, 2*time.Second, 5*time.Millisecond)

	// 이전 세션의 요청이 서버에 머무는 동안 다시 로그인
	f.app.Logout(context.Background())
	f.srv.Revoke(old)
	f.login(t)
	current := f.app.session.Token()
	require.NotEqual(t, old, current)

	release()
	err := <-done
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionExpired)

	assert.True(t, f.app.IsAuthenticated(), "늦게 도착한 이전 토큰의 401이 새 세션을 끝내면 안 됨")
	assert.Equal(t, current, f.app.session.Token())
	stored, ok, err := f.secrets.Get(context.Background(), secret.TokenKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, current, stored)

	require.NoError(t, f.app.FetchBots(context.Background()))
	assert.Len(t, f.app.Bots().Bots, 1)

	f.app.Close()
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	assert.Empty(t, f.notifier.expired)
}

func TestApp_ParallelUnauthorizedExpiresOnce(t *testing.T) {
	f := newFixture(t)
	f.srv.SetBalances(domain.WalletBalance{Asset: "USDT", Balance: decimal.NewFromInt(10)})
	f.login(t)
	require.NoError(t, f.app.FetchWallet(context.Background()))

	// 잔고와 거래 내역 요청이 둘 다 서버에 도착한 뒤 함께 거부되도록
	releaseBalances := f.srv.Hold(mockapi.RouteBalances)
	releaseTxs := f.srv.Hold(mockapi.RouteTransactions)
	f.srv.Revoke(f.app.session.Token())

	done := make(chan error, 1)
	go func() { done <- f.app.FetchWallet(context.Background()) }()
	require.Eventually(t, func() bool {
		return f.srv.Hits(mockapi.RouteBalances) == 2 && f.srv.Hits(mockapi.RouteTransactions) == 2
	}, 2*time.Second, 5*time.Millisecond)
	releaseBalances()
	releaseTxs()

	assert.ErrorIs(t, <-done, ErrSessionExpired)
	assert.False(t, f.app.IsAuthenticated())
	assert.Empty(t, f.app.Wallet().Balances)

	f.app.Close()
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	assert.Equal(t, []string{testEmail}, f.notifier.expired)
}

func TestApp_PortfolioDroppedByLogout(t *testing.T) {
	f := newFixture(t)
	f.srv.SetPortfolio(domain.PortfolioAsset{Asset: "BTC", USDValue: decimal.NewFromInt(100)})
	f.login(t)

	release := f.srv.Hold(mockapi.RoutePortfolio)
	type result struct {
		p   domain.Portfolio
		err error
	}
	done := make(chan result, 1)
	go func() {
		p, err := f.app.Portfolio(context.Background(), false)
		done <- result{p, err}
	}()
	require.Eventually(t, func() bool { return f.srv.Hits(mockapi.RoutePortfolio) == 1 }, 2*time.Second, 5*time.Millisecond)

	f.app.Logout(context.Background())
	release()

	res := <-done
	assert.ErrorIs(t, res.err, ErrSessionExpired)
	assert.Empty(t, res.p.Assets, "이전 사용자의 자산이 호출자에게 전달되면 안 됨")
	_, ok := f.app.CachedPortfolio()
	assert.False(t, ok)
}

func TestApp_FailedLoginDoesNotTriggerExpiry(t *testing.T) {
	f := newFixture(t)

	err := f.app.Login(context.Background(), testEmail, "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", f.app.Session().Error)

	f.app.Close()
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	assert.Empty(t, f.notifier.expired)
}

func TestApp_RecoverFromStoredToken(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	stored, ok, err := f.secrets.Get(context.Background(), secret.TokenKey)
	require.NoError(t, err)
	require.True(t, ok)

	// 같은 저장소를 쓰는 새 프로세스
	restarted := New(f.secrets, WithClientOptions(rest.WithBaseURL(f.app.client.BaseURL())))
	state := restarted.Recover(context.Background())
	assert.True(t, state.IsAuthenticated)
	assert.Equal(t, stored, restarted.session.Token())
}

func TestApp_Subscribe(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	seen := map[Event]int{}
	cancel := f.app.Subscribe(func(e Event) {
		mu.Lock()
		seen[e]++
		mu.Unlock()
	})

	f.login(t)
	require.NoError(t, f.app.FetchBots(context.Background()))

	mu.Lock()
	assert.Positive(t, seen[EventSession])
	assert.Positive(t, seen[EventBots])
	before := seen[EventBots]
	mu.Unlock()

	cancel()
	require.NoError(t, f.app.FetchBots(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, before, seen[EventBots])
}

func TestFromConfig(t *testing.T) {
	var cfg config.Config
	cfg.API.BaseURL = "http://127.0.0.1:1/api/v1"
	cfg.API.Timeout = rest.DefaultTimeout
	cfg.Secret.Path = t.TempDir() + "/secrets.yaml"
	cfg.Secret.Passphrase = "pw"
	cfg.Portfolio.MaxAge = 0

	a, err := FromConfig(&cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:1/api/v1", a.client.BaseURL())

	cfg.Secret.Passphrase = ""
	_, err = FromConfig(&cfg, nil)
	assert.Error(t, err, "파일 저장소는 패스프레이즈가 필요함")

	cfg.Secret.Memory = true
	_, err = FromConfig(&cfg, nil)
	assert.NoError(t, err)
}
