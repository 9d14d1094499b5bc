// Package app은 세션, 엔티티 스토어, 포트폴리오 캐시를 하나의 애플리케이션 상태로 묶고
// 화면이 호출하는 디스패처와 셀렉터를 제공합니다.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/assist-by/cockpit/internal/backend/rest"
	"github.com/assist-by/cockpit/internal/config"
	"github.com/assist-by/cockpit/internal/notification"
	"github.com/assist-by/cockpit/internal/notification/discord"
	"github.com/assist-by/cockpit/internal/portfolio"
	"github.com/assist-by/cockpit/internal/secret"
	"github.com/assist-by/cockpit/internal/session"
	"github.com/assist-by/cockpit/internal/store"
)

var (
	// ErrNotAuthenticated는 로그인하지 않은 상태에서 보호된 작업을 요청했을 때 반환됩니다
	ErrNotAuthenticated = errors.New("로그인이 필요합니다")
	// ErrSessionExpired는 요청 도중 인증이 만료되어 로그아웃되었을 때 반환됩니다
	ErrSessionExpired = errors.New("세션이 만료되어 로그아웃되었습니다")
)

// App은 명시적인 애플리케이션 상태 컨테이너입니다
type App struct {
	client    *rest.Client
	session   *session.Manager
	bots      *store.BotStore
	wallet    *store.WalletStore
	portfolio *portfolio.Cache
	notifier  notification.Notifier
	logger    *slog.Logger

	subMu   sync.RWMutex
	subs    map[int]func(Event)
	nextSub int

	// 알림 전송은 요청 경로를 막지 않도록 비동기로 처리
	pending sync.WaitGroup
}

type options struct {
	logger          *slog.Logger
	notifier        notification.Notifier
	clientOpts      []rest.ClientOption
	portfolioMaxAge time.Duration
	now             func() time.Time
}

// Option은 App 생성 옵션을 정의합니다
type Option func(*options)

// WithLogger는 로거를 설정합니다
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithNotifier는 알림 전송기를 설정합니다
func WithNotifier(n notification.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithClientOptions는 전송 계층 옵션을 추가합니다
func WithClientOptions(opts ...rest.ClientOption) Option {
	return func(o *options) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

// WithPortfolioMaxAge는 포트폴리오 캐시 유효 기간을 설정합니다
func WithPortfolioMaxAge(d time.Duration) Option {
	return func(o *options) {
		o.portfolioMaxAge = d
	}
}

// WithClock은 세션과 캐시가 사용할 시간 함수를 설정합니다
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New는 주어진 토큰 저장소로 App을 구성합니다
func New(secrets secret.Store, opts ...Option) *App {
	o := options{
		logger:          slog.Default(),
		notifier:        notification.Nop{},
		portfolioMaxAge: portfolio.DefaultMaxAge,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		notifier: o.notifier,
		logger:   o.logger,
		subs:     make(map[int]func(Event)),
	}

	// 전송 계층은 세션의 현재 토큰을 읽기만 하고, 인증 실패는 App으로 보고
	clientOpts := append([]rest.ClientOption{
		rest.WithLogger(o.logger.With("component", "rest")),
		rest.WithTokenSource(rest.TokenFunc(func() string { return a.session.Token() })),
		rest.WithUnauthorizedHandler(a.handleUnauthorized),
	}, o.clientOpts...)
	a.client = rest.NewClient(clientOpts...)

	a.session = session.NewManager(a.client, secrets,
		session.WithLogger(o.logger.With("component", "session")),
		session.WithClock(o.now),
	)
	a.session.OnChange(func(session.State) { a.emit(EventSession) })

	a.bots = store.NewBotStore(a.client,
		store.WithLogger(o.logger.With("component", "bots")),
		store.WithOnChange(func() { a.emit(EventBots) }),
	)
	a.wallet = store.NewWalletStore(a.client,
		store.WithLogger(o.logger.With("component", "wallet")),
		store.WithOnChange(func() { a.emit(EventWallet) }),
	)
	a.portfolio = portfolio.New(a.client,
		portfolio.WithMaxAge(o.portfolioMaxAge),
		portfolio.WithClock(o.now),
		portfolio.WithLogger(o.logger.With("component", "portfolio")),
		portfolio.WithOnChange(func() { a.emit(EventPortfolio) }),
	)
	return a
}

// FromConfig는 설정으로부터 토큰 저장소와 알림 전송기를 만들고 App을 구성합니다
func FromConfig(cfg *config.Config, logger *slog.Logger) (*App, error) {
	var secrets secret.Store
	if cfg.Secret.Memory {
		secrets = secret.NewMemoryStore()
	} else {
		fs, err := secret.NewFileStore(cfg.Secret.Path, cfg.Secret.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("토큰 저장소 생성 실패: %w", err)
		}
		secrets = fs
	}

	var notifier notification.Notifier = notification.Nop{}
	if cfg.Discord.Webhook != "" {
		notifier = discord.NewClient(cfg.Discord.Webhook, discord.WithErrorWebhook(cfg.Discord.ErrorWebhook))
	}

	return New(secrets,
		WithLogger(logger),
		WithNotifier(notifier),
		WithPortfolioMaxAge(cfg.Portfolio.MaxAge),
		WithClientOptions(
			rest.WithBaseURL(cfg.API.BaseURL),
			rest.WithTimeout(cfg.API.Timeout),
		),
	), nil
}

// Close는 전송 중인 알림이 끝날 때까지 기다립니다
func (a *App) Close() {
	a.pending.Wait()
}

// handleUnauthorized는 토큰을 실은 요청이 인증 실패했을 때 전송 계층이 호출합니다.
// 거부된 토큰이 아직 현재 세션의 토큰일 때만 로그아웃합니다. 이전 세션의 요청이 늦게
// 거부되었거나 같은 토큰의 다른 요청이 먼저 처리한 경우는 무시합니다.
func (a *App) handleUnauthorized(token string) {
	profile, expired := a.session.ExpireIf(context.Background(), token)
	if !expired {
		return
	}

	email := ""
	if profile != nil {
		email = profile.Email
	}
	a.logger.Warn("인증 만료로 로그아웃", "email", email)

	a.resetData()
	a.notify("세션 만료", func(n notification.Notifier) error { return n.SessionExpired(email) })
}

// notify는 알림을 비동기로 보내고 실패는 로그로만 남깁니다
func (a *App) notify(what string, send func(notification.Notifier) error) {
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		if err := send(a.notifier); err != nil {
			a.logger.Warn("알림 전송 실패", "notification", what, "error", err)
		}
	}()
}
