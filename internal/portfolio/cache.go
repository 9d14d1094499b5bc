// Package portfolio는 자산별 평가액을 읽기 위주로 캐싱합니다.
package portfolio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/assist-by/cockpit/internal/backend"
	"github.com/assist-by/cockpit/internal/domain"
)

// ErrInvalidated는 조회 도중 Invalidate가 호출되어 결과가 버려졌을 때 반환됩니다
var ErrInvalidated = errors.New("포트폴리오 조회 도중 캐시가 무효화되었습니다")

// Key는 현재 사용자 포트폴리오의 캐시 키입니다
const Key = "me/portfolio"

// DefaultMaxAge는 캐시된 포트폴리오를 다시 조회하기 전까지의 기본 유효 기간입니다
const DefaultMaxAge = 30 * time.Second

// Fetcher는 포트폴리오를 조회하는 서버 호출입니다
type Fetcher interface {
	Portfolio(ctx context.Context) ([]domain.PortfolioAsset, error)
}

// State는 UI가 읽는 캐시 상태입니다
type State struct {
	Portfolio domain.Portfolio
	Status    domain.Status
	Error     string
}

// Option은 캐시 설정 함수입니다
type Option func(*Cache)

// WithMaxAge는 캐시 유효 기간을 설정합니다. 0이면 강제 조회 전까지 계속 사용합니다.
func WithMaxAge(d time.Duration) Option {
	return func(c *Cache) {
		if d >= 0 {
			c.maxAge = d
		}
	}
}

// WithClock은 시간 함수를 설정합니다
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger는 로거를 설정합니다
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithOnChange는 상태가 바뀔 때 호출될 함수를 설정합니다
func WithOnChange(fn func()) Option {
	return func(c *Cache) {
		c.onChange = fn
	}
}

// Cache는 포트폴리오 조회 결과를 키별로 보관합니다.
// 같은 키에 대한 동시 조회는 하나의 요청으로 합쳐집니다.
type Cache struct {
	api   Fetcher
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]domain.Portfolio
	status  domain.Status
	errMsg  string
	gen     uint64

	maxAge   time.Duration
	now      func() time.Time
	logger   *slog.Logger
	onChange func()
}

// New는 새로운 포트폴리오 캐시를 생성합니다
func New(api Fetcher, opts ...Option) *Cache {
	c := &Cache{
		api:      api,
		entries:  make(map[string]domain.Portfolio),
		maxAge:   DefaultMaxAge,
		now:      time.Now,
		logger:   slog.Default(),
		onChange: func() {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get은 캐시된 포트폴리오를 반환하고, 없거나 오래됐거나 force면 서버에서 조회합니다.
// 조회에 실패하면 이전 값은 그대로 두고 에러를 반환합니다.
// 조회 도중 Invalidate되면 ErrInvalidated를 반환합니다.
func (c *Cache) Get(ctx context.Context, force bool) (domain.Portfolio, error) {
	if !force {
		if p, ok := c.fresh(); ok {
			return p, nil
		}
	}

	ch := c.group.DoChan(Key, func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.Portfolio{}, res.Err
		}
		return res.Val.(domain.Portfolio), nil
	case <-ctx.Done():
		return domain.Portfolio{}, ctx.Err()
	}
}

func (c *Cache) fresh() (domain.Portfolio, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, exists := c.entries[Key]
	if !exists {
		return domain.Portfolio{}, false
	}
	if c.maxAge > 0 && c.now().Sub(p.FetchedAt) >= c.maxAge {
		return domain.Portfolio{}, false
	}
	return clone(p), true
}

func (c *Cache) fetch(ctx context.Context) (domain.Portfolio, error) {
	c.mu.Lock()
	gen := c.gen
	c.status = domain.StatusLoading
	c.errMsg = ""
	c.mu.Unlock()
	c.onChange()

	assets, err := c.api.Portfolio(ctx)

	c.mu.Lock()
	if gen != c.gen {
		// 무효화 이전 사용자의 결과는 캐시에도 호출자에게도 넘기지 않음
		c.mu.Unlock()
		return domain.Portfolio{}, ErrInvalidated
	}
	if err != nil {
		c.status = domain.StatusFailed
		c.errMsg = backend.Message(err)
		c.mu.Unlock()
		c.onChange()
		c.logger.Warn("포트폴리오 조회 실패", "error", err)
		return domain.Portfolio{}, err
	}

	if assets == nil {
		assets = []domain.PortfolioAsset{}
	}
	p := domain.Portfolio{Assets: assets, FetchedAt: c.now()}
	c.entries[Key] = p
	c.status = domain.StatusSucceeded
	c.mu.Unlock()
	c.onChange()

	c.logger.Debug("포트폴리오 갱신", "assets", len(assets), "total_usd", p.TotalUSD().StringFixed(2))
	return clone(p), nil
}

// Peek은 I/O 없이 캐시된 값을 반환합니다
func (c *Cache) Peek() (domain.Portfolio, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, exists := c.entries[Key]
	if !exists {
		return domain.Portfolio{}, false
	}
	return clone(p), true
}

// State는 현재 캐시 상태의 복사본을 반환합니다
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return State{
		Portfolio: clone(c.entries[Key]),
		Status:    c.status,
		Error:     c.errMsg,
	}
}

// Invalidate는 캐시 항목을 지웁니다. 진행 중인 조회의 결과는 저장되지 않습니다.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.gen++
	delete(c.entries, Key)
	c.status = domain.StatusIdle
	c.errMsg = ""
	c.mu.Unlock()
	c.group.Forget(Key)
	c.onChange()
}

func clone(p domain.Portfolio) domain.Portfolio {
	if p.Assets != nil {
		p.Assets = append([]domain.PortfolioAsset(nil), p.Assets...)
	}
	return p
}
