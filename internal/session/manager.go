// Package session은 인증 토큰의 수명과 세션 상태 머신을 관리합니다.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/assist-by/cockpit/internal/backend"
	"github.com/assist-by/cockpit/internal/domain"
	"github.com/assist-by/cockpit/internal/secret"
)

var (
	// ErrAlreadyAuthenticated는 로그인 상태에서 다시 로그인하려 할 때 반환됩니다
	ErrAlreadyAuthenticated = errors.New("이미 로그인되어 있습니다")
	// ErrMissingCredentials는 이메일 또는 비밀번호가 비어 있을 때 반환됩니다
	ErrMissingCredentials = errors.New("이메일과 비밀번호를 입력하세요")
	// ErrSessionReset은 진행 중인 로그인이 로그아웃으로 무효화되었을 때 반환됩니다
	ErrSessionReset = errors.New("로그인 도중 세션이 초기화되었습니다")
)

// Authenticator는 세션 관리에 필요한 서버 호출입니다
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*domain.LoginResponse, error)
	CurrentUser(ctx context.Context) (*domain.UserProfile, error)
}

// Manager는 세션 상태 머신과 인증 토큰을 소유합니다.
// 토큰은 Manager만 변경하며, 전송 계층은 Token()으로 읽기만 합니다.
type Manager struct {
	auth    Authenticator
	secrets secret.Store
	logger  *slog.Logger
	now     func() time.Time

	token atomic.Pointer[string]

	// opMu는 Recover/Login을 직렬화합니다
	opMu sync.Mutex

	mu        sync.RWMutex
	state     State
	epoch     uint64
	listeners []func(State)
}

// Option은 Manager 생성 옵션을 정의합니다
type Option func(*Manager)

// WithLogger는 로거를 설정합니다
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock은 토큰 만료 판단에 사용할 시계를 설정합니다
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager는 새로운 세션 매니저를 생성합니다
func NewManager(auth Authenticator, secrets secret.Store, opts ...Option) *Manager {
	m := &Manager{
		auth:    auth,
		secrets: secrets,
		logger:  slog.Default(),
		now:     time.Now,
		state:   newState(PhaseIdle),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token은 현재 활성화된 토큰을 반환합니다. 없으면 빈 문자열입니다.
func (m *Manager) Token() string {
	if t := m.token.Load(); t != nil {
		return *t
	}
	return ""
}

// State는 현재 세션 스냅샷을 반환합니다
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// IsAuthenticated는 인증된 상태인지 확인합니다
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.IsAuthenticated
}

// OnChange는 상태가 바뀔 때마다 호출될 함수를 등록합니다
func (m *Manager) OnChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// ExpiresAt은 활성 토큰이 JWT이고 exp 클레임이 있으면 만료 시각을 반환합니다
func (m *Manager) ExpiresAt() (time.Time, bool) {
	return tokenExpiry(m.Token())
}

// Recover는 시작 시 한 번 호출되어 저장된 토큰으로 세션을 복구합니다.
// 어떤 실패도 사용자에게 에러로 노출하지 않고 미인증 상태로 돌아갑니다.
func (m *Manager) Recover(ctx context.Context) State {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	epoch := m.transition(newState(PhaseRecovering))

	token, ok, err := m.secrets.Get(ctx, secret.TokenKey)
	if err != nil {
		m.logger.Warn("저장된 토큰 읽기 실패, 미인증 상태로 진행", "error", err)
		m.resetIf(epoch)
		return m.State()
	}
	if !ok || strings.TrimSpace(token) == "" {
		m.resetIf(epoch)
		return m.State()
	}

	if exp, ok := tokenExpiry(token); ok && !exp.After(m.now()) {
		m.logger.Info("저장된 토큰이 만료됨", "expired_at", exp)
		m.discard(ctx, epoch, token)
		return m.State()
	}

	if !m.setTokenIf(epoch, token) {
		return m.State()
	}
	profile, err := m.auth.CurrentUser(ctx)
	if err != nil {
		m.logger.Info("세션 복구 실패, 저장된 토큰 폐기", "error", err)
		m.discard(ctx, epoch, token)
		return m.State()
	}

	if !m.authenticate(epoch, profile) {
		// 복구 도중 로그아웃됨
		m.dropToken(token)
	}
	return m.State()
}

// Login은 자격 증명을 토큰으로 교환하고 프로필을 조회해 인증 상태로 전환합니다.
// 실패하면 Failed 상태와 서버 메시지를 남기고 미인증 상태를 유지합니다.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.IsAuthenticated() {
		return ErrAlreadyAuthenticated
	}

	epoch := m.transition(newState(PhaseLoggingIn))

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		m.failIf(epoch, ErrMissingCredentials.Error())
		return ErrMissingCredentials
	}

	resp, err := m.auth.Login(ctx, email, password)
	if err != nil {
		m.failIf(epoch, backend.Message(err))
		return err
	}
	token := resp.AccessToken

	// 저장 실패는 로그인을 막지 않습니다 (이번 프로세스 동안만 유효)
	if err := m.secrets.Put(ctx, secret.TokenKey, token); err != nil {
		m.logger.Warn("토큰 저장 실패, 재시작 시 다시 로그인 필요", "error", err)
	}

	if !m.setTokenIf(epoch, token) {
		m.clearStored(ctx, token)
		return ErrSessionReset
	}

	profile, err := m.auth.CurrentUser(ctx)
	if err != nil {
		m.dropToken(token)
		m.clearStored(ctx, token)
		m.failIf(epoch, backend.Message(err))
		return err
	}

	if !m.authenticate(epoch, profile) {
		m.dropToken(token)
		m.clearStored(ctx, token)
		return ErrSessionReset
	}

	m.logger.Info("로그인 성공", "email", profile.Email)
	return nil
}

// Logout은 메모리 상태와 활성 토큰을 즉시 지우고, 저장된 토큰을 최선을 다해 삭제합니다.
// 네트워크 상태나 저장소 실패와 무관하게 항상 Idle로 끝납니다.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.epoch++
	m.state = newState(PhaseIdle)
	m.token.Store(nil)
	snapshot := m.state.clone()
	listeners := append([]func(State){}, m.listeners...)
	m.mu.Unlock()

	m.notify(listeners, snapshot)

	if err := m.secrets.Clear(context.WithoutCancel(ctx), secret.TokenKey); err != nil {
		m.logger.Warn("저장된 토큰 삭제 실패", "error", err)
	}
}

// ExpireIf는 서버가 거부한 token이 아직 활성 토큰일 때만 세션을 끝냅니다.
// 이미 로그아웃되었거나 다른 토큰으로 바뀐 경우 아무것도 하지 않고 false를 반환합니다.
// 같은 토큰으로 여러 요청이 동시에 거부되어도 true는 한 번만 반환됩니다.
func (m *Manager) ExpireIf(ctx context.Context, token string) (*domain.UserProfile, bool) {
	m.mu.Lock()
	cur := m.token.Load()
	if !m.state.IsAuthenticated || token == "" || cur == nil || *cur != token {
		m.mu.Unlock()
		return nil, false
	}
	profile := m.state.clone().Profile
	m.epoch++
	m.state = newState(PhaseIdle)
	m.token.Store(nil)
	snapshot := m.state.clone()
	listeners := append([]func(State){}, m.listeners...)
	m.mu.Unlock()

	m.notify(listeners, snapshot)
	m.clearStored(ctx, token)
	return profile, true
}

// transition은 새 작업을 시작하며 현재 epoch를 반환합니다
func (m *Manager) transition(next State) uint64 {
	m.mu.Lock()
	m.state = next
	epoch := m.epoch
	snapshot := m.state.clone()
	listeners := append([]func(State){}, m.listeners...)
	m.mu.Unlock()

	m.notify(listeners, snapshot)
	return epoch
}

// apply는 epoch가 그대로일 때만 상태를 바꿉니다. 로그아웃이 끼어들었으면 false입니다.
func (m *Manager) apply(epoch uint64, next State) bool {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return false
	}
	m.state = next
	snapshot := m.state.clone()
	listeners := append([]func(State){}, m.listeners...)
	m.mu.Unlock()

	m.notify(listeners, snapshot)
	return true
}

func (m *Manager) authenticate(epoch uint64, profile *domain.UserProfile) bool {
	next := newState(PhaseAuthenticated)
	next.IsAuthenticated = true
	p := *profile
	next.Profile = &p
	return m.apply(epoch, next)
}

func (m *Manager) resetIf(epoch uint64) {
	m.apply(epoch, newState(PhaseIdle))
}

func (m *Manager) failIf(epoch uint64, message string) {
	next := newState(PhaseFailed)
	next.Error = message
	m.apply(epoch, next)
}

// discard는 거부된 토큰을 메모리와 저장소에서 지우고 조용히 미인증 상태로 돌아갑니다
func (m *Manager) discard(ctx context.Context, epoch uint64, token string) {
	m.dropToken(token)
	m.clearStored(ctx, token)
	m.resetIf(epoch)
}

// setTokenIf는 epoch가 그대로일 때만 토큰을 활성화합니다.
// Logout과 같은 잠금 아래에서 바꾸므로 로그아웃 이후에 토큰이 다시 살아나지 않습니다.
func (m *Manager) setTokenIf(epoch uint64, token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return false
	}
	m.token.Store(&token)
	return true
}

// dropToken은 활성 토큰이 주어진 토큰일 때만 지웁니다
func (m *Manager) dropToken(token string) {
	for {
		cur := m.token.Load()
		if cur == nil || *cur != token {
			return
		}
		if m.token.CompareAndSwap(cur, nil) {
			return
		}
	}
}

// clearStored는 저장소에 남은 토큰이 주어진 토큰일 때만 삭제합니다
func (m *Manager) clearStored(ctx context.Context, token string) {
	ctx = context.WithoutCancel(ctx)
	stored, ok, err := m.secrets.Get(ctx, secret.TokenKey)
	if err != nil {
		m.logger.Warn("저장된 토큰 확인 실패", "error", err)
		return
	}
	if !ok || stored != token {
		return
	}
	if err := m.secrets.Clear(ctx, secret.TokenKey); err != nil {
		m.logger.Warn("저장된 토큰 삭제 실패", "error", err)
	}
}

func (m *Manager) notify(listeners []func(State), s State) {
	for _, fn := range listeners {
		fn(s.clone())
	}
}

// tokenExpiry는 JWT의 exp 클레임을 서명 검증 없이 읽습니다.
// JWT가 아니거나 exp가 없으면 false입니다.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
