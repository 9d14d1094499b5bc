// Package mockapi는 개발과 테스트를 위한 메모리 기반 봇 관리 서버를 제공합니다.
package mockapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/assist-by/cockpit/internal/domain"
)

// 라우트 이름 (Fail, Hold, Hits에서 사용)
const (
	RouteLogin          = "login"
	RouteMe             = "me"
	RoutePortfolio      = "portfolio"
	RouteListBots       = "listBots"
	RouteCreateBot      = "createBot"
	RouteGetBot         = "getBot"
	RouteBotLogs        = "botLogs"
	RouteStartBot       = "startBot"
	RouteStopBot        = "stopBot"
	RouteBalances       = "balances"
	RouteTransactions   = "transactions"
	RouteDepositAddress = "depositAddress"
)

// Config는 가짜 서버 설정입니다
type Config struct {
	Prefix     string // 기본값 /api/v1
	Email      string // 슈퍼유저 이메일
	Password   string // 슈퍼유저 비밀번호
	FullName   string
	JWTSecret  []byte
	TokenTTL   time.Duration // 기본값 24h
	BcryptCost int           // 기본값 bcrypt.DefaultCost
	Logger     *slog.Logger
}

type failure struct {
	status  int
	message string
}

// Server는 메모리 상태를 가진 가짜 봇 관리 서버입니다
type Server struct {
	cfg          Config
	passwordHash []byte
	router       *mux.Router
	now          func() time.Time

	mu        sync.Mutex
	bots      map[int64]*domain.Bot
	nextBotID int64
	logs      map[int64][]domain.TradeLog
	balances  []domain.WalletBalance
	txs       []domain.Transaction
	portfolio []domain.PortfolioAsset
	addresses map[string]domain.DepositAddress
	failures  map[string]failure
	holds     map[string]chan struct{}
	hits      map[string]int
	revoked   map[string]struct{}
}

// New는 새로운 가짜 서버를 생성합니다
func New(cfg Config) (*Server, error) {
	if cfg.Email == "" || cfg.Password == "" {
		return nil, errors.New("슈퍼유저 이메일과 비밀번호가 필요합니다")
	}
	if len(cfg.JWTSecret) == 0 {
		return nil, errors.New("JWT 시크릿이 필요합니다")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "/api/v1"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("비밀번호 해시 생성 실패: %w", err)
	}

	s := &Server{
		cfg:          cfg,
		passwordHash: hash,
		now:          time.Now,
		bots:         make(map[int64]*domain.Bot),
		nextBotID:    1,
		logs:         make(map[int64][]domain.TradeLog),
		addresses:    make(map[string]domain.DepositAddress),
		failures:     make(map[string]failure),
		holds:        make(map[string]chan struct{}),
		hits:         make(map[string]int),
		revoked:      make(map[string]struct{}),
	}
	s.router = s.routes()
	return s, nil
}

// Handler는 HTTP 핸들러를 반환합니다
func (s *Server) Handler() http.Handler {
	return s.router
}

// Prefix는 API 경로 접두사를 반환합니다
func (s *Server) Prefix() string {
	return s.cfg.Prefix
}

// Fail은 해당 라우트가 ClearFailures 전까지 주어진 상태로 실패하도록 합니다
func (s *Server) Fail(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, message: message}
}

// ClearFailures는 모든 실패 주입을 해제합니다
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]failure)
}

// Hold는 반환된 함수가 호출될 때까지 해당 라우트의 다음 요청들을 대기시킵니다
func (s *Server) Hold(route string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[route] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.holds[route] == ch {
				delete(s.holds, route)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Hits는 라우트가 호출된 횟수를 반환합니다
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// IssueToken은 주어진 유효 기간의 토큰을 발급합니다. 음수면 이미 만료된 토큰입니다.
func (s *Server) IssueToken(email string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.JWTSecret)
}

// Revoke는 토큰을 무효화합니다 (서버 측 로그아웃/만료 시뮬레이션)
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = struct{}{}
}

// SeedBots는 봇을 추가하거나 덮어씁니다
func (s *Server) SeedBots(bots ...domain.Bot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bots {
		b := b.Clone()
		if b.ID == 0 {
			b.ID = s.nextBotID
		}
		if b.ID >= s.nextBotID {
			s.nextBotID = b.ID + 1
		}
		s.bots[b.ID] = &b
	}
}

// RemoveBot은 봇을 삭제합니다 (다른 클라이언트에서의 삭제 시뮬레이션)
func (s *Server) RemoveBot(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bots, id)
	delete(s.logs, id)
}

// Bot은 서버가 보관 중인 봇을 반환합니다
func (s *Server) Bot(id int64) (domain.Bot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bots[id]
	if !ok {
		return domain.Bot{}, false
	}
	return b.Clone(), true
}

// SetLogs는 봇의 체결 기록을 설정합니다
func (s *Server) SetLogs(botID int64, logs ...domain.TradeLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[botID] = append([]domain.TradeLog(nil), logs...)
}

// SetBalances는 지갑 잔고를 설정합니다
func (s *Server) SetBalances(balances ...domain.WalletBalance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = append([]domain.WalletBalance(nil), balances...)
}

// SetTransactions는 거래 내역을 설정합니다
func (s *Server) SetTransactions(txs ...domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append([]domain.Transaction(nil), txs...)
}

// SetPortfolio는 포트폴리오 평가액을 설정합니다
func (s *Server) SetPortfolio(assets ...domain.PortfolioAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolio = append([]domain.PortfolioAsset(nil), assets...)
}

// SetDepositAddress는 자산 입금 주소를 등록합니다
func (s *Server) SetDepositAddress(addr domain.DepositAddress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr.Asset = strings.ToUpper(addr.Asset)
	s.addresses[addr.Asset] = addr
}

// wait는 Hold가 걸려 있으면 해제되거나 요청이 취소될 때까지 기다립니다
func (s *Server) wait(ctx context.Context, route string) {
	s.mu.Lock()
	ch, ok := s.holds[route]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-ch:
	case <-ctx.Done():
	}
}
