package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	osSignal "os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/assist-by/cockpit/internal/config"
	"github.com/assist-by/cockpit/internal/domain"
	"github.com/assist-by/cockpit/internal/mockapi"
)

func main() {
	envFile := flag.String("env", ".env", "환경변수 파일")
	seed := flag.Bool("seed", true, "예시 데이터로 시작")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// 설정 로드
	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Error("설정 로드 실패", "error", err)
		os.Exit(1)
	}
	if err := config.ValidateMockAPI(cfg); err != nil {
		logger.Error("설정값 검증 실패", "error", err)
		os.Exit(1)
	}
	if level, err := config.ParseLevel(cfg.Log.Level); err == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	srv, err := mockapi.New(mockapi.Config{
		Email:     cfg.MockAPI.Email,
		Password:  cfg.MockAPI.Password,
		FullName:  cfg.MockAPI.FullName,
		JWTSecret: []byte(cfg.MockAPI.JWTSecret),
		TokenTTL:  cfg.MockAPI.TokenTTL,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("서버 생성 실패", "error", err)
		os.Exit(1)
	}
	if *seed {
		seedData(srv)
	}

	httpServer := &http.Server{
		Addr:              cfg.MockAPI.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 시그널 처리
	ctx, stop := osSignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("가짜 서버 시작", "addr", cfg.MockAPI.Addr, "prefix", srv.Prefix(), "email", cfg.MockAPI.Email)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("서버 실행 실패", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("종료 신호 수신")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("서버 종료 실패", "error", err)
	}
}

// seedData는 로컬 개발에 쓸 예시 봇과 지갑 데이터를 채웁니다
func seedData(srv *mockapi.Server) {
	lev := 5
	now := time.Now().UTC()

	srv.SeedBots(
		domain.Bot{
			ID: 1, Name: "grid-btc", Symbol: "BTCUSDT", Exchange: "binance", StrategyName: "grid",
			StrategyParams: map[string]any{"grids": 20, "lower": 60000, "upper": 70000},
			MarketType:     domain.MarketSpot, IsPaperTrading: true,
			PaperPnLUSD: decimal.RequireFromString("152.40"),
		},
		domain.Bot{
			ID: 2, Name: "trend-eth", Symbol: "ETHUSDT", Exchange: "binance", StrategyName: "macd_sar_ema",
			StrategyParams: map[string]any{"ema_length": 200},
			MarketType:     domain.MarketFutures, Leverage: &lev, IsActive: true,
			LivePnLUSD: decimal.RequireFromString("-23.10"),
		},
	)
	srv.SetLogs(2,
		domain.TradeLog{ID: 1, BotID: 2, Side: domain.Buy, Amount: decimal.RequireFromString("0.5"), Price: decimal.RequireFromString("3120.5"), Timestamp: now.Add(-2 * time.Hour)},
		domain.TradeLog{ID: 2, BotID: 2, Side: domain.Sell, Amount: decimal.RequireFromString("0.5"), Price: decimal.RequireFromString("3098.3"), Timestamp: now.Add(-time.Hour)},
	)
	srv.SetBalances(
		domain.WalletBalance{Asset: "USDT", Balance: decimal.RequireFromString("5000")},
		domain.WalletBalance{Asset: "BTC", Balance: decimal.RequireFromString("0.12")},
	)
	srv.SetTransactions(
		domain.Transaction{ID: 1, Type: "deposit", Asset: "USDT", Amount: decimal.RequireFromString("5000"), CreatedAt: now.Add(-72 * time.Hour)},
	)
	srv.SetPortfolio(
		domain.PortfolioAsset{Asset: "USDT", USDValue: decimal.RequireFromString("5000")},
		domain.PortfolioAsset{Asset: "BTC", USDValue: decimal.RequireFromString("7800")},
	)
	srv.SetDepositAddress(domain.DepositAddress{Asset: "USDT", Address: "TQ5NxXgW8uXyN1dHbCz8v2H9fLr3kP7mA1", Network: "TRC20"})
}
