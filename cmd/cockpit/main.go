package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	osSignal "os/signal"
	"syscall"

	"github.com/assist-by/cockpit/internal/app"
	"github.com/assist-by/cockpit/internal/backend"
	"github.com/assist-by/cockpit/internal/config"
)

const usage = `사용법: cockpit [-env 파일] <명령> [인자]

명령:
  login      로그인 (-email, -password 또는 COCKPIT_PASSWORD)
  logout     로그아웃
  whoami     현재 사용자 정보
  bots       봇 목록
  bot <id>   봇 상세와 체결 기록
  start <id> 봇 시작
  stop <id>  봇 중지
  create     봇 생성 (-name, -symbol, -exchange, -strategy, -market, -leverage, -paper, -params)
  wallet     지갑 잔고와 거래 내역
  deposit <asset>  입금 주소
  portfolio  포트폴리오 평가액
  watch      주기적으로 봇 목록과 지갑을 갱신하며 변경을 출력
`

func main() {
	// 명령줄 플래그 정의
	envFile := flag.String("env", ".env", "환경변수 파일")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	// 설정 로드
	cfg, err := config.LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "설정 로드 실패: %v\n", err)
		os.Exit(1)
	}

	// 로그 설정
	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	a, err := app.FromConfig(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "초기화 실패: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	// 시그널 처리
	ctx, stop := osSignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := &cli{app: a, cfg: cfg, out: os.Stdout, logger: logger}
	if err := cli.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "오류: %s\n", userMessage(err))
		logger.Debug("명령 실패", "command", flag.Arg(0), "error", err)
		a.Close()
		os.Exit(1)
	}
}

// userMessage는 사용자에게 보여줄 에러 문구를 고릅니다
func userMessage(err error) string {
	if _, ok := backend.AsError(err); ok {
		return backend.Message(err)
	}
	return err.Error()
}
