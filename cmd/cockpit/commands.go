package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/assist-by/cockpit/internal/app"
	"github.com/assist-by/cockpit/internal/config"
	"github.com/assist-by/cockpit/internal/domain"
	"github.com/assist-by/cockpit/internal/scheduler"
)

var errUsage = errors.New("잘못된 사용법")

type cli struct {
	app    *app.App
	cfg    *config.Config
	out    io.Writer
	in     io.Reader
	logger *slog.Logger
	retry  *scheduler.RetryConfig // nil이면 scheduler.DefaultRetryConfig
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return c.login(ctx, args)
	case "logout":
		c.app.Recover(ctx)
		c.app.Logout(ctx)
		fmt.Fprintln(c.out, "로그아웃되었습니다")
		return nil
	}

	if state := c.app.Recover(ctx); !state.IsAuthenticated {
		return app.ErrNotAuthenticated
	}

	switch cmd {
	case "whoami":
		return c.whoami()
	case "bots":
		return c.bots(ctx)
	case "bot":
		return c.withID(args, func(id int64) error { return c.bot(ctx, id) })
	case "start":
		return c.withID(args, func(id int64) error { return c.setActive(ctx, id, true) })
	case "stop":
		return c.withID(args, func(id int64) error { return c.setActive(ctx, id, false) })
	case "create":
		return c.create(ctx, args)
	case "wallet":
		return c.wallet(ctx)
	case "deposit":
		return c.deposit(ctx, args)
	case "portfolio":
		return c.portfolio(ctx, args)
	case "watch":
		return c.watch(ctx)
	default:
		return errUsage
	}
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "이메일")
	password := fs.String("password", os.Getenv("COCKPIT_PASSWORD"), "비밀번호")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if state := c.app.Recover(ctx); state.IsAuthenticated {
		return fmt.Errorf("이미 %s 계정으로 로그인되어 있습니다", state.Profile.Email)
	}

	if *password == "" {
		fmt.Fprint(c.out, "비밀번호: ")
		line, err := bufio.NewReader(c.input()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("비밀번호 입력 실패: %w", err)
		}
		*password = strings.TrimRight(line, "\r\n")
	}

	if err := c.app.Login(ctx, *email, *password); err != nil {
		if msg := c.app.Session().Error; msg != "" {
			return errors.New(msg)
		}
		return err
	}
	fmt.Fprintf(c.out, "%s 계정으로 로그인했습니다\n", c.app.Session().Profile.Email)
	return nil
}

func (c *cli) input() io.Reader {
	if c.in != nil {
		return c.in
	}
	return os.Stdin
}

func (c *cli) whoami() error {
	p := c.app.Session().Profile
	role := "일반"
	if p.IsSuperuser {
		role = "관리자"
	}
	fmt.Fprintf(c.out, "%s <%s> (%s, id=%d)\n", p.FullName, p.Email, role, p.ID)
	return nil
}

func (c *cli) withID(args []string, fn func(int64) error) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("봇 ID가 올바르지 않습니다: %q", args[0])
	}
	return fn(id)
}

func (c *cli) bots(ctx context.Context) error {
	if err := c.app.FetchBots(ctx); err != nil {
		return err
	}
	c.printBots(c.app.Bots().Bots)
	return nil
}

func (c *cli) printBots(bots []domain.Bot) {
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\t이름\t심볼\t거래소\t전략\t시장\t상태\t모드\t손익(USD)")
	for _, b := range bots {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, b.Name, b.Symbol, b.Exchange, b.StrategyName, marketLabel(b),
			activeLabel(b.IsActive), modeLabel(b.IsPaperTrading), b.PnL().StringFixed(2))
	}
	w.Flush()
}

func (c *cli) bot(ctx context.Context, id int64) error {
	if err := c.app.OpenBot(ctx, id); err != nil {
		return err
	}
	defer c.app.CloseBot()

	state := c.app.Bots()
	b := state.Selected
	fmt.Fprintf(c.out, "%s (#%d) %s %s/%s\n", b.Name, b.ID, activeLabel(b.IsActive), b.Exchange, b.Symbol)
	fmt.Fprintf(c.out, "전략: %s  시장: %s  모드: %s\n", b.StrategyName, marketLabel(*b), modeLabel(b.IsPaperTrading))
	fmt.Fprintf(c.out, "모의 손익: %s USD  실거래 손익: %s USD\n", b.PaperPnLUSD.StringFixed(2), b.LivePnLUSD.StringFixed(2))

	if len(state.SelectedLogs) == 0 {
		fmt.Fprintln(c.out, "체결 기록 없음")
		return nil
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "시간\t방향\t수량\t가격\t금액")
	for _, l := range state.SelectedLogs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			l.Timestamp.Local().Format("2006-01-02 15:04:05"), l.Side, l.Amount.String(), l.Price.String(), l.Notional().StringFixed(2))
	}
	w.Flush()
	return nil
}

func (c *cli) setActive(ctx context.Context, id int64, active bool) error {
	var err error
	if active {
		err = c.app.StartBot(ctx, id)
	} else {
		err = c.app.StopBot(ctx, id)
	}
	if err != nil {
		if msg := c.app.Bots().MutationError; msg != "" {
			return errors.New(msg)
		}
		return err
	}
	fmt.Fprintf(c.out, "봇 #%d %s\n", id, activeLabel(active))
	return nil
}

func (c *cli) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	name := fs.String("name", "", "봇 이름")
	symbol := fs.String("symbol", "", "심볼 (예: BTCUSDT)")
	exchange := fs.String("exchange", "binance", "거래소")
	strategy := fs.String("strategy", "", "전략 이름")
	market := fs.String("market", string(domain.MarketSpot), "시장 (spot, futures)")
	leverage := fs.Int("leverage", 0, "레버리지 (선물만)")
	paper := fs.Bool("paper", false, "모의투자 여부")
	params := fs.String("params", "{}", "전략 파라미터 (JSON 객체)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	req := domain.CreateBotRequest{
		Name:           *name,
		Symbol:         strings.ToUpper(*symbol),
		Exchange:       *exchange,
		StrategyName:   *strategy,
		IsPaperTrading: *paper,
		MarketType:     domain.MarketType(*market),
	}
	if err := json.Unmarshal([]byte(*params), &req.StrategyParams); err != nil {
		return fmt.Errorf("전략 파라미터 JSON 해석 실패: %w", err)
	}
	if *leverage != 0 {
		req.Leverage = leverage
	}

	bot, err := c.app.CreateBot(ctx, req)
	if err != nil {
		if msg := c.app.Bots().MutationError; msg != "" {
			return errors.New(msg)
		}
		return err
	}
	fmt.Fprintf(c.out, "봇 #%d (%s) 생성됨\n", bot.ID, bot.Name)
	return nil
}

func (c *cli) wallet(ctx context.Context) error {
	if err := c.app.FetchWallet(ctx); err != nil {
		return err
	}
	state := c.app.Wallet()

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "자산\t잔고")
	for _, b := range state.Balances {
		fmt.Fprintf(w, "%s\t%s\n", b.Asset, b.Balance.String())
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "시간\t유형\t자산\t수량")
	for _, t := range state.Transactions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.CreatedAt.Local().Format("2006-01-02 15:04"), t.Type, t.Asset, t.Amount.String())
	}
	return w.Flush()
}

func (c *cli) deposit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("deposit", flag.ContinueOnError)
	force := fs.Bool("force", false, "캐시를 무시하고 다시 조회")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}

	addr, err := c.app.DepositAddress(ctx, fs.Arg(0), *force)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s 입금 주소: %s\n", addr.Asset, addr.Address)
	if addr.Network != "" {
		fmt.Fprintf(c.out, "네트워크: %s\n", addr.Network)
	}
	if addr.Memo != "" {
		fmt.Fprintf(c.out, "메모: %s\n", addr.Memo)
	}
	return nil
}

func (c *cli) portfolio(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("portfolio", flag.ContinueOnError)
	force := fs.Bool("force", false, "캐시를 무시하고 다시 조회")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	p, err := c.app.Portfolio(ctx, *force)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "자산\tUSD\t")
	for _, a := range p.Assets {
		fmt.Fprintf(w, "%s\t%s\t\n", a.Asset, a.USDValue.StringFixed(2))
	}
	fmt.Fprintf(w, "합계\t%s\t\n", p.TotalUSD().StringFixed(2))
	return w.Flush()
}

// watch는 갱신 주기마다 봇 목록과 지갑을 다시 조회하고 상태 변화를 출력합니다
func (c *cli) watch(ctx context.Context) error {
	last := map[int64]bool{}
	cancel := c.app.Subscribe(func(e app.Event) {
		switch e {
		case app.EventBots:
			for _, b := range c.app.Bots().Bots {
				if prev, seen := last[b.ID]; !seen || prev != b.IsActive {
					fmt.Fprintf(c.out, "[봇] #%d %s %s\n", b.ID, b.Name, activeLabel(b.IsActive))
					last[b.ID] = b.IsActive
				}
			}
		case app.EventSession:
			if !c.app.IsAuthenticated() {
				fmt.Fprintln(c.out, "세션이 종료되었습니다. 다시 로그인하세요.")
			}
		}
	})
	defer cancel()

	retry := scheduler.DefaultRetryConfig
	if c.retry != nil {
		retry = *c.retry
	}
	task := scheduler.NewRefreshTask(c.app, retry, c.app.Notifier(), c.logger)
	s := scheduler.NewScheduler(c.cfg.Refresh.Interval, task,
		scheduler.WithImmediateRun(),
		scheduler.WithLogger(c.logger),
	)

	// 세션이 끝나면 감시도 종료
	stopOnLogout := c.app.Subscribe(func(e app.Event) {
		if e == app.EventSession && !c.app.IsAuthenticated() {
			s.Stop()
		}
	})
	defer stopOnLogout()

	fmt.Fprintf(c.out, "%s 주기로 갱신합니다 (Ctrl+C로 종료)\n", c.cfg.Refresh.Interval)
	err := s.Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func activeLabel(active bool) string {
	if active {
		return "실행 중"
	}
	return "중지됨"
}

func modeLabel(paper bool) string {
	if paper {
		return "모의투자"
	}
	return "실거래"
}

func marketLabel(b domain.Bot) string {
	if b.MarketType == domain.MarketFutures && b.Leverage != nil {
		return fmt.Sprintf("%s %dx", b.MarketType, *b.Leverage)
	}
	return string(b.MarketType)
}
