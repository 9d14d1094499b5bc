package app

import (
	"context"
	"errors"

	"github.com/assist-by/cockpit/internal/domain"
	"github.com/assist-by/cockpit/internal/notification"
	"github.com/assist-by/cockpit/internal/portfolio"
	"github.com/assist-by/cockpit/internal/session"
	"github.com/assist-by/cockpit/internal/store"
)

// Recover는 저장된 토큰으로 세션을 복구합니다
func (a *App) Recover(ctx context.Context) session.State {
	return a.session.Recover(ctx)
}

// Login은 이메일과 비밀번호로 로그인합니다
func (a *App) Login(ctx context.Context, email, password string) error {
	return a.session.Login(ctx, email, password)
}

// Logout은 세션을 끝내고 이전 사용자의 모든 캐시를 비웁니다
func (a *App) Logout(ctx context.Context) {
	a.session.Logout(ctx)
	a.resetData()
}

// resetData는 이전 사용자의 스토어와 캐시를 비웁니다
func (a *App) resetData() {
	a.bots.Reset()
	a.wallet.Reset()
	a.portfolio.Invalidate()
}

// FetchBots는 봇 목록을 다시 조회합니다
func (a *App) FetchBots(ctx context.Context) error {
	if !a.session.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	return a.settle(a.bots.FetchAll(ctx))
}

// CreateBot은 봇을 생성합니다
func (a *App) CreateBot(ctx context.Context, req domain.CreateBotRequest) (*domain.Bot, error) {
	if !a.session.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	bot, err := a.bots.Create(ctx, req)
	if err != nil {
		return nil, a.settle(err)
	}
	created := bot.Clone()
	a.notify("봇 생성", func(n notification.Notifier) error { return n.BotCreated(created) })
	return bot, nil
}

// StartBot은 봇을 시작합니다
func (a *App) StartBot(ctx context.Context, id int64) error {
	return a.setActive(ctx, id, true)
}

// StopBot은 봇을 중지합니다
func (a *App) StopBot(ctx context.Context, id int64) error {
	return a.setActive(ctx, id, false)
}

func (a *App) setActive(ctx context.Context, id int64, active bool) error {
	if !a.session.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	var err error
	if active {
		err = a.bots.Start(ctx, id)
	} else {
		err = a.bots.Stop(ctx, id)
	}
	if err != nil {
		return a.settle(err)
	}

	bot, ok := a.bots.Bot(id)
	if !ok {
		// 목록을 아직 조회하지 않은 경우
		bot = domain.Bot{ID: id, IsActive: active}
		if sel := a.bots.State().Selected; sel != nil && sel.ID == id {
			bot = sel.Clone()
		}
	}
	a.notify("봇 상태 변경", func(n notification.Notifier) error { return n.BotStateChanged(bot) })
	return nil
}

// OpenBot은 상세 화면을 열고 봇 상세와 체결 기록을 조회합니다
func (a *App) OpenBot(ctx context.Context, id int64) error {
	if !a.session.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	return a.settle(a.bots.FetchDetail(ctx, id))
}

// CloseBot은 상세 화면을 닫습니다
func (a *App) CloseBot() {
	a.bots.ClearDetail()
}

// FetchWallet은 잔고와 거래 내역을 다시 조회합니다
func (a *App) FetchWallet(ctx context.Context) error {
	if !a.session.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	return a.settle(a.wallet.FetchAll(ctx))
}

// DepositAddress는 자산의 입금 주소를 조회합니다
func (a *App) DepositAddress(ctx context.Context, asset string, force bool) (domain.DepositAddress, error) {
	if !a.session.IsAuthenticated() {
		return domain.DepositAddress{}, ErrNotAuthenticated
	}
	addr, err := a.wallet.DepositAddress(ctx, asset, force)
	return addr, a.settle(err)
}

// Portfolio는 포트폴리오를 캐시를 거쳐 조회합니다
func (a *App) Portfolio(ctx context.Context, force bool) (domain.Portfolio, error) {
	if !a.session.IsAuthenticated() {
		return domain.Portfolio{}, ErrNotAuthenticated
	}
	p, err := a.portfolio.Get(ctx, force)
	if err != nil {
		return domain.Portfolio{}, a.settle(err)
	}
	return p, nil
}

// Session은 세션 상태를 반환합니다
func (a *App) Session() session.State {
	return a.session.State()
}

// IsAuthenticated는 로그인 상태인지 확인합니다
func (a *App) IsAuthenticated() bool {
	return a.session.IsAuthenticated()
}

// Bots는 봇 스토어 상태를 반환합니다
func (a *App) Bots() store.BotState {
	return a.bots.State()
}

// Wallet은 지갑 스토어 상태를 반환합니다
func (a *App) Wallet() store.WalletState {
	return a.wallet.State()
}

// CachedPortfolio는 네트워크 없이 캐시된 포트폴리오를 반환합니다
func (a *App) CachedPortfolio() (domain.Portfolio, bool) {
	return a.portfolio.Peek()
}

// Notifier는 설정된 알림 전송기를 반환합니다
func (a *App) Notifier() notification.Notifier {
	return a.notifier
}

// PortfolioState는 포트폴리오 캐시 상태를 반환합니다
func (a *App) PortfolioState() portfolio.State {
	return a.portfolio.State()
}

// settle은 인증 만료로 스토어가 비워져 결과가 버려진 경우를 세션 만료 에러로 바꿉니다
func (a *App) settle(err error) error {
	if errors.Is(err, store.ErrStale) && !a.session.IsAuthenticated() {
		return ErrSessionExpired
	}
	if errors.Is(err, store.ErrDetailCleared) && !a.session.IsAuthenticated() {
		return ErrSessionExpired
	}
	if errors.Is(err, portfolio.ErrInvalidated) && !a.session.IsAuthenticated() {
		return ErrSessionExpired
	}
	return err
}
