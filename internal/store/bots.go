package store

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/assist-by/cockpit/internal/backend"
	"github.com/assist-by/cockpit/internal/domain"
)

// BotBackend는 봇 스토어가 사용하는 서버 호출입니다
type BotBackend interface {
	ListBots(ctx context.Context) ([]domain.Bot, error)
	GetBot(ctx context.Context, id int64) (*domain.Bot, error)
	BotLogs(ctx context.Context, id int64) ([]domain.TradeLog, error)
	CreateBot(ctx context.Context, req domain.CreateBotRequest) (*domain.Bot, error)
	StartBot(ctx context.Context, id int64) error
	StopBot(ctx context.Context, id int64) error
}

// BotState는 UI가 읽는 봇 스토어 스냅샷입니다
type BotState struct {
	Bots   []domain.Bot
	Status domain.Status
	Error  string

	// 변경 작업은 조회 상태와 분리해서 추적합니다
	MutationStatus domain.Status
	MutatingID     int64 // 생성 중이면 0
	MutationError  string

	// 상세 화면 범위 상태
	DetailID     int64
	Selected     *domain.Bot
	SelectedLogs []domain.TradeLog
	DetailStatus domain.Status
	DetailError  string
}

// BotStore는 봇 목록과 상세 상태를 소유합니다
type BotStore struct {
	api BotBackend
	opt options

	mu    sync.RWMutex
	state BotState

	ticket       uint64
	resetTicket  uint64           // 이보다 먼저 발급된 작업의 결과는 버립니다
	appliedFetch uint64           // 마지막으로 반영된 FetchAll의 티켓
	mutation     uint64           // 가장 최근에 발급된 변경 작업의 티켓
	patched      map[int64]uint64 // id -> 확정된 시작/중지가 반영된 티켓
	activeAt     map[int64]bool   // id -> 확정된 is_active 값
	created      map[int64]uint64 // id -> 생성이 확정된 티켓
	createdBots  map[int64]domain.Bot

	detailGen    uint64
	detailCancel context.CancelFunc
}

// NewBotStore는 새로운 봇 스토어를 생성합니다
func NewBotStore(api BotBackend, opts ...Option) *BotStore {
	return &BotStore{
		api:         api,
		opt:         buildOptions(opts),
		patched:     make(map[int64]uint64),
		activeAt:    make(map[int64]bool),
		created:     make(map[int64]uint64),
		createdBots: make(map[int64]domain.Bot),
	}
}

// State는 현재 상태의 깊은 복사본을 반환합니다
func (s *BotStore) State() BotState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.state
	out.Bots = cloneBots(s.state.Bots)
	if s.state.Selected != nil {
		b := s.state.Selected.Clone()
		out.Selected = &b
	}
	if s.state.SelectedLogs != nil {
		out.SelectedLogs = append([]domain.TradeLog(nil), s.state.SelectedLogs...)
	}
	return out
}

// Bot은 캐시된 봇 하나를 반환합니다
func (s *BotStore) Bot(id int64) (domain.Bot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.state.Bots, id); i >= 0 {
		return s.state.Bots[i].Clone(), true
	}
	return domain.Bot{}, false
}

// FetchAll은 봇 목록을 조회해 컬렉션 전체를 교체합니다.
// 실패하면 기존 컬렉션을 유지한 채 Failed 상태가 됩니다.
func (s *BotStore) FetchAll(ctx context.Context) error {
	s.mu.Lock()
	ticket := s.next()
	s.state.Status = domain.StatusLoading
	s.state.Error = ""
	s.mu.Unlock()
	s.opt.onChange()

	bots, err := s.api.ListBots(ctx)

	s.mu.Lock()
	if ticket < s.resetTicket || ticket < s.appliedFetch {
		s.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		s.state.Status = domain.StatusFailed
		s.state.Error = messageOf(err)
		s.mu.Unlock()
		s.opt.onChange()
		s.opt.logger.Warn("봇 목록 조회 실패", "error", err)
		return err
	}

	s.appliedFetch = ticket
	s.state.Bots = s.reconcile(ticket, dedupeBots(bots))
	s.state.Status = domain.StatusSucceeded
	s.mu.Unlock()
	s.opt.onChange()
	return nil
}

// reconcile은 FetchAll 응답을 그 요청 이후에 확정된 변경과 합칩니다.
// 호출자는 잠금을 잡고 있어야 합니다.
func (s *BotStore) reconcile(ticket uint64, bots []domain.Bot) []domain.Bot {
	for i := range bots {
		id := bots[i].ID
		if t, ok := s.patched[id]; ok && t > ticket {
			bots[i].IsActive = s.activeAt[id]
		}
	}

	for id, t := range s.created {
		if t > ticket && indexOf(bots, id) < 0 {
			bots = append(bots, s.createdBots[id].Clone())
		}
	}

	// 응답에 이미 반영된 변경 기록은 정리
	for id, t := range s.patched {
		if t < ticket {
			delete(s.patched, id)
			delete(s.activeAt, id)
		}
	}
	for id, t := range s.created {
		if t < ticket {
			delete(s.created, id)
			delete(s.createdBots, id)
		}
	}
	return bots
}

// Start는 봇을 시작합니다. 서버가 확인한 뒤에만 is_active를 바꿉니다.
func (s *BotStore) Start(ctx context.Context, id int64) error {
	return s.setActive(ctx, id, true)
}

// Stop은 봇을 중지합니다. 서버가 확인한 뒤에만 is_active를 바꿉니다.
func (s *BotStore) Stop(ctx context.Context, id int64) error {
	return s.setActive(ctx, id, false)
}

func (s *BotStore) setActive(ctx context.Context, id int64, active bool) error {
	issued := s.beginMutation(id)

	var err error
	if active {
		err = s.api.StartBot(ctx, id)
	} else {
		err = s.api.StopBot(ctx, id)
	}

	s.mu.Lock()
	if issued < s.resetTicket {
		s.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		s.failMutation(issued, err)
		s.mu.Unlock()
		s.opt.onChange()
		s.opt.logger.Warn("봇 상태 변경 실패", "bot_id", id, "active", active, "error", err)
		return err
	}

	confirmed := s.next()
	s.patched[id] = confirmed
	s.activeAt[id] = active
	if i := indexOf(s.state.Bots, id); i >= 0 {
		s.state.Bots[i].IsActive = active
	}
	if s.state.Selected != nil && s.state.Selected.ID == id {
		s.state.Selected.IsActive = active
	}
	s.succeedMutation(issued)
	s.mu.Unlock()
	s.opt.onChange()

	s.opt.logger.Info("봇 상태 변경 확정", "bot_id", id, "active", active)
	return nil
}

// Create는 봇을 생성합니다. 서버가 생성한 봇만 컬렉션에 추가합니다.
func (s *BotStore) Create(ctx context.Context, req domain.CreateBotRequest) (*domain.Bot, error) {
	issued := s.beginMutation(0)

	if err := req.Validate(); err != nil {
		s.mu.Lock()
		s.failMutation(issued, err)
		s.mu.Unlock()
		s.opt.onChange()
		return nil, err
	}

	bot, err := s.api.CreateBot(ctx, req)
	if err == nil && (bot == nil || bot.ID == 0) {
		err = &backend.Error{Kind: backend.KindDecode, Op: "create bot", Message: "서버가 생성한 봇을 확인할 수 없습니다"}
	}

	s.mu.Lock()
	if issued < s.resetTicket {
		s.mu.Unlock()
		return nil, ErrStale
	}
	if err != nil {
		s.failMutation(issued, err)
		s.mu.Unlock()
		s.opt.onChange()
		s.opt.logger.Warn("봇 생성 실패", "name", req.Name, "error", err)
		return nil, err
	}

	confirmed := s.next()
	s.created[bot.ID] = confirmed
	s.createdBots[bot.ID] = bot.Clone()
	if i := indexOf(s.state.Bots, bot.ID); i >= 0 {
		s.state.Bots[i] = bot.Clone()
	} else {
		s.state.Bots = append(s.state.Bots, bot.Clone())
	}
	s.succeedMutation(issued)
	s.mu.Unlock()
	s.opt.onChange()

	s.opt.logger.Info("봇 생성 확정", "bot_id", bot.ID, "name", bot.Name)
	out := bot.Clone()
	return &out, nil
}

func (s *BotStore) beginMutation(id int64) uint64 {
	s.mu.Lock()
	issued := s.next()
	s.mutation = issued
	s.state.MutationStatus = domain.StatusLoading
	s.state.MutatingID = id
	s.state.MutationError = ""
	s.mu.Unlock()
	s.opt.onChange()
	return issued
}

// failMutation과 succeedMutation은 가장 최근 변경 작업일 때만 상태 표시를 바꿉니다.
// 호출자는 잠금을 잡고 있어야 합니다.
func (s *BotStore) failMutation(issued uint64, err error) {
	if issued != s.mutation {
		return
	}
	s.state.MutationStatus = domain.StatusFailed
	s.state.MutationError = messageOf(err)
}

func (s *BotStore) succeedMutation(issued uint64) {
	if issued != s.mutation {
		return
	}
	s.state.MutationStatus = domain.StatusSucceeded
	s.state.MutationError = ""
}

// FetchDetail은 봇 상세와 체결 기록을 동시에 조회합니다.
// 둘 다 성공해야 반영되며, 하나라도 실패하면 Selected는 비어 있는 채로 Failed가 됩니다.
func (s *BotStore) FetchDetail(ctx context.Context, id int64) error {
	s.mu.Lock()
	if s.detailCancel != nil {
		s.detailCancel()
	}
	s.detailGen++
	gen := s.detailGen
	issued := s.next()
	ctx, cancel := context.WithCancel(ctx)
	s.detailCancel = cancel
	s.state.DetailID = id
	s.state.Selected = nil
	s.state.SelectedLogs = nil
	s.state.DetailStatus = domain.StatusLoading
	s.state.DetailError = ""
	s.mu.Unlock()
	s.opt.onChange()
	defer cancel()

	var (
		bot  *domain.Bot
		logs []domain.TradeLog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := s.api.GetBot(gctx, id)
		if err != nil {
			return fmt.Errorf("봇 상세 조회 실패: %w", err)
		}
		bot = b
		return nil
	})
	g.Go(func() error {
		l, err := s.api.BotLogs(gctx, id)
		if err != nil {
			return fmt.Errorf("체결 기록 조회 실패: %w", err)
		}
		logs = l
		return nil
	})
	err := g.Wait()

	s.mu.Lock()
	if gen != s.detailGen {
		s.mu.Unlock()
		return ErrDetailCleared
	}
	s.detailCancel = nil
	if err != nil {
		s.state.DetailStatus = domain.StatusFailed
		s.state.DetailError = messageOf(err)
		s.mu.Unlock()
		s.opt.onChange()
		s.opt.logger.Warn("봇 상세 조회 실패", "bot_id", id, "error", err)
		return err
	}

	selected := bot.Clone()
	// 상세 조회 이후 확정된 시작/중지가 있으면 그 값을 우선
	if t, ok := s.patched[id]; ok && t > issued {
		selected.IsActive = s.activeAt[id]
	}
	s.state.Selected = &selected
	if logs == nil {
		logs = []domain.TradeLog{}
	}
	s.state.SelectedLogs = logs
	s.state.DetailStatus = domain.StatusSucceeded
	s.mu.Unlock()
	s.opt.onChange()
	return nil
}

// ClearDetail은 상세 화면 범위의 상태를 비우고 진행 중인 상세 조회를 취소합니다
func (s *BotStore) ClearDetail() {
	s.mu.Lock()
	s.clearDetailLocked()
	s.mu.Unlock()
	s.opt.onChange()
}

func (s *BotStore) clearDetailLocked() {
	if s.detailCancel != nil {
		s.detailCancel()
		s.detailCancel = nil
	}
	s.detailGen++
	s.state.DetailID = 0
	s.state.Selected = nil
	s.state.SelectedLogs = nil
	s.state.DetailStatus = domain.StatusIdle
	s.state.DetailError = ""
}

// Reset은 모든 상태를 비웁니다. 이전에 발급된 작업의 결과는 이후 버려집니다.
func (s *BotStore) Reset() {
	s.mu.Lock()
	s.clearDetailLocked()
	s.resetTicket = s.next()
	s.mutation = s.resetTicket
	s.state = BotState{}
	s.patched = make(map[int64]uint64)
	s.activeAt = make(map[int64]bool)
	s.created = make(map[int64]uint64)
	s.createdBots = make(map[int64]domain.Bot)
	s.mu.Unlock()
	s.opt.onChange()
}

// next는 새 티켓을 발급합니다. 호출자는 잠금을 잡고 있어야 합니다.
func (s *BotStore) next() uint64 {
	s.ticket++
	return s.ticket
}

func indexOf(bots []domain.Bot, id int64) int {
	for i := range bots {
		if bots[i].ID == id {
			return i
		}
	}
	return -1
}

// dedupeBots는 id가 중복되면 마지막 항목을 남깁니다
func dedupeBots(bots []domain.Bot) []domain.Bot {
	out := make([]domain.Bot, 0, len(bots))
	for _, b := range bots {
		if i := indexOf(out, b.ID); i >= 0 {
			out[i] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

func cloneBots(bots []domain.Bot) []domain.Bot {
	if bots == nil {
		return nil
	}
	out := make([]domain.Bot, len(bots))
	for i, b := range bots {
		out[i] = b.Clone()
	}
	return out
}
