package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/assist-by/cockpit/internal/domain"
)

// WalletBackend는 지갑 스토어가 사용하는 서버 호출입니다
type WalletBackend interface {
	WalletBalances(ctx context.Context) ([]domain.WalletBalance, error)
	WalletTransactions(ctx context.Context) ([]domain.Transaction, error)
	DepositAddress(ctx context.Context, asset string) (*domain.DepositAddress, error)
}

// WalletState는 UI가 읽는 지갑 스토어 스냅샷입니다
type WalletState struct {
	Balances     []domain.WalletBalance
	Transactions []domain.Transaction
	Status       domain.Status
	Error        string

	Addresses     map[string]domain.DepositAddress
	AddressStatus domain.Status
	AddressError  string
}

// Balance는 자산의 잔고를 찾습니다
func (w WalletState) Balance(asset string) (domain.WalletBalance, bool) {
	for _, b := range w.Balances {
		if strings.EqualFold(b.Asset, asset) {
			return b, true
		}
	}
	return domain.WalletBalance{}, false
}

// WalletStore는 지갑 잔고와 거래 내역을 소유합니다
type WalletStore struct {
	api WalletBackend
	opt options

	mu    sync.RWMutex
	state WalletState

	ticket          uint64
	resetTicket     uint64
	appliedBalances uint64
	appliedTxs      uint64
}

// NewWalletStore는 새로운 지갑 스토어를 생성합니다
func NewWalletStore(api WalletBackend, opts ...Option) *WalletStore {
	return &WalletStore{
		api:   api,
		opt:   buildOptions(opts),
		state: WalletState{Addresses: make(map[string]domain.DepositAddress)},
	}
}

// State는 현재 상태의 복사본을 반환합니다
func (s *WalletStore) State() WalletState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.state
	if s.state.Balances != nil {
		out.Balances = append([]domain.WalletBalance(nil), s.state.Balances...)
	}
	if s.state.Transactions != nil {
		out.Transactions = append([]domain.Transaction(nil), s.state.Transactions...)
	}
	out.Addresses = make(map[string]domain.DepositAddress, len(s.state.Addresses))
	for k, v := range s.state.Addresses {
		out.Addresses[k] = v
	}
	return out
}

// FetchAll은 잔고와 거래 내역을 동시에 조회합니다. 둘 다 성공해야 반영됩니다.
func (s *WalletStore) FetchAll(ctx context.Context) error {
	ticket := s.begin()

	var (
		balances []domain.WalletBalance
		txs      []domain.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := s.api.WalletBalances(gctx)
		if err != nil {
			return fmt.Errorf("잔고 조회 실패: %w", err)
		}
		balances = b
		return nil
	})
	g.Go(func() error {
		t, err := s.api.WalletTransactions(gctx)
		if err != nil {
			return fmt.Errorf("거래 내역 조회 실패: %w", err)
		}
		txs = t
		return nil
	})
	err := g.Wait()

	return s.finish(ticket, err,
		func() bool { return ticket < s.appliedBalances && ticket < s.appliedTxs },
		func() {
			if ticket > s.appliedBalances {
				s.appliedBalances = ticket
				s.state.Balances = dedupeBalances(balances)
			}
			if ticket > s.appliedTxs {
				s.appliedTxs = ticket
				s.state.Transactions = dedupeTransactions(txs)
			}
		})
}

// FetchBalances는 잔고만 다시 조회합니다
func (s *WalletStore) FetchBalances(ctx context.Context) error {
	ticket := s.begin()
	balances, err := s.api.WalletBalances(ctx)
	return s.finish(ticket, err,
		func() bool { return ticket < s.appliedBalances },
		func() {
			s.appliedBalances = ticket
			s.state.Balances = dedupeBalances(balances)
		})
}

// FetchTransactions는 거래 내역만 다시 조회합니다
func (s *WalletStore) FetchTransactions(ctx context.Context) error {
	ticket := s.begin()
	txs, err := s.api.WalletTransactions(ctx)
	return s.finish(ticket, err,
		func() bool { return ticket < s.appliedTxs },
		func() {
			s.appliedTxs = ticket
			s.state.Transactions = dedupeTransactions(txs)
		})
}

func (s *WalletStore) begin() uint64 {
	s.mu.Lock()
	s.ticket++
	ticket := s.ticket
	s.state.Status = domain.StatusLoading
	s.state.Error = ""
	s.mu.Unlock()
	s.opt.onChange()
	return ticket
}

// finish는 잠금을 잡은 상태에서 stale 여부를 판단하고 결과를 반영합니다
func (s *WalletStore) finish(ticket uint64, err error, stale func() bool, apply func()) error {
	s.mu.Lock()
	if ticket < s.resetTicket || stale() {
		s.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		s.state.Status = domain.StatusFailed
		s.state.Error = messageOf(err)
		s.mu.Unlock()
		s.opt.onChange()
		s.opt.logger.Warn("지갑 조회 실패", "error", err)
		return err
	}
	apply()
	s.state.Status = domain.StatusSucceeded
	s.mu.Unlock()
	s.opt.onChange()
	return nil
}

// DepositAddress는 자산의 입금 주소를 반환합니다. force가 아니면 캐시된 주소를 사용합니다.
func (s *WalletStore) DepositAddress(ctx context.Context, asset string, force bool) (domain.DepositAddress, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return domain.DepositAddress{}, fmt.Errorf("자산 심볼이 비어 있습니다")
	}

	s.mu.Lock()
	if addr, ok := s.state.Addresses[asset]; ok && !force {
		s.mu.Unlock()
		return addr, nil
	}
	s.ticket++
	ticket := s.ticket
	s.state.AddressStatus = domain.StatusLoading
	s.state.AddressError = ""
	s.mu.Unlock()
	s.opt.onChange()

	addr, err := s.api.DepositAddress(ctx, asset)

	s.mu.Lock()
	if ticket < s.resetTicket {
		s.mu.Unlock()
		return domain.DepositAddress{}, ErrStale
	}
	if err != nil {
		s.state.AddressStatus = domain.StatusFailed
		s.state.AddressError = messageOf(err)
		s.mu.Unlock()
		s.opt.onChange()
		return domain.DepositAddress{}, err
	}
	s.state.Addresses[asset] = *addr
	s.state.AddressStatus = domain.StatusSucceeded
	s.mu.Unlock()
	s.opt.onChange()
	return *addr, nil
}

// Reset은 모든 상태를 비웁니다
func (s *WalletStore) Reset() {
	s.mu.Lock()
	s.ticket++
	s.resetTicket = s.ticket
	s.state = WalletState{Addresses: make(map[string]domain.DepositAddress)}
	s.mu.Unlock()
	s.opt.onChange()
}

// dedupeBalances는 자산별로 마지막 항목을 남깁니다
func dedupeBalances(in []domain.WalletBalance) []domain.WalletBalance {
	out := make([]domain.WalletBalance, 0, len(in))
	pos := make(map[string]int, len(in))
	for _, b := range in {
		key := strings.ToUpper(b.Asset)
		if i, ok := pos[key]; ok {
			out[i] = b
			continue
		}
		pos[key] = len(out)
		out = append(out, b)
	}
	return out
}

// dedupeTransactions는 id별로 마지막 항목을 남깁니다
func dedupeTransactions(in []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(in))
	pos := make(map[int64]int, len(in))
	for _, t := range in {
		if i, ok := pos[t.ID]; ok {
			out[i] = t
			continue
		}
		pos[t.ID] = len(out)
		out = append(out, t)
	}
	return out
}
