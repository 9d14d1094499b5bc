package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assist-by/cockpit/internal/backend"
	"github.com/assist-by/cockpit/internal/domain"
	"github.com/assist-by/cockpit/internal/store"
)

func TestScheduler_RunsUntilStopped(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(10*time.Millisecond, TaskFunc(func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("실패해도 계속 실행")
	}), WithImmediateRun())

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, time.Millisecond)
	s.Stop()
	s.Stop()
	assert.NoError(t, <-done)
}

func TestScheduler_ContextCancel(t *testing.T) {
	s := NewScheduler(time.Hour, TaskFunc(func(ctx context.Context) error { return nil }))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestScheduler_UntilNextAligned(t *testing.T) {
	s := NewScheduler(time.Minute, TaskFunc(func(ctx context.Context) error { return nil }))
	s.now = func() time.Time { return time.Date(2024, 5, 1, 10, 15, 20, 0, time.UTC) }
	assert.Equal(t, 40*time.Second, s.untilNext())
}

var fastRetry = RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Factor: 2}

func TestWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{"네트워크 에러는 재시도", &backend.Error{Kind: backend.KindNetwork}, 4},
		{"타임아웃은 재시도", &backend.Error{Kind: backend.KindTimeout}, 4},
		{"서버 에러는 재시도", &backend.Error{Kind: backend.KindServer, Status: 503}, 4},
		{"인증 에러는 바로 반환", &backend.Error{Kind: backend.KindAuth, Status: 401}, 1},
		{"검증 에러는 바로 반환", &backend.Error{Kind: backend.KindValidation, Status: 400}, 1},
		{"알 수 없는 에러는 바로 반환", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := WithRetry(context.Background(), fastRetry, nil, "test", func() error {
				calls++
				return tt.err
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetry, nil, "test", func() error {
		calls++
		if calls < 3 {
			return &backend.Error{Kind: backend.KindNetwork}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_LogsToGivenLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	calls := 0
	err := WithRetry(context.Background(), fastRetry, logger, "잔고 조회", func() error {
		calls++
		if calls < 2 {
			return &backend.Error{Kind: backend.KindTimeout}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "재시도 예정")
	assert.Contains(t, buf.String(), "잔고 조회")
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithRetry(ctx, fastRetry, nil, "test", func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeRefresher struct {
	mu            sync.Mutex
	authenticated bool
	botsErr       error
	walletErr     error
	calls         []string
}

func (f *fakeRefresher) IsAuthenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authenticated
}

func (f *fakeRefresher) FetchBots(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "bots")
	if backend.IsAuth(f.botsErr) {
		f.authenticated = false
	}
	return f.botsErr
}

func (f *fakeRefresher) FetchWallet(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "wallet")
	return f.walletErr
}

type recordingNotifier struct {
	errs []error
}

func (r *recordingNotifier) BotStateChanged(domain.Bot) error { return nil }
func (r *recordingNotifier) BotCreated(domain.Bot) error      { return nil }
func (r *recordingNotifier) SessionExpired(string) error      { return nil }
func (r *recordingNotifier) SendError(err error) error {
	r.errs = append(r.errs, err)
	return nil
}

func TestRefreshTask(t *testing.T) {
	t.Run("로그인 전에는 아무것도 하지 않음", func(t *testing.T) {
		f := &fakeRefresher{}
		require.NoError(t, NewRefreshTask(f, fastRetry, nil, nil).Execute(context.Background()))
		assert.Empty(t, f.calls)
	})

	t.Run("봇과 지갑을 갱신", func(t *testing.T) {
		f := &fakeRefresher{authenticated: true}
		require.NoError(t, NewRefreshTask(f, fastRetry, nil, nil).Execute(context.Background()))
		assert.Equal(t, []string{"bots", "wallet"}, f.calls)
	})

	t.Run("늦게 도착해 버려진 결과는 실패가 아님", func(t *testing.T) {
		f := &fakeRefresher{authenticated: true, botsErr: store.ErrStale}
		require.NoError(t, NewRefreshTask(f, fastRetry, nil, nil).Execute(context.Background()))
	})

	t.Run("서버 에러는 재시도 후 알림", func(t *testing.T) {
		f := &fakeRefresher{authenticated: true, walletErr: &backend.Error{Kind: backend.KindServer, Status: 500}}
		n := &recordingNotifier{}
		err := NewRefreshTask(f, fastRetry, n, nil).Execute(context.Background())
		require.Error(t, err)
		assert.Equal(t, []string{"bots", "wallet", "wallet", "wallet", "wallet"}, f.calls)
		assert.Len(t, n.errs, 1)
	})

	t.Run("인증 만료 후에는 중단", func(t *testing.T) {
		f := &fakeRefresher{authenticated: true, botsErr: &backend.Error{Kind: backend.KindAuth, Status: 401}}
		n := &recordingNotifier{}
		require.NoError(t, NewRefreshTask(f, fastRetry, n, nil).Execute(context.Background()))
		assert.Equal(t, []string{"bots"}, f.calls)
		assert.Empty(t, n.errs)
	})
}
