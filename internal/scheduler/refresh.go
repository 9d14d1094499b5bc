package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/assist-by/cockpit/internal/notification"
	"github.com/assist-by/cockpit/internal/store"
)

// Refresher는 백그라운드 갱신 대상입니다
type Refresher interface {
	IsAuthenticated() bool
	FetchBots(ctx context.Context) error
	FetchWallet(ctx context.Context) error
}

// RefreshTask는 로그인 상태일 때 봇 목록과 지갑을 다시 조회합니다
type RefreshTask struct {
	target   Refresher
	retry    RetryConfig
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewRefreshTask는 새로운 갱신 작업을 생성합니다
func NewRefreshTask(target Refresher, retry RetryConfig, notifier notification.Notifier, logger *slog.Logger) *RefreshTask {
	if notifier == nil {
		notifier = notification.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshTask{target: target, retry: retry, notifier: notifier, logger: logger}
}

// Execute는 Task 인터페이스를 구현합니다
func (t *RefreshTask) Execute(ctx context.Context) error {
	if !t.target.IsAuthenticated() {
		t.logger.Debug("로그인 상태가 아니어서 갱신 생략")
		return nil
	}

	var errs []error
	for _, job := range []struct {
		name string
		fn   func(context.Context) error
	}{
		{"봇 목록 갱신", t.target.FetchBots},
		{"지갑 갱신", t.target.FetchWallet},
	} {
		err := WithRetry(ctx, t.retry, t.logger, job.name, func() error { return job.fn(ctx) })
		if err == nil || errors.Is(err, store.ErrStale) {
			continue
		}
		if !t.target.IsAuthenticated() {
			// 인증 만료로 로그아웃된 경우 세션 만료 알림은 이미 전송됨
			t.logger.Info("세션이 끝나 갱신 중단", "job", job.name, "error", err)
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", job.name, err))
	}

	if len(errs) == 0 {
		return nil
	}
	err := errors.Join(errs...)
	if notifyErr := t.notifier.SendError(err); notifyErr != nil {
		t.logger.Warn("에러 알림 전송 실패", "error", notifyErr)
	}
	return err
}
