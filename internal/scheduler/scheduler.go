package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task는 스케줄러가 실행할 작업을 정의하는 인터페이스입니다
type Task interface {
	Execute(ctx context.Context) error
}

// TaskFunc는 함수를 Task로 사용하게 해줍니다
type TaskFunc func(ctx context.Context) error

// Execute는 Task 인터페이스를 구현합니다
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Scheduler는 interval 경계에 맞춰 작업을 반복 실행합니다
type Scheduler struct {
	interval    time.Duration
	task        Task
	immediately bool
	logger      *slog.Logger
	now         func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option은 스케줄러 설정 함수입니다
type Option func(*Scheduler)

// WithImmediateRun은 첫 경계를 기다리지 않고 시작하자마자 한 번 실행하게 합니다
func WithImmediateRun() Option {
	return func(s *Scheduler) {
		s.immediately = true
	}
}

// WithLogger는 로거를 설정합니다
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// NewScheduler는 새로운 스케줄러를 생성합니다
func NewScheduler(interval time.Duration, task Task, opts ...Option) *Scheduler {
	s := &Scheduler{
		interval: interval,
		task:     task,
		logger:   slog.Default(),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start는 ctx가 끝나거나 Stop이 호출될 때까지 작업을 실행합니다.
// 작업이 실패해도 다음 주기에 계속 실행합니다.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.immediately {
		s.run(ctx)
	}

	timer := time.NewTimer(s.untilNext())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.stopCh:
			return nil

		case <-timer.C:
			s.run(ctx)
			timer.Reset(s.untilNext())
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	started := s.now()
	if err := s.task.Execute(ctx); err != nil {
		s.logger.Warn("작업 실행 실패", "error", err)
		return
	}
	s.logger.Debug("작업 실행 완료", "elapsed", s.now().Sub(started).Round(time.Millisecond))
}

// untilNext는 다음 interval 경계까지 남은 시간을 계산합니다
func (s *Scheduler) untilNext() time.Duration {
	now := s.now()
	nextRun := now.Truncate(s.interval).Add(s.interval)
	wait := nextRun.Sub(now)

	s.logger.Debug("다음 실행 대기", "wait", wait.Round(time.Millisecond), "next", nextRun.Format("15:04:05"))
	return wait
}

// Stop은 스케줄러를 중지합니다. 여러 번 호출해도 안전합니다.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
