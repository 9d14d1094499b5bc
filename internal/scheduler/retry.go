package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/assist-by/cockpit/internal/backend"
)

// RetryConfig는 재시도 설정을 정의합니다
type RetryConfig struct {
	MaxRetries int           // 최대 재시도 횟수
	BaseDelay  time.Duration // 기본 대기 시간
	MaxDelay   time.Duration // 최대 대기 시간
	Factor     float64       // 대기 시간 증가 계수
}

// DefaultRetryConfig는 백그라운드 갱신에 쓰는 기본 재시도 설정입니다
var DefaultRetryConfig = RetryConfig{
	MaxRetries: 3,
	BaseDelay:  time.Second,
	MaxDelay:   10 * time.Second,
	Factor:     2,
}

// WithRetry는 네트워크/타임아웃/서버 에러에 한해 fn을 지수 백오프로 재시도합니다.
// 인증이나 검증 에러처럼 다시 보내도 결과가 같은 에러는 바로 반환합니다.
func WithRetry(ctx context.Context, cfg RetryConfig, logger *slog.Logger, operation string, fn func() error) error {
	if logger == nil {
		logger = slog.Default()
	}
	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !backend.IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		logger.Warn("재시도 예정", "operation", operation, "attempt", attempt+1, "max", cfg.MaxRetries, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * cfg.Factor)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
	}
	return fmt.Errorf("%s 실패 (최대 재시도 횟수 초과): %w", operation, lastErr)
}
