// Package store는 서버가 소유한 엔티티(봇, 지갑)의 클라이언트 측 캐시를 관리합니다.
//
// 모든 스토어는 동시에 사용해도 안전하며, I/O 도중에는 잠금을 잡지 않습니다.
// 비동기 결과는 발급 순서가 아닌 완료 순서로 도착하므로, 각 작업은 발급 시점에
// 티켓 번호를 받고 적용 시점에 그 번호로 결과의 유효성을 판단합니다.
package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/assist-by/cockpit/internal/backend"
	"github.com/assist-by/cockpit/internal/domain"
)

var (
	// ErrDetailCleared는 상세 조회 결과가 ClearDetail 또는 새 조회로 버려졌을 때 반환됩니다
	ErrDetailCleared = errors.New("상세 조회가 취소되었습니다")
	// ErrStale은 결과가 더 최신 결과나 초기화에 의해 버려졌을 때 반환됩니다
	ErrStale = errors.New("이미 더 최신 상태가 반영되었습니다")
)

// Option은 스토어 공통 옵션입니다
type Option func(*options)

type options struct {
	logger   *slog.Logger
	onChange func()
}

// WithLogger는 로거를 설정합니다
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithOnChange는 상태가 바뀔 때마다 호출될 함수를 설정합니다. 잠금 밖에서 호출됩니다.
func WithOnChange(fn func()) Option {
	return func(o *options) {
		o.onChange = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), onChange: func() {}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// messageOf는 실패를 UI에 보여줄 메시지로 변환합니다
func messageOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrInvalidBotRequest):
		return err.Error()
	case errors.Is(err, context.Canceled):
		return "요청이 취소되었습니다"
	default:
		return backend.Message(err)
	}
}
