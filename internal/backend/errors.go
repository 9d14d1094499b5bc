package backend

import (
	"errors"
	"fmt"
)

// Kind는 전송 계층 에러의 분류입니다
type Kind int

const (
	KindNetwork    Kind = iota // 연결 불가 등
	KindTimeout                // 요청 시간 초과
	KindAuth                   // 401, 만료/무효 토큰
	KindValidation             // 서버 메시지가 있는 4xx
	KindServer                 // 5xx
	KindDecode                 // 응답 본문 해석 실패
)

// String은 Kind의 문자열 표현을 반환합니다
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// FallbackMessage는 서버가 메시지를 주지 않았을 때 사용자에게 보여줄 문구입니다
const FallbackMessage = "요청 처리 중 오류가 발생했습니다"

// Error는 모든 서버 호출 실패가 정규화되는 형태입니다
type Error struct {
	Kind    Kind
	Status  int    // HTTP 상태 코드 (응답이 없으면 0)
	Message string // 사용자에게 보여줄 메시지
	Op      string // 호출한 작업 (예: "GET /bots/")
	Err     error  // 원인 에러
}

// Error는 error 인터페이스를 구현합니다
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s 실패 (%s, HTTP %d): %s", e.Op, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s 실패 (%s): %s", e.Op, e.Kind, e.Message)
}

// Unwrap은 내부 에러를 반환합니다
func (e *Error) Unwrap() error {
	return e.Err
}

// AsError는 err 체인에서 *Error를 찾습니다
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsAuth는 인증 실패(만료/무효 토큰)인지 확인합니다
func IsAuth(err error) bool {
	e, ok := AsError(err)
	return ok && e.Kind == KindAuth
}

// IsRetryable은 호출자가 재시도해도 되는 에러인지 확인합니다
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Kind {
	case KindNetwork, KindTimeout, KindServer:
		return true
	default:
		return false
	}
}

// Message는 UI에 보여줄 사람이 읽을 수 있는 메시지를 반환합니다
func Message(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := AsError(err); ok && e.Message != "" {
		return e.Message
	}
	return FallbackMessage
}
