// Package secret은 플랫폼 보안 저장소를 추상화한 키/값 비밀 저장소를 제공합니다.
package secret

import (
	"context"
	"errors"
	"fmt"
)

// TokenKey는 인증 토큰이 저장되는 고정 네임스페이스입니다
const TokenKey = "cockpit.auth.token"

// ErrStorage는 모든 저장소 실패의 공통 원인입니다
var ErrStorage = errors.New("비밀 저장소 오류")

// Store는 비밀 값을 저장하는 인터페이스입니다.
// 모든 작업은 멱등이며, 없는 키를 지우는 것은 성공입니다.
type Store interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Clear(ctx context.Context, key string) error
}

// StorageError는 저장소 작업 실패를 표현합니다
type StorageError struct {
	Op  string
	Key string
	Err error
}

// Error는 error 인터페이스를 구현합니다
func (e *StorageError) Error() string {
	return fmt.Sprintf("비밀 저장소 오류 [작업: %s, 키: %s]: %v", e.Op, e.Key, e.Err)
}

// Unwrap은 내부 에러를 반환합니다
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is는 errors.Is(err, ErrStorage)를 지원합니다
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func newStorageError(op, key string, err error) *StorageError {
	return &StorageError{Op: op, Key: key, Err: err}
}
