package secret

import (
	"context"
	"sync"
)

// MemoryStore는 프로세스 메모리에만 보관하는 저장소입니다
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	fail   error
}

// NewMemoryStore는 빈 메모리 저장소를 생성합니다
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// FailWith는 이후 모든 작업이 주어진 에러로 실패하도록 설정합니다. nil이면 해제합니다.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Put은 값을 저장합니다
func (s *MemoryStore) Put(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return newStorageError("put", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return newStorageError("put", key, s.fail)
	}
	s.values[key] = value
	return nil
}

// Get은 값을 조회합니다
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, newStorageError("get", key, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return "", false, newStorageError("get", key, s.fail)
	}
	v, ok := s.values[key]
	return v, ok, nil
}

// Clear는 값을 삭제합니다
func (s *MemoryStore) Clear(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return newStorageError("clear", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return newStorageError("clear", key, s.fail)
	}
	delete(s.values, key)
	return nil
}
