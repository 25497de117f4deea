package db

import (
	"context"
	"sync"
)

// MemoryStorage 进程内存储，默认后端，也用于测试
type MemoryStorage struct {
	entries sync.Map // map[string]string
	locks   sync.Map // map[string]*sync.Mutex
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Locker  = (*MemoryStorage)(nil)
)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	val, ok := s.entries.Load(key)
	if !ok {
		return "", false, nil
	}
	return val.(string), true, nil
}

func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.entries.Store(key, value)
	return nil
}

func (s *MemoryStorage) Remove(_ context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

// Lock 按键加锁，ctx 取消时放弃等待
func (s *MemoryStorage) Lock(ctx context.Context, key string) (func(), error) {
	m, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := m.(*sync.Mutex)

	acquired := make(chan struct{})
	go func() {
		mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return mu.Unlock, nil
	case <-ctx.Done():
		// 等锁的 goroutine 最终拿到锁后立即释放
		go func() {
			<-acquired
			mu.Unlock()
		}()
		return nil, ctx.Err()
	}
}
