package cache

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound 缓存中没有对应记录
var ErrNotFound = errors.New("cache record not found")

// Store 分析摘要存储
type Store interface {
	Get(ctx context.Context, tripID string) (*Record, error)
	Set(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, tripID string) error
}

// MemoryStore 进程内存储，单实例部署和测试用
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, tripID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[tripID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) Set(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.TripID] = *rec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, tripID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, tripID)
	return nil
}
