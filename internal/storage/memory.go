package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

type memorySeries struct {
	candles      map[int64]types.KLineData
	open         *types.KLineData
	lastActivity int64
}

// MemoryStore 纯内存存储，语义与RedisStore一致。
// 未配置Redis时的降级模式，也用于测试。
type MemoryStore struct {
	mu      sync.RWMutex
	timeout time.Duration
	series  map[string]*memorySeries
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(timeout time.Duration) *MemoryStore {
	return &MemoryStore{
		timeout: timeout,
		series:  make(map[string]*memorySeries),
	}
}

func (s *MemoryStore) getOrCreate(mint string) *memorySeries {
	ms := s.series[mint]
	if ms == nil {
		ms = &memorySeries{candles: make(map[int64]types.KLineData)}
		s.series[mint] = ms
	}
	return ms
}

func (s *MemoryStore) AppendCandle(_ context.Context, mint string, kline types.KLineData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := s.getOrCreate(mint)
	ms.candles[kline.Timestamp] = kline
	ms.lastActivity = kline.LastUpdate
	return nil
}

func (s *MemoryStore) PutOpenCandle(_ context.Context, mint string, kline types.KLineData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := s.getOrCreate(mint)
	k := kline
	ms.open = &k
	ms.lastActivity = kline.LastUpdate
	return nil
}

func (s *MemoryStore) GetSeries(_ context.Context, mint string, limit int) ([]types.KLineData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ms := s.series[mint]
	if ms == nil {
		return nil, nil
	}

	klines := make([]types.KLineData, 0, len(ms.candles))
	for _, k := range ms.candles {
		klines = append(klines, k)
	}
	sort.Slice(klines, func(i, j int) bool {
		return klines[i].Timestamp < klines[j].Timestamp
	})

	if limit > 0 && len(klines) > limit {
		klines = klines[len(klines)-limit:]
	}
	return klines, nil
}

func (s *MemoryStore) GetOpenCandle(_ context.Context, mint string) (*types.KLineData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ms := s.series[mint]
	if ms == nil || ms.open == nil {
		return nil, nil
	}
	k := *ms.open
	return &k, nil
}

func (s *MemoryStore) ListActiveMints(_ context.Context) ([]types.MintActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mints := make([]types.MintActivity, 0, len(s.series))
	for mint, ms := range s.series {
		mints = append(mints, types.MintActivity{Mint: mint, LastActivity: ms.lastActivity})
	}
	sort.Slice(mints, func(i, j int) bool {
		return mints[i].LastActivity > mints[j].LastActivity
	})
	return mints, nil
}

func (s *MemoryStore) Touch(_ context.Context, mint string, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ms := s.series[mint]; ms != nil {
		ms.lastActivity = ts
	}
	return nil
}

func (s *MemoryStore) EvictExpired(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for mint, ms := range s.series {
		if now.Unix()-ms.lastActivity >= int64(s.timeout.Seconds()) {
			delete(s.series, mint)
			evicted = append(evicted, mint)
		}
	}
	return evicted, nil
}

func (s *MemoryStore) Stats(_ context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	klines := 0
	for _, ms := range s.series {
		klines += len(ms.candles)
		if ms.open != nil {
			klines++
		}
	}
	return len(s.series), klines, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
