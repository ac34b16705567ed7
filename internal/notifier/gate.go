package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Gate 告警冷却闸门：同一mint在冷却期内只放行一次
type Gate interface {
	// Admit 尝试放行。返回true表示本次告警应该发出并开始冷却
	Admit(ctx context.Context, mint string) (bool, error)
}

func notificationKey(mint string) string {
	return "notification:" + mint + ":recent"
}

// RedisGate 基于Redis SETNX+TTL的冷却闸门，多实例间共享冷却状态
type RedisGate struct {
	client   *redis.Client
	cooldown time.Duration
}

// NewRedisGate 创建Redis冷却闸门
func NewRedisGate(client *redis.Client, cooldown time.Duration) *RedisGate {
	return &RedisGate{client: client, cooldown: cooldown}
}

func (g *RedisGate) Admit(ctx context.Context, mint string) (bool, error) {
	// SETNX保证检查和登记原子完成，并发下不会重复放行
	ok, err := g.client.SetNX(ctx, notificationKey(mint), time.Now().Unix(), g.cooldown).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// MemoryGate 纯内存冷却闸门，未配置Redis时的降级模式
type MemoryGate struct {
	mu       sync.Mutex
	until    map[string]time.Time
	cooldown time.Duration
	now      func() time.Time
}

// NewMemoryGate 创建内存冷却闸门
func NewMemoryGate(cooldown time.Duration) *MemoryGate {
	return &MemoryGate{
		until:    make(map[string]time.Time),
		cooldown: cooldown,
		now:      time.Now,
	}
}

func (g *MemoryGate) Admit(_ context.Context, mint string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)

	if deadline, ok := g.until[mint]; ok && now.Before(deadline) {
		return false, nil
	}
	g.until[mint] = now.Add(g.cooldown)
	return true, nil
}

// prune 顺手清理已过冷却期的记录，长跑时不积累内存
func (g *MemoryGate) prune(now time.Time) {
	for mint, deadline := range g.until {
		if !now.Before(deadline) {
			delete(g.until, mint)
		}
	}
}
