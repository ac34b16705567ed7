package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

// NewRedisClient 创建Redis客户端并检查连通性
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("解析Redis URL失败: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis连接失败: %w", err)
	}

	return client, nil
}

// RedisStore 基于Redis的K线序列存储。
// 每个mint一个hash（field=K线起始时间戳，field=open为未收盘K线），
// 外加一个mint_activity键记录最后活动时间；
// 两个键在每次写入时刷新过期时间，过期时间与淘汰超时对齐。
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisStore 创建Redis存储
func NewRedisStore(client *redis.Client, timeout time.Duration) *RedisStore {
	return &RedisStore{client: client, timeout: timeout}
}

func (s *RedisStore) AppendCandle(ctx context.Context, mint string, kline types.KLineData) error {
	data, err := json.Marshal(kline)
	if err != nil {
		return fmt.Errorf("序列化K线失败: %w", err)
	}

	field := strconv.FormatInt(kline.Timestamp, 10)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, klineKey(mint), field, data)
	pipe.Expire(ctx, klineKey(mint), s.timeout)
	pipe.Set(ctx, activityKey(mint), kline.LastUpdate, s.timeout)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入K线失败: %w", err)
	}
	return nil
}

func (s *RedisStore) PutOpenCandle(ctx context.Context, mint string, kline types.KLineData) error {
	data, err := json.Marshal(kline)
	if err != nil {
		return fmt.Errorf("序列化K线失败: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, klineKey(mint), openField, data)
	pipe.Expire(ctx, klineKey(mint), s.timeout)
	pipe.Set(ctx, activityKey(mint), kline.LastUpdate, s.timeout)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入未收盘K线失败: %w", err)
	}
	return nil
}

func (s *RedisStore) GetSeries(ctx context.Context, mint string, limit int) ([]types.KLineData, error) {
	fields, err := s.client.HGetAll(ctx, klineKey(mint)).Result()
	if err != nil {
		return nil, fmt.Errorf("读取K线序列失败: %w", err)
	}

	klines := make([]types.KLineData, 0, len(fields))
	for field, raw := range fields {
		if field == openField {
			continue
		}
		var kline types.KLineData
		if err := json.Unmarshal([]byte(raw), &kline); err != nil {
			zap.L().Warn("K线数据损坏，已跳过",
				zap.String("mint", mint), zap.String("field", field), zap.Error(err))
			continue
		}
		klines = append(klines, kline)
	}

	sort.Slice(klines, func(i, j int) bool {
		return klines[i].Timestamp < klines[j].Timestamp
	})

	if limit > 0 && len(klines) > limit {
		klines = klines[len(klines)-limit:]
	}
	return klines, nil
}

func (s *RedisStore) GetOpenCandle(ctx context.Context, mint string) (*types.KLineData, error) {
	raw, err := s.client.HGet(ctx, klineKey(mint), openField).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取未收盘K线失败: %w", err)
	}

	var kline types.KLineData
	if err := json.Unmarshal([]byte(raw), &kline); err != nil {
		return nil, fmt.Errorf("反序列化未收盘K线失败: %w", err)
	}
	return &kline, nil
}

func (s *RedisStore) ListActiveMints(ctx context.Context) ([]types.MintActivity, error) {
	var mints []types.MintActivity

	iter := s.client.Scan(ctx, 0, activityPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.client.Get(ctx, key).Result()
		if err != nil {
			continue // 键可能已过期
		}
		last, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		mints = append(mints, types.MintActivity{
			Mint:         strings.TrimPrefix(key, activityPrefix),
			LastActivity: last,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("扫描活跃mint失败: %w", err)
	}

	sort.Slice(mints, func(i, j int) bool {
		return mints[i].LastActivity > mints[j].LastActivity
	})
	return mints, nil
}

func (s *RedisStore) Touch(ctx context.Context, mint string, ts int64) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, activityKey(mint), ts, s.timeout)
	pipe.Expire(ctx, klineKey(mint), s.timeout)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("刷新活跃时间失败: %w", err)
	}
	return nil
}

// evictScript 对比删除：删除前在Redis侧重读活动时间，
// 扫描快照之后有新写入的mint不删，避免并发交易被静默清掉
var evictScript = redis.NewScript(`
local last = redis.call('GET', KEYS[1])
if not last then
  return 0
end
if tonumber(last) > tonumber(ARGV[1]) then
  return 0
end
redis.call('DEL', KEYS[1], KEYS[2])
return 1
`)

func (s *RedisStore) EvictExpired(ctx context.Context, now time.Time) ([]string, error) {
	mints, err := s.ListActiveMints(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := now.Unix() - int64(s.timeout.Seconds())

	var evicted []string
	for _, m := range mints {
		if m.LastActivity > cutoff {
			continue
		}

		deleted, err := evictScript.Run(ctx, s.client,
			[]string{activityKey(m.Mint), klineKey(m.Mint)}, cutoff).Int()
		if err != nil {
			zap.L().Warn("删除不活跃mint失败",
				zap.String("mint", m.Mint), zap.Error(err))
			continue
		}
		if deleted == 0 {
			// 扫描后又来了新交易，本轮放过
			continue
		}

		zap.L().Info("🗑️ mint不活跃，已清理K线",
			zap.String("mint", m.Mint), zap.Int64("idle_secs", now.Unix()-m.LastActivity))
		evicted = append(evicted, m.Mint)
	}
	return evicted, nil
}

func (s *RedisStore) Stats(ctx context.Context) (int, int, error) {
	mints := 0
	klines := 0

	iter := s.client.Scan(ctx, 0, klinePrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		mints++
		n, err := s.client.HLen(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		klines += int(n)
	}
	if err := iter.Err(); err != nil {
		return 0, 0, fmt.Errorf("统计K线失败: %w", err)
	}
	return mints, klines, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
