package storage

import (
	"context"
	"time"

	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

// SeriesStore K线序列存储抽象：任何支持TTL的KV存储都可以实现
type SeriesStore interface {
	// AppendCandle 追加一根已收盘K线，并刷新mint的活跃时间
	AppendCandle(ctx context.Context, mint string, kline types.KLineData) error
	// PutOpenCandle 写入/覆盖当前未收盘K线（供展示层读取）
	PutOpenCandle(ctx context.Context, mint string, kline types.KLineData) error
	// GetSeries 返回最近limit根已收盘K线（时间升序），limit<=0表示全部
	GetSeries(ctx context.Context, mint string, limit int) ([]types.KLineData, error)
	// GetOpenCandle 返回当前未收盘K线，不存在时返回nil
	GetOpenCandle(ctx context.Context, mint string) (*types.KLineData, error)
	// ListActiveMints 返回所有活跃mint及最后活动时间（按活跃度降序）
	ListActiveMints(ctx context.Context) ([]types.MintActivity, error)
	// Touch 刷新mint的活跃时间，不修改K线数据
	Touch(ctx context.Context, mint string, ts int64) error
	// EvictExpired 删除所有超时不活跃的mint序列，返回被删除的mint列表
	EvictExpired(ctx context.Context, now time.Time) ([]string, error)
	// Stats 返回mint总数和K线总数
	Stats(ctx context.Context) (mints int, klines int, err error)
	Close() error
}

const (
	klinePrefix    = "kline:"
	activityPrefix = "mint_activity:"
	openField      = "open"
)

func klineKey(mint string) string {
	return klinePrefix + mint
}

func activityKey(mint string) string {
	return activityPrefix + mint
}
