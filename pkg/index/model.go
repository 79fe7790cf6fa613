// 文件: pkg/index/model.go
// 阈值索引数据模型
//
// 缓存层为每个 (市场, 方向) 维护一个按阈值排序的 ZSET，
// "现在哪些告警被穿越了" 从全量遍历变成一次单边范围查询。
// 这是整个引擎的承重结构。
//
// Key 布局:
//   现价索引:  alerts:price:{MARKET}:{direction}
//   K线索引:   alerts:candle:{interval}:{MARKET}:{direction}
//   详情记录:  alert:detail:{alertID}
//
// 不变量: 一个告警同一时刻至多出现在一个 ZSET 里，且仅当权威状态为
// PENDING 时才应出现。索引允许短暂失真 (条目对应的告警已非 PENDING)，
// 由触发器在下次遇到时自愈，绝不盲信。

package index

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"ding.com/pkg/market"
)

const (
	priceKeyPrefix  = "alerts:price:"
	candleKeyPrefix = "alerts:candle:"
	detailKeyPrefix = "alert:detail:"
)

var ErrInvalidDetail = errors.New("index: invalid detail record")

// =============================================================================
// Index - 阈值索引访问层接口
// =============================================================================

// Index 阈值索引访问层
// Redis 实现见 redis_index.go，内存版 (单测用) 见 memory_index.go
type Index interface {
	// FindCrossedAbove 返回 above 集合中阈值 <= ceiling 的告警 ID (价格已升穿)
	FindCrossedAbove(ctx context.Context, set SetKey, ceiling float64) ([]string, error)

	// FindCrossedBelow 返回 below 集合中阈值 >= floor 的告警 ID (价格已跌穿)
	FindCrossedBelow(ctx context.Context, set SetKey, floor float64) ([]string, error)

	// Remove 幂等移除索引条目，条目不存在不算错误
	Remove(ctx context.Context, set SetKey, alertID string) error

	// GetDetail 读详情记录，不存在或字段不完整返回 (nil, nil)
	GetDetail(ctx context.Context, alertID string) (*Detail, error)

	// DeleteDetail 幂等删除详情记录
	DeleteDetail(ctx context.Context, alertID string) error

	// DiscoverMarkets 扫描命名空间，返回当前有任一方向索引条目的去重市场列表
	// kind 为 KindCandle 时按 interval 过滤；底层用游标迭代，容忍扫描中分页变动
	DiscoverMarkets(ctx context.Context, kind market.Kind, interval market.Interval) ([]string, error)

	// ForEachDetail 遍历全部详情记录 (对账清扫用)，fn 返回错误即中断
	ForEachDetail(ctx context.Context, fn func(Detail) error) error

	// Subscribe 写入详情记录并加入对应 ZSET (编辑侧与测试用)
	Subscribe(ctx context.Context, d Detail) error

	// Unsubscribe 按 ID 摘除索引条目和详情记录
	Unsubscribe(ctx context.Context, alertID string) error
}

// =============================================================================
// SetKey - ZSET 定位
// =============================================================================

// SetKey 唯一定位一个阈值 ZSET
type SetKey struct {
	Kind      market.Kind
	Market    string          // 规范化市场标识
	Interval  market.Interval // 仅 K线索引使用
	Direction market.Direction
}

// PriceSet 现价索引 Key
func PriceSet(mkt string, dir market.Direction) SetKey {
	return SetKey{Kind: market.KindPrice, Market: market.Normalize(mkt), Direction: dir}
}

// CandleSet K线索引 Key
func CandleSet(mkt string, iv market.Interval, dir market.Direction) SetKey {
	return SetKey{Kind: market.KindCandle, Market: market.Normalize(mkt), Interval: iv, Direction: dir}
}

// String Redis Key 文本
func (k SetKey) String() string {
	if k.Kind == market.KindCandle {
		return candleKeyPrefix + string(k.Interval) + ":" + k.Market + ":" + string(k.Direction)
	}
	return priceKeyPrefix + k.Market + ":" + string(k.Direction)
}

// detailKey 详情记录 Key
func detailKey(alertID string) string {
	return detailKeyPrefix + alertID
}

// =============================================================================
// Detail - 告警详情记录 (缓存层反范式副本)
// =============================================================================

// Detail 触发热路径所需的全部字段，触发时无需回查系统记录源即可组装通知
//
// 生命周期: 告警激活时由编辑侧写入，触发或清理时由触发器删除。
// 从缓存读回时必须过 Validate，缺字段一律按 "不存在" 处理 (触发孤儿清理)，
// 绝不当成运行时类型错误。
type Detail struct {
	AlertID   string           `json:"alert_id"`
	UserID    string           `json:"user_id"`
	Market    string           `json:"market"`
	Kind      market.Kind      `json:"kind"`
	Direction market.Direction `json:"direction"`
	Threshold decimal.Decimal  `json:"threshold"`
	Interval  market.Interval  `json:"interval,omitempty"`
}

// Validate 校验必填字段
func (d Detail) Validate() error {
	switch {
	case d.AlertID == "" || d.UserID == "" || d.Market == "":
		return ErrInvalidDetail
	case d.Kind != market.KindPrice && d.Kind != market.KindCandle:
		return ErrInvalidDetail
	case d.Direction != market.DirectionAbove && d.Direction != market.DirectionBelow:
		return ErrInvalidDetail
	case d.Kind == market.KindCandle && !d.Interval.Valid():
		return ErrInvalidDetail
	}
	return nil
}

// Set 该告警所属的 ZSET
func (d Detail) Set() SetKey {
	if d.Kind == market.KindCandle {
		return CandleSet(d.Market, d.Interval, d.Direction)
	}
	return PriceSet(d.Market, d.Direction)
}

// Score ZSET 分值
// 阈值的权威表示是 decimal，ZSET 分值只是用于范围查询的 float64 投影
func (d Detail) Score() float64 {
	return d.Threshold.InexactFloat64()
}
