// 文件: pkg/notify/event.go
// 触发事件模型与发射器接口
//
// 对触发器而言投递是 fire-and-forget: 告警状态在投递之前已经权威翻转，
// 投递失败 (比如用户没有在线会话) 不回滚、不重试触发。

package notify

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	"ding.com/pkg/market"
)

// Event 一次告警触发
type Event struct {
	EventID     string           `json:"event_id"`
	AlertID     string           `json:"alert_id"`
	UserID      string           `json:"user_id"`
	Market      string           `json:"market"` // 规范化市场标识
	Asset       string           `json:"asset"`  // 基础资产，展示用
	Kind        market.Kind      `json:"kind"`
	Direction   market.Direction `json:"direction"`
	Threshold   decimal.Decimal  `json:"threshold"`
	Price       float64          `json:"price"`              // 触发时的现价或收盘价
	Interval    market.Interval  `json:"interval,omitempty"` // 仅 K线告警
	TriggeredAt int64            `json:"triggered_at"`       // Unix 毫秒
}

// Notifier 把事件投递到事件所属用户的在线会话
// 会话/房间管理是外部协作方的事，这里只有 "推给用户 X" 一个能力
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Journal 触发流水下沉 (审计/分析用)，尽力而为
type Journal interface {
	Record(event Event)
}

// =============================================================================
// 事件 ID
// =============================================================================

// IDGenerator 雪花算法事件 ID 生成器
// 显式构造、显式持有，不做包级单例
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator nodeID 取值 0-1023
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &IDGenerator{node: node}, nil
}

// Next 生成事件 ID
func (g *IDGenerator) Next() string {
	return g.node.Generate().String()
}
