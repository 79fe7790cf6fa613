// 文件: pkg/store/model.go
// 告警记录源数据模型
//
// 这里是状态的权威出处。引擎对告警只做一件事:
// 读状态 + 把 PENDING 翻转成 TRIGGERED，其余字段一概不写。

package store

import (
	"context"
	"errors"

	"ding.com/pkg/market"
)

// Status 告警权威状态
type Status string

const (
	StatusPending   Status = "PENDING"   // 待触发，唯一允许出现在阈值索引里的状态
	StatusTriggered Status = "TRIGGERED" // 已触发，终态
	StatusCancelled Status = "CANCELLED" // 用户撤销，终态 (编辑侧写入)
	StatusExpired   Status = "EXPIRED"   // 过期作废，终态 (编辑侧写入)
)

var ErrAlertNotFound = errors.New("store: alert not found")

// Alert 告警实体
// Threshold 存为精确 decimal 字符串列，绝不落二进制浮点
type Alert struct {
	ID         string           `gorm:"primaryKey;size:64"`
	UserID     string           `gorm:"size:64;index"`
	PairSymbol string           `gorm:"size:32"` // 规范化市场标识
	Kind       market.Kind      `gorm:"size:16"`
	Direction  market.Direction `gorm:"size:16"`
	Threshold  string           `gorm:"type:decimal(32,12)"`
	Interval   market.Interval  `gorm:"size:8"` // 仅 K线告警
	Status     Status           `gorm:"size:16;index"`

	CreatedAt   int64 `gorm:"autoCreateTime:milli"`
	UpdatedAt   int64 `gorm:"autoUpdateTime:milli"`
	TriggeredAt int64 // 触发时刻 (Unix 毫秒)，未触发为 0
}

// TableName GORM 表名
func (Alert) TableName() string {
	return "alerts"
}

// Pending 是否仍待触发
func (a *Alert) Pending() bool {
	return a.Status == StatusPending
}

// AlertRepository 告警记录源访问接口
// MySQL 实现见 mysql_repo.go，内存版 (单测用) 见 memory_repo.go
type AlertRepository interface {
	// GetByID 按 ID 读取，不存在返回 ErrAlertNotFound
	GetByID(ctx context.Context, id string) (*Alert, error)

	// MarkTriggered 条件更新 PENDING -> TRIGGERED
	// 返回本次调用是否赢得状态翻转；状态已非 PENDING 时返回 false 而非错误，
	// 过期写入是并发评估下的正常现象
	MarkTriggered(ctx context.Context, id string, triggeredAt int64) (bool, error)
}
