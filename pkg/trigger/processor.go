// 文件: pkg/trigger/processor.go
// 触发处理器 —— 引擎的正确性核心
//
// 范围查询给出的只是候选: 索引允许短暂失真，每个候选都要回查记录源
// 重新确认 PENDING 再翻转。"恰好一次" 的来源是两点:
//  1. 翻转是记录源上的条件更新，并发评估恰好一个赢家
//  2. 通知只在赢得翻转的那条路径上发出
// 索引清理放在翻转之后，任何一步之间崩溃，下次评估都会走自愈路径
// 且不会重复通知。两个存储之间不存在跨库原子性，也不依赖它。

package trigger

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ding.com/pkg/index"
	"ding.com/pkg/market"
	"ding.com/pkg/notify"
	"ding.com/pkg/store"
)

// =============================================================================
// 指标
// =============================================================================

var (
	triggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_triggers_total",
			Help: "Alerts transitioned to TRIGGERED and notified",
		},
		[]string{"kind"},
	)
	selfHealsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_self_heals_total",
			Help: "Stale index/detail entries cleaned up during evaluation",
		},
		[]string{"reason"},
	)
	candidateErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alert_candidate_errors_total",
			Help: "Candidates abandoned this cycle due to an error",
		},
	)
	notifyFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alert_notify_failures_total",
			Help: "Notification deliveries that failed after the status write",
		},
	)
)

func init() {
	prometheus.MustRegister(triggersTotal, selfHealsTotal, candidateErrorsTotal, notifyFailuresTotal)
}

// =============================================================================
// Processor
// =============================================================================

// Processor 触发处理器
// 所有依赖显式注入，不持有任何连接生命周期
type Processor struct {
	index    index.Index
	repo     store.AlertRepository
	notifier notify.Notifier
	journal  notify.Journal // 可为 nil
	ids      *notify.IDGenerator
	logger   *zap.Logger

	now func() time.Time
}

// NewProcessor 创建触发处理器，journal 允许为 nil
func NewProcessor(
	idx index.Index,
	repo store.AlertRepository,
	notifier notify.Notifier,
	journal notify.Journal,
	ids *notify.IDGenerator,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		index:    idx,
		repo:     repo,
		notifier: notifier,
		journal:  journal,
		ids:      ids,
		logger:   logger,
		now:      time.Now,
	}
}

// EvaluatePrice 用现价评估一个市场的全部现价告警
func (p *Processor) EvaluatePrice(ctx context.Context, mkt string, price float64) error {
	mkt = market.Normalize(mkt)
	return p.evaluate(ctx,
		index.PriceSet(mkt, market.DirectionAbove),
		index.PriceSet(mkt, market.DirectionBelow),
		market.KindPrice, "", price)
}

// EvaluateCandle 用已收盘 K 线的收盘价评估一个市场某周期的全部 K线告警
func (p *Processor) EvaluateCandle(ctx context.Context, mkt string, iv market.Interval, closePrice float64) error {
	mkt = market.Normalize(mkt)
	return p.evaluate(ctx,
		index.CandleSet(mkt, iv, market.DirectionAbove),
		index.CandleSet(mkt, iv, market.DirectionBelow),
		market.KindCandle, iv, closePrice)
}

// evaluate 两个方向各做一次单边范围查询，逐个处理候选
// 范围查询失败向上返回 (本周期跳过)；单个候选的失败只记日志和计数，
// 不中断批次，也绝不以可能重复触发的方式重试
func (p *Processor) evaluate(ctx context.Context, above, below index.SetKey, kind market.Kind, iv market.Interval, price float64) error {
	aboveIDs, err := p.index.FindCrossedAbove(ctx, above, price)
	if err != nil {
		return err
	}
	belowIDs, err := p.index.FindCrossedBelow(ctx, below, price)
	if err != nil {
		return err
	}

	for _, id := range aboveIDs {
		p.processCandidate(ctx, above, id, kind, price)
	}
	for _, id := range belowIDs {
		p.processCandidate(ctx, below, id, kind, price)
	}
	return nil
}

// processCandidate 单个候选的短幂等临界区
func (p *Processor) processCandidate(ctx context.Context, set index.SetKey, alertID string, kind market.Kind, price float64) {
	if err := p.tryTrigger(ctx, set, alertID, kind, price); err != nil {
		candidateErrorsTotal.Inc()
		p.logger.Error("candidate processing failed",
			zap.String("alert_id", alertID),
			zap.String("set", set.String()),
			zap.Error(err),
		)
	}
}

func (p *Processor) tryTrigger(ctx context.Context, set index.SetKey, alertID string, kind market.Kind, price float64) error {
	// a. 详情缺失 => 孤儿条目，摘掉索引即止，不通知
	detail, err := p.index.GetDetail(ctx, alertID)
	if err != nil {
		return err
	}
	if detail == nil {
		p.selfHeal(ctx, set, alertID, false, "orphan")
		return nil
	}

	// b. 回查权威状态
	alert, err := p.repo.GetByID(ctx, alertID)
	if err != nil && !errors.Is(err, store.ErrAlertNotFound) {
		return err
	}
	if alert == nil || !alert.Pending() {
		p.selfHeal(ctx, set, alertID, true, "stale")
		return nil
	}

	// c. 条件翻转 PENDING -> TRIGGERED
	triggeredAt := p.now().UnixMilli()
	won, err := p.repo.MarkTriggered(ctx, alertID, triggeredAt)
	if err != nil {
		return err
	}
	if !won {
		// 并发评估抢先翻转了，按失真条目清理，不重复通知
		p.selfHeal(ctx, set, alertID, true, "lost_race")
		return nil
	}

	// d. 清理索引与详情
	// 失败只记日志: 状态已翻转，残留条目下次评估走 stale 自愈
	if err := p.index.Remove(ctx, set, alertID); err != nil {
		p.logger.Warn("index cleanup failed after trigger",
			zap.String("alert_id", alertID), zap.Error(err))
	}
	if err := p.index.DeleteDetail(ctx, alertID); err != nil {
		p.logger.Warn("detail cleanup failed after trigger",
			zap.String("alert_id", alertID), zap.Error(err))
	}

	// e. 发通知 —— 只存在于赢得翻转的这条路径上
	p.emit(ctx, *detail, kind, price, triggeredAt)
	triggersTotal.WithLabelValues(string(kind)).Inc()
	return nil
}

// selfHeal 摘除失真的索引条目 (以及可选的详情记录)
func (p *Processor) selfHeal(ctx context.Context, set index.SetKey, alertID string, dropDetail bool, reason string) {
	selfHealsTotal.WithLabelValues(reason).Inc()
	p.logger.Info("self-healing stale index entry",
		zap.String("alert_id", alertID),
		zap.String("set", set.String()),
		zap.String("reason", reason),
	)

	if err := p.index.Remove(ctx, set, alertID); err != nil {
		p.logger.Warn("self-heal index remove failed",
			zap.String("alert_id", alertID), zap.Error(err))
	}
	if dropDetail {
		if err := p.index.DeleteDetail(ctx, alertID); err != nil {
			p.logger.Warn("self-heal detail delete failed",
				zap.String("alert_id", alertID), zap.Error(err))
		}
	}
}

// emit 组装并投递事件
// 投递失败不是触发器的错误: 状态翻转已经发生且不回滚
func (p *Processor) emit(ctx context.Context, detail index.Detail, kind market.Kind, price float64, triggeredAt int64) {
	asset, err := market.BaseAsset(detail.Market)
	if err != nil {
		asset = detail.Market
	}

	event := notify.Event{
		EventID:     p.ids.Next(),
		AlertID:     detail.AlertID,
		UserID:      detail.UserID,
		Market:      detail.Market,
		Asset:       asset,
		Kind:        kind,
		Direction:   detail.Direction,
		Threshold:   detail.Threshold,
		Price:       price,
		Interval:    detail.Interval,
		TriggeredAt: triggeredAt,
	}

	if err := p.notifier.Notify(ctx, event); err != nil {
		notifyFailuresTotal.Inc()
		p.logger.Warn("notification delivery failed",
			zap.String("alert_id", detail.AlertID),
			zap.String("user_id", detail.UserID),
			zap.Error(err),
		)
	}
	if p.journal != nil {
		p.journal.Record(event)
	}
}

