// 文件: pkg/pricesource/source.go
// 行情源接口
//
// 引擎只消费两个能力: 最新成交价、最近 K 线。
// 行情源内部的限频/重连等由实现自理，引擎不关心。

package pricesource

import (
	"context"
	"errors"

	"ding.com/pkg/market"
)

var (
	ErrNotEnoughCandles = errors.New("pricesource: not enough candles")
	ErrBadResponse      = errors.New("pricesource: malformed response")
)

// Candle 一根 OHLCV K 线
type Candle struct {
	OpenTime  int64 // Unix 毫秒
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
}

// Source 行情源
// symbol 使用 "BASE/QUOTE" 记法 (market.ToSourceSymbol 的输出)
type Source interface {
	// Ticker 最新成交价
	Ticker(ctx context.Context, symbol string) (float64, error)

	// RecentCandles 最近 limit 根 K 线，按时间升序，最后一根是未收盘的当前 K 线
	RecentCandles(ctx context.Context, symbol string, interval market.Interval, limit int) ([]Candle, error)
}

// LastClosed 取最近一根已收盘 K 线 (倒数第二根，最后一根还在形成中)
func LastClosed(candles []Candle) (Candle, error) {
	if len(candles) < 2 {
		return Candle{}, ErrNotEnoughCandles
	}
	return candles[len(candles)-2], nil
}
