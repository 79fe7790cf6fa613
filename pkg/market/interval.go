// 文件: pkg/market/interval.go
// K线周期定义

package market

import (
	"errors"
	"time"
)

// Interval K线周期 token，与行情源的 kline 接口参数一致
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
)

var ErrUnknownInterval = errors.New("market: unknown interval")

// intervalDurations 周期时长固定常量，不做配置
var intervalDurations = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval1h:  time.Hour,
	Interval4h:  4 * time.Hour,
	Interval1d:  24 * time.Hour,
	Interval1w:  7 * 24 * time.Hour,
}

// SupportedIntervals 所有支持的周期，按时长升序
func SupportedIntervals() []Interval {
	return []Interval{
		Interval1m, Interval5m, Interval15m,
		Interval1h, Interval4h, Interval1d, Interval1w,
	}
}

// Duration 周期时长，未知周期返回 0
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

// Valid 是否为支持的周期
func (i Interval) Valid() bool {
	_, ok := intervalDurations[i]
	return ok
}

// ParseInterval 解析周期 token
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if !iv.Valid() {
		return "", ErrUnknownInterval
	}
	return iv, nil
}
