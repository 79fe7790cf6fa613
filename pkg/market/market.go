// 文件: pkg/market/market.go
// 市场标识与告警领域基础类型
//
// 全系统统一使用规范化市场标识: "EXCHANGE:SYMBOLNOSLASH" (如 "BINANCE:BTCUSDT")
// 行情源的交易对格式 (如 "BTC/USDT") 由本包的翻译函数单向推导，
// 缓存层 Key 命名空间一律以规范化标识为准。

package market

import (
	"errors"
	"strings"
)

// Kind 告警种类
type Kind string

const (
	KindPrice  Kind = "price"  // 现价告警: 轮询 ticker 触发
	KindCandle Kind = "candle" // K线告警: 按周期边界检查收盘价触发
)

// Direction 告警方向
type Direction string

const (
	DirectionAbove Direction = "above" // 价格升至阈值及以上时触发
	DirectionBelow Direction = "below" // 价格跌至阈值及以下时触发
)

var (
	ErrInvalidMarket  = errors.New("market: invalid market identifier")
	ErrAmbiguousSplit = errors.New("market: no safe base/quote split")
)

// =============================================================================
// 规范化市场标识
// =============================================================================

// Canonical 生成规范化市场标识
// 输入大小写不敏感，斜杠/下划线会被剥离: ("binance", "btc/usdt") -> "BINANCE:BTCUSDT"
func Canonical(exchange, symbol string) string {
	sym := strings.NewReplacer("/", "", "_", "").Replace(symbol)
	return strings.ToUpper(exchange) + ":" + strings.ToUpper(sym)
}

// Normalize 规范化一个已拼好的标识 (统一大写)
func Normalize(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Split 拆出交易所前缀和无斜杠交易对
func Split(id string) (exchange, symbol string, err error) {
	exchange, symbol, ok := strings.Cut(Normalize(id), ":")
	if !ok || exchange == "" || symbol == "" {
		return "", "", ErrInvalidMarket
	}
	return exchange, symbol, nil
}

// =============================================================================
// 行情源交易对翻译 (纯函数，便于穷举测试)
// =============================================================================

// knownQuotes 已知计价币后缀，按长度降序排列
// 必须先试长后缀: "BTCUSDT" 要拆成 BTC/USDT 而不是 BTCU/SDT
var knownQuotes = []string{"USDT", "USDC", "BUSD", "BTC", "ETH", "USD"}

// fallbackQuoteWidth 兜底拆分宽度
// 已知限制: 5 字母计价币或特殊基础资产会被拆错，宁可跳过也不换一套猜法
const fallbackQuoteWidth = 4

// SplitSymbol 把无斜杠交易对拆成 base/quote
//
// 规则优先级:
//  1. 已含 "/" 直接按斜杠拆
//  2. 已知计价币后缀，长后缀优先
//  3. 固定宽度兜底: 末尾 4 字符视为计价币
//
// 拆不出安全结果时返回 ErrAmbiguousSplit，调用方应跳过该市场并告警，
// 绝不能用有歧义的拆分把两种资产混为一谈。
func SplitSymbol(symbol string) (base, quote string, err error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return "", "", ErrAmbiguousSplit
	}

	if b, q, ok := strings.Cut(sym, "/"); ok {
		if b == "" || q == "" {
			return "", "", ErrAmbiguousSplit
		}
		return b, q, nil
	}

	for _, q := range knownQuotes {
		if len(sym) > len(q) && strings.HasSuffix(sym, q) {
			return sym[:len(sym)-len(q)], q, nil
		}
	}

	if len(sym) > fallbackQuoteWidth {
		return sym[:len(sym)-fallbackQuoteWidth], sym[len(sym)-fallbackQuoteWidth:], nil
	}
	return "", "", ErrAmbiguousSplit
}

// ToSourceSymbol 把规范化市场标识翻译成行情源格式 "BASE/QUOTE"
func ToSourceSymbol(id string) (string, error) {
	_, sym, err := Split(id)
	if err != nil {
		return "", err
	}
	base, quote, err := SplitSymbol(sym)
	if err != nil {
		return "", err
	}
	return base + "/" + quote, nil
}

// BaseAsset 取市场的基础资产 (通知里展示用，如 "BINANCE:BTCUSDT" -> "BTC")
func BaseAsset(id string) (string, error) {
	_, sym, err := Split(id)
	if err != nil {
		return "", err
	}
	base, _, err := SplitSymbol(sym)
	if err != nil {
		return "", err
	}
	return base, nil
}
