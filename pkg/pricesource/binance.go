// 文件: pkg/pricesource/binance.go
// Binance 现货 REST 行情源
//
// 只用到两个公共接口，短超时，不做重试: 单次失败由下一个调度周期自然补偿。

package pricesource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ding.com/pkg/market"
)

// 确保实现了接口
var _ Source = (*BinanceSource)(nil)

const (
	defaultBaseURL = "https://api.binance.com"
	requestTimeout = 5 * time.Second
)

// BinanceSource Binance REST 客户端
type BinanceSource struct {
	baseURL string
	client  *http.Client
}

// NewBinanceSource 创建客户端，baseURL 为空用官方地址 (测试时指向 httptest)
func NewBinanceSource(baseURL string) *BinanceSource {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &BinanceSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// apiSymbol "BTC/USDT" -> "BTCUSDT"
func apiSymbol(symbol string) string {
	return strings.ReplaceAll(strings.ToUpper(symbol), "/", "")
}

// Ticker 最新成交价
func (b *BinanceSource) Ticker(ctx context.Context, symbol string) (float64, error) {
	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	q := url.Values{"symbol": {apiSymbol(symbol)}}
	if err := b.getJSON(ctx, "/api/v3/ticker/price", q, &resp); err != nil {
		return 0, err
	}

	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: price %q", ErrBadResponse, resp.Price)
	}
	return price, nil
}

// RecentCandles 最近 limit 根 K 线
// 响应是混合类型数组: [openTime, "o", "h", "l", "c", "v", closeTime, ...]
func (b *BinanceSource) RecentCandles(ctx context.Context, symbol string, interval market.Interval, limit int) ([]Candle, error) {
	var rows [][]json.RawMessage
	q := url.Values{
		"symbol":   {apiSymbol(symbol)},
		"interval": {string(interval)},
		"limit":    {strconv.Itoa(limit)},
	}
	if err := b.getJSON(ctx, "/api/v3/klines", q, &rows); err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		c, err := parseKline(row)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func parseKline(row []json.RawMessage) (Candle, error) {
	if len(row) < 7 {
		return Candle{}, fmt.Errorf("%w: kline row has %d fields", ErrBadResponse, len(row))
	}

	var c Candle
	if err := json.Unmarshal(row[0], &c.OpenTime); err != nil {
		return Candle{}, fmt.Errorf("%w: open time", ErrBadResponse)
	}
	if err := json.Unmarshal(row[6], &c.CloseTime); err != nil {
		return Candle{}, fmt.Errorf("%w: close time", ErrBadResponse)
	}
	for i, dst := range []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return Candle{}, fmt.Errorf("%w: kline field %d", ErrBadResponse, i+1)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Candle{}, fmt.Errorf("%w: kline field %d = %q", ErrBadResponse, i+1, s)
		}
		*dst = v
	}
	return c, nil
}

func (b *BinanceSource) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pricesource: binance %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
