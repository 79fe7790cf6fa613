// 文件: pkg/index/redis_index.go
// 阈值索引 Redis 实现
//
// 范围查询走 ZRANGEBYSCORE 并分页，市场发现走 SCAN 游标迭代，
// 订阅/退订用 Lua 保证详情记录和索引条目同一回合落盘。

package index

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"ding.com/pkg/market"
)

// 确保实现了接口
var _ Index = (*RedisIndex)(nil)

const (
	// rangeBatchSize 范围查询分页大小
	rangeBatchSize = 200

	// scanBatchSize SCAN 每轮提示数量
	scanBatchSize = 1000
)

// RedisIndex 阈值索引 Redis 实现
type RedisIndex struct {
	client *redis.Client
}

// NewRedisIndex 包装一个外部持有的 Redis 连接
// 连接生命周期由调用方 (进程启动/关闭路径) 管理
func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client}
}

// =============================================================================
// 范围查询
// =============================================================================

// FindCrossedAbove above 集合中阈值 <= ceiling 的告警 ID
func (r *RedisIndex) FindCrossedAbove(ctx context.Context, set SetKey, ceiling float64) ([]string, error) {
	return r.rangeByScore(ctx, set, "-inf", formatScore(ceiling))
}

// FindCrossedBelow below 集合中阈值 >= floor 的告警 ID
func (r *RedisIndex) FindCrossedBelow(ctx context.Context, set SetKey, floor float64) ([]string, error) {
	return r.rangeByScore(ctx, set, formatScore(floor), "+inf")
}

// rangeByScore 分页拉取 [min, max] 区间内的全部成员
func (r *RedisIndex) rangeByScore(ctx context.Context, set SetKey, min, max string) ([]string, error) {
	var ids []string
	key := set.String()
	offset := int64(0)

	for {
		members, err := r.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min:    min,
			Max:    max,
			Offset: offset,
			Count:  rangeBatchSize,
		}).Result()
		if err != nil {
			return nil, err
		}
		ids = append(ids, members...)
		if len(members) < rangeBatchSize {
			return ids, nil
		}
		offset += rangeBatchSize
	}
}

// formatScore strconv 代替 fmt.Sprintf，减少分配
func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// =============================================================================
// 单条目操作
// =============================================================================

// Remove 幂等 ZREM
func (r *RedisIndex) Remove(ctx context.Context, set SetKey, alertID string) error {
	return r.client.ZRem(ctx, set.String(), alertID).Err()
}

// GetDetail 读详情记录
// Key 不存在、JSON 损坏、缺必填字段一律返回 (nil, nil)，交给上层按孤儿清理
func (r *RedisIndex) GetDetail(ctx context.Context, alertID string) (*Detail, error) {
	data, err := r.client.Get(ctx, detailKey(alertID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var d Detail
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, nil
	}
	if err := d.Validate(); err != nil {
		return nil, nil
	}
	return &d, nil
}

// DeleteDetail 幂等 DEL
func (r *RedisIndex) DeleteDetail(ctx context.Context, alertID string) error {
	return r.client.Del(ctx, detailKey(alertID)).Err()
}

// =============================================================================
// 市场发现
// =============================================================================

// DiscoverMarkets SCAN 命名空间取去重市场列表
// 游标迭代到 0 为止，中途 rehash 导致的重复 Key 由去重集合吸收
func (r *RedisIndex) DiscoverMarkets(ctx context.Context, kind market.Kind, interval market.Interval) ([]string, error) {
	prefix := priceKeyPrefix
	if kind == market.KindCandle {
		prefix = candleKeyPrefix + string(interval) + ":"
	}

	seen := make(map[string]struct{})
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, prefix+"*", scanBatchSize).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			if mkt, ok := marketFromKey(key, prefix); ok {
				seen[mkt] = struct{}{}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	markets := make([]string, 0, len(seen))
	for mkt := range seen {
		markets = append(markets, mkt)
	}
	return markets, nil
}

// marketFromKey 从索引 Key 里剥出市场标识
// Key 末段是方向，市场标识本身含冒号，所以从尾部剥
func marketFromKey(key, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return "", false
	}
	for _, dir := range []market.Direction{market.DirectionAbove, market.DirectionBelow} {
		if mkt, ok := strings.CutSuffix(rest, ":"+string(dir)); ok && mkt != "" {
			return mkt, true
		}
	}
	return "", false
}

// ForEachDetail SCAN 遍历全部详情记录
// 损坏/残缺的记录跳过，由孤儿清理路径兜底
func (r *RedisIndex) ForEachDetail(ctx context.Context, fn func(Detail) error) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, detailKeyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			alertID := strings.TrimPrefix(key, detailKeyPrefix)
			d, err := r.GetDetail(ctx, alertID)
			if err != nil {
				return err
			}
			if d == nil {
				continue
			}
			if err := fn(*d); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// =============================================================================
// 订阅 / 退订 (Lua)
// =============================================================================

// luaSubscribe 详情与索引条目一次落盘
// KEYS[1]: 详情 Key  KEYS[2]: 索引 Key
// ARGV[1]: alertID  ARGV[2]: score  ARGV[3]: 详情 JSON
const luaSubscribe = `
	redis.call('SET', KEYS[1], ARGV[3])
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
	return 1
`

// luaUnsubscribe 读详情定位索引 Key 后一并删除
// KEYS[1]: 详情 Key  ARGV[1]: alertID
const luaUnsubscribe = `
	local data = redis.call('GET', KEYS[1])
	if not data then return 0 end

	local d = cjson.decode(data)
	local indexKey
	if d['kind'] == 'candle' then
		indexKey = 'alerts:candle:' .. d['interval'] .. ':' .. d['market'] .. ':' .. d['direction']
	else
		indexKey = 'alerts:price:' .. d['market'] .. ':' .. d['direction']
	end

	redis.call('ZREM', indexKey, ARGV[1])
	redis.call('DEL', KEYS[1])
	return 1
`

// Subscribe 写入详情并加入 ZSET
func (r *RedisIndex) Subscribe(ctx context.Context, d Detail) error {
	if err := d.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return r.client.Eval(ctx, luaSubscribe,
		[]string{detailKey(d.AlertID), d.Set().String()},
		d.AlertID, d.Score(), data).Err()
}

// Unsubscribe 摘除索引条目和详情记录
func (r *RedisIndex) Unsubscribe(ctx context.Context, alertID string) error {
	return r.client.Eval(ctx, luaUnsubscribe, []string{detailKey(alertID)}, alertID).Err()
}
