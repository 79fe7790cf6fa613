// 文件: pkg/notify/kafka_journal.go
// Kafka 触发流水
//
// 每条触发事件异步下沉到 alert.triggers，按市场分区保证同市场有序。
// 纯旁路: 投递失败计数并打日志，绝不阻塞触发路径。

package notify

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// 确保实现了接口
var _ Journal = (*KafkaJournal)(nil)

// TriggerTopic 触发流水 topic
const TriggerTopic = "alert.triggers"

// KafkaJournal sarama 异步生产者包装
type KafkaJournal struct {
	producer sarama.AsyncProducer
	logger   *zap.Logger

	sentCount  atomic.Int64
	errorCount atomic.Int64

	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewKafkaJournal 创建触发流水生产者
func NewKafkaJournal(brokers []string, logger *zap.Logger) (*KafkaJournal, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	j := &KafkaJournal{producer: producer, logger: logger}

	// 后台排空错误通道
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		for perr := range producer.Errors() {
			j.errorCount.Add(1)
			j.logger.Warn("trigger journal publish failed",
				zap.String("topic", perr.Msg.Topic),
				zap.Error(perr.Err),
			)
		}
	}()

	return j, nil
}

// Record 异步下沉一条触发事件
func (j *KafkaJournal) Record(event Event) {
	if j.closed.Load() {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		j.errorCount.Add(1)
		j.logger.Warn("trigger journal marshal failed",
			zap.String("event_id", event.EventID), zap.Error(err))
		return
	}

	j.producer.Input() <- &sarama.ProducerMessage{
		Topic: TriggerTopic,
		Key:   sarama.StringEncoder(event.Market),
		Value: sarama.ByteEncoder(data),
	}
	j.sentCount.Add(1)
}

// Stats 发送/失败计数
func (j *KafkaJournal) Stats() (sent, failed int64) {
	return j.sentCount.Load(), j.errorCount.Load()
}

// Close 排空并关闭生产者
func (j *KafkaJournal) Close() error {
	if !j.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := j.producer.Close()
	j.wg.Wait()
	return err
}
