package utils

import (
	"PollTally/control"
	"PollTally/model"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	log "github.com/sirupsen/logrus"
)

const flushTimeoutMs = 15 * 1000 // 关闭前等待所有消息发送完成

// VoteEvent 推送到 kafka 的投票事件
type VoteEvent struct {
	Option string          `json:"option"`
	Votes  int             `json:"votes"`
	Tally  model.VoteTally `json:"tally"`
	At     time.Time       `json:"at"`
}

// KafkaNotifier 把投票事件写入 kafka topic，消息 key 为选项名
type KafkaNotifier struct {
	producer *kafka.Producer
	topic    string
}

var _ control.VoteNotifier = (*KafkaNotifier)(nil)

// NewKafkaNotifier 初始化Kafka生产者
func NewKafkaNotifier(brokers, topic string) (*KafkaNotifier, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": brokers})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &KafkaNotifier{producer: p, topic: topic}, nil
}

func encodeVoteEvent(option string, tally model.VoteTally, at time.Time) ([]byte, error) {
	return json.Marshal(VoteEvent{
		Option: option,
		Votes:  tally[option],
		Tally:  tally,
		At:     at.UTC(),
	})
}

// NotifyVote 发送消息并等待投递结果
func (n *KafkaNotifier) NotifyVote(ctx context.Context, option string, tally model.VoteTally) error {
	message, err := encodeVoteEvent(option, tally, time.Now())
	if err != nil {
		return err
	}

	delivery := make(chan kafka.Event, 1)
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &n.topic, Partition: kafka.PartitionAny},
		Key:            []byte(option),
		Value:          message,
	}
	if err := n.producer.Produce(msg, delivery); err != nil {
		return err
	}

	select {
	case e := <-delivery:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected kafka event %v", e)
		}
		if m.TopicPartition.Error != nil {
			return m.TopicPartition.Error
		}
		log.WithFields(log.Fields{"topic": n.topic, "option": option}).Debug("vote event delivered")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 等待未发送的消息后关闭生产者
func (n *KafkaNotifier) Close() {
	if remaining := n.producer.Flush(flushTimeoutMs); remaining > 0 {
		log.WithField("remaining", remaining).Warn("kafka producer closed with undelivered events")
	}
	n.producer.Close()
}
