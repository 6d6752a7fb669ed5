package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// PageMessage 发送到Kafka的页面消息
type PageMessage struct {
	URL       string    `json:"url"`
	Text      string    `json:"text"`
	FetchedAt time.Time `json:"fetched_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink 每个页面发布一条以URL为键的消息
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink 创建指向给定broker与topic的生产者
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka broker列表不能为空")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic不能为空")
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: false,
		},
	}, nil
}

// NewKafkaSinkWithWriter 使用自定义writer(测试)
func NewKafkaSinkWithWriter(writer messageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

// Store 发布页面消息
func (s *KafkaSink) Store(ctx context.Context, pageURL string, text string) error {
	now := time.Now().UTC()
	payload, err := json.Marshal(PageMessage{URL: pageURL, Text: text, FetchedAt: now})
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(pageURL),
		Value: payload,
		Time:  now,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发布Kafka消息失败 [%s]: %w", pageURL, err)
	}
	return nil
}

// Close 关闭writer,等待缓冲的消息发送完成
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
