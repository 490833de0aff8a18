package chat

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	myconfig "agenda_chat_server/internal/config"
)

// KafkaBroker 基于 Kafka 的消息转发，多实例部署时使用
// 每条入站消息写入聊天主题，由消费组内的实例落库并向本实例在线连接扇出
type KafkaBroker struct {
	writer *kafka.Writer
	reader *kafka.Reader
	cancel context.CancelFunc
}

// NewKafkaBroker 按配置创建 Kafka 代理
func NewKafkaBroker(cfg myconfig.KafkaConfig) *KafkaBroker {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.HostPort),
		Topic:                  cfg.ChatTopic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           cfg.Timeout * time.Second,
		RequiredAcks:           kafka.RequireNone,
		AllowAutoTopicCreation: true,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{cfg.HostPort},
		Topic:          cfg.ChatTopic,
		CommitInterval: cfg.Timeout * time.Second,
		GroupID:        "agenda_chat",
		StartOffset:    kafka.LastOffset,
	})
	return &KafkaBroker{
		writer: writer,
		reader: reader,
	}
}

// Publish 写入聊天主题
func (b *KafkaBroker) Publish(ctx context.Context, raw []byte) error {
	return b.writer.WriteMessages(ctx, kafka.Message{Value: raw})
}

// Start 消费循环，Close 后返回
func (b *KafkaBroker) Start(handler func(raw []byte)) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("kafka broker panic", zap.Any("recover", r))
		}
	}()
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	for {
		msg, err := b.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			zap.L().Error("kafka read message failed", zap.Error(err))
			continue
		}
		handler(msg.Value)
	}
}

// Close 关闭读写端
func (b *KafkaBroker) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	if err := b.writer.Close(); err != nil {
		zap.L().Error("kafka writer close failed", zap.Error(err))
	}
	return b.reader.Close()
}
