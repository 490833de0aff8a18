package chat

import (
	"context"

	"go.uber.org/zap"

	"agenda_chat_server/pkg/constants"
)

// MessageBroker 入站消息的转发通道
// 解耦收包（Conn 读泵）与落库扇出（Hub），支持单机 channel 和 kafka 两种实现
type MessageBroker interface {
	// Publish 投递一条序列化后的入站消息
	Publish(ctx context.Context, raw []byte) error
	// Start 启动消费循环，将消息交给 handler，阻塞直到 Close
	Start(handler func(raw []byte))
	// Close 停止消费并释放资源
	Close() error
}

// ChannelBroker 单机模式下基于 channel 的消息转发
// 默认模式，无外部依赖
type ChannelBroker struct {
	messages chan []byte
	done     chan struct{}
}

// NewChannelBroker 创建 channel 模式的消息代理
func NewChannelBroker() *ChannelBroker {
	return &ChannelBroker{
		messages: make(chan []byte, constants.CHANNEL_SIZE),
		done:     make(chan struct{}),
	}
}

// Publish 投递消息，通道满时阻塞直到可写或 ctx 取消
func (b *ChannelBroker) Publish(ctx context.Context, raw []byte) error {
	select {
	case b.messages <- raw:
		return nil
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start 消费循环
func (b *ChannelBroker) Start(handler func(raw []byte)) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("channel broker panic", zap.Any("recover", r))
		}
	}()
	for {
		select {
		case raw := <-b.messages:
			handler(raw)
		case <-b.done:
			return
		}
	}
}

// Close 停止消费
func (b *ChannelBroker) Close() error {
	close(b.done)
	return nil
}
