package chat

import (
	"go.uber.org/zap"

	myconfig "agenda_chat_server/internal/config"
	"agenda_chat_server/internal/dao/mysql"
	myredis "agenda_chat_server/internal/dao/redis"
)

// ChatServer 实时网关聚合：Hub + Broker
// messageMode = "kafka" 时走消息队列，否则走单机 channel 模式
type ChatServer struct {
	Hub    *Hub
	broker MessageBroker
}

// NewChatServer 按配置组装网关
func NewChatServer(repos *mysql.Repositories, cache myredis.AsyncCacheService) *ChatServer {
	hub := NewHub(repos, cache)

	var broker MessageBroker
	kafkaConfig := myconfig.GetConfig().KafkaConfig
	if kafkaConfig.MessageMode == "kafka" {
		broker = NewKafkaBroker(kafkaConfig)
		zap.L().Info("chat server message mode: kafka", zap.String("addr", kafkaConfig.HostPort))
	} else {
		broker = NewChannelBroker()
		zap.L().Info("chat server message mode: channel")
	}
	hub.SetBroker(broker)

	return &ChatServer{
		Hub:    hub,
		broker: broker,
	}
}

// Start 启动消息消费循环，需在独立 goroutine 调用
func (s *ChatServer) Start() {
	s.broker.Start(s.Hub.HandleInboundMessage)
}

// Close 停止消费
func (s *ChatServer) Close() {
	if err := s.broker.Close(); err != nil {
		zap.L().Error("chat server close failed", zap.Error(err))
	}
}
