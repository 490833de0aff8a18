// Package chat 实现客服聊天的实时网关
// conn.go
// 核心职责：WebSocket 连接生命周期管理
// 1. 封装单条连接，管理读写协程 (Read/Write Loop)
// 2. 入站事件解析后分发给 Hub；出站事件经缓冲通道推给前端
package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"agenda_chat_server/internal/dto/event"
	"agenda_chat_server/pkg/constants"
)

const (
	writeWait  = 10 * time.Second // 单次写超时
	pingPeriod = 30 * time.Second // 心跳间隔
)

// Conn 表示一条已认证的 WebSocket 连接
// 每个用户同时只保留一条活跃连接，新连接会顶掉旧连接
type Conn struct {
	Id       string // 连接 ID，重连后区分新旧连接
	UserId   string
	UserName string
	Role     string

	ws        *websocket.Conn
	sendBack  chan []byte // 给前端
	closeOnce sync.Once
	closed    chan struct{}
	hub       *Hub
}

// NewConn 封装一条升级完成的 WebSocket 连接
func NewConn(ws *websocket.Conn, userId, userName, role string, hub *Hub) *Conn {
	return &Conn{
		Id:       uuid.NewString(),
		UserId:   userId,
		UserName: userName,
		Role:     role,
		ws:       ws,
		sendBack: make(chan []byte, constants.CHANNEL_SIZE),
		closed:   make(chan struct{}),
		hub:      hub,
	}
}

// Send 将一帧放入发送缓冲
// 缓冲满时丢帧并记录日志，避免慢客户端阻塞 Hub
func (c *Conn) Send(frame []byte) {
	select {
	case <-c.closed:
	case c.sendBack <- frame:
	default:
		zap.L().Warn("ws send buffer full, drop frame",
			zap.String("user", c.UserId),
			zap.String("conn", c.Id),
		)
	}
}

// SendEvent 编码并发送一个事件
func (c *Conn) SendEvent(name string, payload any) {
	frame, err := event.Marshal(name, payload)
	if err != nil {
		zap.L().Error("marshal event failed", zap.String("event", name), zap.Error(err))
		return
	}
	c.Send(frame)
}

// sendError 给前端推送一条非致命协议错误
func (c *Conn) sendError(msg string) {
	c.SendEvent(event.Error, event.ErrorPayload{Message: msg})
}

// Close 关闭连接，幂等
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// Read 读协程：解析入站事件并分发
// 任何读错误都视为连接断开，从 Hub 注销
func (c *Conn) Read() {
	zap.L().Info("ws read goroutine start", zap.String("user", c.UserId))
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			zap.L().Info("ws read end", zap.String("user", c.UserId), zap.Error(err))
			return
		}

		var env event.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			// 畸形帧：记录并忽略，绝不中断会话
			zap.L().Warn("malformed ws frame", zap.String("user", c.UserId), zap.Error(err))
			continue
		}

		switch env.Event {
		case event.JoinConversation:
			var p event.JoinPayload
			if err := json.Unmarshal(env.Data, &p); err != nil || p.ConversationId == "" {
				c.sendError("join_conversation 载荷无效")
				continue
			}
			c.hub.JoinRoom(c, p.ConversationId)

		case event.LeaveConversation:
			var p event.JoinPayload
			if err := json.Unmarshal(env.Data, &p); err != nil || p.ConversationId == "" {
				c.sendError("leave_conversation 载荷无效")
				continue
			}
			c.hub.LeaveRoom(c, p.ConversationId)

		case event.Typing:
			var p event.TypingPayload
			if err := json.Unmarshal(env.Data, &p); err != nil || p.ConversationId == "" {
				c.sendError("typing 载荷无效")
				continue
			}
			c.hub.HandleTyping(c, p)

		case event.SendMessage:
			var p event.SendMessagePayload
			if err := json.Unmarshal(env.Data, &p); err != nil || p.ConversationId == "" {
				c.sendError("send_message 载荷无效")
				continue
			}
			c.hub.PublishMessage(c, p)

		default:
			zap.L().Warn("unknown ws event", zap.String("event", env.Event), zap.String("user", c.UserId))
			c.sendError("未知事件: " + env.Event)
		}
	}
}

// Write 写协程：从发送缓冲取帧写入 WebSocket，并定期发送心跳
func (c *Conn) Write() {
	zap.L().Info("ws write goroutine start", zap.String("user", c.UserId))
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.closed:
			return
		case frame := <-c.sendBack:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				zap.L().Error("ws write failed", zap.String("user", c.UserId), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
