// Package chat 实现客服聊天的实时网关
// hub.go
// 核心职责：在线连接与会话房间的聚合管理
// 1. 维护 userId -> 连接 的在线表（单活跃连接，新顶旧）
// 2. 维护 conversationId -> 房间成员 的订阅关系
// 3. 消息落库后按房间 + 参与者扇出 new_message / conversation_updated / unread_update
// 4. 转发 typing 信号与已读回执
package chat

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"agenda_chat_server/internal/dao/mysql"
	myredis "agenda_chat_server/internal/dao/redis"
	"agenda_chat_server/internal/dto/event"
	"agenda_chat_server/internal/dto/respond"
	"agenda_chat_server/internal/model"
	"agenda_chat_server/internal/service/message"
	"agenda_chat_server/pkg/constants"
	"agenda_chat_server/pkg/errorx"
	"agenda_chat_server/pkg/util/snowflake"
)

const timeLayout = "2006-01-02 15:04:05"

// Notifier 供 HTTP Handler 使用的通知接口
// PATCH read 成功后由 Handler 触发已读广播；会话新建后触发元数据广播
type Notifier interface {
	// NotifyRead 向房间广播 messages_read，并向读者推送权威未读数
	NotifyRead(conversationId, readBy string)
	// NotifyConversation 向客服侧和会话当事人广播 conversation_updated
	NotifyConversation(conv respond.ConversationRespond)
}

// brokerMessage 经 Broker 转发的入站消息
// 信封里的事件载荷不带发送者身份，入队前由网关补全
type brokerMessage struct {
	SenderId       string `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	SenderRole     string `json:"sender_role"`
	ConversationId string `json:"conversation_id"`
	Content        string `json:"content"`
}

// Hub 在线连接与房间的聚合
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Conn            // userId -> 活跃连接
	rooms   map[string]map[string]*Conn // conversationId -> connId -> 连接

	repos  *mysql.Repositories
	cache  myredis.AsyncCacheService
	broker MessageBroker // 由 ChatServer 注入
}

// NewHub 创建 Hub 实例
func NewHub(repos *mysql.Repositories, cache myredis.AsyncCacheService) *Hub {
	return &Hub{
		clients: make(map[string]*Conn),
		rooms:   make(map[string]map[string]*Conn),
		repos:   repos,
		cache:   cache,
	}
}

// SetBroker 注入消息代理（channel 或 kafka 实现）
func (h *Hub) SetBroker(b MessageBroker) {
	h.broker = b
}

// Register 注册连接
// 同一用户的旧连接被顶掉：关闭旧连接并退出其所有房间
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	old := h.clients[c.UserId]
	h.clients[c.UserId] = c
	if old != nil {
		h.removeFromRoomsLocked(old)
	}
	h.mu.Unlock()

	if old != nil {
		zap.L().Info("replace existing connection",
			zap.String("user", c.UserId),
			zap.String("old_conn", old.Id),
			zap.String("new_conn", c.Id),
		)
		old.Close()
	}
	zap.L().Info("ws client registered", zap.String("user", c.UserId), zap.String("conn", c.Id))
}

// Unregister 注销连接
// 仅当在线表里仍是同一条连接时才移除，避免误删顶替后的新连接
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	if cur, ok := h.clients[c.UserId]; ok && cur.Id == c.Id {
		delete(h.clients, c.UserId)
	}
	h.removeFromRoomsLocked(c)
	h.mu.Unlock()
	zap.L().Info("ws client unregistered", zap.String("user", c.UserId), zap.String("conn", c.Id))
}

// removeFromRoomsLocked 将连接从所有房间移除，调用方需持有锁
func (h *Hub) removeFromRoomsLocked(c *Conn) {
	for convId, members := range h.rooms {
		if _, ok := members[c.Id]; ok {
			delete(members, c.Id)
			if len(members) == 0 {
				delete(h.rooms, convId)
			}
		}
	}
}

// JoinRoom 将连接订阅到会话房间
// 客户只能加入自己的会话；校验失败推送 error 事件，不断开连接
func (h *Hub) JoinRoom(c *Conn, conversationId string) {
	conv, err := h.repos.Conversation.FindByUuid(conversationId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			c.sendError("会话不存在")
		} else {
			zap.L().Error("join room query failed", zap.String("conversation", conversationId), zap.Error(err))
			c.sendError("服务繁忙")
		}
		return
	}
	if !model.IsSupportRole(c.Role) && conv.UserId != c.UserId {
		c.sendError("无权加入该会话")
		return
	}

	h.mu.Lock()
	members, ok := h.rooms[conversationId]
	if !ok {
		members = make(map[string]*Conn)
		h.rooms[conversationId] = members
	}
	members[c.Id] = c
	h.mu.Unlock()
	zap.L().Debug("join room", zap.String("conversation", conversationId), zap.String("user", c.UserId))
}

// LeaveRoom 取消订阅
func (h *Hub) LeaveRoom(c *Conn, conversationId string) {
	h.mu.Lock()
	if members, ok := h.rooms[conversationId]; ok {
		delete(members, c.Id)
		if len(members) == 0 {
			delete(h.rooms, conversationId)
		}
	}
	h.mu.Unlock()
	zap.L().Debug("leave room", zap.String("conversation", conversationId), zap.String("user", c.UserId))
}

// roomMembers 返回房间成员快照
func (h *Hub) roomMembers(conversationId string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.rooms[conversationId]
	out := make([]*Conn, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// HandleTyping 转发正在输入信号给房间内除发送者外的成员
// 纯瞬态信号，不落库
func (h *Hub) HandleTyping(c *Conn, p event.TypingPayload) {
	indicator := event.TypingIndicatorPayload{
		ConversationId: p.ConversationId,
		UserId:         c.UserId,
		UserName:       c.UserName,
		IsTyping:       p.IsTyping,
	}
	for _, member := range h.roomMembers(p.ConversationId) {
		if member.UserId == c.UserId {
			continue
		}
		member.SendEvent(event.TypingIndicator, indicator)
	}
}

// PublishMessage 将入站消息投递给 Broker
// 空白内容直接丢弃；Broker 不可用时降级为本地处理
func (h *Hub) PublishMessage(c *Conn, p event.SendMessagePayload) {
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return
	}
	raw, err := json.Marshal(brokerMessage{
		SenderId:       c.UserId,
		SenderName:     c.UserName,
		SenderRole:     c.Role,
		ConversationId: p.ConversationId,
		Content:        content,
	})
	if err != nil {
		zap.L().Error("marshal broker message failed", zap.Error(err))
		return
	}
	if h.broker != nil {
		if err := h.broker.Publish(context.Background(), raw); err != nil {
			zap.L().Error("publish message failed", zap.Error(err))
			c.sendError("消息发送失败，请稍后重试")
		}
		return
	}
	h.HandleInboundMessage(raw)
}

// HandleInboundMessage Broker 消费回调：落库并扇出
// 1. 校验会话与发送者权限
// 2. 生成雪花 ID 持久化，更新会话最新消息摘要
// 3. 向房间成员 + 会话参与者（客服侧全体与会话当事人）推送 new_message
// 4. 向全部参与者推送 conversation_updated；发送者以外再推权威 unread_update
func (h *Hub) HandleInboundMessage(raw []byte) {
	var bm brokerMessage
	if err := json.Unmarshal(raw, &bm); err != nil {
		zap.L().Error("unmarshal broker message failed", zap.Error(err))
		return
	}

	conv, err := h.repos.Conversation.FindByUuid(bm.ConversationId)
	if err != nil {
		zap.L().Error("inbound message for unknown conversation",
			zap.String("conversation", bm.ConversationId), zap.Error(err))
		return
	}
	if !model.IsSupportRole(bm.SenderRole) && conv.UserId != bm.SenderId {
		zap.L().Warn("inbound message rejected",
			zap.String("conversation", bm.ConversationId),
			zap.String("sender", bm.SenderId),
		)
		return
	}

	now := time.Now()
	msg := model.Message{
		Uuid:           snowflake.GenerateID(),
		ConversationId: bm.ConversationId,
		SenderId:       bm.SenderId,
		SenderName:     bm.SenderName,
		SenderRole:     bm.SenderRole,
		Content:        bm.Content,
	}
	if err := h.repos.Message.Create(&msg); err != nil {
		zap.L().Error("create message failed", zap.Error(err))
		return
	}
	if err := h.repos.Conversation.UpdateLastMessage(conv.Uuid, bm.Content, now); err != nil {
		zap.L().Error("update last message failed", zap.Error(err))
	}
	conv.LastMessage = bm.Content
	conv.LastMessageAt.Time = now
	conv.LastMessageAt.Valid = true

	msgRsp := message.ToRespond(&msg)

	// 扇出目标：房间成员 ∪ 会话参与者在线连接（按连接去重）
	recipients := h.participantConns(conv)
	for _, member := range h.roomMembers(conv.Uuid) {
		if _, ok := recipients[member.Id]; !ok {
			recipients[member.Id] = member
		}
	}

	for _, rc := range recipients {
		rc.SendEvent(event.NewMessage, msgRsp)
	}
	for _, rc := range recipients {
		unreadConv, total := h.unreadFor(rc, conv.Uuid)
		// 发送者也要刷新自己列表里的消息摘要，但没有未读增量
		rc.SendEvent(event.ConversationUpdated, conversationRespond(conv, unreadConv))
		if rc.UserId == bm.SenderId {
			continue
		}
		rc.SendEvent(event.UnreadUpdate, event.UnreadUpdatePayload{TotalUnread: total})
		h.refreshUnreadCache(rc.UserId, total)
	}
}

// NotifyRead 已读回执广播
// 房间成员收到 messages_read 据此回填 read_at；读者拿到权威未读数
func (h *Hub) NotifyRead(conversationId, readBy string) {
	payload := event.MessagesReadPayload{
		ConversationId: conversationId,
		ReadBy:         readBy,
	}
	for _, member := range h.roomMembers(conversationId) {
		member.SendEvent(event.MessagesRead, payload)
	}

	h.mu.RLock()
	reader := h.clients[readBy]
	h.mu.RUnlock()
	if reader != nil {
		_, total := h.unreadFor(reader, conversationId)
		reader.SendEvent(event.UnreadUpdate, event.UnreadUpdatePayload{TotalUnread: total})
		h.refreshUnreadCache(readBy, total)
	}
}

// NotifyConversation 向客服侧全体和会话当事人广播会话元数据
func (h *Hub) NotifyConversation(conv respond.ConversationRespond) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if model.IsSupportRole(c.Role) || c.UserId == conv.UserId {
			c.SendEvent(event.ConversationUpdated, conv)
		}
	}
}

// participantConns 会话参与者的在线连接：客服侧全体 + 会话当事人
func (h *Hub) participantConns(conv *model.Conversation) map[string]*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]*Conn)
	for _, c := range h.clients {
		if model.IsSupportRole(c.Role) || c.UserId == conv.UserId {
			out[c.Id] = c
		}
	}
	return out
}

// unreadFor 计算某条连接视角下 (指定会话未读数, 全局未读数)
func (h *Hub) unreadFor(c *Conn, conversationId string) (int64, int64) {
	if model.IsSupportRole(c.Role) {
		counts, err := h.repos.Message.CountUnreadGrouped(c.UserId)
		if err != nil {
			zap.L().Error("count unread failed", zap.String("user", c.UserId), zap.Error(err))
			return 0, 0
		}
		var total int64
		for _, cnt := range counts {
			total += cnt
		}
		return counts[conversationId], total
	}
	cnt, err := h.repos.Message.CountUnreadByConversation(conversationId, c.UserId)
	if err != nil {
		zap.L().Error("count unread failed", zap.String("user", c.UserId), zap.Error(err))
		return 0, 0
	}
	// 客户只有一个会话，会话未读即全局未读
	return cnt, cnt
}

// refreshUnreadCache 异步回写未读缓存，保持 REST unread-count 与事件一致
func (h *Hub) refreshUnreadCache(userId string, total int64) {
	if h.cache == nil {
		return
	}
	h.cache.SubmitTask(func() {
		err := h.cache.Set(context.Background(),
			myredis.UnreadTotalKey(userId),
			strconv.FormatInt(total, 10),
			time.Duration(constants.REDIS_TIMEOUT)*time.Minute)
		if err != nil {
			zap.L().Error("refresh unread cache failed", zap.String("user", userId), zap.Error(err))
		}
	})
}

// conversationRespond 会话模型 + 视角未读数 -> 推送 DTO
func conversationRespond(conv *model.Conversation, unread int64) respond.ConversationRespond {
	rsp := respond.ConversationRespond{
		Id:          conv.Uuid,
		UserId:      conv.UserId,
		UserName:    conv.UserName,
		UserEmail:   conv.UserEmail,
		LastMessage: conv.LastMessage,
		UnreadCount: unread,
	}
	if conv.LastMessageAt.Valid {
		rsp.LastMessageAt = conv.LastMessageAt.Time.Format(timeLayout)
	}
	return rsp
}
