package chatclient

import (
	"sync"

	"agenda_chat_server/internal/dto/respond"
)

// Unread 会话级与全局未读数聚合
//
// 增量计数只是降低延迟的本地近似，服务端的 unread_update 一到即整体覆盖。
// 全局计数恒不为负。
type Unread struct {
	mu      sync.Mutex
	perConv map[string]int64
	total   int64
}

// NewUnread 创建未读聚合器
func NewUnread() *Unread {
	return &Unread{perConv: make(map[string]int64)}
}

// Seed 用会话列表响应初始化计数
func (u *Unread) Seed(conversations []respond.ConversationRespond) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.perConv = make(map[string]int64, len(conversations))
	u.total = 0
	for _, conv := range conversations {
		if conv.UnreadCount > 0 {
			u.perConv[conv.Id] = conv.UnreadCount
			u.total += conv.UnreadCount
		}
	}
}

// Increment 非活跃会话到达新消息时加一
func (u *Unread) Increment(conversationId string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.perConv[conversationId]++
	u.total++
}

// Zero 清零某会话并同步扣减全局计数
func (u *Unread) Zero(conversationId string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	cnt := u.perConv[conversationId]
	delete(u.perConv, conversationId)
	u.total -= cnt
	if u.total < 0 {
		u.total = 0
	}
}

// SetConversation 用服务端下发的会话元数据校准单会话计数
func (u *Unread) SetConversation(conversationId string, count int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if count < 0 {
		count = 0
	}
	prev := u.perConv[conversationId]
	if count == 0 {
		delete(u.perConv, conversationId)
	} else {
		u.perConv[conversationId] = count
	}
	u.total += count - prev
	if u.total < 0 {
		u.total = 0
	}
}

// SetTotal 服务端权威全局计数整体覆盖本地增量结果
func (u *Unread) SetTotal(total int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if total < 0 {
		total = 0
	}
	u.total = total
}

// Total 全局未读数
func (u *Unread) Total() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.total
}

// ForConversation 单会话未读数
func (u *Unread) ForConversation(conversationId string) int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.perConv[conversationId]
}
