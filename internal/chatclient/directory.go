package chatclient

import (
	"context"
	"sort"
	"sync"
	"time"

	"agenda_chat_server/internal/dto/respond"
)

// Directory 会话列表的客户端缓存
// REST 刷新整体替换，conversation_updated 事件增量合并
type Directory struct {
	mu            sync.RWMutex
	rest          *RestClient
	conversations []respond.ConversationRespond
	index         map[string]int // 会话 id -> conversations 下标
}

// NewDirectory 创建会话目录
func NewDirectory(rest *RestClient) *Directory {
	return &Directory{
		rest:  rest,
		index: make(map[string]int),
	}
}

// List 经 REST 刷新缓存并返回快照
func (d *Directory) List(ctx context.Context, filter ListFilter) ([]respond.ConversationRespond, error) {
	list, err := d.rest.ListConversations(ctx, filter)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.conversations = list
	d.rebuildIndexLocked()
	d.sortLocked()
	snapshot := d.snapshotLocked()
	d.mu.Unlock()
	return snapshot, nil
}

// GetOrCreate 幂等获取或创建会话并合入缓存
// 并发调用不会产生重复会话，幂等性由服务端保证
func (d *Directory) GetOrCreate(ctx context.Context, counterpartUserId string) (*respond.ConversationRespond, error) {
	conv, err := d.rest.CreateConversation(ctx, counterpartUserId)
	if err != nil {
		return nil, err
	}
	d.Upsert(*conv)
	return conv, nil
}

// Upsert 合并一条会话元数据
// 未知 id 的会话头插（最新优先），已知的逐字段合并，之后按最后消息时间重排
func (d *Directory) Upsert(conv respond.ConversationRespond) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if i, ok := d.index[conv.Id]; ok {
		cur := &d.conversations[i]
		if conv.LastMessage != "" {
			cur.LastMessage = conv.LastMessage
		}
		if conv.LastMessageAt != "" {
			cur.LastMessageAt = conv.LastMessageAt
		}
		if conv.UserName != "" {
			cur.UserName = conv.UserName
		}
		if conv.UserEmail != "" {
			cur.UserEmail = conv.UserEmail
		}
		cur.UnreadCount = conv.UnreadCount
	} else {
		d.conversations = append([]respond.ConversationRespond{conv}, d.conversations...)
	}
	d.rebuildIndexLocked()
	d.sortLocked()
}

// ZeroUnread 清零某会话的本地未读数
func (d *Directory) ZeroUnread(conversationId string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i, ok := d.index[conversationId]; ok {
		d.conversations[i].UnreadCount = 0
	}
}

// Get 按 id 返回会话快照
func (d *Directory) Get(conversationId string) (respond.ConversationRespond, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i, ok := d.index[conversationId]; ok {
		return d.conversations[i], true
	}
	return respond.ConversationRespond{}, false
}

// Snapshot 返回当前缓存快照
func (d *Directory) Snapshot() []respond.ConversationRespond {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshotLocked()
}

func (d *Directory) snapshotLocked() []respond.ConversationRespond {
	out := make([]respond.ConversationRespond, len(d.conversations))
	copy(out, d.conversations)
	return out
}

func (d *Directory) rebuildIndexLocked() {
	d.index = make(map[string]int, len(d.conversations))
	for i, conv := range d.conversations {
		d.index[conv.Id] = i
	}
}

// sortLocked 按 last_message_at 降序排列，无消息的会话沉底
func (d *Directory) sortLocked() {
	sort.SliceStable(d.conversations, func(i, j int) bool {
		ti := parseChatTime(d.conversations[i].LastMessageAt)
		tj := parseChatTime(d.conversations[j].LastMessageAt)
		return ti.After(tj)
	})
	d.rebuildIndexLocked()
}

// parseChatTime 解析服务端时间格式，空串或解析失败返回零值
func parseChatTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
