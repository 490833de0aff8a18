package chatclient

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"agenda_chat_server/internal/dto/event"
	"agenda_chat_server/internal/dto/respond"
	"agenda_chat_server/pkg/constants"
)

// emitter MessageLog 需要的传输面：只有发事件一个动作
type emitter interface {
	Emit(name string, payload any)
}

// MessageLog 当前活跃会话的有序去重消息存储
// 内存中始终按 (created_at, id) 升序；服务端分页最新页优先，合并前先反转
// 同一时刻最多打开一个会话，切换时清空，不跨会话保留历史
type MessageLog struct {
	mu sync.Mutex

	rest      *RestClient
	transport emitter
	pageSize  int

	conversationId string
	messages       []respond.MessageRespond
	seen           map[int64]struct{}
	page           int
	totalPages     int
	loading        bool
}

// NewMessageLog 创建消息存储
func NewMessageLog(rest *RestClient, transport emitter, pageSize int) *MessageLog {
	if pageSize <= 0 {
		pageSize = constants.MESSAGE_PAGE_SIZE
	}
	return &MessageLog{
		rest:      rest,
		transport: transport,
		pageSize:  pageSize,
		seen:      make(map[int64]struct{}),
	}
}

// Open 打开会话：清空旧状态、加入房间、加载最新一页
// 返回前校验活跃会话未被切换，迟到的响应直接丢弃
func (m *MessageLog) Open(ctx context.Context, conversationId string) error {
	m.mu.Lock()
	m.resetLocked()
	m.conversationId = conversationId
	m.mu.Unlock()

	m.transport.Emit(event.JoinConversation, event.JoinPayload{ConversationId: conversationId})

	rsp, err := m.rest.GetMessages(ctx, conversationId, 1, m.pageSize)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conversationId != conversationId {
		// 响应到达前会话已切换
		zap.L().Debug("discard stale page fetch", zap.String("conversation", conversationId))
		return nil
	}
	m.mergeLocked(rsp.Messages)
	m.page = rsp.Pagination.Page
	m.totalPages = rsp.Pagination.TotalPages
	return nil
}

// Append 插入一条新到达的消息，按 id 去重
// 发送方会同时经回显和广播两条路径收到自己的消息，重复 id 是常态
func (m *MessageLog) Append(msg respond.MessageRespond) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conversationId == "" || msg.ConversationId != m.conversationId {
		return
	}
	m.mergeLocked([]respond.MessageRespond{msg})
}

// LoadOlder 向前翻一页并头插
// loading 标志做单飞：上一次翻页未完成时直接返回，不发重复请求
func (m *MessageLog) LoadOlder(ctx context.Context) error {
	m.mu.Lock()
	if m.loading || m.conversationId == "" || !m.hasMoreLocked() {
		m.mu.Unlock()
		return nil
	}
	m.loading = true
	conversationId := m.conversationId
	nextPage := m.page + 1
	m.mu.Unlock()

	rsp, err := m.rest.GetMessages(ctx, conversationId, nextPage, m.pageSize)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	if err != nil {
		// 失败后状态保持不变，可由用户重试
		return err
	}
	if m.conversationId != conversationId {
		zap.L().Debug("discard stale page fetch", zap.String("conversation", conversationId))
		return nil
	}
	m.mergeLocked(rsp.Messages)
	m.page = rsp.Pagination.Page
	m.totalPages = rsp.Pagination.TotalPages
	return nil
}

// Close 关闭会话：退出房间并清空
func (m *MessageLog) Close() {
	m.mu.Lock()
	conversationId := m.conversationId
	m.resetLocked()
	m.mu.Unlock()

	if conversationId != "" {
		m.transport.Emit(event.LeaveConversation, event.JoinPayload{ConversationId: conversationId})
	}
}

// StampRead 收到 messages_read 后，回填非 readBy 发送的消息的 read_at
func (m *MessageLog) StampRead(conversationId, readBy, readAt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conversationId != conversationId {
		return
	}
	for i := range m.messages {
		if m.messages[i].SenderId != readBy && m.messages[i].ReadAt == nil {
			at := readAt
			m.messages[i].ReadAt = &at
		}
	}
}

// Messages 返回按时间升序的消息快照
func (m *MessageLog) Messages() []respond.MessageRespond {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]respond.MessageRespond, len(m.messages))
	copy(out, m.messages)
	return out
}

// HasMore 是否还有更早的页
func (m *MessageLog) HasMore() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasMoreLocked()
}

// Loading 是否有翻页请求在途
func (m *MessageLog) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// ActiveConversation 返回当前打开的会话 id，未打开返回空串
func (m *MessageLog) ActiveConversation() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversationId
}

func (m *MessageLog) hasMoreLocked() bool {
	return m.page < m.totalPages
}

func (m *MessageLog) resetLocked() {
	m.conversationId = ""
	m.messages = nil
	m.seen = make(map[int64]struct{})
	m.page = 0
	m.totalPages = 0
	m.loading = false
}

// mergeLocked 去重合入一批消息并恢复 (created_at, id) 升序
func (m *MessageLog) mergeLocked(batch []respond.MessageRespond) {
	changed := false
	for _, msg := range batch {
		if _, ok := m.seen[msg.Id]; ok {
			continue
		}
		m.seen[msg.Id] = struct{}{}
		m.messages = append(m.messages, msg)
		changed = true
	}
	if !changed {
		return
	}
	sort.SliceStable(m.messages, func(i, j int) bool {
		ti := parseChatTime(m.messages[i].CreatedAt)
		tj := parseChatTime(m.messages[j].CreatedAt)
		if ti.Equal(tj) {
			return m.messages[i].Id < m.messages[j].Id
		}
		return ti.Before(tj)
	})
}
