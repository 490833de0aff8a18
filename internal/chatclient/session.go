package chatclient

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"agenda_chat_server/internal/dto/event"
	"agenda_chat_server/internal/dto/respond"
	"agenda_chat_server/internal/model"
	"agenda_chat_server/pkg/errorx"
)

// InitState 门面初始化状态机
// uninitialized -> initializing -> ready，首次 connected 时恰好推进一次
type InitState string

const (
	StateUninitialized InitState = "uninitialized"
	StateInitializing  InitState = "initializing"
	StateReady         InitState = "ready"
)

// Identity 当前认证身份
type Identity struct {
	Id   string
	Name string
	Role string
}

// IsSupport 客服侧身份（staff 或 superadmin）
func (i Identity) IsSupport() bool {
	return model.IsSupportRole(i.Role)
}

// Session 应用代码唯一的聊天入口
// 组合传输、目录、消息存储、输入协调与未读聚合，持有"当前活跃会话"指针
type Session struct {
	transport Transport
	rest      *RestClient
	directory *Directory
	log       *MessageLog
	typing    *Typing
	unread    *Unread
	self      Identity

	mu        sync.Mutex
	initState InitState
	unsubs    []func()
}

// NewSession 创建会话门面
// transport 以接口注入，认证会话建立时构造，登出时 Close
func NewSession(transport Transport, rest *RestClient, self Identity, pageSize int, typingIdle time.Duration) *Session {
	s := &Session{
		transport: transport,
		rest:      rest,
		directory: NewDirectory(rest),
		self:      self,
		unread:    NewUnread(),
		initState: StateUninitialized,
	}
	s.log = NewMessageLog(rest, transport, pageSize)
	s.typing = NewTyping(transport, self.Id, typingIdle)
	return s
}

// Start 注册事件处理器并建立连接
// 连接建立前不做任何会话创建动作；首次进入 connected 时初始化恰好执行一次
func (s *Session) Start(ctx context.Context, token string) error {
	s.registerHandlers()

	unsub := s.transport.OnStatusChange(func(status Status) {
		if status == StatusConnected {
			s.initializeOnce()
		}
	})
	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsub)
	s.mu.Unlock()

	return s.transport.Connect(ctx, token)
}

// initializeOnce 初始化状态机推进
// 客户侧连接就绪后幂等创建自己的会话并打开；客服侧只拉取会话列表
func (s *Session) initializeOnce() {
	s.mu.Lock()
	if s.initState != StateUninitialized {
		s.mu.Unlock()
		return
	}
	s.initState = StateInitializing
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if s.self.IsSupport() {
		list, err := s.directory.List(ctx, ListFilter{})
		if err != nil {
			zap.L().Error("session init list failed", zap.Error(err))
		} else {
			s.unread.Seed(list)
		}
	} else {
		conv, err := s.directory.GetOrCreate(ctx, "")
		if err != nil {
			zap.L().Error("session init get-or-create failed", zap.Error(err))
		} else {
			if err := s.OpenConversation(ctx, conv.Id); err != nil {
				zap.L().Error("session init open failed", zap.Error(err))
			}
		}
	}

	if total, err := s.rest.UnreadCount(ctx); err == nil {
		s.unread.SetTotal(total)
	}

	s.mu.Lock()
	s.initState = StateReady
	s.mu.Unlock()
}

// registerHandlers 挂接入站事件
func (s *Session) registerHandlers() {
	subs := []func(){
		s.transport.On(event.NewMessage, s.onNewMessage),
		s.transport.On(event.ConversationUpdated, s.onConversationUpdated),
		s.transport.On(event.UnreadUpdate, s.onUnreadUpdate),
		s.transport.On(event.TypingIndicator, s.onTypingIndicator),
		s.transport.On(event.MessagesRead, s.onMessagesRead),
		s.transport.On(event.Error, s.onProtocolError),
	}
	s.mu.Lock()
	s.unsubs = append(s.unsubs, subs...)
	s.mu.Unlock()
}

// onNewMessage 入站消息分拣
// 活跃会话：入日志并显式标记已读，不靠"可见即已读"的假设
// 非活跃会话：本地未读数加一，权威值随后由 unread_update 校准
func (s *Session) onNewMessage(data json.RawMessage) {
	var msg respond.MessageRespond
	if err := json.Unmarshal(data, &msg); err != nil {
		zap.L().Warn("malformed new_message payload", zap.Error(err))
		return
	}

	if msg.ConversationId == s.log.ActiveConversation() {
		s.log.Append(msg)
		if msg.SenderId != s.self.Id {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := s.rest.MarkAsRead(ctx, msg.ConversationId); err != nil {
					zap.L().Warn("mark as read failed", zap.Error(err))
				}
			}()
		}
		return
	}
	if msg.SenderId != s.self.Id {
		s.unread.Increment(msg.ConversationId)
	}
}

func (s *Session) onConversationUpdated(data json.RawMessage) {
	var conv respond.ConversationRespond
	if err := json.Unmarshal(data, &conv); err != nil {
		zap.L().Warn("malformed conversation_updated payload", zap.Error(err))
		return
	}
	s.directory.Upsert(conv)
	s.unread.SetConversation(conv.Id, conv.UnreadCount)
}

func (s *Session) onUnreadUpdate(data json.RawMessage) {
	var p event.UnreadUpdatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		zap.L().Warn("malformed unread_update payload", zap.Error(err))
		return
	}
	s.unread.SetTotal(p.TotalUnread)
}

func (s *Session) onTypingIndicator(data json.RawMessage) {
	var p event.TypingIndicatorPayload
	if err := json.Unmarshal(data, &p); err != nil {
		zap.L().Warn("malformed typing_indicator payload", zap.Error(err))
		return
	}
	s.typing.HandleIndicator(p)
}

func (s *Session) onMessagesRead(data json.RawMessage) {
	var p event.MessagesReadPayload
	if err := json.Unmarshal(data, &p); err != nil {
		zap.L().Warn("malformed messages_read payload", zap.Error(err))
		return
	}
	s.log.StampRead(p.ConversationId, p.ReadBy, time.Now().Format("2006-01-02 15:04:05"))
}

func (s *Session) onProtocolError(data json.RawMessage) {
	var p event.ErrorPayload
	_ = json.Unmarshal(data, &p)
	zap.L().Warn("server protocol error", zap.String("message", p.Message))
}

// SendMessage 发送消息
// 空白内容静默跳过；要求已有活跃会话且传输处于 connected
// 不做本地回显：权威消息经 new_message 事件回来，日志里不会出现服务端不认账的幻影条目
func (s *Session) SendMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	conversationId := s.log.ActiveConversation()
	if conversationId == "" {
		return errorx.New(errorx.CodeInvalidParam, "没有打开的会话")
	}
	if s.transport.Status() != StatusConnected {
		return errorx.ErrNotConnected
	}
	s.transport.Emit(event.SendMessage, event.SendMessagePayload{
		ConversationId: conversationId,
		Content:        content,
	})
	return nil
}

// OpenConversation 打开会话
// 同一时刻只有一个活跃会话：先退出旧房间再加入新房间，避免双房间窗口
func (s *Session) OpenConversation(ctx context.Context, conversationId string) error {
	if prev := s.log.ActiveConversation(); prev != "" {
		s.log.Close()
	}
	if err := s.log.Open(ctx, conversationId); err != nil {
		return err
	}

	// 打开即已读
	if err := s.rest.MarkAsRead(ctx, conversationId); err != nil {
		zap.L().Warn("mark as read failed", zap.Error(err))
	} else {
		s.unread.Zero(conversationId)
		s.directory.ZeroUnread(conversationId)
	}
	return nil
}

// CloseConversation 关闭当前会话
func (s *Session) CloseConversation() {
	s.log.Close()
}

// LoadOlder 向前翻页
func (s *Session) LoadOlder(ctx context.Context) error {
	return s.log.LoadOlder(ctx)
}

// NotifyTyping 输入框按键回调
func (s *Session) NotifyTyping() {
	if conversationId := s.log.ActiveConversation(); conversationId != "" {
		s.typing.NotifyActivity(conversationId)
	}
}

// Conversations 会话列表快照
func (s *Session) Conversations() []respond.ConversationRespond {
	return s.directory.Snapshot()
}

// RefreshConversations 经 REST 刷新会话列表
func (s *Session) RefreshConversations(ctx context.Context, filter ListFilter) ([]respond.ConversationRespond, error) {
	return s.directory.List(ctx, filter)
}

// Messages 活跃会话的消息快照
func (s *Session) Messages() []respond.MessageRespond {
	return s.log.Messages()
}

// TotalUnread 全局未读数
func (s *Session) TotalUnread() int64 {
	return s.unread.Total()
}

// UnreadFor 单会话未读数
func (s *Session) UnreadFor(conversationId string) int64 {
	return s.unread.ForConversation(conversationId)
}

// CurrentTyper 会话当前展示的输入者
func (s *Session) CurrentTyper(conversationId string) (TypingState, bool) {
	return s.typing.CurrentTyper(conversationId)
}

// Status 传输通道状态
func (s *Session) Status() Status {
	return s.transport.Status()
}

// State 初始化状态
func (s *Session) State() InitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initState
}

// Close 登出拆除：注销处理器、停止计时器、断开连接
func (s *Session) Close() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
	s.typing.Stop()
	s.log.Close()
	s.transport.Disconnect()
}
