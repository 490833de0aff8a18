package chatclient

import (
	"sync"
	"time"

	"agenda_chat_server/internal/dto/event"
	"agenda_chat_server/pkg/constants"
)

// TypingState 某会话当前展示的输入中状态
// 单一输入者，后写覆盖
type TypingState struct {
	ConversationId string
	UserId         string
	UserName       string
}

// Typing 正在输入信号的去抖与过期
//
// 出站：每次按键调用 NotifyActivity，仅在空闲转活跃时发一次 typing:true，
// 持续输入只重置计时器；空闲超时后发一次 typing:false。
// 入站：typing_indicator 为 true 时记录（本地另挂过期兜底，防 false 丢失），
// 为 false 时移除；本地用户自己的信号不展示。
type Typing struct {
	mu        sync.Mutex
	transport emitter
	selfId    string
	idle      time.Duration

	// 出站去抖
	active         bool
	activeConv     string
	idleTimer      *time.Timer

	// 入站状态，conversationId -> 当前输入者
	typers       map[string]TypingState
	expiryTimers map[string]*time.Timer
}

// NewTyping 创建输入协调器
// idle <= 0 时使用默认空闲超时
func NewTyping(transport emitter, selfId string, idle time.Duration) *Typing {
	if idle <= 0 {
		idle = constants.TYPING_IDLE_TIMEOUT
	}
	return &Typing{
		transport:    transport,
		selfId:       selfId,
		idle:         idle,
		typers:       make(map[string]TypingState),
		expiryTimers: make(map[string]*time.Timer),
	}
}

// NotifyActivity 每次按键调用
// 空闲转活跃时发送 typing:true 并启动空闲计时；活跃期间只重置计时
func (t *Typing) NotifyActivity(conversationId string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active && t.activeConv == conversationId {
		t.idleTimer.Reset(t.idle)
		return
	}

	// 切换会话时先结束上一个会话的输入状态
	if t.active && t.activeConv != conversationId {
		t.stopLocked()
	}

	t.active = true
	t.activeConv = conversationId
	t.transport.Emit(event.Typing, event.TypingPayload{
		ConversationId: conversationId,
		IsTyping:       true,
	})
	t.idleTimer = time.AfterFunc(t.idle, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.active && t.activeConv == conversationId {
			t.stopLocked()
		}
	})
}

// stopLocked 发送 typing:false 并复位，调用方需持有锁
func (t *Typing) stopLocked() {
	if t.idleTimer != nil {
		t.idleTimer.Stop()
		t.idleTimer = nil
	}
	t.transport.Emit(event.Typing, event.TypingPayload{
		ConversationId: t.activeConv,
		IsTyping:       false,
	})
	t.active = false
	t.activeConv = ""
}

// HandleIndicator 处理入站 typing_indicator
func (t *Typing) HandleIndicator(p event.TypingIndicatorPayload) {
	if p.UserId == t.selfId {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.expiryTimers[p.ConversationId]; ok {
		timer.Stop()
		delete(t.expiryTimers, p.ConversationId)
	}

	if !p.IsTyping {
		delete(t.typers, p.ConversationId)
		return
	}

	t.typers[p.ConversationId] = TypingState{
		ConversationId: p.ConversationId,
		UserId:         p.UserId,
		UserName:       p.UserName,
	}
	// 兜底过期：对端的 typing:false 丢失时状态也不能常驻
	conversationId := p.ConversationId
	t.expiryTimers[conversationId] = time.AfterFunc(3*t.idle, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.typers, conversationId)
		delete(t.expiryTimers, conversationId)
	})
}

// CurrentTyper 返回会话当前展示的输入者
func (t *Typing) CurrentTyper(conversationId string) (TypingState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.typers[conversationId]
	return state, ok
}

// Stop 停止全部计时器，组件卸载时调用
func (t *Typing) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.idleTimer != nil {
		t.idleTimer.Stop()
		t.idleTimer = nil
	}
	for id, timer := range t.expiryTimers {
		timer.Stop()
		delete(t.expiryTimers, id)
	}
	t.active = false
	t.activeConv = ""
	t.typers = make(map[string]TypingState)
}
