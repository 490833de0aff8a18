package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"agenda_chat_server/internal/dto/event"
	"agenda_chat_server/pkg/constants"
	"agenda_chat_server/pkg/errorx"
)

// Status 传输通道状态
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
)

// Handler 事件处理函数，收到的是信封里的原始载荷
type Handler func(data json.RawMessage)

// Transport 传输通道抽象
// Session 依赖该接口而非具体 WebSocket 实现，测试时注入 stub
type Transport interface {
	// Connect 建立连接并完成认证
	// 认证失败是终态错误不重试；网络错误按预算重试后返回终态错误
	Connect(ctx context.Context, token string) error
	// Disconnect 确定性拆除，调用后不再向已注册的处理器投递事件
	Disconnect()
	// Emit 连接就绪时发送事件；未就绪时静默丢弃而非报错
	Emit(name string, payload any)
	// On 注册事件处理器，同一事件允许多个处理器，按注册顺序投递
	// 返回的函数用于注销，绑定组件生命周期避免闭包悬挂
	On(name string, h Handler) (unsubscribe func())
	// OnStatusChange 注册状态变化回调，UI 据此展示重连提示
	OnStatusChange(fn func(Status)) (unsubscribe func())
	// Status 返回当前状态
	Status() Status
}

const (
	transportWriteWait = 10 * time.Second
	transportPongWait  = 60 * time.Second
	transportPingEvery = 30 * time.Second
)

// handlerEntry 带注销句柄的处理器
type handlerEntry struct {
	id int64
	fn Handler
}

// WsTransport Transport 的 gorilla/websocket 实现
// 一个认证会话对应一条连接，断线后按预算自动重连
type WsTransport struct {
	url    string
	dialer *websocket.Dialer

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	mu       sync.RWMutex
	conn     *websocket.Conn
	status   Status
	token    string
	closed   bool
	nextId   int64
	handlers map[string][]handlerEntry
	statusFn []handlerIdFn

	writeMu sync.Mutex
}

type handlerIdFn struct {
	id int64
	fn func(Status)
}

// Option WsTransport 的可选配置
type Option func(*WsTransport)

// WithRetry 覆盖默认的重连预算与退避参数
func WithRetry(attempts int, baseDelay, maxDelay time.Duration) Option {
	return func(t *WsTransport) {
		t.maxAttempts = attempts
		t.baseDelay = baseDelay
		t.maxDelay = maxDelay
	}
}

// NewWsTransport 创建 WebSocket 传输通道
// url 形如 ws://host:port/ws/chat
func NewWsTransport(url string, opts ...Option) *WsTransport {
	t := &WsTransport{
		url:         url,
		dialer:      websocket.DefaultDialer,
		maxAttempts: constants.RECONNECT_ATTEMPTS,
		baseDelay:   constants.RECONNECT_DELAY,
		maxDelay:    constants.RECONNECT_MAX_WAIT,
		status:      StatusDisconnected,
		handlers:    make(map[string][]handlerEntry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Status 返回当前状态
func (t *WsTransport) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// setStatus 更新状态并通知观察者
func (t *WsTransport) setStatus(s Status) {
	t.mu.Lock()
	if t.status == s {
		t.mu.Unlock()
		return
	}
	t.status = s
	observers := make([]func(Status), 0, len(t.statusFn))
	for _, e := range t.statusFn {
		observers = append(observers, e.fn)
	}
	t.mu.Unlock()

	for _, fn := range observers {
		fn(s)
	}
}

// Connect 建立连接
// 401 视为认证失败直接返回终态错误，其余错误进入重连预算
// 首连的网络错误与断线走同一套退避预算，预算耗尽才返回终态错误
func (t *WsTransport) Connect(ctx context.Context, token string) error {
	t.mu.Lock()
	if t.status != StatusDisconnected {
		t.mu.Unlock()
		return errorx.New(errorx.CodeInvalidParam, "连接已在进行中")
	}
	t.token = token
	t.closed = false
	t.mu.Unlock()

	t.setStatus(StatusConnecting)
	conn, err := t.dial(ctx)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeUnauthorized {
			t.setStatus(StatusDisconnected)
			return err
		}
		zap.L().Warn("transport initial dial failed, retrying", zap.Error(err))
		t.setStatus(StatusReconnecting)
		conn, err = t.redial(ctx)
		if err != nil {
			t.setStatus(StatusDisconnected)
			return err
		}
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.setStatus(StatusConnected)

	go t.readLoop(conn)
	go t.pingLoop(conn)
	return nil
}

// dial 单次拨号
func (t *WsTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	t.mu.RLock()
	url := t.url + "?token=" + t.token
	t.mu.RUnlock()

	conn, resp, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, errorx.Wrap(err, errorx.CodeUnauthorized, "认证失败")
		}
		return nil, errorx.Wrap(err, errorx.CodeServerBusy, "连接失败")
	}
	conn.SetReadDeadline(time.Now().Add(transportPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(transportPongWait))
		return nil
	})
	return conn, nil
}

// readLoop 读泵：收帧、解信封、按注册顺序投递
// 读错误触发重连流程
func (t *WsTransport) readLoop(conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.mu.RLock()
			closed := t.closed
			t.mu.RUnlock()
			if closed {
				return
			}
			zap.L().Warn("transport read failed, reconnecting", zap.Error(err))
			t.reconnect()
			return
		}

		var env event.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			// 协议错误：记录并忽略，不中断会话
			zap.L().Warn("transport malformed frame", zap.ByteString("frame", frame))
			continue
		}
		t.dispatch(env.Event, env.Data)
	}
}

// dispatch 将事件投递给全部已注册处理器
func (t *WsTransport) dispatch(name string, data json.RawMessage) {
	t.mu.RLock()
	entries := make([]Handler, 0, len(t.handlers[name]))
	for _, e := range t.handlers[name] {
		entries = append(entries, e.fn)
	}
	t.mu.RUnlock()

	for _, fn := range entries {
		fn(data)
	}
}

// pingLoop 定期发送 ping 维持连接
func (t *WsTransport) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(transportPingEvery)
	defer ticker.Stop()
	for range ticker.C {
		t.mu.RLock()
		current := t.conn
		closed := t.closed
		t.mu.RUnlock()
		if closed || current != conn {
			return
		}
		t.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(transportWriteWait))
		err := conn.WriteMessage(websocket.PingMessage, nil)
		t.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// redial 按预算重试拨号
// 每次失败等待递增（基础间隔指数增长、封顶）
// 认证失败和预算耗尽是终态错误，调用方不再继续
func (t *WsTransport) redial(ctx context.Context) (*websocket.Conn, error) {
	delay := t.baseDelay
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		time.Sleep(delay)
		delay *= 2
		if delay > t.maxDelay {
			delay = t.maxDelay
		}

		t.mu.RLock()
		closed := t.closed
		t.mu.RUnlock()
		if closed {
			return nil, errorx.ErrNotConnected
		}

		conn, err := t.dial(ctx)
		if err != nil {
			// 认证失败不再重试
			if errorx.GetCode(err) == errorx.CodeUnauthorized {
				zap.L().Error("transport redial auth failed", zap.Error(err))
				return nil, err
			}
			zap.L().Warn("transport redial attempt failed",
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		zap.L().Info("transport dial succeeded", zap.Int("attempt", attempt))
		return conn, nil
	}

	zap.L().Error("transport retry budget exhausted")
	return nil, errorx.ErrRetryExceeded
}

// reconnect 断线后按预算重连，预算耗尽进入终态 disconnected
func (t *WsTransport) reconnect() {
	t.setStatus(StatusReconnecting)

	conn, err := t.redial(context.Background())
	if err != nil {
		t.setStatus(StatusDisconnected)
		return
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.setStatus(StatusConnected)

	go t.readLoop(conn)
	go t.pingLoop(conn)
}

// Emit 发送事件
// 未连接时静默丢弃：调用方在重连后自行补发幂等操作
func (t *WsTransport) Emit(name string, payload any) {
	t.mu.RLock()
	conn := t.conn
	connected := t.status == StatusConnected
	t.mu.RUnlock()
	if !connected || conn == nil {
		zap.L().Debug("transport emit dropped, not connected", zap.String("event", name))
		return
	}

	frame, err := event.Marshal(name, payload)
	if err != nil {
		zap.L().Error("transport marshal event failed", zap.String("event", name), zap.Error(err))
		return
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(transportWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		zap.L().Warn("transport write failed", zap.String("event", name), zap.Error(err))
	}
}

// On 注册事件处理器
func (t *WsTransport) On(name string, h Handler) func() {
	t.mu.Lock()
	t.nextId++
	id := t.nextId
	t.handlers[name] = append(t.handlers[name], handlerEntry{id: id, fn: h})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		entries := t.handlers[name]
		for i, e := range entries {
			if e.id == id {
				t.handlers[name] = append(entries[:i], entries[i+1:]...)
				break
			}
		}
	}
}

// OnStatusChange 注册状态观察者
func (t *WsTransport) OnStatusChange(fn func(Status)) func() {
	t.mu.Lock()
	t.nextId++
	id := t.nextId
	t.statusFn = append(t.statusFn, handlerIdFn{id: id, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, e := range t.statusFn {
			if e.id == id {
				t.statusFn = append(t.statusFn[:i], t.statusFn[i+1:]...)
				break
			}
		}
	}
}

// Disconnect 确定性拆除
func (t *WsTransport) Disconnect() {
	t.mu.Lock()
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.handlers = make(map[string][]handlerEntry)
	t.mu.Unlock()

	if conn != nil {
		t.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(transportWriteWait))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		_ = conn.Close()
	}
	t.setStatus(StatusDisconnected)
}
