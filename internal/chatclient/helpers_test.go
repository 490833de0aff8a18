package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"agenda_chat_server/internal/dto/respond"
	"agenda_chat_server/pkg/errorx"
)

// emitted 记录一次出站事件
type emitted struct {
	Name    string
	Payload any
}

// fakeEmitter 捕获出站事件的 emitter stub
type fakeEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (f *fakeEmitter) Emit(name string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emitted{Name: name, Payload: payload})
}

func (f *fakeEmitter) emittedEvents() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]emitted, len(f.events))
	copy(out, f.events)
	return out
}

// countByName 统计某事件被发出的次数，可按载荷过滤
func (f *fakeEmitter) countByName(name string, match func(any) bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Name == name && (match == nil || match(e.Payload)) {
			n++
		}
	}
	return n
}

// fakeTransport 驱动入站事件的 Transport stub
type fakeTransport struct {
	mu        sync.Mutex
	status    Status
	events    []emitted
	handlers  map[string][]Handler
	statusFns []func(Status)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		status:   StatusDisconnected,
		handlers: make(map[string][]Handler),
	}
}

func (f *fakeTransport) Connect(ctx context.Context, token string) error {
	f.setStatus(StatusConnecting)
	f.setStatus(StatusConnected)
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.setStatus(StatusDisconnected)
}

func (f *fakeTransport) Emit(name string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != StatusConnected {
		return
	}
	f.events = append(f.events, emitted{Name: name, Payload: payload})
}

func (f *fakeTransport) On(name string, h Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[name] = append(f.handlers[name], h)
	return func() {}
}

func (f *fakeTransport) OnStatusChange(fn func(Status)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusFns = append(f.statusFns, fn)
	return func() {}
}

func (f *fakeTransport) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeTransport) setStatus(s Status) {
	f.mu.Lock()
	f.status = s
	fns := make([]func(Status), len(f.statusFns))
	copy(fns, f.statusFns)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// fire 模拟服务端推送一个入站事件
func (f *fakeTransport) fire(t *testing.T, name string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	f.mu.Lock()
	hs := make([]Handler, len(f.handlers[name]))
	copy(hs, f.handlers[name])
	f.mu.Unlock()
	for _, h := range hs {
		h(raw)
	}
}

func (f *fakeTransport) emittedEvents() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]emitted, len(f.events))
	copy(out, f.events)
	return out
}

// writeOK 按服务端信封格式写成功响应
func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code": errorx.CodeSuccess,
		"msg":  "success",
		"data": data,
	})
}

// testMsg 构造一条测试消息
func testMsg(id int64, conversationId, senderId, content, createdAt string) respond.MessageRespond {
	return respond.MessageRespond{
		Id:             id,
		ConversationId: conversationId,
		SenderId:       senderId,
		SenderName:     "user-" + senderId,
		SenderRole:     "customer",
		Content:        content,
		CreatedAt:      createdAt,
	}
}

// pagedMessagesServer 按内存中的消息切片（时间升序）提供分页接口
// 页内最新优先，和服务端语义一致；requestCount 记录命中次数
type pagedMessagesServer struct {
	mu           sync.Mutex
	all          []respond.MessageRespond // 升序
	limit        int
	requestCount int
	block        chan struct{} // 非 nil 时请求挂起直到关闭，用于单飞测试
	server       *httptest.Server
}

func newPagedMessagesServer(all []respond.MessageRespond, limit int) *pagedMessagesServer {
	p := &pagedMessagesServer{all: all, limit: limit}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	return p
}

func (p *pagedMessagesServer) handle(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.requestCount++
	block := p.block
	p.mu.Unlock()
	if block != nil {
		<-block
	}

	page := 1
	fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)

	p.mu.Lock()
	defer p.mu.Unlock()
	total := len(p.all)
	totalPages := (total + p.limit - 1) / p.limit

	// 最新页优先：第 1 页是升序切片的尾部，页内降序
	end := total - (page-1)*p.limit
	start := end - p.limit
	if start < 0 {
		start = 0
	}
	var pageMsgs []respond.MessageRespond
	if end > 0 {
		for i := end - 1; i >= start; i-- {
			pageMsgs = append(pageMsgs, p.all[i])
		}
	}

	writeOK(w, respond.GetMessageListRespond{
		Messages: pageMsgs,
		Pagination: respond.Pagination{
			Page:       page,
			Limit:      p.limit,
			Total:      int64(total),
			TotalPages: totalPages,
		},
	})
}

func (p *pagedMessagesServer) requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requestCount
}

func (p *pagedMessagesServer) close() {
	p.server.Close()
}

// 编译期确认 stub 满足接口
var (
	_ Transport = (*fakeTransport)(nil)
	_ emitter   = (*fakeEmitter)(nil)
)
