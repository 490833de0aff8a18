package chatclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"agenda_chat_server/internal/dto/event"
	"agenda_chat_server/internal/dto/respond"
)

func TestMessageLogAppendDeduplicates(t *testing.T) {
	srv := newPagedMessagesServer(nil, 50)
	defer srv.close()

	log := NewMessageLog(NewRestClient(srv.server.URL, "tk"), &fakeEmitter{}, 50)
	if err := log.Open(context.Background(), "C1"); err != nil {
		t.Fatalf("open: %v", err)
	}

	msg := testMsg(1, "C1", "U1", "hello", "2026-09-01 10:00:00")
	log.Append(msg)
	log.Append(msg) // 回显和广播两条路径都会送达同一条消息
	if got := len(log.Messages()); got != 1 {
		t.Fatalf("log length = %d, want 1", got)
	}
}

func TestMessageLogOrderWithBackfillAndLiveMessage(t *testing.T) {
	// 历史 3 页，每页 2 条
	var history []respond.MessageRespond
	for i := int64(1); i <= 6; i++ {
		history = append(history, testMsg(i, "C1", "U1", "m", fmt.Sprintf("2026-09-01 10:00:0%d", i)))
	}
	srv := newPagedMessagesServer(history, 2)
	defer srv.close()

	log := NewMessageLog(NewRestClient(srv.server.URL, "tk"), &fakeEmitter{}, 2)
	if err := log.Open(context.Background(), "C1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if !log.HasMore() {
		t.Fatal("expected more pages after first load")
	}

	// 实时消息与向前翻页交错到达
	log.Append(testMsg(7, "C1", "U2", "live", "2026-09-01 10:00:09"))
	if err := log.LoadOlder(context.Background()); err != nil {
		t.Fatalf("loadOlder: %v", err)
	}
	if err := log.LoadOlder(context.Background()); err != nil {
		t.Fatalf("loadOlder: %v", err)
	}
	if log.HasMore() {
		t.Fatal("expected no more pages")
	}

	msgs := log.Messages()
	if len(msgs) != 7 {
		t.Fatalf("log length = %d, want 7", len(msgs))
	}
	// 静止后按 (created_at, id) 升序
	for i := 1; i < len(msgs); i++ {
		prev, cur := msgs[i-1], msgs[i]
		tp, tc := parseChatTime(prev.CreatedAt), parseChatTime(cur.CreatedAt)
		if tp.After(tc) || (tp.Equal(tc) && prev.Id >= cur.Id) {
			t.Fatalf("order violated at %d: %v then %v", i, prev.Id, cur.Id)
		}
	}
}

func TestMessageLogLoadOlderSingleFlight(t *testing.T) {
	var history []respond.MessageRespond
	for i := int64(1); i <= 4; i++ {
		history = append(history, testMsg(i, "C1", "U1", "m", "2026-09-01 10:00:00"))
	}
	srv := newPagedMessagesServer(history, 2)
	defer srv.close()

	log := NewMessageLog(NewRestClient(srv.server.URL, "tk"), &fakeEmitter{}, 2)
	if err := log.Open(context.Background(), "C1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	opened := srv.requests()

	// 第一次翻页挂起期间，第二次调用必须是无操作
	block := make(chan struct{})
	srv.mu.Lock()
	srv.block = block
	srv.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- log.LoadOlder(context.Background()) }()

	// 等待第一次请求在途
	deadline := time.Now().Add(2 * time.Second)
	for srv.requests() == opened && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !log.Loading() {
		t.Fatal("expected loading flag set while fetch in flight")
	}

	if err := log.LoadOlder(context.Background()); err != nil {
		t.Fatalf("second loadOlder: %v", err)
	}
	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first loadOlder: %v", err)
	}

	if got := srv.requests() - opened; got != 1 {
		t.Fatalf("request count = %d, want 1", got)
	}
}

func TestMessageLogStaleFetchDiscarded(t *testing.T) {
	var history []respond.MessageRespond
	for i := int64(1); i <= 4; i++ {
		history = append(history, testMsg(i, "C1", "U1", "m", "2026-09-01 10:00:00"))
	}
	srv := newPagedMessagesServer(history, 2)
	defer srv.close()

	emitterStub := &fakeEmitter{}
	log := NewMessageLog(NewRestClient(srv.server.URL, "tk"), emitterStub, 2)
	if err := log.Open(context.Background(), "C1"); err != nil {
		t.Fatalf("open: %v", err)
	}

	block := make(chan struct{})
	srv.mu.Lock()
	srv.block = block
	srv.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- log.LoadOlder(context.Background()) }()
	deadline := time.Now().Add(2 * time.Second)
	for !log.Loading() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// 翻页在途时关闭会话，迟到的响应必须被丢弃
	log.Close()
	close(block)
	if err := <-done; err != nil {
		t.Fatalf("loadOlder: %v", err)
	}
	if got := len(log.Messages()); got != 0 {
		t.Fatalf("log length after close = %d, want 0", got)
	}
	if log.ActiveConversation() != "" {
		t.Fatal("expected no active conversation after close")
	}
}

func TestMessageLogOpenCloseRoomSideEffects(t *testing.T) {
	srv := newPagedMessagesServer(nil, 50)
	defer srv.close()

	emitterStub := &fakeEmitter{}
	log := NewMessageLog(NewRestClient(srv.server.URL, "tk"), emitterStub, 50)
	if err := log.Open(context.Background(), "C1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	log.Close()

	events := emitterStub.emittedEvents()
	if len(events) != 2 || events[0].Name != event.JoinConversation || events[1].Name != event.LeaveConversation {
		t.Fatalf("unexpected room events: %+v", events)
	}
}
