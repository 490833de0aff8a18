package chatclient

import (
	"context"
	"sync"
	"testing"

	"agenda_chat_server/internal/dto/respond"
)

func TestDirectoryConcurrentGetOrCreateYieldsOneConversation(t *testing.T) {
	srv := newFakeChatServer()
	defer srv.server.Close()

	dir := NewDirectory(NewRestClient(srv.server.URL, "tk"))

	// 并发两次 get-or-create，两边拿到同一个会话 id
	var wg sync.WaitGroup
	ids := make([]string, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := dir.GetOrCreate(context.Background(), "")
			if err != nil {
				t.Errorf("getOrCreate: %v", err)
				return
			}
			ids[i] = conv.Id
		}(i)
	}
	wg.Wait()

	if ids[0] == "" || ids[0] != ids[1] {
		t.Fatalf("ids = %v, want identical non-empty", ids)
	}
	if got := len(dir.Snapshot()); got != 1 {
		t.Fatalf("cached conversations = %d, want 1", got)
	}
}

func TestDirectoryUpsertPrependsUnknownAndSortsByLastMessage(t *testing.T) {
	dir := NewDirectory(nil)

	dir.Upsert(respond.ConversationRespond{Id: "C1", UserName: "alice", LastMessageAt: "2026-09-01 09:00:00"})
	dir.Upsert(respond.ConversationRespond{Id: "C2", UserName: "bob", LastMessageAt: "2026-09-01 10:00:00"})
	dir.Upsert(respond.ConversationRespond{Id: "C3", UserName: "carol"}) // 无消息沉底

	snapshot := dir.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("len = %d, want 3", len(snapshot))
	}
	if snapshot[0].Id != "C2" || snapshot[1].Id != "C1" || snapshot[2].Id != "C3" {
		t.Fatalf("order = %s %s %s, want C2 C1 C3", snapshot[0].Id, snapshot[1].Id, snapshot[2].Id)
	}

	// 已知会话合并字段并按新消息时间重排
	dir.Upsert(respond.ConversationRespond{Id: "C1", LastMessage: "newest", LastMessageAt: "2026-09-01 11:00:00", UnreadCount: 2})
	snapshot = dir.Snapshot()
	if snapshot[0].Id != "C1" {
		t.Fatalf("head = %s, want C1 after newer message", snapshot[0].Id)
	}
	if snapshot[0].UserName != "alice" || snapshot[0].LastMessage != "newest" || snapshot[0].UnreadCount != 2 {
		t.Fatalf("merge result = %+v", snapshot[0])
	}

	dir.ZeroUnread("C1")
	if got, _ := dir.Get("C1"); got.UnreadCount != 0 {
		t.Fatalf("unread after zero = %d, want 0", got.UnreadCount)
	}
}
