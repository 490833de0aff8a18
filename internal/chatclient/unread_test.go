package chatclient

import (
	"testing"

	"agenda_chat_server/internal/dto/respond"
)

func TestUnreadIncrementThenAuthoritativeOverride(t *testing.T) {
	u := NewUnread()

	// 关闭会话连续收 N 条消息，全局计数恰好加 N
	for i := 0; i < 5; i++ {
		u.Increment("C1")
	}
	u.Increment("C2")
	if got := u.Total(); got != 6 {
		t.Fatalf("total = %d, want 6", got)
	}
	if got := u.ForConversation("C1"); got != 5 {
		t.Fatalf("C1 unread = %d, want 5", got)
	}

	// 权威 unread_update 整体覆盖本地增量结果
	u.SetTotal(2)
	if got := u.Total(); got != 2 {
		t.Fatalf("total after override = %d, want 2", got)
	}
}

func TestUnreadZeroNeverNegative(t *testing.T) {
	u := NewUnread()
	u.Increment("C1")
	u.SetTotal(0)

	// 清零时的扣减不能把全局计数打成负数
	u.Zero("C1")
	if got := u.Total(); got != 0 {
		t.Fatalf("total = %d, want 0", got)
	}

	u.Zero("C1")
	if got := u.Total(); got != 0 {
		t.Fatalf("repeat zero total = %d, want 0", got)
	}
	u.SetTotal(-3)
	if got := u.Total(); got != 0 {
		t.Fatalf("negative override total = %d, want 0", got)
	}
}

func TestUnreadSeedAndSetConversation(t *testing.T) {
	u := NewUnread()
	u.Seed([]respond.ConversationRespond{
		{Id: "C1", UnreadCount: 3},
		{Id: "C2", UnreadCount: 0},
		{Id: "C3", UnreadCount: 2},
	})
	if got := u.Total(); got != 5 {
		t.Fatalf("seeded total = %d, want 5", got)
	}

	// 服务端下发的会话元数据校准单会话计数，差额同步到全局
	u.SetConversation("C1", 1)
	if got := u.Total(); got != 3 {
		t.Fatalf("total after calibrate = %d, want 3", got)
	}
	if got := u.ForConversation("C1"); got != 1 {
		t.Fatalf("C1 unread = %d, want 1", got)
	}
}
