package message

import (
	"database/sql"
	"testing"
	"time"

	"gorm.io/gorm"

	"agenda_chat_server/internal/dao/mysql"
	"agenda_chat_server/internal/dao/mysql/repository"
	"agenda_chat_server/internal/dto/request"
	"agenda_chat_server/internal/model"
	"agenda_chat_server/pkg/errorx"
)

// fakeConversationRepo 只实现测试用到的方法
type fakeConversationRepo struct {
	conversations map[string]*model.Conversation
}

func (f *fakeConversationRepo) FindByUuid(uuid string) (*model.Conversation, error) {
	if conv, ok := f.conversations[uuid]; ok {
		return conv, nil
	}
	return nil, errorx.New(errorx.CodeNotFound, "会话不存在")
}

func (f *fakeConversationRepo) FindByUserId(userId string) (*model.Conversation, error) {
	for _, conv := range f.conversations {
		if conv.UserId == userId {
			return conv, nil
		}
	}
	return nil, errorx.New(errorx.CodeNotFound, "会话不存在")
}

func (f *fakeConversationRepo) GetOrCreate(conv *model.Conversation) (*model.Conversation, bool, error) {
	if cur, err := f.FindByUserId(conv.UserId); err == nil {
		return cur, false, nil
	}
	f.conversations[conv.Uuid] = conv
	return conv, true, nil
}

func (f *fakeConversationRepo) List(filter repository.ConversationFilter) ([]model.Conversation, error) {
	var out []model.Conversation
	for _, conv := range f.conversations {
		if filter.UserId != "" && conv.UserId != filter.UserId {
			continue
		}
		out = append(out, *conv)
	}
	return out, nil
}

func (f *fakeConversationRepo) UpdateLastMessage(uuid string, content string, at time.Time) error {
	if conv, ok := f.conversations[uuid]; ok {
		conv.LastMessage = content
		conv.LastMessageAt = sql.NullTime{Time: at, Valid: true}
	}
	return nil
}

// fakeMessageRepo 基于内存切片的消息存储
type fakeMessageRepo struct {
	messages []model.Message
}

func (f *fakeMessageRepo) Create(m *model.Message) error {
	m.CreatedAt = time.Now()
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeMessageRepo) FindPageByConversation(conversationId string, page, limit int) ([]model.Message, int64, error) {
	var all []model.Message
	for _, m := range f.messages {
		if m.ConversationId == conversationId {
			all = append(all, m)
		}
	}
	total := int64(len(all))

	// 最新页优先，页内倒序
	end := len(all) - (page-1)*limit
	start := end - limit
	if start < 0 {
		start = 0
	}
	var out []model.Message
	for i := end - 1; i >= start && i >= 0; i-- {
		out = append(out, all[i])
	}
	return out, total, nil
}

func (f *fakeMessageRepo) MarkRead(conversationId, readerId string, at time.Time) (int64, error) {
	var n int64
	for i := range f.messages {
		m := &f.messages[i]
		if m.ConversationId == conversationId && m.SenderId != readerId && !m.ReadAt.Valid {
			m.ReadAt = sql.NullTime{Time: at, Valid: true}
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageRepo) CountUnreadGrouped(viewerId string) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, m := range f.messages {
		if m.SenderId != viewerId && !m.ReadAt.Valid {
			out[m.ConversationId]++
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) CountUnreadByConversation(conversationId, viewerId string) (int64, error) {
	var n int64
	for _, m := range f.messages {
		if m.ConversationId == conversationId && m.SenderId != viewerId && !m.ReadAt.Valid {
			n++
		}
	}
	return n, nil
}

func newTestRepos(conv *fakeConversationRepo, msg *fakeMessageRepo) *mysql.Repositories {
	return &mysql.Repositories{Conversation: conv, Message: msg}
}

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total int64
		limit int
		want  int
	}{
		{0, 50, 0},
		{1, 50, 1},
		{50, 50, 1},
		{51, 50, 2},
		{100, 50, 2},
		{101, 50, 3},
		{10, 0, 0},
	}
	for _, c := range cases {
		if got := TotalPages(c.total, c.limit); got != c.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", c.total, c.limit, got, c.want)
		}
	}
}

func TestGetMessageListPagination(t *testing.T) {
	convRepo := &fakeConversationRepo{conversations: map[string]*model.Conversation{
		"C1": {Uuid: "C1", UserId: "U1"},
	}}
	msgRepo := &fakeMessageRepo{}
	for i := int64(1); i <= 5; i++ {
		msgRepo.messages = append(msgRepo.messages, model.Message{
			Model:          gorm.Model{CreatedAt: time.Date(2026, 9, 1, 10, 0, int(i), 0, time.UTC)},
			Uuid:           i,
			ConversationId: "C1",
			SenderId:       "U1",
			Content:        "m",
		})
	}
	svc := NewMessageService(newTestRepos(convRepo, msgRepo))
	viewer := model.Actor{Uuid: "S1", Role: model.RoleStaff}

	rsp, err := svc.GetMessageList(viewer, "C1", request.GetMessageListRequest{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("GetMessageList: %v", err)
	}
	if rsp.Pagination.Total != 5 || rsp.Pagination.TotalPages != 3 {
		t.Fatalf("pagination = %+v", rsp.Pagination)
	}
	// 第一页是最新的两条，页内倒序
	if len(rsp.Messages) != 2 || rsp.Messages[0].Id != 5 || rsp.Messages[1].Id != 4 {
		t.Fatalf("first page = %+v", rsp.Messages)
	}
}

func TestGetMessageListAccessControl(t *testing.T) {
	convRepo := &fakeConversationRepo{conversations: map[string]*model.Conversation{
		"C1": {Uuid: "C1", UserId: "U1"},
	}}
	svc := NewMessageService(newTestRepos(convRepo, &fakeMessageRepo{}))

	// 客户不能读别人的会话
	outsider := model.Actor{Uuid: "U2", Role: model.RoleCustomer}
	if _, err := svc.GetMessageList(outsider, "C1", request.GetMessageListRequest{}); errorx.GetCode(err) != errorx.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	// 不存在的会话
	owner := model.Actor{Uuid: "U1", Role: model.RoleCustomer}
	if _, err := svc.GetMessageList(owner, "NOPE", request.GetMessageListRequest{}); errorx.GetCode(err) != errorx.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	// 本人可读，默认分页参数生效
	rsp, err := svc.GetMessageList(owner, "C1", request.GetMessageListRequest{})
	if err != nil {
		t.Fatalf("GetMessageList: %v", err)
	}
	if rsp.Pagination.Page != 1 || rsp.Pagination.Limit != 50 {
		t.Fatalf("default pagination = %+v", rsp.Pagination)
	}
}
