package conversation

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"agenda_chat_server/internal/dao/mysql"
	"agenda_chat_server/internal/dao/mysql/repository"
	"agenda_chat_server/internal/dto/request"
	"agenda_chat_server/internal/model"
	"agenda_chat_server/pkg/errorx"
)

// ==================== 内存 fake 实现 ====================

type fakeUserRepo struct {
	users map[string]*model.UserInfo
}

func (f *fakeUserRepo) FindByUuid(uuid string) (*model.UserInfo, error) {
	if u, ok := f.users[uuid]; ok {
		return u, nil
	}
	return nil, errorx.New(errorx.CodeNotFound, "用户不存在")
}

func (f *fakeUserRepo) FindByUuids(uuids []string) ([]model.UserInfo, error) {
	var out []model.UserInfo
	for _, id := range uuids {
		if u, ok := f.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) FindSupportStaff() ([]model.UserInfo, error) {
	var out []model.UserInfo
	for _, u := range f.users {
		if u.IsSupport() {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) Create(user *model.UserInfo) error {
	f.users[user.Uuid] = user
	return nil
}

type fakeConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation // key: user_id，模拟唯一索引
}

func (f *fakeConversationRepo) FindByUuid(uuid string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conv := range f.conversations {
		if conv.Uuid == uuid {
			return conv, nil
		}
	}
	return nil, errorx.New(errorx.CodeNotFound, "会话不存在")
}

func (f *fakeConversationRepo) FindByUserId(userId string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv, ok := f.conversations[userId]; ok {
		return conv, nil
	}
	return nil, errorx.New(errorx.CodeNotFound, "会话不存在")
}

func (f *fakeConversationRepo) GetOrCreate(conv *model.Conversation) (*model.Conversation, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.conversations[conv.UserId]; ok {
		return cur, false, nil
	}
	f.conversations[conv.UserId] = conv
	return conv, true, nil
}

func (f *fakeConversationRepo) List(filter repository.ConversationFilter) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conv := range f.conversations {
		if conv.Uuid == uuid {
			conv.LastMessage = content
			conv.LastMessageAt = sql.NullTime{Time: at, Valid: true}
		}
	}
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []model.Message
}

func (f *fakeMessageRepo) Create(m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.CreatedAt = time.Now()
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeMessageRepo) FindPageByConversation(conversationId string, page, limit int) ([]model.Message, int64, error) {
	return nil, 0, nil
}

func (f *fakeMessageRepo) MarkRead(conversationId, readerId string, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64)
	for _, m := range f.messages {
		if m.SenderId != viewerId && !m.ReadAt.Valid {
			out[m.ConversationId]++
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) CountUnreadByConversation(conversationId, viewerId string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.messages {
		if m.ConversationId == conversationId && m.SenderId != viewerId && !m.ReadAt.Valid {
			n++
		}
	}
	return n, nil
}

// fakeCache 同步执行任务的内存缓存
type fakeCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]string)}
}

func (f *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeCache) GetOrError(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", errorx.New(errorx.CodeNotFound, "key不存在")
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeCache) DeleteByPattern(ctx context.Context, pattern string) error {
	return nil
}

func (f *fakeCache) SubmitTask(action func()) {
	action() // 测试里同步执行
}

func newTestService() (*conversationService, *fakeConversationRepo, *fakeMessageRepo, *fakeCache) {
	convRepo := &fakeConversationRepo{conversations: make(map[string]*model.Conversation)}
	msgRepo := &fakeMessageRepo{}
	userRepo := &fakeUserRepo{users: map[string]*model.UserInfo{
		"U1": {Uuid: "U1", Nickname: "王小明", Email: "u1@example.com", Role: model.RoleCustomer},
		"S1": {Uuid: "S1", Nickname: "客服一号", Role: model.RoleStaff},
	}}
	cache := newFakeCache()
	repos := &mysql.Repositories{User: userRepo, Conversation: convRepo, Message: msgRepo}
	return NewConversationService(repos, cache), convRepo, msgRepo, cache
}

// ==================== 测试 ====================

func TestGetOrCreateIsIdempotent(t *testing.T) {
	svc, _, _, _ := newTestService()
	customer := model.Actor{Uuid: "U1", Nickname: "王小明", Role: model.RoleCustomer}

	first, created, err := svc.GetOrCreate(customer, "")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if !created {
		t.Fatal("first call must create")
	}
	if first.UserName != "王小明" || first.UserEmail != "u1@example.com" {
		t.Fatalf("subject not filled from user table: %+v", first)
	}

	second, created, err := svc.GetOrCreate(customer, "")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if created {
		t.Fatal("second call must not create")
	}
	if second.Id != first.Id {
		t.Fatalf("ids differ: %s vs %s", first.Id, second.Id)
	}
}

func TestGetOrCreateSupportRequiresCounterpart(t *testing.T) {
	svc, _, _, _ := newTestService()
	staff := model.Actor{Uuid: "S1", Role: model.RoleStaff}

	if _, _, err := svc.GetOrCreate(staff, ""); errorx.GetCode(err) != errorx.CodeInvalidParam {
		t.Fatalf("expected invalid param, got %v", err)
	}
	if _, _, err := svc.GetOrCreate(staff, "GHOST"); errorx.GetCode(err) != errorx.CodeUserNotExist {
		t.Fatalf("expected user not exist, got %v", err)
	}

	conv, created, err := svc.GetOrCreate(staff, "U1")
	if err != nil || !created {
		t.Fatalf("create for counterpart: %v created=%v", err, created)
	}
	if conv.UserId != "U1" {
		t.Fatalf("subject = %s, want U1", conv.UserId)
	}
}

func TestMarkAsReadIdempotentAndScoped(t *testing.T) {
	svc, convRepo, msgRepo, _ := newTestService()
	convRepo.conversations["U1"] = &model.Conversation{Uuid: "C1", UserId: "U1"}
	msgRepo.messages = []model.Message{
		{Uuid: 1, ConversationId: "C1", SenderId: "S1"},
		{Uuid: 2, ConversationId: "C1", SenderId: "S1"},
		{Uuid: 3, ConversationId: "C1", SenderId: "U1"},
	}

	customer := model.Actor{Uuid: "U1", Role: model.RoleCustomer}
	marked, err := svc.MarkAsRead(customer, "C1")
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	// 只回填对方发的两条，自己发的不动
	if marked != 2 {
		t.Fatalf("marked = %d, want 2", marked)
	}

	marked, err = svc.MarkAsRead(customer, "C1")
	if err != nil {
		t.Fatalf("repeat mark: %v", err)
	}
	if marked != 0 {
		t.Fatalf("repeat marked = %d, want 0", marked)
	}

	// 客户不能标记别人的会话
	outsider := model.Actor{Uuid: "U9", Role: model.RoleCustomer}
	if _, err := svc.MarkAsRead(outsider, "C1"); errorx.GetCode(err) != errorx.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestUnreadTotalUsesCacheThenRecomputes(t *testing.T) {
	svc, convRepo, msgRepo, cache := newTestService()
	convRepo.conversations["U1"] = &model.Conversation{Uuid: "C1", UserId: "U1"}
	msgRepo.messages = []model.Message{
		{Uuid: 1, ConversationId: "C1", SenderId: "S1"},
		{Uuid: 2, ConversationId: "C1", SenderId: "S1"},
	}

	customer := model.Actor{Uuid: "U1", Role: model.RoleCustomer}
	total, err := svc.UnreadTotal(customer)
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	// 回填缓存后命中缓存
	if cached, _ := cache.Get(context.Background(), "unread_total_U1"); cached != "2" {
		t.Fatalf("cache = %q, want 2", cached)
	}

	// 标记已读失效缓存，重新计算归零
	if _, err := svc.MarkAsRead(customer, "C1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	total, err = svc.UnreadTotal(customer)
	if err != nil {
		t.Fatalf("unread after read: %v", err)
	}
	if total != 0 {
		t.Fatalf("total after read = %d, want 0", total)
	}
}

func TestListFiltersByViewerAndStatus(t *testing.T) {
	svc, convRepo, msgRepo, _ := newTestService()
	convRepo.conversations["U1"] = &model.Conversation{Uuid: "C1", UserId: "U1"}
	convRepo.conversations["U2"] = &model.Conversation{Uuid: "C2", UserId: "U2"}
	msgRepo.messages = []model.Message{
		{Uuid: 1, ConversationId: "C1", SenderId: "U1"},
	}

	// 客服侧看到全部会话，未读数按视角统计
	staff := model.Actor{Uuid: "S1", Role: model.RoleStaff}
	list, err := svc.List(staff, request.GetConversationListRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("staff list = %d, want 2", len(list))
	}

	// status=unread 过滤掉没有未读的会话
	list, err = svc.List(staff, request.GetConversationListRequest{Status: "unread"})
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(list) != 1 || list[0].Id != "C1" {
		t.Fatalf("unread list = %+v, want only C1", list)
	}

	// 客户只看到自己的会话
	customer := model.Actor{Uuid: "U1", Role: model.RoleCustomer}
	list, err = svc.List(customer, request.GetConversationListRequest{})
	if err != nil {
		t.Fatalf("customer list: %v", err)
	}
	if len(list) != 1 || list[0].Id != "C1" {
		t.Fatalf("customer list = %+v, want only C1", list)
	}
}
