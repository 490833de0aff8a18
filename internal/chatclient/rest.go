package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"agenda_chat_server/internal/dto/respond"
	"agenda_chat_server/pkg/errorx"
)

// RestClient 会话与消息的 REST 接口
// 服务端返回统一信封 {code, msg, data}，code != 1000 时转为 errorx.CodeError
type RestClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewRestClient 创建 REST 客户端
// baseURL 形如 http://host:port
func NewRestClient(baseURL, token string) *RestClient {
	return &RestClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// apiEnvelope 服务端统一响应信封
type apiEnvelope struct {
	Code int             `json:"code"`
	Msg  json.RawMessage `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// do 发请求并解信封，out 为 nil 时丢弃 data
func (c *RestClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errorx.Wrap(err, errorx.CodeInvalidParam, "请求序列化失败")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errorx.Wrap(err, errorx.CodeInvalidParam, "构造请求失败")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errorx.Wrap(err, errorx.CodeServerBusy, "请求失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errorx.ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return errorx.Newf(errorx.CodeServerBusy, "服务端返回 %d", resp.StatusCode)
	}

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return errorx.Wrap(err, errorx.CodeServerBusy, "响应解析失败")
	}
	if env.Code != errorx.CodeSuccess {
		var msg string
		if err := json.Unmarshal(env.Msg, &msg); err != nil {
			msg = string(env.Msg)
		}
		return errorx.New(env.Code, msg)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errorx.Wrap(err, errorx.CodeServerBusy, "响应数据解析失败")
		}
	}
	return nil
}

// ListFilter 会话列表过滤条件
type ListFilter struct {
	Status string // "all" 或 "unread"
	Search string // 按参与者姓名或邮箱模糊匹配
}

// ListConversations 获取会话列表
func (c *RestClient) ListConversations(ctx context.Context, filter ListFilter) ([]respond.ConversationRespond, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	path := "/chat/conversations"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var out respond.GetConversationListRespond
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// CreateConversation 幂等获取或创建会话
// counterpartUserId 仅客服侧需要，客户传空
func (c *RestClient) CreateConversation(ctx context.Context, counterpartUserId string) (*respond.ConversationRespond, error) {
	var body any
	if counterpartUserId != "" {
		body = map[string]string{"userId": counterpartUserId}
	}
	var out respond.ConversationRespond
	if err := c.do(ctx, http.MethodPost, "/chat/conversations", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMessages 分页获取历史消息，页内最新优先
func (c *RestClient) GetMessages(ctx context.Context, conversationId string, page, limit int) (*respond.GetMessageListRespond, error) {
	path := fmt.Sprintf("/chat/conversations/%s/messages?page=%d&limit=%d", conversationId, page, limit)
	var out respond.GetMessageListRespond
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkAsRead 标记会话已读
func (c *RestClient) MarkAsRead(ctx context.Context, conversationId string) error {
	return c.do(ctx, http.MethodPatch, "/chat/conversations/"+conversationId+"/read", nil, nil)
}

// UnreadCount 获取全局未读数
func (c *RestClient) UnreadCount(ctx context.Context) (int64, error) {
	var out respond.UnreadCountRespond
	if err := c.do(ctx, http.MethodGet, "/chat/conversations/unread-count", nil, &out); err != nil {
		return 0, err
	}
	return out.TotalUnread, nil
}
