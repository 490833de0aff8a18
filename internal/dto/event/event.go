// Package event 定义 WebSocket 双向事件协议
// 客户端和服务端共用：统一信封 + 每个事件的载荷结构
package event

import "encoding/json"

// 事件名常量，双向词表见协议约定
const (
	// 客户端 → 服务端
	JoinConversation  = "join_conversation"
	LeaveConversation = "leave_conversation"
	SendMessage       = "send_message"
	Typing            = "typing"

	// 服务端 → 客户端
	NewMessage          = "new_message"
	ConversationUpdated = "conversation_updated"
	UnreadUpdate        = "unread_update"
	TypingIndicator     = "typing_indicator"
	MessagesRead        = "messages_read"
	Error               = "error"
)

// Envelope 事件信封
// 所有 WebSocket 帧都是 {"event": "...", "data": {...}} 形式的 JSON 文本
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Marshal 将事件名和载荷编码为一帧
func Marshal(name string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: name, Data: data})
}

// JoinPayload join_conversation / leave_conversation 载荷
type JoinPayload struct {
	ConversationId string `json:"conversationId"`
}

// SendMessagePayload send_message 载荷
type SendMessagePayload struct {
	ConversationId string `json:"conversationId"`
	Content        string `json:"content"`
}

// TypingPayload typing 载荷（客户端 → 服务端）
type TypingPayload struct {
	ConversationId string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// TypingIndicatorPayload typing_indicator 载荷（服务端 → 客户端）
type TypingIndicatorPayload struct {
	ConversationId string `json:"conversationId"`
	UserId         string `json:"userId"`
	UserName       string `json:"userName"`
	IsTyping       bool   `json:"isTyping"`
}

// MessagesReadPayload messages_read 载荷
// ReadBy 是标记已读的一方；其余参与者据此回填 read_at
type MessagesReadPayload struct {
	ConversationId string `json:"conversationId"`
	ReadBy         string `json:"readBy"`
}

// UnreadUpdatePayload unread_update 载荷
// 服务端下发的权威全局未读数，覆盖客户端的增量计数
type UnreadUpdatePayload struct {
	TotalUnread int64 `json:"total_unread"`
}

// ErrorPayload error 载荷，非致命协议错误
type ErrorPayload struct {
	Message string `json:"message"`
}
