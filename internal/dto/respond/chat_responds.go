// Package respond 定义 HTTP 响应和事件推送共用的 DTO
package respond

// MessageRespond 单条消息
// 同时用于 REST 分页响应和 new_message 事件推送，字段名与前端约定一致
type MessageRespond struct {
	Id             int64   `json:"id"`
	ConversationId string  `json:"conversation_id"`
	SenderId       string  `json:"sender_id"`
	SenderName     string  `json:"sender_name"`
	SenderRole     string  `json:"sender_role"`
	Content        string  `json:"content"`
	CreatedAt      string  `json:"created_at"` // "2006-01-02 15:04:05"
	ReadAt         *string `json:"read_at"`    // 未读为 null
}

// ConversationRespond 会话元数据
// 同时用于 REST 列表响应和 conversation_updated 事件推送
// UnreadCount 是针对请求方视角计算的未读数
type ConversationRespond struct {
	Id            string `json:"id"`
	UserId        string `json:"user_id"`
	UserName      string `json:"user_name"`
	UserEmail     string `json:"user_email"`
	LastMessage   string `json:"last_message"`
	LastMessageAt string `json:"last_message_at"`
	UnreadCount   int64  `json:"unread_count"`
}

// Pagination 分页元信息
// 客户端据 Page < TotalPages 判断是否还有更早的页
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// GetMessageListRespond 分页消息响应
type GetMessageListRespond struct {
	Messages   []MessageRespond `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// GetConversationListRespond 会话列表响应
type GetConversationListRespond struct {
	Conversations []ConversationRespond `json:"conversations"`
}

// UnreadCountRespond 全局未读数响应
type UnreadCountRespond struct {
	TotalUnread int64 `json:"total_unread"`
}
