// Package request 定义 HTTP 请求 DTO
package request

// GetConversationListRequest 获取会话列表
// status=unread 时只返回有未读消息的会话
// search 对用户昵称/邮箱做模糊匹配
type GetConversationListRequest struct {
	Status string `form:"status" binding:"omitempty,oneof=unread all"`
	Search string `form:"search" binding:"omitempty,max=100"`
	Page   int    `form:"page" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

// CreateConversationRequest 创建（或获取已有）会话
// userId 仅客服侧需要传：指定为哪个终端用户开启会话
// 终端用户自己发起时留空，以 Token 中的身份为准
type CreateConversationRequest struct {
	UserId string `json:"userId" binding:"omitempty,min=1,max=20"`
}

// GetMessageListRequest 分页获取会话消息
// 页内按时间倒序返回（最新页优先），由客户端翻转后合并
type GetMessageListRequest struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}
