// Package repository 定义数据访问层接口和具体实现
// 采用 Repository 模式将数据访问逻辑与业务逻辑分离
// 所有 Repository 接口在此文件定义，具体实现在各自的文件中
package repository

import (
	"errors"
	"time"

	"agenda_chat_server/internal/model"
	"agenda_chat_server/pkg/errorx"

	"gorm.io/gorm"
)

// ==================== 错误包装辅助函数 ====================

// wrapDBError 包装数据库错误
// ErrRecordNotFound -> CodeNotFound，其他错误 -> CodeDBError
func wrapDBError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errorx.Wrap(err, errorx.CodeNotFound, msg)
	}
	return errorx.Wrap(err, errorx.CodeDBError, msg)
}

// wrapDBErrorf 包装数据库错误（支持格式化消息）
func wrapDBErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errorx.Wrapf(err, errorx.CodeNotFound, format, args...)
	}
	return errorx.Wrapf(err, errorx.CodeDBError, format, args...)
}

// ==================== Repository 接口定义 ====================

// UserRepository 用户数据访问接口
// 用户的写入由外部认证/注册服务负责，这里只提供聊天核心需要的读取和测试用创建
type UserRepository interface {
	// FindByUuid 根据 UUID 查找用户
	FindByUuid(uuid string) (*model.UserInfo, error)
	// FindByUuids 批量根据 UUID 查找用户
	FindByUuids(uuids []string) ([]model.UserInfo, error)
	// FindSupportStaff 查找所有客服侧用户（staff / superadmin）
	FindSupportStaff() ([]model.UserInfo, error)
	// Create 创建用户（种子数据和测试使用）
	Create(user *model.UserInfo) error
}

// ConversationFilter 会话列表过滤条件
type ConversationFilter struct {
	Search string // 对用户昵称/邮箱模糊匹配，空串不过滤
	UserId string // 限定某个终端用户（客户视角），空串不限定
}

// ConversationRepository 会话数据访问接口
type ConversationRepository interface {
	// FindByUuid 根据会话 UUID 查找
	FindByUuid(uuid string) (*model.Conversation, error)
	// FindByUserId 根据终端用户 UUID 查找其唯一会话
	FindByUserId(userId string) (*model.Conversation, error)
	// GetOrCreate 按 user_id 幂等获取或创建会话
	// 依赖 user_id 唯一索引，并发调用不会产生重复会话
	// 第二个返回值表示本次调用是否真正新建了会话
	GetOrCreate(conv *model.Conversation) (*model.Conversation, bool, error)
	// List 按过滤条件查找会话，按 last_message_at 降序
	List(filter ConversationFilter) ([]model.Conversation, error)
	// UpdateLastMessage 更新会话的最新消息摘要和时间
	UpdateLastMessage(uuid string, content string, at time.Time) error
}

// MessageRepository 消息数据访问接口
type MessageRepository interface {
	// Create 创建消息
	Create(message *model.Message) error
	// FindPageByConversation 按会话分页查找消息
	// 页内按 (created_at, uuid) 降序（最新页优先），返回总条数用于分页元信息
	FindPageByConversation(conversationId string, page, limit int) ([]model.Message, int64, error)
	// MarkRead 将会话内非 readerId 发送且未读的消息回填 read_at
	// 幂等：重复调用影响行数为 0
	MarkRead(conversationId, readerId string, at time.Time) (int64, error)
	// CountUnreadGrouped 统计未读消息数（read_at IS NULL 且发送者不是 viewer）
	// 按会话分组返回，供会话列表和全局未读数聚合使用
	CountUnreadGrouped(viewerId string) (map[string]int64, error)
	// CountUnreadByConversation 统计单个会话内 viewer 视角的未读数
	CountUnreadByConversation(conversationId, viewerId string) (int64, error)
}
