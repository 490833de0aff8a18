// Package repository 提供数据访问层的具体实现
// 本文件实现 ConversationRepository 接口
package repository

import (
	"errors"
	"time"

	"agenda_chat_server/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// conversationRepository ConversationRepository 接口的实现
type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建 ConversationRepository 实例
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// FindByUuid 根据会话 UUID 查找
func (r *conversationRepository) FindByUuid(uuid string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := r.db.Where("uuid = ?", uuid).First(&conv).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话 uuid=%s", uuid)
	}
	return &conv, nil
}

// FindByUserId 根据终端用户 UUID 查找其唯一会话
func (r *conversationRepository) FindByUserId(userId string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := r.db.Where("user_id = ?", userId).First(&conv).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话 user_id=%s", userId)
	}
	return &conv, nil
}

// GetOrCreate 按 user_id 幂等获取或创建会话
// FirstOrCreate 配合 user_id 唯一索引：并发创建时冲突的一方回落为读取
func (r *conversationRepository) GetOrCreate(conv *model.Conversation) (*model.Conversation, bool, error) {
	var out model.Conversation
	res := r.db.Where("user_id = ?", conv.UserId).
		Attrs(model.Conversation{
			Uuid:      conv.Uuid,
			UserId:    conv.UserId,
			UserName:  conv.UserName,
			UserEmail: conv.UserEmail,
		}).
		FirstOrCreate(&out)
	if res.Error != nil {
		// 唯一索引冲突说明另一并发请求先创建成功，重读即可
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			if err2 := r.db.Where("user_id = ?", conv.UserId).First(&out).Error; err2 == nil {
				return &out, false, nil
			}
		}
		return nil, false, wrapDBErrorf(res.Error, "获取或创建会话 user_id=%s", conv.UserId)
	}
	// RowsAffected > 0 表示 FirstOrCreate 走了创建分支
	return &out, res.RowsAffected > 0, nil
}

// List 按过滤条件查找会话，按 last_message_at 降序（NULL 排最后）
func (r *conversationRepository) List(filter ConversationFilter) ([]model.Conversation, error) {
	var convs []model.Conversation
	q := r.db.Model(&model.Conversation{})
	if filter.UserId != "" {
		q = q.Where("user_id = ?", filter.UserId)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("user_name LIKE ? OR user_email LIKE ?", like, like)
	}
	err := q.Order(clause.OrderBy{Expression: clause.Expr{
		SQL: "last_message_at IS NULL, last_message_at DESC",
	}}).Find(&convs).Error
	if err != nil {
		return nil, wrapDBError(err, "查询会话列表")
	}
	return convs, nil
}

// UpdateLastMessage 更新会话的最新消息摘要和时间
func (r *conversationRepository) UpdateLastMessage(uuid string, content string, at time.Time) error {
	err := r.db.Model(&model.Conversation{}).Where("uuid = ?", uuid).
		Updates(map[string]interface{}{
			"last_message":    content,
			"last_message_at": at,
		}).Error
	if err != nil {
		return wrapDBErrorf(err, "更新会话最新消息 uuid=%s", uuid)
	}
	return nil
}
