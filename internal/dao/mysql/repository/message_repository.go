// Package repository 提供数据访问层的具体实现
// 本文件实现 MessageRepository 接口
package repository

import (
	"time"

	"agenda_chat_server/internal/model"

	"gorm.io/gorm"
)

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建消息 Repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create 创建消息
func (r *messageRepository) Create(message *model.Message) error {
	if err := r.db.Create(message).Error; err != nil {
		return wrapDBError(err, "创建消息")
	}
	return nil
}

// FindPageByConversation 按会话分页查找消息
// 页内 (created_at, uuid) 降序：第 1 页是最新的一段历史
// 服务端分配的雪花 ID 保证同一秒内的消息仍有确定顺序
func (r *messageRepository) FindPageByConversation(conversationId string, page, limit int) ([]model.Message, int64, error) {
	if page < 1 {
		page = 1
	}

	var total int64
	countQ := r.db.Model(&model.Message{}).Where("conversation_id = ?", conversationId)
	if err := countQ.Count(&total).Error; err != nil {
		return nil, 0, wrapDBErrorf(err, "统计消息 conversation_id=%s", conversationId)
	}

	var messages []model.Message
	err := r.db.Where("conversation_id = ?", conversationId).
		Order("created_at DESC, uuid DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, 0, wrapDBErrorf(err, "查询消息 conversation_id=%s page=%d", conversationId, page)
	}
	return messages, total, nil
}

// MarkRead 将会话内非 readerId 发送且未读的消息回填 read_at
// 只回填 NULL 字段，消息内容不会被改动
func (r *messageRepository) MarkRead(conversationId, readerId string, at time.Time) (int64, error) {
	res := r.db.Model(&model.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", conversationId, readerId).
		Update("read_at", at)
	if res.Error != nil {
		return 0, wrapDBErrorf(res.Error, "标记已读 conversation_id=%s", conversationId)
	}
	return res.RowsAffected, nil
}

// unreadRow CountUnreadGrouped 的扫描目标
type unreadRow struct {
	ConversationId string
	Cnt            int64
}

// CountUnreadGrouped 统计 viewer 视角的未读消息数，按会话分组
func (r *messageRepository) CountUnreadGrouped(viewerId string) (map[string]int64, error) {
	var rows []unreadRow
	err := r.db.Model(&model.Message{}).
		Select("conversation_id AS conversation_id, COUNT(*) AS cnt").
		Where("read_at IS NULL AND sender_id <> ?", viewerId).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "统计未读消息 viewer=%s", viewerId)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.ConversationId] = row.Cnt
	}
	return counts, nil
}

// CountUnreadByConversation 统计单个会话内 viewer 视角的未读数
func (r *messageRepository) CountUnreadByConversation(conversationId, viewerId string) (int64, error) {
	var cnt int64
	err := r.db.Model(&model.Message{}).
		Where("conversation_id = ? AND read_at IS NULL AND sender_id <> ?", conversationId, viewerId).
		Count(&cnt).Error
	if err != nil {
		return 0, wrapDBErrorf(err, "统计会话未读 conversation_id=%s", conversationId)
	}
	return cnt, nil
}
