// Package model 定义数据库实体模型
// 本文件定义消息模型，用于存储客服聊天消息
package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// Message 消息模型
// 对应数据库 message 表
// 消息一经持久化内容不可变，唯一允许的后续修改是 read_at 回填
type Message struct {
	gorm.Model

	// Uuid 消息唯一标识
	// 使用雪花算法生成的 int64 类型 ID，单调可排序，作为会话内的权威顺序
	Uuid int64 `gorm:"column:uuid;uniqueIndex;type:bigint;not null;comment:消息雪花ID"`

	// ConversationId 会话 UUID
	// 关联到 Conversation 表，标识消息属于哪个会话
	ConversationId string `gorm:"column:conversation_id;index;type:char(20);not null;comment:会话uuid"`

	// SenderId 发送者 UUID
	SenderId string `gorm:"column:sender_id;index;type:char(20);not null;comment:发送者uuid"`

	// SenderName 发送者昵称
	// 冗余存储，避免每次查询消息时都要关联用户表
	SenderName string `gorm:"column:sender_name;type:varchar(40);not null;comment:发送者昵称"`

	// SenderRole 发送者角色
	// customer / staff / superadmin
	SenderRole string `gorm:"column:sender_role;type:varchar(12);not null;comment:发送者角色"`

	// Content 消息文本内容
	Content string `gorm:"column:content;type:TEXT;comment:消息内容"`

	// ReadAt 已读时间
	// 对方标记已读时回填，创建时为 NULL
	ReadAt sql.NullTime `gorm:"column:read_at;comment:已读时间"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "message"
}
