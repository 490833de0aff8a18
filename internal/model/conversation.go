// Package model 定义数据库实体模型
// 本文件定义客服会话模型
package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// Conversation 会话模型
// 对应数据库 conversation 表
// 一个终端用户与客服团队之间只存在一个会话（幂等创建）
type Conversation struct {
	gorm.Model // 内嵌 GORM 模型，包含 ID、CreatedAt、UpdatedAt、DeletedAt

	// Uuid 会话唯一标识
	// 格式：C + 时间戳随机字符串
	Uuid string `gorm:"column:uuid;uniqueIndex;type:char(20);comment:会话uuid"`

	// UserId 终端用户 UUID
	// 唯一索引保证同一用户只有一个客服会话，FirstOrCreate 依赖该约束实现幂等
	UserId string `gorm:"column:user_id;uniqueIndex;type:char(20);not null;comment:终端用户uuid"`

	// UserName 终端用户昵称
	// 冗余存储，用于会话列表显示和搜索
	UserName string `gorm:"column:user_name;type:varchar(40);not null;comment:用户昵称"`

	// UserEmail 终端用户邮箱
	// 冗余存储，用于会话列表搜索
	UserEmail string `gorm:"column:user_email;type:varchar(100);comment:用户邮箱"`

	// LastMessage 最新消息内容
	// 用于在会话列表中显示最后一条消息摘要
	LastMessage string `gorm:"column:last_message;type:TEXT;comment:最新的消息"`

	// LastMessageAt 最后消息时间
	// 用于会话列表排序（最近聊天的排在前面）
	LastMessageAt sql.NullTime `gorm:"column:last_message_at;type:datetime;comment:最近接收时间"`
}

// TableName 指定表名
func (Conversation) TableName() string {
	return "conversation"
}
