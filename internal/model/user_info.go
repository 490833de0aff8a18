// Package model 定义数据库实体模型
// 本文件定义用户模型
// 用户的创建和认证由外部服务负责，聊天核心只读取身份信息
package model

import (
	"gorm.io/gorm"
)

// 用户角色常量
const (
	RoleCustomer   = "customer"   // 终端客户
	RoleStaff      = "staff"      // 客服人员
	RoleSuperadmin = "superadmin" // 超级管理员控制台
)

// UserInfo 用户模型
// 对应数据库 user_info 表
type UserInfo struct {
	gorm.Model

	// Uuid 用户唯一标识
	// 格式：U + 时间戳随机字符串
	Uuid string `gorm:"column:uuid;uniqueIndex;type:char(20);not null;comment:用户uuid"`

	// Nickname 昵称
	Nickname string `gorm:"column:nickname;type:varchar(40);not null;comment:昵称"`

	// Email 邮箱
	Email string `gorm:"column:email;index;type:varchar(100);comment:邮箱"`

	// Role 角色：customer / staff / superadmin
	Role string `gorm:"column:role;type:varchar(12);not null;default:customer;comment:角色"`
}

// TableName 指定表名
func (UserInfo) TableName() string {
	return "user_info"
}

// IsSupport 客服侧角色（staff 或 superadmin）可以看到所有会话
func (u *UserInfo) IsSupport() bool {
	return u.Role == RoleStaff || u.Role == RoleSuperadmin
}

// IsSupportRole 判断角色字符串是否属于客服侧
func IsSupportRole(role string) bool {
	return role == RoleStaff || role == RoleSuperadmin
}
