// Package model 定义数据库实体模型
// 本文件定义当前认证主体（非持久化）
package model

// Actor 当前认证主体
// 从连接时携带的身份 Token 解析而来，贯穿 Service 层作为视角参数
type Actor struct {
	Uuid     string // 用户 UUID
	Nickname string // 显示名
	Role     string // customer / staff / superadmin
}

// IsSupport 客服侧角色可以看到所有会话
func (a Actor) IsSupport() bool {
	return IsSupportRole(a.Role)
}
