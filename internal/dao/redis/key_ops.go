// Package redis 提供缓存 Key 的统一拼装
// Service 层和聊天网关共享同一套 Key，避免各处硬编码
package redis

// UnreadTotalKey 某个用户视角的全局未读数缓存 Key
func UnreadTotalKey(userId string) string {
	return "unread_total_" + userId
}
