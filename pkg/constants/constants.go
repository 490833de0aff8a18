package constants

import "time"

const (
	CHANNEL_SIZE      = 100 // 通道大小
	MESSAGE_PAGE_SIZE = 50  // 消息分页默认条数
	REDIS_TIMEOUT     = 1   // redis timeout (分钟)

	// 客户端重连参数
	RECONNECT_ATTEMPTS = 10              // 重连次数上限
	RECONNECT_DELAY    = 1 * time.Second // 首次重连间隔
	RECONNECT_MAX_WAIT = 8 * time.Second // 重连间隔上限

	// 正在输入信号的空闲超时
	TYPING_IDLE_TIMEOUT = 1 * time.Second
)
