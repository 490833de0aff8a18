// Package chatclient 实现客服聊天的 Go 客户端核心
//
// 六个组件按依赖顺序组合：
//
//	Transport      持久 WebSocket 通道，自动重连，类型化事件总线
//	RestClient     会话与消息的 REST 持久化接口
//	Directory      会话列表的客户端缓存
//	MessageLog     当前活跃会话的有序去重消息存储，支持向前翻页
//	Typing         正在输入信号的去抖与过期
//	Unread         会话级与全局未读数聚合
//	Session        应用代码唯一的入口门面，组合以上全部
//
// 所有组件经构造函数注入依赖，Transport 以接口形式传入，便于测试替换。
package chatclient
