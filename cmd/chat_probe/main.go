// chat_probe 命令行客服聊天探测工具
// 用 chatclient 核心连接服务端，从标准输入读取文本发送，打印入站消息
//
// 用法:
//
//	chat_probe -server http://127.0.0.1:8000 -token <access_token>
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"agenda_chat_server/internal/chatclient"
	"agenda_chat_server/pkg/util/jwt"
)

func main() {
	server := flag.String("server", "http://127.0.0.1:8000", "服务端地址")
	token := flag.String("token", "", "Access Token")
	flag.Parse()

	if *token == "" {
		log.Fatal("缺少 -token 参数")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	zap.ReplaceGlobals(logger)

	claims, err := jwt.ParseUnverified(*token)
	if err != nil {
		log.Fatalf("token 解析失败: %v", err)
	}

	wsURL := strings.Replace(*server, "http", "ws", 1) + "/ws/chat"
	transport := chatclient.NewWsTransport(wsURL)
	rest := chatclient.NewRestClient(*server, *token)
	session := chatclient.NewSession(transport, rest, chatclient.Identity{
		Id:   claims.UserID,
		Name: claims.Nickname,
		Role: claims.Role,
	}, 0, 0)

	transport.OnStatusChange(func(s chatclient.Status) {
		fmt.Printf("-- 连接状态: %s\n", s)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := session.Start(ctx, *token); err != nil {
		cancel()
		log.Fatalf("连接失败: %v", err)
	}
	cancel()
	defer session.Close()

	// 轮询打印新消息
	go func() {
		seen := 0
		for {
			time.Sleep(300 * time.Millisecond)
			msgs := session.Messages()
			for ; seen < len(msgs); seen++ {
				m := msgs[seen]
				fmt.Printf("[%s] %s: %s\n", m.CreatedAt, m.SenderName, m.Content)
			}
			if typer, ok := session.CurrentTyper(currentConversation(session)); ok {
				fmt.Printf("-- %s 正在输入...\n", typer.UserName)
			}
		}
	}()

	fmt.Println("输入消息回车发送，/open <会话ID> 切换会话，/list 查看会话，/quit 退出")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return
		case line == "/list":
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			list, err := session.RefreshConversations(ctx, chatclient.ListFilter{})
			cancel()
			if err != nil {
				fmt.Printf("-- 拉取失败: %v\n", err)
				continue
			}
			for _, conv := range list {
				fmt.Printf("%s  %s  未读 %d  %s\n", conv.Id, conv.UserName, conv.UnreadCount, conv.LastMessage)
			}
		case strings.HasPrefix(line, "/open "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := session.OpenConversation(ctx, id)
			cancel()
			if err != nil {
				fmt.Printf("-- 打开失败: %v\n", err)
			}
		case line != "":
			session.NotifyTyping()
			if err := session.SendMessage(line); err != nil {
				fmt.Printf("-- 发送失败: %v\n", err)
			}
		}
	}
}

func currentConversation(s *chatclient.Session) string {
	msgs := s.Messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[0].ConversationId
}
