package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"agenda_chat_server/internal/config"
	dao "agenda_chat_server/internal/dao/mysql"
	myredis "agenda_chat_server/internal/dao/redis"
	"agenda_chat_server/internal/handler"
	"agenda_chat_server/internal/https_server"
	"agenda_chat_server/internal/infrastructure/logger"
	"agenda_chat_server/internal/service"
	"agenda_chat_server/internal/service/chat"
	"agenda_chat_server/pkg/util/jwt"
	"agenda_chat_server/pkg/util/snowflake"
)

func main() {
	// 1. 加载配置
	conf := config.GetConfig()

	// 2. 初始化日志
	if err := logger.Init(&conf.LogConfig, "dev"); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	zap.L().Info("日志初始化成功")

	// 3. 初始化雪花 ID 生成器
	snowflake.Init(conf.SnowflakeConfig.MachineID)

	// 4. 初始化数据库
	repos := dao.Init()
	zap.L().Info("数据库初始化成功")

	// 5. 初始化 Redis
	myredis.Init()
	zap.L().Info("Redis 初始化成功")

	// 6. 初始化 JWT
	jwt.Init(conf.JWTConfig.Secret, conf.JWTConfig.AccessTokenExpiry, conf.JWTConfig.RefreshTokenExpiry)
	zap.L().Info("JWT 初始化成功")

	// 7. 初始化参数校验翻译器
	if err := handler.InitTrans("zh"); err != nil {
		zap.L().Fatal("翻译器初始化失败", zap.Error(err))
	}

	// 8. 初始化 Service 层（依赖注入）
	services := service.NewServices(repos, myredis.GetCacheService())
	zap.L().Info("Service 层初始化成功")

	// 9. 初始化实时网关
	chatServer := chat.NewChatServer(repos, myredis.GetCacheService())
	go chatServer.Start()
	zap.L().Info("ChatServer 初始化成功")

	// 10. 初始化 HTTP 服务器
	handlers := handler.NewHandlers(services, chatServer.Hub)
	engine := https_server.Init(handlers)

	host := conf.MainConfig.Host
	port := conf.MainConfig.Port
	go func() {
		if err := engine.Run(fmt.Sprintf("%s:%d", host, port)); err != nil {
			zap.L().Fatal("server running fault", zap.Error(err))
		}
	}()
	zap.L().Info("服务器启动", zap.String("host", host), zap.Int("port", port))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.L().Info("关闭服务器...")
	chatServer.Close()
	zap.L().Info("服务器已关闭")
}
