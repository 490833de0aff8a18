// Package conversation 实现会话业务逻辑
// 会话列表、幂等创建、标记已读、全局未读数
package conversation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"agenda_chat_server/internal/dao/mysql"
	"agenda_chat_server/internal/dao/mysql/repository"
	myredis "agenda_chat_server/internal/dao/redis"
	"agenda_chat_server/internal/dto/request"
	"agenda_chat_server/internal/dto/respond"
	"agenda_chat_server/internal/model"
	"agenda_chat_server/pkg/constants"
	"agenda_chat_server/pkg/errorx"
	"agenda_chat_server/pkg/util/random"
)

// conversationService 会话业务逻辑实现
// 通过构造函数注入 Repository 和 Cache 依赖
type conversationService struct {
	repos *mysql.Repositories
	cache myredis.AsyncCacheService
}

// NewConversationService 构造函数，注入所有依赖
func NewConversationService(repos *mysql.Repositories, cacheService myredis.AsyncCacheService) *conversationService {
	return &conversationService{
		repos: repos,
		cache: cacheService,
	}
}

// timeLayout 对外时间格式，与消息推送保持一致
const timeLayout = "2006-01-02 15:04:05"

// toRespond 将会话模型转换为响应 DTO，未读数按视角单独计算后填入
func toRespond(conv *model.Conversation, unread int64) respond.ConversationRespond {
	rsp := respond.ConversationRespond{
		Id:          conv.Uuid,
		UserId:      conv.UserId,
		UserName:    conv.UserName,
		UserEmail:   conv.UserEmail,
		LastMessage: conv.LastMessage,
		UnreadCount: unread,
	}
	if conv.LastMessageAt.Valid {
		rsp.LastMessageAt = conv.LastMessageAt.Time.Format(timeLayout)
	}
	return rsp
}

// List 按视角返回会话列表
func (s *conversationService) List(viewer model.Actor, req request.GetConversationListRequest) ([]respond.ConversationRespond, error) {
	filter := repository.ConversationFilter{Search: req.Search}
	if !viewer.IsSupport() {
		// 客户只能看到自己的会话
		filter.UserId = viewer.Uuid
	}

	convs, err := s.repos.Conversation.List(filter)
	if err != nil {
		zap.L().Error("查询会话列表失败", zap.String("viewer", viewer.Uuid), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	// 未读数按视角计算：客服侧一次分组统计，客户逐会话（只有一个）统计
	var counts map[string]int64
	if viewer.IsSupport() {
		counts, err = s.repos.Message.CountUnreadGrouped(viewer.Uuid)
		if err != nil {
			zap.L().Error("统计未读失败", zap.String("viewer", viewer.Uuid), zap.Error(err))
			return nil, errorx.ErrServerBusy
		}
	}

	rspList := make([]respond.ConversationRespond, 0, len(convs))
	for i := range convs {
		conv := &convs[i]
		var unread int64
		if viewer.IsSupport() {
			unread = counts[conv.Uuid]
		} else {
			unread, err = s.repos.Message.CountUnreadByConversation(conv.Uuid, viewer.Uuid)
			if err != nil {
				zap.L().Error("统计会话未读失败", zap.String("conversation", conv.Uuid), zap.Error(err))
				return nil, errorx.ErrServerBusy
			}
		}
		if req.Status == "unread" && unread == 0 {
			continue
		}
		rspList = append(rspList, toRespond(conv, unread))
	}
	return rspList, nil
}

// GetOrCreate 幂等获取或创建会话
func (s *conversationService) GetOrCreate(viewer model.Actor, counterpartUserId string) (*respond.ConversationRespond, bool, error) {
	// 确定会话主体：客户是自己，客服侧必须指定终端用户
	subjectId := viewer.Uuid
	subjectName := viewer.Nickname
	subjectEmail := ""
	if viewer.IsSupport() {
		if counterpartUserId == "" {
			return nil, false, errorx.New(errorx.CodeInvalidParam, "客服发起会话必须指定用户")
		}
		subjectId = counterpartUserId
		subjectName = ""
	}

	// 尽量从用户表补全昵称/邮箱（用户数据由外部服务维护，查不到时退回 Token 信息）
	if user, err := s.repos.User.FindByUuid(subjectId); err == nil {
		subjectName = user.Nickname
		subjectEmail = user.Email
	} else if errorx.GetCode(err) != errorx.CodeNotFound {
		zap.L().Error("查询用户失败", zap.String("user", subjectId), zap.Error(err))
		return nil, false, errorx.ErrServerBusy
	} else if viewer.IsSupport() {
		return nil, false, errorx.New(errorx.CodeUserNotExist, "指定的用户不存在")
	}

	conv, created, err := s.repos.Conversation.GetOrCreate(&model.Conversation{
		Uuid:      fmt.Sprintf("C%s", random.GetNowAndLenRandomString(13)),
		UserId:    subjectId,
		UserName:  subjectName,
		UserEmail: subjectEmail,
	})
	if err != nil {
		zap.L().Error("获取或创建会话失败", zap.String("user", subjectId), zap.Error(err))
		return nil, false, errorx.ErrServerBusy
	}
	if created {
		zap.L().Info("创建客服会话",
			zap.String("conversation", conv.Uuid),
			zap.String("user", subjectId),
			zap.String("by", viewer.Uuid),
		)
	}

	unread, err := s.repos.Message.CountUnreadByConversation(conv.Uuid, viewer.Uuid)
	if err != nil {
		zap.L().Error("统计会话未读失败", zap.String("conversation", conv.Uuid), zap.Error(err))
		return nil, false, errorx.ErrServerBusy
	}
	rsp := toRespond(conv, unread)
	return &rsp, created, nil
}

// MarkAsRead 将会话标记为已读（幂等）
// 回填 read_at 后异步失效视角的未读缓存
func (s *conversationService) MarkAsRead(viewer model.Actor, conversationId string) (int64, error) {
	conv, err := s.repos.Conversation.FindByUuid(conversationId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return 0, errorx.New(errorx.CodeNotFound, "会话不存在")
		}
		zap.L().Error("查询会话失败", zap.String("conversation", conversationId), zap.Error(err))
		return 0, errorx.ErrServerBusy
	}
	// 客户只能操作自己的会话
	if !viewer.IsSupport() && conv.UserId != viewer.Uuid {
		return 0, errorx.ErrForbidden
	}

	affected, err := s.repos.Message.MarkRead(conversationId, viewer.Uuid, time.Now())
	if err != nil {
		zap.L().Error("标记已读失败", zap.String("conversation", conversationId), zap.Error(err))
		return 0, errorx.ErrServerBusy
	}

	if s.cache != nil {
		viewerId := viewer.Uuid
		s.cache.SubmitTask(func() {
			if err := s.cache.Delete(context.Background(), myredis.UnreadTotalKey(viewerId)); err != nil {
				zap.L().Error("失效未读缓存失败", zap.String("user", viewerId), zap.Error(err))
			}
		})
	}
	return affected, nil
}

// UnreadTotal 返回视角下的全局未读数
// 缓存命中直接返回；未命中时查库并异步回填缓存
func (s *conversationService) UnreadTotal(viewer model.Actor) (int64, error) {
	key := myredis.UnreadTotalKey(viewer.Uuid)
	if s.cache != nil {
		if cached, err := s.cache.Get(context.Background(), key); err == nil && cached != "" {
			if total, perr := strconv.ParseInt(cached, 10, 64); perr == nil {
				return total, nil
			}
		}
	}

	total, err := s.computeUnreadTotal(viewer)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		s.cache.SubmitTask(func() {
			if err := s.cache.Set(context.Background(), key,
				strconv.FormatInt(total, 10),
				time.Duration(constants.REDIS_TIMEOUT)*time.Minute); err != nil {
				zap.L().Error("回填未读缓存失败", zap.String("user", viewer.Uuid), zap.Error(err))
			}
		})
	}
	return total, nil
}

// computeUnreadTotal 从数据库计算全局未读数
func (s *conversationService) computeUnreadTotal(viewer model.Actor) (int64, error) {
	if viewer.IsSupport() {
		counts, err := s.repos.Message.CountUnreadGrouped(viewer.Uuid)
		if err != nil {
			zap.L().Error("统计未读失败", zap.String("viewer", viewer.Uuid), zap.Error(err))
			return 0, errorx.ErrServerBusy
		}
		var total int64
		for _, cnt := range counts {
			total += cnt
		}
		return total, nil
	}

	// 客户视角：只统计自己那一个会话
	conv, err := s.repos.Conversation.FindByUserId(viewer.Uuid)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return 0, nil // 还没有会话
		}
		zap.L().Error("查询会话失败", zap.String("viewer", viewer.Uuid), zap.Error(err))
		return 0, errorx.ErrServerBusy
	}
	total, err := s.repos.Message.CountUnreadByConversation(conv.Uuid, viewer.Uuid)
	if err != nil {
		zap.L().Error("统计会话未读失败", zap.String("conversation", conv.Uuid), zap.Error(err))
		return 0, errorx.ErrServerBusy
	}
	return total, nil
}
