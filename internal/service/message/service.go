// Package message 实现消息业务逻辑
// 历史消息的分页查询（最新页优先）
package message

import (
	"go.uber.org/zap"

	"agenda_chat_server/internal/dao/mysql"
	"agenda_chat_server/internal/dto/request"
	"agenda_chat_server/internal/dto/respond"
	"agenda_chat_server/internal/model"
	"agenda_chat_server/pkg/constants"
	"agenda_chat_server/pkg/errorx"
)

// messageService 消息业务逻辑实现
type messageService struct {
	repos *mysql.Repositories
}

// NewMessageService 构造函数
func NewMessageService(repos *mysql.Repositories) *messageService {
	return &messageService{repos: repos}
}

const timeLayout = "2006-01-02 15:04:05"

// ToRespond 将消息模型转换为响应 DTO
// 网关推送 new_message 时也使用该转换，保证两条路径的序列化一致
func ToRespond(msg *model.Message) respond.MessageRespond {
	rsp := respond.MessageRespond{
		Id:             msg.Uuid,
		ConversationId: msg.ConversationId,
		SenderId:       msg.SenderId,
		SenderName:     msg.SenderName,
		SenderRole:     msg.SenderRole,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt.Format(timeLayout),
	}
	if msg.ReadAt.Valid {
		at := msg.ReadAt.Time.Format(timeLayout)
		rsp.ReadAt = &at
	}
	return rsp
}

// TotalPages 由总条数和每页条数计算总页数
func TotalPages(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	pages := int(total) / limit
	if int(total)%limit != 0 {
		pages++
	}
	return pages
}

// GetMessageList 分页获取会话消息
// 页内按时间倒序（最新页优先），由客户端翻转后按时间正序合并
func (m *messageService) GetMessageList(viewer model.Actor, conversationId string, req request.GetMessageListRequest) (*respond.GetMessageListRespond, error) {
	conv, err := m.repos.Conversation.FindByUuid(conversationId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return nil, errorx.New(errorx.CodeNotFound, "会话不存在")
		}
		zap.L().Error("查询会话失败", zap.String("conversation", conversationId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	// 客户只能读取自己的会话
	if !viewer.IsSupport() && conv.UserId != viewer.Uuid {
		return nil, errorx.ErrForbidden
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = constants.MESSAGE_PAGE_SIZE
	}

	messages, total, err := m.repos.Message.FindPageByConversation(conversationId, page, limit)
	if err != nil {
		zap.L().Error("查询消息失败",
			zap.String("conversation", conversationId),
			zap.Int("page", page),
			zap.Error(err),
		)
		return nil, errorx.ErrServerBusy
	}

	rspList := make([]respond.MessageRespond, 0, len(messages))
	for i := range messages {
		rspList = append(rspList, ToRespond(&messages[i]))
	}

	return &respond.GetMessageListRespond{
		Messages: rspList,
		Pagination: respond.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: TotalPages(total, limit),
		},
	}, nil
}
