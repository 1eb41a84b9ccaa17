package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"localdeal-backend/internal/utils"
)

// DLQAuditService 死信审计消费者
// 消费死信 topic 中的订单消息，记录告警日志并邮件通知运维人工对账
// （死信订单在 Redis 侧已扣过库存，需要人工决定补单还是回补库存）
type DLQAuditService struct {
	reader *kafka.Reader
	smtp   utils.SMTPConfig
	log    *zap.Logger
}

func NewDLQAuditService(reader *kafka.Reader, smtp utils.SMTPConfig, log *zap.Logger) *DLQAuditService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DLQAuditService{reader: reader, smtp: smtp, log: log}
}

// Run 阻塞消费死信消息直至 ctx 取消
// 手动提交 offset：告警动作完成后才 commit，保证至少一次通知
func (s *DLQAuditService) Run(ctx context.Context) {
	if s.reader == nil {
		return
	}
	s.log.Info("dlq audit consumer started")
	for {
		m, err := s.reader.FetchMessage(ctx)
		if err != nil {
			// ctx 取消或 reader 关闭
			s.log.Info("dlq audit consumer stopped", zap.Error(err))
			return
		}

		var dl DeadLetter
		if err := json.Unmarshal(m.Value, &dl); err != nil {
			// 死信本身格式损坏只能记日志，照常 commit 避免卡住
			s.log.Error("unmarshal dead letter failed",
				zap.ByteString("value", m.Value), zap.Error(err))
		} else {
			s.log.Error("dead-lettered order requires manual reconciliation",
				zap.String("messageId", dl.MessageID),
				zap.Any("values", dl.Values),
				zap.String("reason", dl.Reason),
				zap.Time("failedAt", dl.FailedAt),
			)
			s.alert(dl)
		}

		if err := s.reader.CommitMessages(ctx, m); err != nil {
			s.log.Error("commit dlq offset failed", zap.Error(err))
		}
	}
}

// alert 邮件通知运维，SMTP 未配置或发送失败时仅记日志
func (s *DLQAuditService) alert(dl DeadLetter) {
	if s.smtp.Host == "" {
		return
	}
	subject := fmt.Sprintf("[localdeal] 秒杀订单死信告警 %s", dl.MessageID)
	body := fmt.Sprintf(
		"订单消息重试耗尽，已进入死信队列，请人工对账。\n\nmessageId: %s\nvalues: %v\nreason: %s\nfailedAt: %s\n",
		dl.MessageID, dl.Values, dl.Reason, dl.FailedAt.Format("2006-01-02 15:04:05"),
	)
	if err := utils.SendEmail(s.smtp, subject, body); err != nil {
		s.log.Warn("send dlq alert email failed", zap.Error(err))
	}
}
