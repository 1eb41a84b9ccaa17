package service

import (
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"localdeal-backend/internal/utils"
)

// Registry 聚合全部业务 Service，方便注入 handler 与后台任务
type Registry struct {
	User           *UserService
	Voucher        *VoucherService
	SeckillVoucher *SeckillVoucherService
	VoucherOrder   *VoucherOrderService
	DLQAudit       *DLQAuditService
}

// NewRegistry 构造服务注册中心
func NewRegistry(
	db *gorm.DB,
	rdb *redis.Client,
	orderWriter *kafka.Writer,
	dlqWriter *kafka.Writer,
	dlqReader *kafka.Reader,
	consumerOpts ConsumerOptions,
	smtpCfg utils.SMTPConfig,
	log *zap.Logger,
) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	seckillSvc := NewSeckillVoucherService(db)
	return &Registry{
		User:           NewUserService(db, rdb, log),
		Voucher:        NewVoucherService(db, seckillSvc, rdb, log),
		SeckillVoucher: seckillSvc,
		VoucherOrder:   NewVoucherOrderService(db, rdb, orderWriter, dlqWriter, consumerOpts, log),
		DLQAudit:       NewDLQAuditService(dlqReader, smtpCfg, log),
	}
}
