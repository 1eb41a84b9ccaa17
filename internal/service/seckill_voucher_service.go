package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"localdeal-backend/internal/model"
)

// SeckillVoucherService 维护秒杀券扩展表
type SeckillVoucherService struct {
	db *gorm.DB
}

func NewSeckillVoucherService(db *gorm.DB) *SeckillVoucherService {
	return &SeckillVoucherService{db: db}
}

func (s *SeckillVoucherService) Create(ctx context.Context, voucher *model.SeckillVoucher) error {
	return s.db.WithContext(ctx).Create(voucher).Error
}

// GetByVoucherID 查询秒杀券信息，不存在时返回 nil
func (s *SeckillVoucherService) GetByVoucherID(ctx context.Context, voucherID int64) (*model.SeckillVoucher, error) {
	var voucher model.SeckillVoucher
	err := s.db.WithContext(ctx).Where("voucher_id = ?", voucherID).Take(&voucher).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}
