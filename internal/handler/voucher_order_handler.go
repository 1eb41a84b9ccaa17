package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"localdeal-backend/internal/dto/result"
	"localdeal-backend/internal/middleware"
	"localdeal-backend/internal/service"
)

type VoucherOrderHandler struct {
	voucherOrderSvc *service.VoucherOrderService
}

func NewVoucherOrderHandler(svc *service.VoucherOrderService) *VoucherOrderHandler {
	return &VoucherOrderHandler{voucherOrderSvc: svc}
}

// SeckillVoucher 处理秒杀优惠券
// 资格校验在 Redis 内原子完成，被拒绝的请求立刻带原因返回；
// 成功的请求立刻返回订单号，订单落库由后台消费者异步完成
func (h *VoucherOrderHandler) SeckillVoucher(ctx *gin.Context) {
	// 解析优惠券ID
	voucherID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, result.Fail("invalid voucher id"))
		return
	}

	// 从上下文获取登录用户信息
	user, ok := middleware.GetLoginUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, result.Fail("未登录"))
		return
	}

	orderID, svcErr := h.voucherOrderSvc.Seckill(ctx.Request.Context(), voucherID, user.ID)
	if svcErr != nil {
		// 业务拒绝原因原样返回；其余为服务端错误，提示稍后重试
		switch {
		case errors.Is(svcErr, service.ErrOutOfStock),
			errors.Is(svcErr, service.ErrDuplicateOrder),
			errors.Is(svcErr, service.ErrSeckillNotStarted),
			errors.Is(svcErr, service.ErrSeckillEnded):
			ctx.JSON(http.StatusBadRequest, result.Fail(svcErr.Error()))
		default:
			_ = ctx.Error(svcErr)
			ctx.JSON(http.StatusInternalServerError, result.Fail("系统繁忙，请稍后重试"))
		}
		return
	}

	ctx.JSON(http.StatusOK, result.OkWithData(orderID))
}
