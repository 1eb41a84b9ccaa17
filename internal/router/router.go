package router

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"localdeal-backend/internal/handler"
	"localdeal-backend/internal/middleware"
	"localdeal-backend/internal/service"
	"localdeal-backend/internal/utils"
)

// RegisterRoutes 统一注册所有模块的路由
func RegisterRoutes(engine *gin.Engine, services *service.Registry, rdb *redis.Client, sf *utils.Snowflake) {
	engine.Use(middleware.CORSMiddleware())
	engine.Use(middleware.RequestID(sf))
	engine.Use(middleware.LoginMiddleware(rdb))

	userHandler := handler.NewUserHandler(services.User)
	voucherHandler := handler.NewVoucherHandler(services.Voucher)
	voucherOrderHandler := handler.NewVoucherOrderHandler(services.VoucherOrder)

	userGroup := engine.Group("/user")
	userGroup.POST("/code", userHandler.SendCode)
	userGroup.POST("/login", userHandler.Login)
	userGroup.POST("/logout", userHandler.Logout)
	userGroup.GET("/me", userHandler.Me)

	voucherGroup := engine.Group("/voucher")
	voucherGroup.POST("", voucherHandler.AddVoucher)
	voucherGroup.POST("/seckill", voucherHandler.AddSeckillVoucher)
	voucherGroup.GET("/list/:shopId", voucherHandler.QueryVoucherOfShop)

	voucherOrderGroup := engine.Group("/voucher-order")
	voucherOrderGroup.POST("/seckill/:id", voucherOrderHandler.SeckillVoucher)
}
