package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"localdeal-backend/internal/dto"
	"localdeal-backend/internal/dto/result"
	"localdeal-backend/internal/middleware"
	"localdeal-backend/internal/service"
)

type UserHandler struct {
	service *service.UserService
}

func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{service: svc}
}

// SendCode 发送手机验证码
func (h *UserHandler) SendCode(ctx *gin.Context) {
	phone := ctx.Query("phone")
	if phone == "" {
		var payload struct {
			Phone string `json:"phone"`
		}
		if err := ctx.ShouldBindJSON(&payload); err == nil {
			phone = payload.Phone
		}
	}
	if err := h.service.SendCode(ctx.Request.Context(), phone); err != nil {
		ctx.JSON(http.StatusBadRequest, result.Fail(err.Error()))
		return
	}
	ctx.JSON(http.StatusOK, result.Ok())
}

// Login 手机验证码登录，返回登录 token
func (h *UserHandler) Login(ctx *gin.Context) {
	var form dto.LoginForm
	if err := ctx.ShouldBindJSON(&form); err != nil {
		ctx.JSON(http.StatusBadRequest, result.Fail("invalid payload"))
		return
	}
	token, err := h.service.Login(ctx.Request.Context(), form)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, result.Fail(err.Error()))
		return
	}
	ctx.JSON(http.StatusOK, result.OkWithData(token))
}

// Logout 退出登录，删除 token
func (h *UserHandler) Logout(ctx *gin.Context) {
	token := ctx.GetHeader("Authorization")
	if err := h.service.Logout(ctx.Request.Context(), token); err != nil {
		ctx.JSON(http.StatusInternalServerError, result.Fail(err.Error()))
		return
	}
	ctx.JSON(http.StatusOK, result.Ok())
}

// Me 返回当前登录用户信息
func (h *UserHandler) Me(ctx *gin.Context) {
	user, ok := middleware.GetLoginUser(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, result.Fail("未登录"))
		return
	}
	ctx.JSON(http.StatusOK, result.OkWithData(user))
}
