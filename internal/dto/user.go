package dto

// UserDTO 登录态中暴露给前端的用户信息
type UserDTO struct {
	ID       int64  `json:"id"`
	NickName string `json:"nickName"`
	Icon     string `json:"icon"`
}

// LoginForm 手机验证码登录表单
type LoginForm struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code" binding:"required"`
}
