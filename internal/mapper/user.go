package mapper

import (
	"localdeal-backend/internal/dto"
	"localdeal-backend/internal/model"
)

// ToUserDTO 将用户实体裁剪为登录态 DTO
func ToUserDTO(user *model.User) dto.UserDTO {
	if user == nil {
		return dto.UserDTO{}
	}
	return dto.UserDTO{
		ID:       user.ID,
		NickName: user.NickName,
		Icon:     user.Icon,
	}
}
