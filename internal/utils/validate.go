package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
)

var phoneRegexp = regexp.MustCompile(`^1[3-9]\d{9}$`)

// IsPhoneInvalid 校验手机号格式，不合法返回 true
func IsPhoneInvalid(phone string) bool {
	return !phoneRegexp.MatchString(phone)
}

// GenerateVerifyCode 生成6位数字验证码
func GenerateVerifyCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

const randomLetters = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomString 生成指定长度的随机字符串，用于默认昵称
func RandomString(length int) string {
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(randomLetters))))
		if err != nil {
			buf[i] = randomLetters[0]
			continue
		}
		buf[i] = randomLetters[n.Int64()]
	}
	return string(buf)
}
