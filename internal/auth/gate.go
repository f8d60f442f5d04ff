package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminGate 管理员密码校验。只是界面上的一道门槛，不是访问控制边界。
//
// 配置值以 "$2" 开头时按 bcrypt 哈希比较，否则按旧版 base64 编码比较。
type AdminGate struct {
	hash string
}

// NewAdminGate 创建密码校验器
func NewAdminGate(hash string) *AdminGate {
	return &AdminGate{hash: strings.TrimSpace(hash)}
}

// Check 校验输入的密码，首尾空白会被忽略
func (g *AdminGate) Check(password string) bool {
	password = strings.TrimSpace(password)
	if password == "" || g.hash == "" {
		return false
	}

	if strings.HasPrefix(g.hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(g.hash), []byte(password)) == nil
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(password))
	return subtle.ConstantTimeCompare([]byte(encoded), []byte(g.hash)) == 1
}

// HashPassword 生成可写入 ADMIN_HASH 的 bcrypt 哈希
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(strings.TrimSpace(password)), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
