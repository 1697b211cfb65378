package domain

import (
	"fmt"
	"strings"
)

// Role 是连接角色的封闭枚举。
type Role int

const (
	RoleUnknown Role = iota
	RolePresenter
	RoleAudience
)

// ParseRole 将凭证中的 role 声明映射为 Role。
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "presenter":
		return RolePresenter, nil
	case "audience":
		return RoleAudience, nil
	}
	return RoleUnknown, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	switch r {
	case RolePresenter:
		return "presenter"
	case RoleAudience:
		return "audience"
	default:
		return "unknown"
	}
}

// Principal 是从已签名凭证中提取的连接身份，连接存续期间不可变。
type Principal struct {
	Role      Role
	RoomID    string
	SubjectID string
	TokenID   string // jti
}

func (p Principal) IsPresenter() bool { return p.Role == RolePresenter }

func (p Principal) IsAudience() bool { return p.Role == RoleAudience }
