package gateway

import (
	"regexp"
	"strings"

	"live-session/internal/domain"
)

// 目的地中携带房间 id 的几种路径形态
var roomPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^/(?:topic|queue)/room\.(?P<rid>[A-Za-z0-9\-]+)`),
	regexp.MustCompile(`^/.*/rooms/(?P<rid>[A-Za-z0-9\-]+)(?:/.*)?$`),
	regexp.MustCompile(`^/(?:topic|app)/p/(?P<rid>[A-Za-z0-9\-]+)(?:/.*)?$`),
	regexp.MustCompile(`^/(?:topic|app)/presentation/(?P<rid>[A-Za-z0-9\-]+)(?:/.*)?$`),
}

// RoomFromDestination 从目的地中提取房间 id。
func RoomFromDestination(destination string) (string, bool) {
	for _, re := range roomPatterns {
		m := re.FindStringSubmatch(destination)
		if m == nil {
			continue
		}
		if rid := m[re.SubexpIndex("rid")]; rid != "" {
			return rid, true
		}
	}
	return "", false
}

type roleRule struct {
	match func(destination string) bool
	role  domain.Role
}

func prefix(p string) func(string) bool {
	return func(d string) bool { return strings.HasPrefix(d, p) }
}

func pattern(expr string) func(string) bool {
	re := regexp.MustCompile(expr)
	return re.MatchString
}

// roleRules 按顺序匹配，第一条命中的规则决定所需角色。
var roleRules = []roleRule{
	{prefix("/app/presenter/"), domain.RolePresenter},
	{prefix("/app/audience/"), domain.RoleAudience},
	{pattern(`^/topic/p/[A-Za-z0-9\-]+/presenter$`), domain.RolePresenter},
	{pattern(`^/app/presentation/[A-Za-z0-9\-]+/pageChange/presenter$`), domain.RolePresenter},
	{pattern(`^/app/presentation/[A-Za-z0-9\-]+/option/unlock$`), domain.RolePresenter},
	{pattern(`^/app/presentation/[A-Za-z0-9\-]+/focusOn$`), domain.RolePresenter},
	{pattern(`^/app/presentation/[A-Za-z0-9\-]+/pageChange/audience$`), domain.RoleAudience},
	{pattern(`^/app/presentation/[A-Za-z0-9\-]+/reaction$`), domain.RoleAudience},
	{pattern(`^/app/presentation/[A-Za-z0-9\-]+/question$`), domain.RoleAudience},
}

// RequiredRole 返回目的地要求的角色；不受限时返回 RoleUnknown。
func RequiredRole(destination string) domain.Role {
	for _, rule := range roleRules {
		if rule.match(destination) {
			return rule.role
		}
	}
	return domain.RoleUnknown
}
