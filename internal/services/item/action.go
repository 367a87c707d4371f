package item

import (
	"strings"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
)

// AdminAction действие модератора над вещью
type AdminAction int

const (
	ActionApprove AdminAction = iota + 1
	ActionReject
	ActionFeature
	ActionUnfeature
	ActionRemove
)

var actionNames = map[AdminAction]string{
	ActionApprove:   "approve",
	ActionReject:    "reject",
	ActionFeature:   "feature",
	ActionUnfeature: "unfeature",
	ActionRemove:    "remove",
}

// ParseAdminAction разбирает действие модератора
func ParseAdminAction(s string) (AdminAction, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return 0, apperr.New(apperr.InvalidInput, "неизвестное действие %q", s)
}

func (a AdminAction) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// notifiesOwner сообщает, получает ли владелец уведомление о действии
func (a AdminAction) notifiesOwner() bool {
	return a == ActionApprove || a == ActionReject || a == ActionRemove
}
