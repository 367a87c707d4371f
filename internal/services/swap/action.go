package swap

import (
	"strings"

	"github.com/google/uuid"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/models"
)

// Action ответ владельца на запрос обмена
type Action int

const (
	ActionAccept Action = iota + 1
	ActionReject
)

// ParseAction разбирает действие из запроса. Неизвестное значение дает apperr.InvalidInput.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accept":
		return ActionAccept, nil
	case "reject":
		return ActionReject, nil
	}
	return 0, apperr.New(apperr.InvalidInput, "неизвестное действие %q, ожидается accept или reject", s)
}

func (a Action) String() string {
	switch a {
	case ActionAccept:
		return "accept"
	case ActionReject:
		return "reject"
	}
	return "unknown"
}

// Actor пользователь, выполняющий операцию
type Actor struct {
	ID    uuid.UUID
	Admin bool
}

// NewActor строит участника операции по ID и роли из токена
func NewActor(id uuid.UUID, role string) Actor {
	return Actor{ID: id, Admin: role == models.RoleAdmin}
}

func (a Actor) canRespond(s *models.SwapRequest) bool {
	return a.Admin || s.IsItemOwner(a.ID)
}

func (a Actor) canAccess(s *models.SwapRequest) bool {
	return a.Admin || s.IsParticipant(a.ID)
}
