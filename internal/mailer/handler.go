package mailer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/notify"
	"github.com/rajivgeraev/rewear-api/internal/repository"
)

// Handler отправляет письмо получателю события. Реализует notify.Notifier.
type Handler struct {
	users  repository.UserRepository
	items  repository.ItemRepository
	sender Sender
	log    *zap.Logger
}

var _ notify.Notifier = (*Handler)(nil)

// NewHandler создает обработчик событий
func NewHandler(users repository.UserRepository, items repository.ItemRepository, sender Sender, log *zap.Logger) *Handler {
	return &Handler{users: users, items: items, sender: sender, log: log}
}

// Notify разрешает адрес получателя и отправляет письмо.
// Получатель без email пропускается без ошибки.
func (h *Handler) Notify(ctx context.Context, event notify.Event) error {
	user, err := h.users.GetUser(ctx, event.RecipientID)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			h.log.Warn("⚠️ Получатель уведомления не найден", zap.String("user_id", event.RecipientID.String()))
			return nil
		}
		return err
	}
	if user.Email == "" {
		h.log.Debug("У получателя нет email, письмо не отправляется",
			zap.String("user_id", user.ID.String()),
			zap.String("event", string(event.Type)))
		return nil
	}

	view := View{
		Name:    strings.TrimSpace(user.FirstName),
		Status:  event.Status,
		Points:  event.Points,
		Message: event.Message,
	}
	if view.Name == "" {
		view.Name = user.Username
	}
	if event.ItemID != nil && h.items != nil {
		// Вещь могла быть удалена, тогда письмо уходит без названия
		if item, err := h.items.GetItem(ctx, *event.ItemID); err == nil {
			view.ItemTitle = item.Title
		}
	}

	msg, err := Render(event.Type, view)
	if err != nil {
		return err
	}
	return h.sender.Send(ctx, []string{user.Email}, msg.Subject, msg.HTML, msg.Text)
}
