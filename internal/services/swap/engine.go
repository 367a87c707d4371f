// Package swap управляет жизненным циклом запросов на обмен вещами и баллами:
// создание, ответ владельца, отмена и завершение с начислением вознаграждения.
package swap

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/metrics"
	"github.com/rajivgeraev/rewear-api/internal/models"
	"github.com/rajivgeraev/rewear-api/internal/notify"
	"github.com/rajivgeraev/rewear-api/internal/repository"
)

// DefaultCompletionReward баллы каждому участнику за завершенный обмен
const DefaultCompletionReward = 10

// Engine выполняет операции над запросами на обмен. Каждая операция идет в одной
// транзакции хранилища; уведомления отправляются только после фиксации.
type Engine struct {
	uow     repository.UnitOfWork
	events  notify.Emitter
	log     *zap.Logger
	metrics *metrics.Metrics
	reward  int
	now     func() time.Time

	attempts int
	backoff  time.Duration
}

// Option настраивает Engine
type Option func(*Engine)

// WithReward задает вознаграждение за завершение
func WithReward(points int) Option {
	return func(e *Engine) { e.reward = points }
}

// WithMetrics подключает метрики
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRetry задает число попыток и паузу при недоступности хранилища
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(e *Engine) {
		if attempts > 0 {
			e.attempts = attempts
		}
		e.backoff = backoff
	}
}

// NewEngine создает Engine поверх единицы работы
func NewEngine(uow repository.UnitOfWork, events notify.Emitter, log *zap.Logger, opts ...Option) *Engine {
	if events == nil {
		events = notify.Nop{}
	}
	e := &Engine{
		uow:      uow,
		events:   events,
		log:      log,
		reward:   DefaultCompletionReward,
		now:      time.Now,
		attempts: 3,
		backoff:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateInput параметры нового запроса
type CreateInput struct {
	RequesterID        uuid.UUID
	RequestedItemID    uuid.UUID
	OfferedItemID      *uuid.UUID
	IsPointsRedemption bool
	PointsOffered      int
	Message            string
	Meeting            models.Meeting
}

// Create создает запрос на обмен в статусе pending.
// Проверки идут по порядку: существование вещей, доступность, запрет на свою вещь,
// принадлежность предложенной вещи, баллы, отсутствие активного дубля.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*models.SwapRequest, error) {
	if err := in.normalize(); err != nil {
		return nil, e.fail("create", err)
	}

	var swap *models.SwapRequest
	err := e.retry(ctx, "create", func() error {
		return e.uow.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			var err error
			swap, err = e.create(ctx, repos, in)
			return err
		})
	})
	if err != nil {
		return nil, e.fail("create", err)
	}

	e.log.Info("✅ Создан запрос на обмен",
		zap.String("swap_id", swap.ID.String()),
		zap.String("requester_id", swap.RequesterID.String()),
		zap.Bool("points", swap.IsPointsRedemption))
	e.metrics.SwapTransition(string(models.SwapPending))

	e.emit(notify.EventSwapCreated, swap, swap.RequesterID, swap.RequestedOwnerID, swap.Message, 0)
	return swap, nil
}

// create проверяет предусловия и сохраняет запрос. Вещи читаются под разделяемой
// блокировкой: параллельное принятие другого запроса или удаление вещи
// дожидается фиксации, а чтение после их фиксации видит новое состояние.
func (e *Engine) create(ctx context.Context, repos repository.Repositories, in CreateInput) (*models.SwapRequest, error) {
	requested, err := repos.GetItemForShare(ctx, in.RequestedItemID)
	if err != nil {
		return nil, err
	}

	var offered *models.Item
	if in.OfferedItemID != nil {
		if offered, err = repos.GetItemForShare(ctx, *in.OfferedItemID); err != nil {
			return nil, err
		}
	}

	if !requested.IsAvailable || (offered != nil && !offered.IsAvailable) {
		return nil, apperr.New(apperr.InvalidState, "вещи недоступны для обмена")
	}

	if requested.UserID == in.RequesterID {
		return nil, apperr.New(apperr.InvalidOperation, "нельзя запросить собственную вещь")
	}

	if offered != nil {
		if offered.UserID != in.RequesterID {
			return nil, apperr.New(apperr.Forbidden, "можно предлагать только свои вещи")
		}
		if offered.UserID == requested.UserID {
			return nil, apperr.New(apperr.InvalidOperation, "вещи принадлежат одному владельцу")
		}
	}

	if in.IsPointsRedemption {
		if in.PointsOffered <= 0 {
			return nil, apperr.New(apperr.InvalidInput, "количество баллов должно быть положительным")
		}
		requester, err := repos.GetUser(ctx, in.RequesterID)
		if err != nil {
			return nil, err
		}
		if requester.Points < in.PointsOffered {
			return nil, apperr.New(apperr.InsufficientFunds, "недостаточно баллов: есть %d, нужно %d", requester.Points, in.PointsOffered)
		}
	}

	exists, err := repos.HasOutstandingSwap(ctx, in.RequesterID, in.RequestedItemID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.New(apperr.Conflict, "у вас уже есть активный запрос на эту вещь")
	}

	swap := &models.SwapRequest{
		ID:                 uuid.New(),
		RequesterID:        in.RequesterID,
		RequestedItemID:    requested.ID,
		RequestedOwnerID:   requested.UserID,
		IsPointsRedemption: in.IsPointsRedemption,
		PointsOffered:      in.PointsOffered,
		Status:             models.SwapPending,
		Message:            in.Message,
		Meeting:            in.Meeting,
	}
	if offered != nil {
		offeredID, offeredOwner := offered.ID, offered.UserID
		swap.OfferedItemID = &offeredID
		swap.OfferedOwnerID = &offeredOwner
	}
	if err := repos.CreateSwap(ctx, swap); err != nil {
		return nil, err
	}
	return swap, nil
}

// Respond принимает или отклоняет ожидающий запрос.
// При принятии обмена на баллы баллы списываются у инициатора и зачисляются владельцу
// запрошенной вещи, а обе вещи становятся недоступны, все в одной транзакции.
func (e *Engine) Respond(ctx context.Context, swapID uuid.UUID, actor Actor, action Action, responseMessage string) (*models.SwapRequest, error) {
	if action != ActionAccept && action != ActionReject {
		return nil, e.fail("respond", apperr.New(apperr.InvalidInput, "неизвестное действие"))
	}
	responseMessage, err := text(responseMessage, maxMessageLen, "response_message")
	if err != nil {
		return nil, e.fail("respond", err)
	}

	var swap *models.SwapRequest
	err = e.retry(ctx, "respond", func() error {
		return e.uow.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			s, err := e.lockInStatus(ctx, repos, swapID, models.SwapPending)
			if err != nil {
				return err
			}
			if !actor.canRespond(s) {
				return apperr.New(apperr.Forbidden, "ответить на запрос может только владелец вещи")
			}

			now := e.now().UTC()
			s.ResponseMessage = responseMessage
			s.RespondedAt = &now

			switch action {
			case ActionAccept:
				if err := accept(ctx, repos, s); err != nil {
					return err
				}
				s.Status = models.SwapAccepted
			case ActionReject:
				s.Status = models.SwapRejected
			default:
				return apperr.New(apperr.InvalidInput, "неизвестное действие")
			}

			if err := repos.UpdateSwap(ctx, s); err != nil {
				return err
			}
			swap = s
			return nil
		})
	})
	if err != nil {
		return nil, e.fail("respond", err)
	}

	e.log.Info("✅ Ответ на запрос обмена",
		zap.String("swap_id", swap.ID.String()),
		zap.String("action", action.String()),
		zap.String("actor_id", actor.ID.String()))
	e.metrics.SwapTransition(string(swap.Status))

	e.emit(notify.EventSwapResponded, swap, actor.ID, swap.RequesterID, swap.ResponseMessage, 0)
	if swap.Status == models.SwapAccepted && swap.IsPointsRedemption {
		e.metrics.PointsTransferred(swap.PointsOffered)
		e.emit(notify.EventPointsEarned, swap, swap.RequesterID, swap.RequestedOwnerID, "", swap.PointsOffered)
	}
	return swap, nil
}

// accept применяет побочные эффекты принятия: перевод баллов и блокировку вещей
func accept(ctx context.Context, repos repository.Repositories, s *models.SwapRequest) error {
	ids := s.ItemIDs()
	for _, id := range ids {
		item, err := repos.GetItemForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !item.IsAvailable {
			return apperr.New(apperr.InvalidState, "вещь %s уже недоступна для обмена", id)
		}
	}

	if s.IsPointsRedemption {
		// Баланс проверяется заново на момент принятия
		if _, err := repos.AdjustPoints(ctx, s.RequesterID, -s.PointsOffered); err != nil {
			return err
		}
		if _, err := repos.AdjustPoints(ctx, s.RequestedOwnerID, s.PointsOffered); err != nil {
			return err
		}
	}

	return repos.SetItemsAvailability(ctx, false, ids...)
}

// Cancel отменяет ожидающий запрос. Вещи и баллы не затрагиваются.
func (e *Engine) Cancel(ctx context.Context, swapID uuid.UUID, actor Actor, reason string) (*models.SwapRequest, error) {
	reason, err := text(reason, maxReasonLen, "reason")
	if err != nil {
		return nil, e.fail("cancel", err)
	}

	var swap *models.SwapRequest
	err = e.retry(ctx, "cancel", func() error {
		return e.uow.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			s, err := e.lockInStatus(ctx, repos, swapID, models.SwapPending)
			if err != nil {
				return err
			}
			if !actor.canAccess(s) {
				return apperr.New(apperr.Forbidden, "нет прав на отмену этого запроса")
			}

			now := e.now().UTC()
			by := actor.ID
			s.Status = models.SwapCancelled
			s.CancelledAt = &now
			s.CancelledBy = &by
			s.CancellationReason = reason

			if err := repos.UpdateSwap(ctx, s); err != nil {
				return err
			}
			swap = s
			return nil
		})
	})
	if err != nil {
		return nil, e.fail("cancel", err)
	}

	e.log.Info("Запрос на обмен отменен",
		zap.String("swap_id", swap.ID.String()),
		zap.String("actor_id", actor.ID.String()))
	e.metrics.SwapTransition(string(models.SwapCancelled))

	for _, party := range swap.Parties() {
		if party != actor.ID {
			e.emit(notify.EventSwapCancelled, swap, actor.ID, party, swap.CancellationReason, 0)
		}
	}
	return swap, nil
}

// Complete завершает принятый обмен и начисляет вознаграждение каждому участнику один раз.
// Смена статуса и все начисления фиксируются вместе; при недоступности хранилища
// операция повторяется целиком.
func (e *Engine) Complete(ctx context.Context, swapID uuid.UUID, actor Actor) (*models.SwapRequest, error) {
	var swap *models.SwapRequest
	err := e.retry(ctx, "complete", func() error {
		return e.uow.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			s, err := e.lockInStatus(ctx, repos, swapID, models.SwapAccepted)
			if err != nil {
				return err
			}
			if !actor.canAccess(s) {
				return apperr.New(apperr.Forbidden, "нет прав на завершение этого обмена")
			}

			if e.reward > 0 {
				for _, party := range s.Parties() {
					if _, err := repos.AdjustPoints(ctx, party, e.reward); err != nil {
						return err
					}
				}
			}

			now := e.now().UTC()
			s.Status = models.SwapCompleted
			s.CompletedAt = &now

			if err := repos.UpdateSwap(ctx, s); err != nil {
				return err
			}
			swap = s
			return nil
		})
	})
	if err != nil {
		return nil, e.fail("complete", err)
	}

	parties := swap.Parties()
	e.log.Info("✅ Обмен завершен",
		zap.String("swap_id", swap.ID.String()),
		zap.Int("parties", len(parties)),
		zap.Int("reward", e.reward))
	e.metrics.SwapTransition(string(models.SwapCompleted))
	e.metrics.PointsCredited(e.reward * len(parties))

	for _, party := range parties {
		e.emit(notify.EventSwapCompleted, swap, actor.ID, party, "", 0)
		if e.reward > 0 {
			e.emit(notify.EventPointsEarned, swap, actor.ID, party, "", e.reward)
		}
	}
	return swap, nil
}

// Annotate сохраняет заметку администратора
func (e *Engine) Annotate(ctx context.Context, swapID uuid.UUID, actor Actor, notes string) (*models.SwapRequest, error) {
	if !actor.Admin {
		return nil, e.fail("annotate", apperr.New(apperr.Forbidden, "доступно только администратору"))
	}
	notes, err := text(notes, maxAdminNotesLen, "admin_notes")
	if err != nil {
		return nil, e.fail("annotate", err)
	}

	var swap *models.SwapRequest
	err = e.uow.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		s, err := repos.GetSwapForUpdate(ctx, swapID)
		if err != nil {
			return err
		}
		s.AdminNotes = notes
		if err := repos.UpdateSwap(ctx, s); err != nil {
			return err
		}
		swap = s
		return nil
	})
	if err != nil {
		return nil, e.fail("annotate", err)
	}
	return swap, nil
}

// lockInStatus блокирует запрос и проверяет его статус
func (e *Engine) lockInStatus(ctx context.Context, repos repository.Repositories, id uuid.UUID, want models.SwapStatus) (*models.SwapRequest, error) {
	s, err := repos.GetSwapForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != want {
		return nil, apperr.New(apperr.InvalidState, "операция недоступна для запроса в статусе %s", s.Status)
	}
	return s, nil
}

// retry повторяет fn, пока хранилище недоступно. Транзакция откатывается целиком,
// поэтому повтор не приводит к двойным начислениям.
func (e *Engine) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		if err = fn(); err == nil || apperr.KindOf(err) != apperr.Unavailable {
			return err
		}
		if attempt == e.attempts {
			break
		}

		e.log.Warn("⚠️ Хранилище недоступно, повторяем операцию",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return apperr.Wrap(apperr.Unavailable, ctx.Err(), "операция прервана")
		case <-time.After(e.backoff * time.Duration(attempt)):
		}
	}
	return err
}

func (e *Engine) fail(op string, err error) error {
	kind := apperr.KindOf(err)
	e.metrics.SwapError(op, kind.String())
	if kind == apperr.Unavailable || kind == apperr.Internal {
		e.log.Error("❌ Ошибка операции обмена", zap.String("operation", op), zap.Error(err))
	}
	return err
}

func (e *Engine) emit(t notify.EventType, s *models.SwapRequest, actorID, recipientID uuid.UUID, message string, points int) {
	swapID, itemID := s.ID, s.RequestedItemID
	e.events.Emit(notify.Event{
		Type:        t,
		RecipientID: recipientID,
		ActorID:     actorID,
		SwapID:      &swapID,
		ItemID:      &itemID,
		Status:      string(s.Status),
		Points:      points,
		Message:     message,
		OccurredAt:  e.now().UTC(),
	})
}
