package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/models"
)

const swapColumns = `id, requester_id, requested_item_id, requested_owner_id, offered_item_id, offered_owner_id,
	is_points_redemption, points_offered, status, message, response_message,
	meeting_location, meeting_date, meeting_time, contact_phone, contact_email, admin_notes,
	responded_at, completed_at, cancelled_at, cancelled_by, cancellation_reason,
	created_at, updated_at`

func scanSwap(row pgx.Row) (*models.SwapRequest, error) {
	var s models.SwapRequest
	err := row.Scan(
		&s.ID, &s.RequesterID, &s.RequestedItemID, &s.RequestedOwnerID, &s.OfferedItemID, &s.OfferedOwnerID,
		&s.IsPointsRedemption, &s.PointsOffered, &s.Status, &s.Message, &s.ResponseMessage,
		&s.Meeting.Location, &s.Meeting.Date, &s.Meeting.Time, &s.Meeting.ContactPhone, &s.Meeting.ContactEmail,
		&s.AdminNotes, &s.RespondedAt, &s.CompletedAt, &s.CancelledAt, &s.CancelledBy, &s.CancellationReason,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSwap сохраняет новый запрос. Повторный активный запрос на ту же вещь
// отклоняется уникальным индексом swap_requests_outstanding_uniq.
func (s *Store) CreateSwap(ctx context.Context, swap *models.SwapRequest) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if swap.ID == uuid.Nil {
		swap.ID = uuid.New()
	}
	if swap.Status == "" {
		swap.Status = models.SwapPending
	}

	err := s.q.QueryRow(ctx, `
		INSERT INTO swap_requests (id, requester_id, requested_item_id, requested_owner_id,
			offered_item_id, offered_owner_id, is_points_redemption, points_offered, status, message,
			meeting_location, meeting_date, meeting_time, contact_phone, contact_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`, swap.ID, swap.RequesterID, swap.RequestedItemID, swap.RequestedOwnerID,
		swap.OfferedItemID, swap.OfferedOwnerID, swap.IsPointsRedemption, swap.PointsOffered,
		swap.Status, swap.Message, swap.Meeting.Location, swap.Meeting.Date, swap.Meeting.Time,
		swap.Meeting.ContactPhone, swap.Meeting.ContactEmail,
	).Scan(&swap.CreatedAt, &swap.UpdatedAt)
	if err != nil {
		if apperr.KindOf(translate(err, "")) == apperr.Conflict {
			return apperr.Wrap(apperr.Conflict, err, "у вас уже есть активный запрос на эту вещь")
		}
		return translate(err, "ошибка сохранения запроса на обмен")
	}
	return nil
}

// GetSwap получает запрос по ID
func (s *Store) GetSwap(ctx context.Context, id uuid.UUID) (*models.SwapRequest, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	swap, err := scanSwap(s.q.QueryRow(ctx, `SELECT `+swapColumns+` FROM swap_requests WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "запрос на обмен не найден")
	}
	return swap, nil
}

// GetSwapForUpdate получает запрос и блокирует строку до конца транзакции
func (s *Store) GetSwapForUpdate(ctx context.Context, id uuid.UUID) (*models.SwapRequest, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	swap, err := scanSwap(s.q.QueryRow(ctx, `SELECT `+swapColumns+` FROM swap_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, translate(err, "запрос на обмен не найден")
	}
	return swap, nil
}

// UpdateSwap сохраняет изменяемые поля запроса
func (s *Store) UpdateSwap(ctx context.Context, swap *models.SwapRequest) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.q.QueryRow(ctx, `
		UPDATE swap_requests
		SET status = $2, response_message = $3, meeting_location = $4, meeting_date = $5,
			meeting_time = $6, contact_phone = $7, contact_email = $8, admin_notes = $9,
			responded_at = $10, completed_at = $11, cancelled_at = $12, cancelled_by = $13,
			cancellation_reason = $14, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, swap.ID, swap.Status, swap.ResponseMessage, swap.Meeting.Location, swap.Meeting.Date,
		swap.Meeting.Time, swap.Meeting.ContactPhone, swap.Meeting.ContactEmail, swap.AdminNotes,
		swap.RespondedAt, swap.CompletedAt, swap.CancelledAt, swap.CancelledBy, swap.CancellationReason,
	).Scan(&swap.UpdatedAt)
	if err != nil {
		return translate(err, "запрос на обмен не найден")
	}
	return nil
}

// HasOutstandingSwap проверяет, есть ли у пользователя ожидающий или принятый запрос на вещь
func (s *Store) HasOutstandingSwap(ctx context.Context, requesterID, requestedItemID uuid.UUID) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := s.q.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM swap_requests
			WHERE requester_id = $1 AND requested_item_id = $2 AND status IN ('pending', 'accepted')
		)
	`, requesterID, requestedItemID).Scan(&exists)
	if err != nil {
		return false, translate(err, "ошибка проверки существующих запросов")
	}
	return exists, nil
}

// CancelPendingForItem отменяет все ожидающие запросы, в которых участвует вещь
func (s *Store) CancelPendingForItem(ctx context.Context, itemID, actorID uuid.UUID, reason string, at time.Time) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.q.Exec(ctx, `
		UPDATE swap_requests
		SET status = 'cancelled', cancelled_at = $3, cancelled_by = $2,
			cancellation_reason = $4, updated_at = NOW()
		WHERE status = 'pending' AND (requested_item_id = $1 OR offered_item_id = $1)
	`, itemID, actorID, at, reason)
	if err != nil {
		return 0, translate(err, "ошибка отмены запросов на обмен")
	}
	return int(tag.RowsAffected()), nil
}

func swapWhere(f models.SwapFilter) (string, []any) {
	var conds []string
	var args []any

	if f.ParticipantID != nil {
		args = append(args, *f.ParticipantID)
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(requester_id = $%d OR requested_owner_id = $%d OR offered_owner_id = $%d)", n, n, n))
	}
	if f.ItemID != nil {
		args = append(args, *f.ItemID)
		n := len(args)
		conds = append(conds, fmt.Sprintf("(requested_item_id = $%d OR offered_item_id = $%d)", n, n))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListSwaps возвращает страницу запросов, новые первыми
func (s *Store) ListSwaps(ctx context.Context, filter models.SwapFilter) ([]models.SwapRequest, int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	where, args := swapWhere(filter)

	var total int
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM swap_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, translate(err, "ошибка подсчета запросов")
	}

	query := `SELECT ` + swapColumns + ` FROM swap_requests` + where + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, translate(err, "ошибка получения запросов")
	}
	defer rows.Close()

	swaps := []models.SwapRequest{}
	for rows.Next() {
		swap, err := scanSwap(rows)
		if err != nil {
			return nil, 0, translate(err, "ошибка чтения запроса")
		}
		swaps = append(swaps, *swap)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, translate(err, "ошибка чтения запросов")
	}

	return swaps, total, nil
}

// SwapStats считает запросы по статусам
func (s *Store) SwapStats(ctx context.Context) (*models.SwapStats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.q.Query(ctx, `SELECT status, COUNT(*) FROM swap_requests GROUP BY status`)
	if err != nil {
		return nil, translate(err, "ошибка получения статистики обменов")
	}
	defer rows.Close()

	stats := &models.SwapStats{}
	for rows.Next() {
		var status models.SwapStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, translate(err, "ошибка чтения статистики")
		}
		stats.Add(status, count)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "ошибка чтения статистики")
	}
	return stats, nil
}
