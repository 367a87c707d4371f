package db

import (
	"context"

	"github.com/google/uuid"
)

// ToggleFavorite ставит или снимает отметку «нравится» и возвращает новое число отметок
func (s *Store) ToggleFavorite(ctx context.Context, userID, itemID uuid.UUID) (bool, int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var liked bool
	var count int
	err := s.atomic(ctx, func(q querier) error {
		// Блокируем вещь, чтобы параллельные переключения не гонялись за счетчиком
		var exists bool
		if err := q.QueryRow(ctx, `SELECT TRUE FROM items WHERE id = $1 FOR UPDATE`, itemID).Scan(&exists); err != nil {
			return translate(err, "вещь не найдена")
		}

		tag, err := q.Exec(ctx, `DELETE FROM item_likes WHERE user_id = $1 AND item_id = $2`, userID, itemID)
		if err != nil {
			return translate(err, "ошибка удаления отметки")
		}

		if tag.RowsAffected() == 0 {
			if _, err := q.Exec(ctx, `INSERT INTO item_likes (user_id, item_id) VALUES ($1, $2)`, userID, itemID); err != nil {
				return translate(err, "ошибка добавления отметки")
			}
			liked = true
		}

		if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM item_likes WHERE item_id = $1`, itemID).Scan(&count); err != nil {
			return translate(err, "ошибка подсчета отметок")
		}
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return liked, count, nil
}

// IsFavorite проверяет, отмечена ли вещь пользователем
func (s *Store) IsFavorite(ctx context.Context, userID, itemID uuid.UUID) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := s.q.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM item_likes WHERE user_id = $1 AND item_id = $2)
	`, userID, itemID).Scan(&exists)
	if err != nil {
		return false, translate(err, "ошибка проверки отметки")
	}
	return exists, nil
}
