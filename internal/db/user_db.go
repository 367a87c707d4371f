package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/models"
)

const userColumns = `id, username, first_name, last_name, email, avatar_url,
	role, points, created_at, updated_at, last_login_at`

// scanUser считывает пользователя, преобразуя nullable поля
func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	var username, firstName, lastName, email, avatarURL pgtype.Text

	err := row.Scan(
		&user.ID, &username, &firstName, &lastName, &email, &avatarURL,
		&user.Role, &user.Points, &user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}

	user.Username = username.String
	user.FirstName = firstName.String
	user.LastName = lastName.String
	user.Email = email.String
	user.AvatarURL = avatarURL.String

	return &user, nil
}

// GetUser получает пользователя по ID
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := scanUser(s.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "пользователь не найден")
	}
	return user, nil
}

// AdjustPoints изменяет баланс одним условным UPDATE, поэтому конкурентные списания
// не могут увести баланс в минус.
func (s *Store) AdjustPoints(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var balance int
	err := s.q.QueryRow(ctx, `
		UPDATE users
		SET points = points + $2, updated_at = NOW()
		WHERE id = $1 AND points + $2 >= 0
		RETURNING points
	`, id, delta).Scan(&balance)

	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, translate(err, "ошибка изменения баланса")
	}

	// Строка не обновлена: либо пользователя нет, либо не хватает баллов
	var exists bool
	if err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return 0, translate(err, "ошибка проверки пользователя")
	}
	if !exists {
		return 0, apperr.New(apperr.NotFound, "пользователь не найден")
	}
	return 0, apperr.New(apperr.InsufficientFunds, "недостаточно баллов")
}

// UpdateEmail сохраняет контактный адрес для почтовых уведомлений
func (s *Store) UpdateEmail(ctx context.Context, id uuid.UUID, email string) (*models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := scanUser(s.q.QueryRow(ctx, `
		UPDATE users SET email = NULLIF($2, ''), updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, email))
	if err != nil {
		return nil, translate(err, "пользователь не найден")
	}
	return user, nil
}

// UpsertTelegramUser создает нового пользователя через Telegram или обновляет существующего
func (s *Store) UpsertTelegramUser(ctx context.Context, p models.TelegramProfile) (*models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var user *models.User
	err := s.atomic(ctx, func(q querier) error {
		// Проверяем, существует ли пользователь Telegram
		var telegramUserID, userID uuid.UUID
		err := q.QueryRow(ctx, `
			SELECT id, user_id FROM telegram_users WHERE telegram_id = $1 FOR UPDATE
		`, p.TelegramID).Scan(&telegramUserID, &userID)

		switch {
		case errors.Is(err, pgx.ErrNoRows):
			// Создаем запись в users
			err = q.QueryRow(ctx, `
				INSERT INTO users (first_name, last_name, username, avatar_url, last_login_at)
				VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
				RETURNING id
			`, p.FirstName, p.LastName, p.Username, p.PhotoURL).Scan(&userID)
			if err != nil {
				return translate(err, "ошибка при создании пользователя")
			}

			_, err = q.Exec(ctx, `
				INSERT INTO telegram_users (user_id, telegram_id, username, first_name, last_name, photo_url, is_premium, language_code)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, userID, p.TelegramID, p.Username, p.FirstName, p.LastName, p.PhotoURL, p.IsPremium, p.LanguageCode)
			if err != nil {
				return translate(err, "ошибка при создании Telegram пользователя")
			}

		case err != nil:
			return translate(err, "ошибка при проверке существования пользователя Telegram")

		default:
			_, err = q.Exec(ctx, `
				UPDATE users
				SET username = $2, first_name = $3, last_name = $4, avatar_url = $5,
					last_login_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
				WHERE id = $1
			`, userID, p.Username, p.FirstName, p.LastName, p.PhotoURL)
			if err != nil {
				return translate(err, "ошибка при обновлении пользователя")
			}

			_, err = q.Exec(ctx, `
				UPDATE telegram_users
				SET username = $2, first_name = $3, last_name = $4, photo_url = $5,
					is_premium = $6, language_code = $7, updated_at = CURRENT_TIMESTAMP
				WHERE id = $1
			`, telegramUserID, p.Username, p.FirstName, p.LastName, p.PhotoURL, p.IsPremium, p.LanguageCode)
			if err != nil {
				return translate(err, "ошибка при обновлении Telegram пользователя")
			}
		}

		user, err = scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
		if err != nil {
			return translate(err, "ошибка при получении пользователя")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
