package auth

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	initdata "github.com/telegram-mini-apps/init-data-golang"
	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/config"
	"github.com/rajivgeraev/rewear-api/internal/middleware"
	"github.com/rajivgeraev/rewear-api/internal/models"
	"github.com/rajivgeraev/rewear-api/internal/repository"
	"github.com/rajivgeraev/rewear-api/internal/utils"
)

// Срок годности initData
const initDataExpiration = 24 * time.Hour

const maxEmailLen = 254

// AuthService – структура для обработки авторизации
type AuthService struct {
	cfg        *config.Config
	jwtService *utils.JWTService
	users      repository.UserRepository
	log        *zap.Logger
}

// NewAuthService – конструктор AuthService
func NewAuthService(cfg *config.Config, users repository.UserRepository, log *zap.Logger) *AuthService {
	jwtService := utils.NewJWTService(cfg.JWTSecret)
	jwtService.SetRoleLookup(func(ctx context.Context, id uuid.UUID) (string, error) {
		user, err := users.GetUser(ctx, id)
		if err != nil {
			return "", err
		}
		return user.Role, nil
	})

	return &AuthService{
		cfg:        cfg,
		jwtService: jwtService,
		users:      users,
		log:        log,
	}
}

// GetJWTService возвращает сервис токенов для остальных модулей
func (s *AuthService) GetJWTService() *utils.JWTService {
	return s.jwtService
}

// TelegramAuthHandler проверяет initData, создает или обновляет пользователя и возвращает JWT
func (s *AuthService) TelegramAuthHandler(c fiber.Ctx) error {
	var payload struct {
		InitData string `json:"init_data"`
	}

	if err := c.Bind().Body(&payload); err != nil || payload.InitData == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат запроса"})
	}

	// Проверяем initData
	if err := initdata.Validate(payload.InitData, s.cfg.TelegramBotToken, initDataExpiration); err != nil {
		s.log.Warn("⚠️ Недействительные данные Telegram", zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Недействительные данные Telegram"})
	}

	// Парсим данные
	data, err := initdata.Parse(payload.InitData)
	if err != nil || data.User.ID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Не удалось разобрать initData"})
	}

	user, err := s.users.UpsertTelegramUser(c.Context(), models.TelegramProfile{
		TelegramID:   data.User.ID,
		Username:     data.User.Username,
		FirstName:    data.User.FirstName,
		LastName:     data.User.LastName,
		PhotoURL:     data.User.PhotoURL,
		IsPremium:    data.User.IsPremium,
		LanguageCode: data.User.LanguageCode,
	})
	if err != nil {
		return err
	}

	// Генерируем JWT
	token, err := s.jwtService.GenerateToken(user.ID, user.Role)
	if err != nil {
		s.log.Error("❌ Ошибка генерации JWT", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Не удалось создать токен"})
	}

	s.log.Info("✅ Вход через Telegram",
		zap.String("user_id", user.ID.String()),
		zap.Int64("telegram_id", data.User.ID))

	return c.JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// ProfileHandler возвращает профиль текущего пользователя
func (s *AuthService) ProfileHandler(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return apperr.New(apperr.Unauthorized, "пользователь не авторизован")
	}

	user, err := s.users.GetUser(c.Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user": user})
}

// UpdateEmailHandler сохраняет адрес для почтовых уведомлений
func (s *AuthService) UpdateEmailHandler(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return apperr.New(apperr.Unauthorized, "пользователь не авторизован")
	}

	var payload struct {
		Email string `json:"email"`
	}
	if err := c.Bind().Body(&payload); err != nil {
		return apperr.New(apperr.InvalidInput, "неверный формат данных")
	}

	email := strings.ToLower(strings.TrimSpace(payload.Email))
	if email != "" && (!strings.Contains(email, "@") || utf8.RuneCountInString(email) > maxEmailLen) {
		return apperr.New(apperr.InvalidInput, "некорректный email")
	}

	user, err := s.users.UpdateEmail(c.Context(), userID, email)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "user": user})
}
