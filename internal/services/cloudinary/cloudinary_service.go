package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/config"
	"github.com/rajivgeraev/rewear-api/internal/utils"
)

// CloudinaryService предоставляет методы для работы с Cloudinary
type CloudinaryService struct {
	cfg        config.CloudinaryConfig
	client     *cld.Cloudinary
	jwtService *utils.JWTService
	log        *zap.Logger
	now        func() time.Time
}

// NewCloudinaryService создает новый экземпляр CloudinaryService.
// Без учетных данных сервис работает, но удаление изображений пропускается.
func NewCloudinaryService(cfg config.CloudinaryConfig, jwtService *utils.JWTService, log *zap.Logger) (*CloudinaryService, error) {
	s := &CloudinaryService{
		cfg:        cfg,
		jwtService: jwtService,
		log:        log,
		now:        time.Now,
	}

	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		log.Warn("⚠️ Cloudinary не настроен, изображения не будут удаляться")
		return s, nil
	}

	client, err := cld.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации Cloudinary: %w", err)
	}
	s.client = client
	return s, nil
}

// UploadParams подписывает параметры прямой загрузки из клиента
func (s *CloudinaryService) UploadParams(itemID string) (fiber.Map, error) {
	timestamp := strconv.FormatInt(s.now().Unix(), 10)
	folder := s.cfg.UploadFolder + "/" + itemID

	params := url.Values{}
	params.Set("timestamp", timestamp)
	params.Set("folder", folder)
	if s.cfg.UploadPreset != "" {
		params.Set("upload_preset", s.cfg.UploadPreset)
	}

	signature, err := api.SignParameters(params, s.cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("ошибка подписи параметров загрузки: %w", err)
	}

	return fiber.Map{
		"timestamp":     timestamp,
		"signature":     signature,
		"api_key":       s.cfg.APIKey,
		"cloud_name":    s.cfg.CloudName,
		"folder":        folder,
		"upload_preset": s.cfg.UploadPreset,
		"item_id":       itemID,
	}, nil
}

// GenerateUploadParams создаёт параметры для загрузки изображений
func (s *CloudinaryService) GenerateUploadParams(c fiber.Ctx) error {
	// Генерируем ID для вещи, если не передан
	itemID := c.Query("item_id")
	if itemID == "" {
		itemID = uuid.New().String()
	} else if _, err := uuid.Parse(itemID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат item_id"})
	}

	params, err := s.UploadParams(itemID)
	if err != nil {
		s.log.Error("❌ Ошибка подготовки загрузки", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Не удалось подготовить загрузку"})
	}
	return c.JSON(params)
}

// DeleteImages удаляет изображения из Cloudinary. Ошибки по отдельным
// изображениям собираются, удаление остальных продолжается.
func (s *CloudinaryService) DeleteImages(ctx context.Context, publicIDs []string) error {
	if len(publicIDs) == 0 {
		return nil
	}
	if s.client == nil {
		s.log.Warn("⚠️ Cloudinary не настроен, пропускаем удаление", zap.Strings("public_ids", publicIDs))
		return nil
	}

	var errs []error
	for _, id := range publicIDs {
		res, err := s.client.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: id})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		if res.Error.Message != "" {
			errs = append(errs, fmt.Errorf("%s: %s", id, res.Error.Message))
			continue
		}
		s.log.Debug("Изображение удалено", zap.String("public_id", id), zap.String("result", res.Result))
	}
	return errors.Join(errs...)
}
