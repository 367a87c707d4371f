package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/cache"
	"github.com/rajivgeraev/rewear-api/internal/config"
	"github.com/rajivgeraev/rewear-api/internal/db"
	"github.com/rajivgeraev/rewear-api/internal/logger"
	"github.com/rajivgeraev/rewear-api/internal/metrics"
	"github.com/rajivgeraev/rewear-api/internal/middleware"
	"github.com/rajivgeraev/rewear-api/internal/notify"
	"github.com/rajivgeraev/rewear-api/internal/services/auth"
	"github.com/rajivgeraev/rewear-api/internal/services/cloudinary"
	"github.com/rajivgeraev/rewear-api/internal/services/favorite"
	"github.com/rajivgeraev/rewear-api/internal/services/item"
	"github.com/rajivgeraev/rewear-api/internal/services/swap"
	"github.com/rajivgeraev/rewear-api/internal/websocket"
)

const (
	notifyTimeout   = 5 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	// Загружаем конфигурацию
	cfg := config.LoadConfig()

	log := logger.New(cfg.LoggerConfig)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Инициализируем хранилище
	store, closeStore, err := db.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("❌ Ошибка при инициализации хранилища", zap.Error(err))
	}
	defer closeStore()

	m := metrics.New("rewear")

	// Кэш объявлений необязателен
	var itemCache cache.ItemCache = cache.Noop{}
	if cfg.RedisConfig.Addr != "" {
		client, err := cache.NewClient(ctx, cfg.RedisConfig)
		if err != nil {
			log.Warn("⚠️ Redis недоступен, кэш объявлений отключен", zap.Error(err))
		} else {
			defer client.Close()
			itemCache = cache.NewRedisItemCache(client, cfg.RedisConfig.ItemTTL)
			log.Info("✅ Кэш объявлений подключен", zap.String("addr", cfg.RedisConfig.Addr))
		}
	}

	// Каналы доставки событий: websocket всегда, NATS если настроен
	hub := websocket.NewManager(log)
	sinks := []notify.Sink{{Name: "websocket", Notifier: hub}}
	if cfg.NATSConfig.URL != "" {
		nc, err := notify.Connect(cfg.NATSConfig, "rewear-api", log)
		if err != nil {
			log.Warn("⚠️ NATS недоступен, события не будут отправляться в очередь", zap.Error(err))
		} else {
			defer nc.Drain()
			publisher, err := notify.NewPublisher(nc, cfg.NATSConfig.SubjectPrefix)
			if err != nil {
				log.Fatal("❌ Ошибка создания публикатора NATS", zap.Error(err))
			}
			sinks = append(sinks, notify.Sink{Name: "nats", Notifier: publisher})
		}
	}

	dispatcher := notify.NewDispatcher(log, m, cfg.SwapConfig.NotifyBuffer, notifyTimeout, sinks...)
	dispatcher.Start()

	// Создаём сервисы
	authService := auth.NewAuthService(cfg, store, log)
	jwtService := authService.GetJWTService()

	cloudinaryService, err := cloudinary.NewCloudinaryService(cfg.CloudinaryConfig, jwtService, log)
	if err != nil {
		log.Fatal("❌ Ошибка инициализации Cloudinary", zap.Error(err))
	}

	catalog := item.NewCatalog(store, cloudinaryService, itemCache, dispatcher, m, log)
	itemService := item.NewItemService(catalog, jwtService)

	engine := swap.NewEngine(store, dispatcher, log,
		swap.WithReward(cfg.SwapConfig.CompletionReward),
		swap.WithMetrics(m),
	)
	swapService := swap.NewSwapService(engine, jwtService, itemCache, log)
	favoriteService := favorite.NewFavoriteService(store, catalog, itemCache, jwtService, log)

	// Создаём экземпляр Fiber
	app := fiber.New(fiber.Config{
		AppName:      "ReWear API",
		ErrorHandler: middleware.ErrorHandler(log),
	})

	// Добавляем middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: false,
	}))

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Регистрируем маршруты
	authService.SetupRoutes(app)
	cloudinaryService.SetupRoutes(app)
	itemService.SetupRoutes(app)
	swapService.SetupRoutes(app)
	favoriteService.SetupRoutes(app)

	// Вспомогательный сервер: метрики и websocket
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/ws", hub.Handler(jwtService))
	aux := &http.Server{
		Addr:              ":" + cfg.AuxPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("✅ Вспомогательный сервер запущен", zap.String("port", cfg.AuxPort))
		if err := aux.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("❌ Ошибка вспомогательного сервера", zap.Error(err))
			stop()
		}
	}()

	go func() {
		log.Info("✅ ReWear API запущен", zap.String("port", cfg.HTTPPort))
		if err := app.Listen(":"+cfg.HTTPPort, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
			log.Error("❌ Ошибка HTTP сервера", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Остановка сервиса")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("❌ Ошибка остановки HTTP сервера", zap.Error(err))
	}
	hub.Shutdown()
	if err := aux.Shutdown(shutdownCtx); err != nil {
		log.Error("❌ Ошибка остановки вспомогательного сервера", zap.Error(err))
	}

	// Доставляем оставшиеся события до закрытия NATS и хранилища
	dispatcher.Close()
	log.Info("✅ Сервис остановлен")
}
