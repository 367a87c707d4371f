package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/config"
	"github.com/rajivgeraev/rewear-api/internal/db"
	"github.com/rajivgeraev/rewear-api/internal/logger"
	"github.com/rajivgeraev/rewear-api/internal/mailer"
	"github.com/rajivgeraev/rewear-api/internal/notify"
)

const drainTimeout = 30 * time.Second

// notifier читает события обменов из NATS и рассылает письма участникам
func main() {
	cfg, err := config.Read()
	if err != nil {
		stdlog.Fatalf("❌ Ошибка чтения конфигурации: %v", err)
	}

	log := logger.New(cfg.LoggerConfig).With(zap.String("service", "notifier"))
	defer log.Sync()

	if cfg.NATSConfig.URL == "" {
		log.Fatal("❌ Не задан NATS_URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := db.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("❌ Ошибка при инициализации хранилища", zap.Error(err))
	}
	defer closeStore()

	sender, err := mailer.NewSMTPSender(cfg.SMTPConfig, log)
	if err != nil {
		log.Fatal("❌ Ошибка настройки SMTP", zap.Error(err))
	}
	handler := mailer.NewHandler(store, store, sender, log)

	nc, err := notify.Connect(cfg.NATSConfig, "rewear-notifier", log)
	if err != nil {
		log.Fatal("❌ Ошибка подключения к NATS", zap.Error(err))
	}

	sub, err := notify.Subscribe(nc, cfg.NATSConfig.SubjectPrefix, cfg.NATSConfig.QueueGroup, handler, cfg.SMTPConfig.SendTimeout, log)
	if err != nil {
		nc.Close()
		log.Fatal("❌ Ошибка подписки на события", zap.Error(err))
	}

	log.Info("✅ Notifier запущен",
		zap.String("subject", sub.Subject),
		zap.String("queue", cfg.NATSConfig.QueueGroup))

	<-ctx.Done()
	log.Info("Остановка notifier")

	// Drain дорабатывает уже полученные сообщения и закрывает соединение
	if err := nc.Drain(); err != nil {
		log.Error("❌ Ошибка завершения подписки", zap.Error(err))
	}
	deadline := time.Now().Add(drainTimeout)
	for !nc.IsClosed() && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	log.Info("✅ Notifier остановлен")
}
