package config

import (
	"fmt"
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config структура конфигурации
type Config struct {
	AppEnv           string `env:"APP_ENV" env-default:"production"`
	HTTPPort         string `env:"PORT" env-default:"8080"`
	AuxPort          string `env:"AUX_PORT" env-default:"9090"` // /metrics и /ws
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	JWTSecret        string `env:"JWT_SECRET"`
	StoreDriver      string `env:"STORE_DRIVER" env-default:"postgres"` // postgres | memory

	DatabaseURL      string `env:"DATABASE_URL"`
	DatabaseConfig   DatabaseConfig
	CloudinaryConfig CloudinaryConfig
	RedisConfig      RedisConfig
	NATSConfig       NATSConfig
	SMTPConfig       SMTPConfig
	LoggerConfig     LoggerConfig
	SwapConfig       SwapConfig
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
	Host         string        `env:"PGHOST" env-default:"localhost"`
	Port         string        `env:"PGPORT" env-default:"5432"`
	User         string        `env:"PGUSER" env-default:"rewear_user"`
	Password     string        `env:"PGPASSWORD" env-default:"rewear_pass"`
	Name         string        `env:"PGDATABASE" env-default:"rewear"`
	SSLMode      string        `env:"PGSSLMODE" env-default:"disable"`
	MaxConns     int32         `env:"PG_MAX_CONNS" env-default:"10"`
	MinConns     int32         `env:"PG_MIN_CONNS" env-default:"2"`
	QueryTimeout time.Duration `env:"PG_QUERY_TIMEOUT" env-default:"5s"`
}

// CloudinaryConfig содержит конфигурацию для Cloudinary
type CloudinaryConfig struct {
	CloudName    string `env:"CLOUDINARY_CLOUD_NAME"`
	APIKey       string `env:"CLOUDINARY_API_KEY"`
	APISecret    string `env:"CLOUDINARY_API_SECRET"`
	UploadPreset string `env:"CLOUDINARY_UPLOAD_PRESET" env-default:"rewear_items"`
	UploadFolder string `env:"CLOUDINARY_UPLOAD_FOLDER" env-default:"rewear/items"`
}

// RedisConfig содержит конфигурацию кэша объявлений. Пустой адрес отключает кэш.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" env-default:"0"`
	ItemTTL  time.Duration `env:"REDIS_ITEM_TTL" env-default:"5m"`
}

// NATSConfig содержит конфигурацию очереди уведомлений. Пустой URL отключает публикацию.
type NATSConfig struct {
	URL           string `env:"NATS_URL"`
	SubjectPrefix string `env:"NATS_SUBJECT_PREFIX" env-default:"rewear"`
	QueueGroup    string `env:"NATS_QUEUE_GROUP" env-default:"rewear-notifier"`
}

// SMTPConfig содержит конфигурацию почтового сервера для notifier
type SMTPConfig struct {
	Host        string        `env:"SMTP_HOST" env-default:"smtp.gmail.com"`
	Port        int           `env:"SMTP_PORT" env-default:"587"`
	Username    string        `env:"SMTP_USERNAME"`
	Password    string        `env:"SMTP_PASSWORD"`
	SenderEmail string        `env:"SMTP_SENDER_EMAIL"`
	SenderName  string        `env:"SMTP_SENDER_NAME" env-default:"ReWear"`
	Encryption  string        `env:"SMTP_ENCRYPTION" env-default:"tls"`
	SendTimeout time.Duration `env:"SMTP_SEND_TIMEOUT" env-default:"10s"`
}

// LoggerConfig содержит настройки zap
type LoggerConfig struct {
	Level    string `env:"LOG_LEVEL" env-default:"info"`
	Encoding string `env:"LOG_ENCODING" env-default:"json"`
}

// SwapConfig содержит параметры обменов
type SwapConfig struct {
	CompletionReward int `env:"SWAP_COMPLETION_REWARD" env-default:"10"`
	NotifyBuffer     int `env:"NOTIFY_BUFFER" env-default:"256"`
}

// LoadConfig загружает переменные из .env и окружения
func LoadConfig() *Config {
	cfg, err := Read()
	if err != nil {
		log.Fatalf("❌ Ошибка чтения конфигурации: %v", err)
	}

	if cfg.TelegramBotToken == "" || cfg.JWTSecret == "" {
		log.Fatal("❌ Ошибка: Не заданы обязательные переменные окружения")
	}

	return cfg
}

// Read читает конфигурацию без проверки обязательных секретов.
// Используется утилитами, которым не нужна авторизация.
func Read() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ .env файл не найден, используем переменные окружения")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	// Формируем строку подключения к базе данных, если она не задана явно
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = cfg.DatabaseConfig.URL()
	}

	if cfg.SwapConfig.CompletionReward < 0 {
		return nil, fmt.Errorf("SWAP_COMPLETION_REWARD не может быть отрицательным: %d", cfg.SwapConfig.CompletionReward)
	}

	return &cfg, nil
}

// URL собирает строку подключения к PostgreSQL
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// IsDevelopment сообщает, запущено ли приложение в режиме разработки
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "local"
}
