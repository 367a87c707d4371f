// Package commands содержит команды утилиты обслуживания rewearctl
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/config"
	"github.com/rajivgeraev/rewear-api/internal/db"
	"github.com/rajivgeraev/rewear-api/internal/logger"
	"github.com/rajivgeraev/rewear-api/internal/repository"
)

// Opener открывает хранилище для команды
type Opener func(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.UnitOfWork, func(), error)

type options struct {
	dbURL      string
	jsonOutput bool
	verbose    bool
}

// NewRootCmd собирает дерево команд
func NewRootCmd(open Opener) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "rewearctl",
		Short: "Утилита обслуживания ReWear",
		Long: `rewearctl применяет схему базы данных и показывает статистику обменов.

Настройки читаются из .env и переменных окружения, как у API.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.dbURL, "db", "", "URL базы данных (по умолчанию DATABASE_URL)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Вывод в формате JSON")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Подробный лог")

	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newStatsCmd(opts, open))
	return root
}

// Execute запускает утилиту
func Execute() {
	if err := NewRootCmd(db.Open).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// load читает конфигурацию с учетом флагов
func (o *options) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка чтения конфигурации: %w", err)
	}
	if o.dbURL != "" {
		cfg.DatabaseURL = o.dbURL
	}

	if !o.verbose {
		cfg.LoggerConfig.Level = "warn"
	}
	cfg.LoggerConfig.Encoding = "console"
	return cfg, logger.New(cfg.LoggerConfig), nil
}
