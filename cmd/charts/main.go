// Package main запускает сервис чартов Apple Music.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"musiccharts/internal/app"
	"musiccharts/internal/config"
	"musiccharts/pkg/logger"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log := logger.New(logger.Config{Level: "info"})
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Инициализация логгера
	log := logger.New(logger.Config{Level: cfg.LogLevel, Path: cfg.LogPath})
	defer func() { _ = log.Sync() }()

	// Обработка сигналов
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create application", zap.Error(err))
	}

	if err := application.Start(ctx); err != nil {
		log.Error("Application stopped with error", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Application stopped successfully")
}
