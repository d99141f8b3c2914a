package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - настройка структурированного логирования (zap)
//
// Назначение:
// Единая точка инициализации logger для всего сервиса. Все компоненты
// (poller, stream, hub, archiver, alerts, API) получают *zap.Logger
// через конструкторы - глобального logger нет, чтобы тесты могли
// подставлять zap.NewNop().
//
// Форматы:
// - "json": production формат, по строке JSON на запись
// - "console": человекочитаемый формат для разработки
//
// Уровни: debug, info, warn, error

// InitLogger создаёт и настраивает logger по уровню и формату из конфигурации
func InitLogger(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "json", "":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q (expected json or console)", format)
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}
