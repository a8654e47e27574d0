// internal/utils/logger/logger.go
package logger

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger расширяет функционал zap.Logger
type Logger struct {
	*zap.Logger
	config *Config
}

// New создает новый логгер: консоль в stdout и JSON в ротируемый файл.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level, err := resolveLevel(cfg)
	if err != nil {
		return nil, err
	}

	// Базовая конфигурация энкодера
	encoderConfig := zap.NewProductionEncoderConfig()
	if cfg.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var cores []zapcore.Core
	if !cfg.DisableConsole {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), level))
	}
	if cfg.LogFile != "" {
		logRotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(logRotator), level))
	}

	return &Logger{
		Logger: zap.New(zapcore.NewTee(cores...),
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		),
		config: cfg,
	}, nil
}

func resolveLevel(cfg *Config) (zapcore.Level, error) {
	if cfg.Level == "" {
		if cfg.Development {
			return zapcore.DebugLevel, nil
		}
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return level, err
	}
	return level, nil
}

// Nop возвращает логгер, отбрасывающий всё.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop(), config: DefaultConfig()}
}

// WithTransaction добавляет контекст транзакции к логам
func WithTransaction(l *zap.Logger, txHash string) *zap.Logger {
	return l.With(
		zap.String("tx_hash", txHash),
		zap.Time("tx_time", time.Now().UTC()),
	)
}

// WithOperation создает логгер для конкретной операции с новым correlation_id.
func WithOperation(l *zap.Logger, operation string) (*zap.Logger, string) {
	id := uuid.New().String()
	return l.With(
		zap.String("operation", operation),
		zap.String("correlation_id", id),
		zap.Time("start_time", time.Now().UTC()),
	), id
}

// WithMint добавляет токен к логам
func WithMint(l *zap.Logger, mint string) *zap.Logger {
	return l.With(zap.String("mint", mint))
}

// Sync реализует безопасный вызов Sync: ошибки синхронизации терминала игнорируются.
func (l *Logger) Sync() error {
	err := l.Logger.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

// TrackPerformance отслеживает производительность операции
func TrackPerformance(l *zap.Logger, operation string) (end func()) {
	start := time.Now()
	opLogger := l.With(zap.String("operation", operation))
	opLogger.Debug("Starting operation")

	return func() {
		duration := time.Since(start)
		opLogger.Debug("Operation completed",
			zap.Duration("duration", duration),
			zap.Float64("duration_ms", float64(duration.Microseconds())/1000),
		)
	}
}
