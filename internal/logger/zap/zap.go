// Package zap adapts go.uber.org/zap to the logger.Logger interface, with
// optional lumberjack-backed file rotation, matching the production
// logging setup described in the teacher's cmd/node/main.go.
package zap

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"chordmr/internal/logger"
)

// Config controls the rotating file sink. A zero value disables rotation
// and logs to stderr only.
type Config struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Level      string // debug, info, warn, error
	Console    bool   // also write to stderr
}

// New builds a Logger backed by zap. It is the adapter cmd/node
// constructs from the parsed LoggerConfig; libraries should keep
// depending on logger.Logger, never this package, directly.
func New(cfg Config) (logger.Logger, error) {
	level := parseLevel(cfg.Level)

	var cores []zapcore.Core
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.Filename != "" {
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), writer, level))
	}
	if cfg.Console || cfg.Filename == "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderCfg),
			zapcore.Lock(zapcore.AddSync(os.Stderr)),
			level,
		))
	}

	core := zapcore.NewTee(cores...)
	zl := zap.New(core, zap.AddCaller())
	return &adapter{z: zl.Sugar()}, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func parseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

type adapter struct {
	z *zap.SugaredLogger
}

func (a *adapter) Debug(msg string, fields ...logger.Field) { a.z.Debugw(msg, toArgs(fields)...) }
func (a *adapter) Info(msg string, fields ...logger.Field)   { a.z.Infow(msg, toArgs(fields)...) }
func (a *adapter) Warn(msg string, fields ...logger.Field)   { a.z.Warnw(msg, toArgs(fields)...) }
func (a *adapter) Error(msg string, fields ...logger.Field)  { a.z.Errorw(msg, toArgs(fields)...) }

func (a *adapter) Named(name string) logger.Logger {
	return &adapter{z: a.z.Named(name)}
}

func (a *adapter) With(fields ...logger.Field) logger.Logger {
	return &adapter{z: a.z.With(toArgs(fields)...)}
}

func toArgs(fields []logger.Field) []any {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return args
}
