package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	once sync.Once
)

// Init 初始化全局 logger；level 非法时退回 info
func Init(level string) {
	once.Do(func() {
		lv, err := zapcore.ParseLevel(level)
		if err != nil {
			lv = zapcore.InfoLevel
		}
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lv)
		l, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			l = zap.NewNop()
		}
		log = l
	})
}

func get() *zap.Logger {
	if log == nil {
		Init("info")
	}
	return log
}

func Debug(msg string, fields ...zap.Field) { get().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { get().Error(msg, fields...) }

// Sync flush 缓冲日志（进程退出前调用）
func Sync() { _ = get().Sync() }
