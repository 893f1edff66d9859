package logger

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	sugar *zap.SugaredLogger
}

func (l *Logger) Debug(v ...any) { l.sugar.Debug(v...) }
func (l *Logger) Info(v ...any)  { l.sugar.Info(v...) }
func (l *Logger) Warn(v ...any)  { l.sugar.Warn(v...) }
func (l *Logger) Error(v ...any) { l.sugar.Error(v...) }

func (l *Logger) Debugf(format string, v ...any) { l.sugar.Debugf(format, v...) }
func (l *Logger) Infof(format string, v ...any)  { l.sugar.Infof(format, v...) }
func (l *Logger) Warnf(format string, v ...any)  { l.sugar.Warnf(format, v...) }
func (l *Logger) Errorf(format string, v ...any) { l.sugar.Errorf(format, v...) }

// Sync flushes buffered entries. Call it before the process exits.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// NewLogger writes console-encoded entries at or above level to every output.
func NewLogger(level Level, outputs ...io.Writer) *Logger {
	if level == LevelOff || len(outputs) == 0 {
		return &Logger{sugar: zap.NewNop().Sugar()}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	syncers := make([]zapcore.WriteSyncer, 0, len(outputs))
	for _, o := range outputs {
		syncers = append(syncers, zapcore.AddSync(o))
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.NewMultiWriteSyncer(syncers...),
		zap.NewAtomicLevelAt(level.zapLevel()),
	)
	return &Logger{sugar: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()}
}

// NewNop discards everything. Used by tests and as a default.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}
