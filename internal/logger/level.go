package logger

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

//go:generate go run golang.org/x/tools/cmd/stringer -type=Level -linecomment

type Level int

const (
	LevelOff   Level = iota // OFF
	LevelFatal              // FATAL
	LevelError              // ERROR
	LevelWarn               // WARN
	LevelInfo               // INFO
	LevelDebug              // DEBUG
)

var levelMap = map[string]Level{
	"OFF":   LevelOff,
	"FATAL": LevelFatal,
	"ERROR": LevelError,
	"WARN":  LevelWarn,
	"INFO":  LevelInfo,
	"DEBUG": LevelDebug,
}

func ParseLevel(s string) (Level, error) {
	level, ok := levelMap[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return -1, errors.Errorf("invalid level: %s", s)
	}
	return level, nil
}

// zapLevel maps a Level onto the zap level that enables it and everything above.
// LevelOff has no zap counterpart and is handled by the caller.
func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelFatal:
		return zapcore.FatalLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
