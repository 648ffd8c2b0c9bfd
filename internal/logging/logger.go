package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a zap logger that writes JSON to the given log file path and,
// when console is set, a human-readable copy to stderr. Profile name and PID
// are included as initial fields.
func New(logPath, profileName string, console bool) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zapcore.InfoLevel
	if os.Getenv("LOSTFOUND_DEBUG") != "" {
		level = zapcore.DebugLevel
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), level),
	}
	if console {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stderr), level))
	}

	logger := zap.New(zapcore.NewTee(cores...),
		zap.Fields(
			zap.String("profile", profileName),
			zap.Int("pid", os.Getpid()),
		),
	)

	return logger, nil
}
