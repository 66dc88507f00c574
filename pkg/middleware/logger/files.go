package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func ensureLogDir() string {
	dir := "log"
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

// NewLog builds a JSON logger teed to stdout and a rotated file under log/.
func NewLog(n string) *zap.Logger {
	dir := ensureLogDir()

	cfg := zap.NewProductionEncoderConfig()

	console := zapcore.Lock(os.Stdout)

	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(dir, n),
		MaxSize:    50, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
	})

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, zap.InfoLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(cfg), console, zap.InfoLevel),
	)
	return zap.New(core)
}

// package-level singleton for gateway access logs
var httpAccessLogger = NewLog("http-access.log")

// SetAccessLogger lets tests/CLIs override the access logger (optional).
func SetAccessLogger(l *zap.Logger) {
	if l != nil {
		httpAccessLogger = l
	}
}
