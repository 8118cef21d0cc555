package reactor

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var (
	logMu  sync.RWMutex
	logger = zap.NewNop()
)

// SetLogger installs the *zap.Logger used by every component in this
// package (loops, pollers, timers, connections, acceptor, connector). Call
// it once during process startup; safe to call from any goroutine.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logMu.Lock()
	logger = l
	logMu.Unlock()
}

// log returns the currently installed logger.
func log() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// NewRotatingLogger builds a production zap.Logger whose output is rotated
// through lumberjack. path == "" logs to stderr only. This mirrors the
// rotation policy a deployed I/O loop pool is typically run under; it is not
// installed automatically, callers opt in via SetLogger(NewRotatingLogger(...)).
func NewRotatingLogger(path string, maxSizeMB, maxBackups, maxAgeDays int) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	var writer zapcore.WriteSyncer
	if path == "" {
		writer = zapcore.AddSync(os.Stderr)
	} else {
		writer = zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		})
	}
	core := zapcore.NewCore(encoder, writer, zap.InfoLevel)
	return zap.New(core)
}
