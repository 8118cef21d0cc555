package reactorhttp

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logMu  sync.RWMutex
	logger = zap.NewNop()
)

// SetLogger installs the *zap.Logger used by this package's request
// dispatcher. Call it once during process startup.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logMu.Lock()
	logger = l
	logMu.Unlock()
}

func log() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}
