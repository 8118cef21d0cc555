package reactor

import "go.uber.org/zap"

// zapErr is a one-line shorthand used at every log call site that reports a
// syscall/errno failure.
func zapErr(err error) zap.Field { return zap.Error(err) }
