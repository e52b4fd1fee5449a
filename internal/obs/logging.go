// Package obs contains observability utilities such as logging.
package obs

import "go.uber.org/zap"

// Logger is the global structured logger used by the service.
//
// Logger is exported to allow other packages to use it for logging. It
// defaults to a no-op logger so library code and tests can log freely
// before InitLogger runs.
var Logger = zap.NewNop()

// InitLogger initializes the global Logger with a production JSON core at
// the given level (debug, info, warn, error). Unknown levels fall back to
// info.
func InitLogger(level string) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	logger, err := cfg.Build()
	if err != nil {
		return
	}
	Logger = logger
}
