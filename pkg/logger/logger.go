// Package logger holds the process-wide zap logger shared by the data layer.
package logger

import (
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configure the global logger.
type Options struct {
	// Level is a zap level name. Unknown names fall back to info.
	Level string
	// Format is "json" (default) or "console".
	Format string
	// OutputPaths defaults to stderr.
	OutputPaths []string
}

var (
	current atomic.Pointer[zap.Logger]
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	current.Store(zap.NewNop())
}

// Configure replaces the global logger.
func Configure(opts Options) error {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "json":
	case "console":
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	default:
		return fmt.Errorf("logger: unsupported format %q", opts.Format)
	}
	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
	}

	level.SetLevel(parseLevel(opts.Level))
	cfg.Level = level

	built, err := cfg.Build()
	if err != nil {
		return err
	}
	current.Store(built)
	return nil
}

// Init configures a JSON logger at the given level.
func Init(lvl string) error {
	return Configure(Options{Level: lvl})
}

// SetLevel adjusts the level of the running logger.
func SetLevel(lvl string) {
	level.SetLevel(parseLevel(lvl))
}

// Logger returns the configured global logger.
func Logger() *zap.Logger {
	return current.Load()
}

// Sync flushes buffered log entries.
func Sync() error {
	return Logger().Sync()
}

// WithModule returns a child logger annotated with the module name.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}

// WithOwner scopes a module logger to one owner.
func WithOwner(module, ownerID string) *zap.Logger {
	return WithModule(module).With(zap.String("owner_id", ownerID))
}

func parseLevel(lvl string) zapcore.Level {
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(strings.TrimSpace(lvl))); err != nil {
		return zapcore.InfoLevel
	}
	return parsed
}
