// Package logger wraps zap behind a narrow interface so the rest of the
// core depends on a shape, not a concrete library.
package logger

import (
	"go.uber.org/zap"

	"github.com/nopeoplecar/uvdispatch/internal/config"
)

// InterfaceLogger is the logging contract every component is constructed
// with. It is satisfied by *Logger and by test fakes.
type InterfaceLogger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(template string, args ...interface{})
	Sync() error
}

// Logger adapts a *zap.SugaredLogger to InterfaceLogger.
type Logger struct {
	*zap.SugaredLogger
}

var _ InterfaceLogger = (*Logger)(nil)

// NewLogger builds a production-style zap logger, leveled and formatted per
// cfg.Level/cfg.Format.
func NewLogger(cfg *config.LogConfig) (*Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg != nil {
		if cfg.Format == "console" {
			zcfg = zap.NewDevelopmentConfig()
		}
		if lvl, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
			zcfg.Level = lvl
		}
	}

	zl, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zl.Sugar()}, nil
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}
