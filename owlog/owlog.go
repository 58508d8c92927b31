// Package owlog provides the core's structured logger: a
// github.com/go-logr/logr.Logger backed by go.uber.org/zap, built the
// way jra3-system-agent's cmd/main.go builds its logger
// (zapr.NewLogger(zapcore...), logr.Discard() as the silent default).
package owlog

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// New builds a production zap-backed logr.Logger. verbose selects
// development (human-readable, debug-level) vs. production (JSON,
// info-level) encoding.
func New(verbose bool) (logr.Logger, error) {
	var zl *zap.Logger
	var err error
	if verbose {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zl), nil
}

// Discard is the silent logger used by tests and callers that don't
// want log output.
func Discard() logr.Logger { return logr.Discard() }
