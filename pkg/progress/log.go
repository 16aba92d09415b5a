// Package progress provides Reporter implementations for following a replay
// run as it executes: structured log output and a WebSocket event stream.
package progress

import (
	"time"

	"go.uber.org/zap"

	"webreplay/internal/replay"
)

// LogReporter writes every progress event to a structured logger.
type LogReporter struct {
	logger *zap.Logger
}

// NewLogReporter wraps the logger as a run reporter.
func NewLogReporter(logger *zap.Logger) *LogReporter {
	return &LogReporter{logger: logger.Named("progress")}
}

func (l *LogReporter) RunStarted(name string, total int) {
	l.logger.Info("run started", zap.String("recording", name), zap.Int("total", total))
}

func (l *LogReporter) ActionStarted(id string, idx int) {
	l.logger.Debug("action started", zap.String("action", id), zap.Int("index", idx))
}

func (l *LogReporter) ActionSucceeded(id string, idx int, d time.Duration, selector string) {
	l.logger.Info("action ok",
		zap.String("action", id),
		zap.Int("index", idx),
		zap.Duration("took", d),
		zap.String("selector", selector))
}

func (l *LogReporter) ActionFailed(id string, idx int, msg string, d time.Duration) {
	l.logger.Warn("action failed",
		zap.String("action", id),
		zap.Int("index", idx),
		zap.Duration("took", d),
		zap.String("error", msg))
}

func (l *LogReporter) ActionSkipped(id string, idx int, reason string) {
	l.logger.Info("action skipped",
		zap.String("action", id),
		zap.Int("index", idx),
		zap.String("reason", reason))
}

func (l *LogReporter) RunCompleted(status replay.RunStatus, d time.Duration, executed, failed int, video string) {
	l.logger.Info("run completed",
		zap.String("status", string(status)),
		zap.Duration("took", d),
		zap.Int("executed", executed),
		zap.Int("failed", failed),
		zap.String("video", video))
}
