// Package sinks provides Sink implementations for the event hub.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/davidnkusi/leadscout/internal/events"
)

// LogSink emits structured logs for the event stream. It is the default sink
// and doubles as an audit trail during development.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		s.logger.Info("scheduling event",
			zap.String("kind", string(evt.Kind)),
			zap.Time("ts", evt.TS),
			zap.String("target_id", evt.TargetID),
			zap.String("worker_id", evt.WorkerID),
			zap.String("platform", evt.Platform),
			zap.Int("posts", evt.Posts),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
