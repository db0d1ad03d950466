package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/tender-harvester/internal/progress"
)

// LogSink emits structured debug logs for every progress event. Useful during
// development when no metrics backend is scraping the process.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Debug("progress event",
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.Int("page", evt.Page),
			zap.Int("row", evt.Row),
			zap.String("outcome", string(evt.Outcome)),
			zap.Bool("detail_ok", evt.DetailOK),
			zap.Int("records", evt.Records),
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
