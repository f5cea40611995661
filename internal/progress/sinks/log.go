package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/parts-catalog-crawler/internal/progress"
)

// LogSink writes run milestones to a zap logger. Task events go to Debug so a
// production run only shows the start and end of the crawl.
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

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageRunStart:
			s.logger.Info("progress event", append(fields, zap.Int("tasks", evt.Total))...)
		case progress.StageRunDone:
			fields = append(fields, zap.Int("parts", evt.Parts), zap.Duration("dur", evt.Dur))
			if evt.Note != "" {
				fields = append(fields, zap.String("note", evt.Note))
			}
			s.logger.Info("progress event", fields...)
		default:
			s.logger.Debug("progress event", append(fields,
				zap.String("brand", evt.Brand),
				zap.String("model", evt.Model),
				zap.String("url", evt.URL),
				zap.Int("raw", evt.Raw),
				zap.Int("parts", evt.Parts),
				zap.Int("rejected", evt.Rejected),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note),
			)...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
