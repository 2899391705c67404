package events

import (
	"context"

	"github.com/crackzone/teams/internal/model"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Sink receives committed domain events.
type Sink interface {
	Publish(ctx context.Context, events ...model.Event) error
}

type logSink struct {
	logger *zap.Logger
}

// NewLogSink writes every event as a structured log line.
func NewLogSink(l *zap.Logger) Sink {
	return &logSink{logger: l}
}

func (s *logSink) Publish(_ context.Context, events ...model.Event) error {
	for _, e := range events {
		s.logger.Info("domain event",
			zap.String("type", string(e.Type)),
			zap.String("team_id", e.TeamID),
			zap.String("actor_id", e.ActorID),
			zap.String("subject_id", e.SubjectID),
			zap.String("request_id", e.RequestID),
			zap.String("invitation_id", e.InvitationID),
			zap.Time("occurred_at", e.OccurredAt))
	}
	return nil
}

type multiSink []Sink

// NewMultiSink fans events out to every sink; a failing sink does not stop the others.
func NewMultiSink(sinks ...Sink) Sink {
	return multiSink(sinks)
}

func (m multiSink) Publish(ctx context.Context, events ...model.Event) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Publish(ctx, events...))
	}
	return err
}

type nopSink struct{}

func NewNopSink() Sink { return nopSink{} }

func (nopSink) Publish(context.Context, ...model.Event) error { return nil }
