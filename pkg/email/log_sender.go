package email

import (
	"context"
	"log/slog"
)

// LogSender logs outbound email instead of delivering it. Default for
// development and test environments.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) Sender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "email suppressed (log sender)",
		"to", msg.To,
		"subject", msg.Subject,
		"tag", msg.Tag,
	)
	return nil
}
