// ABOUTME: Dry-run transport that logs messages instead of sending them
// ABOUTME: Used when no real transport is configured or dry-run is enabled
package transport

import (
	"context"

	"github.com/charmbracelet/log"
)

type LogSender struct {
	logger  *log.Logger
	channel string
}

func NewLogSender(logger *log.Logger, channel string) *LogSender {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSender{logger: logger, channel: channel}
}

func (s *LogSender) Send(ctx context.Context, destination, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("dry run send", "channel", s.channel, "to", destination, "subject", subject, "bytes", len(body))
	return nil
}
