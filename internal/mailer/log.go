package mailer

import (
	"context"

	"github.com/nkiryanov/authkeeper/internal/logger"
)

// LogSender only reports that email was skipped
// Used when SMTP is not configured
type LogSender struct {
	logger logger.Logger
}

func NewLogSender(l logger.Logger) *LogSender {
	return &LogSender{logger: l}
}

func (s *LogSender) SendResetLink(ctx context.Context, to string, token string) error {
	s.logger.Warn("SMTP not configured, password reset email skipped", "to", to)
	return nil
}
