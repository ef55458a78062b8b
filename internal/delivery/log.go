// ABOUTME: Sender that writes codes to the structured log
// ABOUTME: For development and the operator CLI, where no mail relay exists

package delivery

import (
	"context"
	"log/slog"

	"github.com/2389/coven-identity/internal/otp"
)

// LogSender logs each code instead of delivering it.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. logger may be nil.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With("component", "delivery")}
}

// Send logs the code at Info level.
func (s *LogSender) Send(_ context.Context, msg otp.Message) error {
	s.logger.Info("otp code",
		"to", msg.To,
		"purpose", msg.Purpose.String(),
		"code", msg.Code,
		"expires_at", msg.ExpiresAt,
	)
	return nil
}
