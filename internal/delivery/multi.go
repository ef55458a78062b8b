// ABOUTME: Fan-out sender delivering each code through several channels
// ABOUTME: Fails if any channel fails so no code is silently dropped

package delivery

import (
	"context"
	"errors"

	"github.com/2389/coven-identity/internal/otp"
)

// MultiSender delivers through every wrapped sender.
type MultiSender []otp.Sender

// Send tries every sender and joins their errors.
func (m MultiSender) Send(ctx context.Context, msg otp.Message) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
