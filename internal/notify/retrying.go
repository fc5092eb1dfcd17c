package notify

import (
	"context"
	"log/slog"

	"github.com/rentora/payments/internal/retry"
)

// RetryingNotifier wraps another notifier with the shared bounded-backoff
// policy. Exhausted retries are logged and swallowed: notification delivery
// must never surface as a settlement failure.
type RetryingNotifier struct {
	next   Notifier
	policy retry.Policy
	logger *slog.Logger
}

func NewRetryingNotifier(next Notifier, policy retry.Policy, logger *slog.Logger) *RetryingNotifier {
	return &RetryingNotifier{next: next, policy: policy, logger: logger}
}

func (r *RetryingNotifier) Notify(ctx context.Context, n Notification) error {
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		return r.next.Notify(ctx, n)
	})
	if err != nil {
		r.logger.Error("notification delivery failed",
			"payee_id", n.PayeeID,
			"kind", string(n.Kind),
			"payment_id", n.PaymentID,
			"error", err,
		)
	}
	return nil
}
