package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the structured log. Used in
// development and as a fallback when no queue is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.logger.Info("payee notification",
		"payee_id", n.PayeeID,
		"kind", string(n.Kind),
		"payment_id", n.PaymentID,
		"job_id", n.JobID,
		"job_type", n.JobType,
		"amount", n.Amount,
		"currency", n.Currency,
	)
	return nil
}
