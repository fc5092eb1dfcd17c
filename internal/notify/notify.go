// Package notify delivers payee-facing payment notifications. Delivery is a
// side channel: a failed notification never rolls back or delays a settled
// payment, it is only logged.
package notify

import (
	"context"
	"time"
)

type Kind string

const (
	// KindPaymentReceived tells the payee a net amount was credited.
	KindPaymentReceived Kind = "payment_received"
	// KindPayoutSetupRequired replaces KindPaymentReceived when the payee
	// has no verified payout destination on file.
	KindPayoutSetupRequired Kind = "payout_setup_required"
	// KindPaymentRefunded tells the payee a settled payment was reversed.
	KindPaymentRefunded Kind = "payment_refunded"
)

type Notification struct {
	PayeeID   string    `json:"payee_id"`
	Kind      Kind      `json:"kind"`
	PaymentID string    `json:"payment_id"`
	JobID     string    `json:"job_id"`
	JobType   string    `json:"job_type"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	SentAt    time.Time `json:"sent_at"`
}

// Notifier is the delivery transport. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
