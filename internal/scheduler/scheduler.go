// Package scheduler drives repeat settlement attempts. The settlement
// coordinator performs exactly one capture per invocation; this loop owns the
// backoff between attempts and the recovery of attempts cut short by a crash.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/rentora/payments/internal/domain"
	"github.com/rentora/payments/internal/repository"
	"github.com/rentora/payments/internal/retry"
	"github.com/rentora/payments/internal/settlement"
)

type Scheduler struct {
	payments   *repository.PaymentRepo
	settlement *settlement.Service
	policy     retry.Policy

	interval    time.Duration
	staleCutoff time.Duration
	logger      *slog.Logger
}

func New(
	payments *repository.PaymentRepo,
	settlementSvc *settlement.Service,
	policy retry.Policy,
	interval time.Duration,
	logger *slog.Logger,
) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		payments:    payments,
		settlement:  settlementSvc,
		policy:      policy,
		interval:    interval,
		staleCutoff: 5 * time.Minute,
		logger:      logger.With("component", "scheduler"),
	}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("settlement retry scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("settlement retry scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass: recover crashed attempts, then re-charge
// every record whose backoff delay has elapsed. Exported so tests and
// operational tooling can drive passes directly.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now().UTC()

	// A record is only PROCESSING while a capture call is in flight; one
	// older than the cutoff belongs to a crashed coordinator and becomes a
	// retry candidate again.
	if n, err := s.payments.RecoverStale(now.Add(-s.staleCutoff)); err != nil {
		s.logger.Error("stale recovery failed", "error", err)
	} else if n > 0 {
		s.logger.Warn("recovered stale processing payments", "count", n)
	}

	candidates, err := s.payments.ListAuthorizedRetries()
	if err != nil {
		s.logger.Error("listing retry candidates failed", "error", err)
		return
	}

	for i := range candidates {
		record := &candidates[i]
		if !s.due(record, now) {
			continue
		}

		res, err := s.settlement.Charge(ctx, record.JobID, record.JobType)
		if err != nil {
			s.logger.Warn("scheduled settlement attempt errored",
				"payment_id", record.ID, "error", err)
			continue
		}
		if res.Success {
			s.logger.Info("scheduled settlement attempt succeeded",
				"payment_id", record.ID, "transaction_id", res.TransactionID)
		}
	}
}

// due applies the shared backoff policy: attempt n+1 may run once the delay
// for that attempt has passed since the last one.
func (s *Scheduler) due(record *domain.PaymentRecord, now time.Time) bool {
	if record.LastAttemptAt == nil {
		return true
	}
	delay := s.policy.Delay(record.RetryCount + 1)
	return now.Sub(*record.LastAttemptAt) >= delay
}
