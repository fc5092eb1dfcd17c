// Package settlement captures authorized payments once their job completes,
// applies the commission split and credits the payee. Every state move is a
// conditional transition on the payment record, so concurrent settlement
// attempts for the same job race safely: one wins, the rest observe the
// winner's outcome.
package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rentora/payments/internal/commission"
	"github.com/rentora/payments/internal/domain"
	"github.com/rentora/payments/internal/notify"
	"github.com/rentora/payments/internal/provider"
	"github.com/rentora/payments/internal/repository"
)

// ChargeResult reports a settlement attempt. Provider failures come back as
// Success=false with the record released for retry or permanently failed.
type ChargeResult struct {
	Success       bool                  `json:"success"`
	TransactionID string                `json:"transaction_id,omitempty"`
	Payment       *domain.PaymentRecord `json:"payment,omitempty"`
	Error         string                `json:"error,omitempty"`
}

// RefundResult reports a refund attempt on a completed payment.
type RefundResult struct {
	Success  bool                  `json:"success"`
	RefundID string                `json:"refund_id,omitempty"`
	Payment  *domain.PaymentRecord `json:"payment,omitempty"`
	Error    string                `json:"error,omitempty"`
}

type Service struct {
	payments   *repository.PaymentRepo
	jobs       *repository.JobRepo
	payees     *repository.PayeeRepo
	adapters   provider.Registry
	commission *commission.Engine
	notifier   notify.Notifier

	callTimeout time.Duration
	logger      *slog.Logger
}

func NewService(
	payments *repository.PaymentRepo,
	jobs *repository.JobRepo,
	payees *repository.PayeeRepo,
	adapters provider.Registry,
	engine *commission.Engine,
	notifier notify.Notifier,
	callTimeout time.Duration,
	logger *slog.Logger,
) *Service {
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	return &Service{
		payments:    payments,
		jobs:        jobs,
		payees:      payees,
		adapters:    adapters,
		commission:  engine,
		notifier:    notifier,
		callTimeout: callTimeout,
		logger:      logger.With("component", "settlement"),
	}
}

// Charge performs exactly one capture attempt for the job's authorized
// payment. Re-invoking on an already-COMPLETED record is a no-op returning
// the stored result. Scheduling of repeat attempts is the caller's job.
func (s *Service) Charge(ctx context.Context, jobID string, jobType domain.JobType) (*ChargeResult, error) {
	if !jobType.Valid() {
		return nil, domain.Validationf("jobType", "unsupported job type %q", jobType)
	}

	record, err := s.payments.GetByJob(jobID, jobType)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.BusinessLogicf("no payment record for job %s/%s", jobType, jobID)
	}
	if err != nil {
		return nil, err
	}

	// Idempotent settlement.
	if record.Status == domain.StatusCompleted {
		return completedResult(record), nil
	}

	switch record.Status {
	case domain.StatusAuthorized:
		// proceed
	case domain.StatusProcessing:
		return &ChargeResult{
			Success: false,
			Payment: record,
			Error:   "settlement already in progress for this payment",
		}, nil
	default:
		return nil, domain.BusinessLogicf("payment %s is %s and cannot be charged",
			record.ID, record.Status)
	}

	// The job lifecycle is owned elsewhere; we only verify it reached its
	// terminal state before any money moves.
	job, err := s.jobs.Get(jobID, jobType)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusCompleted {
		return nil, domain.BusinessLogicf("job %s/%s is %s, not COMPLETED",
			jobType, jobID, job.Status)
	}

	// Exactly one concurrent attempt wins this transition.
	if err := s.payments.BeginProcessing(record.ID, time.Now().UTC()); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		current, gerr := s.payments.GetByID(record.ID)
		if gerr != nil {
			return nil, gerr
		}
		if current.Status == domain.StatusCompleted {
			return completedResult(current), nil
		}
		return &ChargeResult{
			Success: false,
			Payment: current,
			Error:   "settlement already in progress for this payment",
		}, nil
	}

	adapter := s.adapters.Get(record.Method)
	if adapter == nil {
		// Configuration regressed since authorization; put the record back
		// without consuming retry budget so a redeploy with the adapter
		// restored can settle it.
		if rerr := s.payments.Release(record.ID, "no provider configured for "+string(record.Method)); rerr != nil {
			s.logger.Error("release after configuration fault failed",
				"payment_id", record.ID, "error", rerr)
		}
		return nil, domain.BusinessLogicf("no provider configured for %s", record.Method)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	capture, err := adapter.Capture(callCtx, record.ExternalAuthorizationID)
	if err != nil {
		return s.captureFailed(record, adapter.Name(), err)
	}

	split, err := s.commission.FlatSplit(jobType, record.Amount)
	if err != nil {
		// A broken rate table must not charge the payer silently wrong; put
		// the record back without consuming budget and surface the fault.
		if rerr := s.payments.Release(record.ID, "commission: "+err.Error()); rerr != nil {
			s.logger.Error("release after commission fault failed",
				"payment_id", record.ID, "error", rerr)
		}
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.payments.MarkCompleted(record.ID, capture.ExternalTransactionID,
		split.Commission, split.NetAmount, now); err != nil {
		return nil, err
	}

	if err := s.payees.IncrementEarnings(record.PayeeID, split.NetAmount); err != nil {
		// The settlement is committed; the earnings counter is repaired by
		// reconciliation, not by unwinding a captured payment.
		s.logger.Error("earnings credit failed after settlement",
			"payment_id", record.ID, "payee_id", record.PayeeID, "error", err)
	}

	s.logger.Info("payment settled",
		"payment_id", record.ID,
		"job_id", jobID, "job_type", string(jobType),
		"amount", record.Amount,
		"commission", split.Commission,
		"net_amount", split.NetAmount,
		"transaction_id", capture.ExternalTransactionID)

	s.notifySettled(record, split.NetAmount)

	settled, err := s.payments.GetByID(record.ID)
	if err != nil {
		return nil, err
	}
	return completedResult(settled), nil
}

// captureFailed increments the attempt counter and either releases the
// record for a later retry or fails it permanently. Hard declines skip the
// remaining retry budget: the instrument will not get better on its own.
func (s *Service) captureFailed(record *domain.PaymentRecord, providerName string, capErr error) (*ChargeResult, error) {
	attempts := record.RetryCount + 1
	permanent := attempts >= record.MaxRetries || !domain.IsRetryable(capErr)

	s.logger.Warn("capture failed",
		"payment_id", record.ID,
		"provider", providerName,
		"attempt", attempts,
		"max_retries", record.MaxRetries,
		"permanent", permanent,
		"error", capErr)

	var trErr error
	if permanent {
		trErr = s.payments.MarkCaptureFailed(record.ID, capErr.Error())
	} else {
		trErr = s.payments.ReleaseForRetry(record.ID, capErr.Error())
	}
	if trErr != nil {
		return nil, trErr
	}

	current, err := s.payments.GetByID(record.ID)
	if err != nil {
		return nil, err
	}
	return &ChargeResult{Success: false, Payment: current, Error: capErr.Error()}, nil
}

// notifyTimeout bounds a background notification delivery, covering the
// RetryingNotifier's full backoff schedule.
const notifyTimeout = 30 * time.Second

// notifySettled tells the payee about the credit, or asks them to configure a
// payout destination when none is verified. Delivery failures never affect
// the settlement outcome.
func (s *Service) notifySettled(record *domain.PaymentRecord, netAmount int64) {
	kind := notify.KindPaymentReceived
	payee, err := s.payees.Get(record.PayeeID)
	if err != nil || !payee.PayoutVerified {
		kind = notify.KindPayoutSetupRequired
	}

	s.dispatch(notify.Notification{
		PayeeID:   record.PayeeID,
		Kind:      kind,
		PaymentID: record.ID,
		JobID:     record.JobID,
		JobType:   string(record.JobType),
		Amount:    netAmount,
		Currency:  record.Currency,
		SentAt:    time.Now().UTC(),
	})
}

// dispatch delivers a notification off the caller's request path so a slow or
// failing sink never delays the settlement response.
func (s *Service) dispatch(n notify.Notification) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Warn("notification delivery failed",
				"payment_id", n.PaymentID, "kind", string(n.Kind), "error", err)
		}
	}()
}

// Refund reverses a completed payment. It also debits the payee's previously
// credited net amount so the earnings counter stays consistent with what was
// actually kept.
func (s *Service) Refund(ctx context.Context, jobID string, jobType domain.JobType, reason string) (*RefundResult, error) {
	if !jobType.Valid() {
		return nil, domain.Validationf("jobType", "unsupported job type %q", jobType)
	}
	if reason == "" {
		return nil, domain.Validationf("reason", "required")
	}

	record, err := s.payments.GetByJob(jobID, jobType)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.BusinessLogicf("no payment record for job %s/%s", jobType, jobID)
	}
	if err != nil {
		return nil, err
	}
	if record.Status != domain.StatusCompleted {
		return nil, domain.BusinessLogicf("payment %s is %s; only completed payments can be refunded",
			record.ID, record.Status)
	}

	adapter := s.adapters.Get(record.Method)
	if adapter == nil {
		return nil, domain.BusinessLogicf("no provider configured for %s", record.Method)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	refund, err := adapter.Refund(callCtx, record.ExternalTransactionID)
	if err != nil {
		s.logger.Warn("refund rejected by provider",
			"payment_id", record.ID, "provider", adapter.Name(), "error", err)
		return &RefundResult{Success: false, Payment: record, Error: err.Error()}, nil
	}

	if err := s.payments.MarkRefunded(record.ID, reason); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		// Lost a concurrent refund race; report the stored outcome.
		current, gerr := s.payments.GetByID(record.ID)
		if gerr != nil {
			return nil, gerr
		}
		if current.Status == domain.StatusRefunded {
			return &RefundResult{Success: true, Payment: current}, nil
		}
		return nil, domain.BusinessLogicf("payment %s moved to %s during refund",
			record.ID, current.Status)
	}

	if record.NetAmount != nil {
		if err := s.payees.IncrementEarnings(record.PayeeID, -*record.NetAmount); err != nil {
			s.logger.Error("earnings reversal failed after refund",
				"payment_id", record.ID, "payee_id", record.PayeeID, "error", err)
		}
	}

	s.logger.Info("payment refunded",
		"payment_id", record.ID,
		"job_id", jobID, "job_type", string(jobType),
		"refund_id", refund.RefundID,
		"reason", reason)

	s.dispatch(notify.Notification{
		PayeeID:   record.PayeeID,
		Kind:      notify.KindPaymentRefunded,
		PaymentID: record.ID,
		JobID:     record.JobID,
		JobType:   string(record.JobType),
		Amount:    record.Amount,
		Currency:  record.Currency,
		SentAt:    time.Now().UTC(),
	})

	refunded, err := s.payments.GetByID(record.ID)
	if err != nil {
		return nil, err
	}
	return &RefundResult{Success: true, RefundID: refund.RefundID, Payment: refunded}, nil
}

// GetStatus returns the job's latest payment record.
func (s *Service) GetStatus(jobID string, jobType domain.JobType) (*domain.PaymentRecord, error) {
	if !jobType.Valid() {
		return nil, domain.Validationf("jobType", "unsupported job type %q", jobType)
	}
	return s.payments.GetByJob(jobID, jobType)
}

func completedResult(record *domain.PaymentRecord) *ChargeResult {
	return &ChargeResult{
		Success:       true,
		TransactionID: record.ExternalTransactionID,
		Payment:       record,
	}
}
