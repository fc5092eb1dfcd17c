// Package authorization creates payment records and reserves the payer's
// funds with the selected provider. No money moves here and no commission is
// computed; settlement owns both.
package authorization

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rentora/payments/internal/domain"
	"github.com/rentora/payments/internal/provider"
	"github.com/rentora/payments/internal/repository"
)

// Request is the caller-facing authorization request. The instrument fields
// mirror provider.AuthorizeRequest; only the ones the chosen method needs are
// required.
type Request struct {
	JobID    string               `json:"job_id"`
	JobType  domain.JobType       `json:"job_type"`
	PayerID  string               `json:"payer_id"`
	Amount   int64                `json:"amount"`
	Currency string               `json:"currency"`
	Method   domain.PaymentMethod `json:"method"`

	CardToken   string `json:"card_token,omitempty"`
	WalletRef   string `json:"wallet_ref,omitempty"`
	ReturnURL   string `json:"return_url,omitempty"`
	VoucherCode string `json:"voucher_code,omitempty"`
}

// Result reports the authorization outcome. Provider failures come back as
// Success=false with the record in FAILED state; they are never errors.
type Result struct {
	Success bool                  `json:"success"`
	Payment *domain.PaymentRecord `json:"payment,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// pendingGrace pads the provider call timeout when judging whether a PENDING
// record was abandoned by a crashed coordinator.
const pendingGrace = time.Minute

type Service struct {
	payments *repository.PaymentRepo
	jobs     *repository.JobRepo
	adapters provider.Registry

	callTimeout time.Duration
	maxRetries  int
	logger      *slog.Logger
}

func NewService(
	payments *repository.PaymentRepo,
	jobs *repository.JobRepo,
	adapters provider.Registry,
	callTimeout time.Duration,
	logger *slog.Logger,
) *Service {
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	return &Service{
		payments:    payments,
		jobs:        jobs,
		adapters:    adapters,
		callTimeout: callTimeout,
		maxRetries:  domain.DefaultMaxRetries,
		logger:      logger.With("component", "authorization"),
	}
}

// Authorize validates the request, enforces idempotency per (jobID, jobType)
// and drives the PENDING -> AUTHORIZED|FAILED transition. Validation and
// business-rule failures return typed errors before any record exists.
func (s *Service) Authorize(ctx context.Context, req Request) (*Result, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	job, err := s.jobs.Get(req.JobID, req.JobType)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Validationf("jobId", "job %s/%s not found", req.JobType, req.JobID)
	}
	if err != nil {
		return nil, err
	}
	if job.Status == domain.JobStatusCancelled {
		return nil, domain.BusinessLogicf("job %s is cancelled and cannot be paid", req.JobID)
	}
	if !job.PayableBy(req.PayerID) {
		return nil, domain.Validationf("payerId", "user %s may not fund job %s", req.PayerID, req.JobID)
	}

	// Idempotency: an existing live record for this job is returned as-is,
	// with no second provider call. Only a FAILED record unblocks a fresh
	// authorization attempt.
	existing, err := s.payments.FindActive(req.JobID, req.JobType)
	switch {
	case err == nil:
		if !s.abandonedPending(existing) {
			s.logger.Info("authorization replay, returning existing record",
				"payment_id", existing.ID, "status", string(existing.Status))
			return &Result{Success: true, Payment: existing}, nil
		}
		// A PENDING record older than any provider call could run belongs to
		// a coordinator that died before recording an outcome. There is no
		// provider hold to return, so fail it and open a fresh attempt.
		ferr := s.payments.MarkAuthFailed(existing.ID,
			"authorization abandoned before a provider outcome was recorded")
		if errors.Is(ferr, domain.ErrConflict) {
			// The original attempt landed after all; replay its outcome
			// unless it too ended FAILED.
			current, gerr := s.payments.GetByID(existing.ID)
			if gerr != nil {
				return nil, gerr
			}
			if current.Status != domain.StatusFailed {
				return &Result{Success: true, Payment: current}, nil
			}
		} else if ferr != nil {
			return nil, ferr
		} else {
			s.logger.Warn("failed abandoned pending authorization",
				"payment_id", existing.ID, "job_id", req.JobID)
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	record := &domain.PaymentRecord{
		ID:         uuid.NewString(),
		JobID:      req.JobID,
		JobType:    req.JobType,
		PayerID:    req.PayerID,
		PayeeID:    job.PayeeID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Method:     req.Method,
		Status:     domain.StatusPending,
		MaxRetries: s.maxRetries,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.payments.Insert(record); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// A concurrent authorization for this job won the insert; return
			// the winner's record without a second provider hold.
			winner, gerr := s.payments.FindActive(req.JobID, req.JobType)
			if gerr != nil {
				return nil, gerr
			}
			s.logger.Info("authorization lost insert race, returning winner",
				"payment_id", winner.ID, "job_id", req.JobID)
			return &Result{Success: true, Payment: winner}, nil
		}
		return nil, err
	}

	adapter := s.adapters.Get(req.Method)
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	authRes, err := adapter.Authorize(callCtx, provider.AuthorizeRequest{
		PaymentID:   record.ID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		CardToken:   req.CardToken,
		WalletRef:   req.WalletRef,
		ReturnURL:   req.ReturnURL,
		VoucherCode: req.VoucherCode,
	})
	if err != nil {
		s.logger.Warn("authorization declined by provider",
			"payment_id", record.ID, "provider", adapter.Name(), "error", err)
		if ferr := s.payments.MarkAuthFailed(record.ID, err.Error()); ferr != nil {
			return nil, ferr
		}
		failed, gerr := s.payments.GetByID(record.ID)
		if gerr != nil {
			return nil, gerr
		}
		return &Result{Success: false, Payment: failed, Error: err.Error()}, nil
	}

	now := time.Now().UTC()
	if err := s.payments.MarkAuthorized(record.ID, authRes.ExternalAuthorizationID, authRes.Metadata, now); err != nil {
		return nil, err
	}

	authorized, err := s.payments.GetByID(record.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment authorized",
		"payment_id", record.ID,
		"job_id", req.JobID, "job_type", string(req.JobType),
		"amount", req.Amount, "method", string(req.Method))
	return &Result{Success: true, Payment: authorized}, nil
}

// abandonedPending reports whether the record is a PENDING leftover from a
// coordinator that died between inserting it and recording the provider
// outcome. A healthy PENDING record is younger than the call timeout.
func (s *Service) abandonedPending(p *domain.PaymentRecord) bool {
	return p.Status == domain.StatusPending &&
		time.Since(p.CreatedAt) > s.callTimeout+pendingGrace
}

func (s *Service) validate(req Request) error {
	if req.JobID == "" {
		return domain.Validationf("jobId", "required")
	}
	if !req.JobType.Valid() {
		return domain.Validationf("jobType", "unsupported job type %q", req.JobType)
	}
	if req.PayerID == "" {
		return domain.Validationf("payerId", "required")
	}
	if req.Amount <= 0 {
		return domain.Validationf("amount", "must be positive, got %d", req.Amount)
	}
	if len(req.Currency) != 3 {
		return domain.Validationf("currency", "must be a 3-letter ISO code, got %q", req.Currency)
	}
	if !req.Method.Valid() {
		return domain.Validationf("method", "unsupported payment method %q", req.Method)
	}
	if s.adapters.Get(req.Method) == nil {
		return domain.Validationf("method", "no provider configured for %s", req.Method)
	}
	return nil
}
