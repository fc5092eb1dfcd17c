package authorization

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentora/payments/internal/domain"
	"github.com/rentora/payments/internal/provider"
	"github.com/rentora/payments/internal/repository"
)

type fakeAdapter struct {
	authorizeCalls int
	authErr        error
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) Authorize(ctx context.Context, req provider.AuthorizeRequest) (*provider.AuthorizeResult, error) {
	f.authorizeCalls++
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &provider.AuthorizeResult{
		ExternalAuthorizationID: "ext-" + req.PaymentID,
		Metadata: &domain.ProviderMetadata{
			Card: &domain.CardMetadata{ClientToken: "ct-1", CardBrand: "visa", Last4: "4242"},
		},
	}, nil
}

func (f *fakeAdapter) Capture(ctx context.Context, externalAuthID string) (*provider.CaptureResult, error) {
	return nil, errors.New("capture not expected during authorization")
}

func (f *fakeAdapter) Refund(ctx context.Context, externalTxnID string) (*provider.RefundResult, error) {
	return nil, errors.New("refund not expected during authorization")
}

type env struct {
	payments *repository.PaymentRepo
	jobs     *repository.JobRepo
	adapter  *fakeAdapter
	svc      *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	adapter := &fakeAdapter{}
	payments := repository.NewPaymentRepo(db)
	jobs := repository.NewJobRepo(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(payments, jobs, provider.Registry{
		domain.MethodCardGateway: adapter,
	}, time.Second, logger)

	return &env{payments: payments, jobs: jobs, adapter: adapter, svc: svc}
}

func (e *env) seedVisit(t *testing.T, status domain.JobStatus) *domain.Job {
	t.Helper()
	job := &domain.Job{
		ID:        "visit-1",
		Type:      domain.JobVisit,
		Status:    status,
		OwnerID:   "owner-1",
		PayeeID:   "agent-1",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, e.jobs.Insert(job))
	return job
}

// pendingRecord builds the PENDING row the coordinator inserts before calling
// the provider.
func pendingRecord(createdAt time.Time) *domain.PaymentRecord {
	return &domain.PaymentRecord{
		ID:         uuid.NewString(),
		JobID:      "visit-1",
		JobType:    domain.JobVisit,
		PayerID:    "owner-1",
		PayeeID:    "agent-1",
		Amount:     500_000,
		Currency:   "USD",
		Method:     domain.MethodCardGateway,
		Status:     domain.StatusPending,
		MaxRetries: domain.DefaultMaxRetries,
		CreatedAt:  createdAt,
	}
}

func validRequest() Request {
	return Request{
		JobID:     "visit-1",
		JobType:   domain.JobVisit,
		PayerID:   "owner-1",
		Amount:    500_000,
		Currency:  "USD",
		Method:    domain.MethodCardGateway,
		CardToken: "tok_visa",
	}
}

func TestAuthorizeHappyPath(t *testing.T) {
	e := newEnv(t)
	e.seedVisit(t, domain.JobStatusAssigned)

	res, err := e.svc.Authorize(context.Background(), validRequest())
	require.NoError(t, err)
	require.True(t, res.Success)

	p := res.Payment
	require.NotNil(t, p)
	assert.Equal(t, domain.StatusAuthorized, p.Status)
	assert.Equal(t, "ext-"+p.ID, p.ExternalAuthorizationID)
	assert.Equal(t, "agent-1", p.PayeeID)
	assert.Equal(t, domain.DefaultMaxRetries, p.MaxRetries)
	require.NotNil(t, p.AuthorizedAt)
	require.NotNil(t, p.ProviderMetadata)
	require.NotNil(t, p.ProviderMetadata.Card)
	assert.Equal(t, "ct-1", p.ProviderMetadata.Card.ClientToken)
	assert.Equal(t, 1, e.adapter.authorizeCalls)
}

func TestAuthorizeReplayReturnsExistingRecord(t *testing.T) {
	e := newEnv(t)
	e.seedVisit(t, domain.JobStatusAssigned)

	first, err := e.svc.Authorize(context.Background(), validRequest())
	require.NoError(t, err)

	second, err := e.svc.Authorize(context.Background(), validRequest())
	require.NoError(t, err)
	require.True(t, second.Success)

	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, 1, e.adapter.authorizeCalls, "replay must not hit the provider again")
}

func TestAuthorizeReplaysFreshPendingRecord(t *testing.T) {
	e := newEnv(t)
	e.seedVisit(t, domain.JobStatusAssigned)

	// A PENDING record younger than the call window belongs to an in-flight
	// authorization and is replayed untouched.
	pending := pendingRecord(time.Now().UTC())
	require.NoError(t, e.payments.Insert(pending))

	res, err := e.svc.Authorize(context.Background(), validRequest())
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, pending.ID, res.Payment.ID)
	assert.Equal(t, 0, e.adapter.authorizeCalls)
}

func TestAuthorizeRecoversAbandonedPendingRecord(t *testing.T) {
	e := newEnv(t)
	e.seedVisit(t, domain.JobStatusAssigned)

	// The coordinator died between inserting the record and storing the
	// provider outcome; the leftover PENDING row has no hold behind it.
	stale := pendingRecord(time.Now().UTC().Add(-10 * time.Minute))
	require.NoError(t, e.payments.Insert(stale))

	res, err := e.svc.Authorize(context.Background(), validRequest())
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.NotEqual(t, stale.ID, res.Payment.ID, "a dead record must not be replayed")
	assert.Equal(t, domain.StatusAuthorized, res.Payment.Status)
	assert.Equal(t, 1, e.adapter.authorizeCalls)

	// The abandoned record ends FAILED so it never blocks the job again.
	old, err := e.payments.GetByID(stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, old.Status)
	assert.Contains(t, old.FailureReason, "abandoned")
}

func TestAuthorizeUnknownMethodLeavesNoRecord(t *testing.T) {
	e := newEnv(t)
	e.seedVisit(t, domain.JobStatusAssigned)

	req := validRequest()
	req.Method = "UNKNOWN"
	_, err := e.svc.Authorize(context.Background(), req)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "method", verr.Field)
	assert.Equal(t, 0, e.adapter.authorizeCalls)

	_, err = e.payments.GetByJob("visit-1", domain.JobVisit)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAuthorizeUnconfiguredMethodLeavesNoRecord(t *testing.T) {
	e := newEnv(t)
	e.seedVisit(t, domain.JobStatusAssigned)

	req := validRequest()
	req.Method = domain.MethodWalletGateway
	_, err := e.svc.Authorize(context.Background(), req)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = e.payments.GetByJob("visit-1", domain.JobVisit)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAuthorizeRejectsWrongPayer(t *testing.T) {
	e := newEnv(t)
	e.seedVisit(t, domain.JobStatusAssigned)

	req := validRequest()
	req.PayerID = "stranger"
	_, err := e.svc.Authorize(context.Background(), req)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "payerId", verr.Field)
}

func TestAuthorizeMaintenanceAllowsBroker(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.jobs.Insert(&domain.Job{
		ID:        "mnt-1",
		Type:      domain.JobMaintenance,
		Status:    domain.JobStatusAssigned,
		OwnerID:   "owner-1",
		BrokerID:  "broker-1",
		PayeeID:   "contractor-1",
		CreatedAt: time.Now().UTC(),
	}))

	req := validRequest()
	req.JobID = "mnt-1"
	req.JobType = domain.JobMaintenance
	req.PayerID = "broker-1"

	res, err := e.svc.Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestAuthorizeRejectsCancelledJob(t *testing.T) {
	e := newEnv(t)
	e.seedVisit(t, domain.JobStatusCancelled)

	_, err := e.svc.Authorize(context.Background(), validRequest())

	var berr *domain.BusinessLogicError
	require.ErrorAs(t, err, &berr)
}

func TestAuthorizeRejectsMissingJob(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Authorize(context.Background(), validRequest())

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "jobId", verr.Field)
}

func TestAuthorizeDeclineFailsRecordAndUnblocksRetry(t *testing.T) {
	e := newEnv(t)
	e.seedVisit(t, domain.JobStatusAssigned)
	e.adapter.authErr = &domain.ProviderError{
		Provider: "fake", Code: "card_declined", Msg: "insufficient funds",
	}

	res, err := e.svc.Authorize(context.Background(), validRequest())
	require.NoError(t, err, "provider declines are outcomes, not errors")
	require.False(t, res.Success)
	assert.Equal(t, domain.StatusFailed, res.Payment.Status)
	assert.Contains(t, res.Payment.FailureReason, "card_declined")
	assert.True(t, res.Payment.Reauthorizable())

	// A failed attempt does not block the job: a fresh authorization creates
	// a new record.
	e.adapter.authErr = nil
	retry, err := e.svc.Authorize(context.Background(), validRequest())
	require.NoError(t, err)
	require.True(t, retry.Success)
	assert.NotEqual(t, res.Payment.ID, retry.Payment.ID)
	assert.Equal(t, domain.StatusAuthorized, retry.Payment.Status)
}

func TestAuthorizeInputValidation(t *testing.T) {
	e := newEnv(t)
	e.seedVisit(t, domain.JobStatusAssigned)

	cases := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"missing job id", func(r *Request) { r.JobID = "" }, "jobId"},
		{"bad job type", func(r *Request) { r.JobType = "GIG" }, "jobType"},
		{"missing payer", func(r *Request) { r.PayerID = "" }, "payerId"},
		{"zero amount", func(r *Request) { r.Amount = 0 }, "amount"},
		{"negative amount", func(r *Request) { r.Amount = -5 }, "amount"},
		{"bad currency", func(r *Request) { r.Currency = "USDT" }, "currency"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)

			_, err := e.svc.Authorize(context.Background(), req)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
	assert.Equal(t, 0, e.adapter.authorizeCalls)
}
