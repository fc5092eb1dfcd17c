package repository

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentora/payments/internal/domain"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newRecord(jobID string) *domain.PaymentRecord {
	return &domain.PaymentRecord{
		ID:         uuid.NewString(),
		JobID:      jobID,
		JobType:    domain.JobVisit,
		PayerID:    "owner-1",
		PayeeID:    "agent-1",
		Amount:     500_000,
		Currency:   "USD",
		Method:     domain.MethodCardGateway,
		Status:     domain.StatusPending,
		MaxRetries: domain.DefaultMaxRetries,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestInsertAndGetRoundtrip(t *testing.T) {
	repo := NewPaymentRepo(testDB(t))

	rec := newRecord("visit-1")
	rec.ProviderMetadata = &domain.ProviderMetadata{
		Card: &domain.CardMetadata{ClientToken: "tok_123", CardBrand: "visa", Last4: "4242"},
	}
	require.NoError(t, repo.Insert(rec))

	got, err := repo.GetByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.JobID, got.JobID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, int64(500_000), got.Amount)
	require.NotNil(t, got.ProviderMetadata)
	require.NotNil(t, got.ProviderMetadata.Card)
	assert.Equal(t, "tok_123", got.ProviderMetadata.Card.ClientToken)
	assert.Nil(t, got.Commission)
	assert.Nil(t, got.ProcessedAt)
}

func TestGetByIDNotFound(t *testing.T) {
	repo := NewPaymentRepo(testDB(t))

	_, err := repo.GetByID("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConditionalTransitions(t *testing.T) {
	repo := NewPaymentRepo(testDB(t))
	rec := newRecord("visit-1")
	require.NoError(t, repo.Insert(rec))

	now := time.Now().UTC()

	// PENDING -> AUTHORIZED.
	meta := &domain.ProviderMetadata{Card: &domain.CardMetadata{ClientToken: "tok"}}
	require.NoError(t, repo.MarkAuthorized(rec.ID, "auth-1", meta, now))

	// Replaying the same transition loses: the record is no longer PENDING.
	assert.ErrorIs(t, repo.MarkAuthorized(rec.ID, "auth-2", nil, now), domain.ErrConflict)

	// AUTHORIZED -> PROCESSING; only one caller wins.
	require.NoError(t, repo.BeginProcessing(rec.ID, now))
	assert.ErrorIs(t, repo.BeginProcessing(rec.ID, now), domain.ErrConflict)

	// PROCESSING -> COMPLETED stores the split atomically.
	require.NoError(t, repo.MarkCompleted(rec.ID, "txn-1", 40_000, 460_000, now))

	got, err := repo.GetByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, "auth-1", got.ExternalAuthorizationID)
	assert.Equal(t, "txn-1", got.ExternalTransactionID)
	require.NotNil(t, got.Commission)
	require.NotNil(t, got.NetAmount)
	assert.Equal(t, int64(40_000), *got.Commission)
	assert.Equal(t, int64(460_000), *got.NetAmount)
	assert.Equal(t, got.Amount, *got.Commission+*got.NetAmount)
	require.NotNil(t, got.ProcessedAt)
}

func TestOnlyOneCompletedPerJob(t *testing.T) {
	repo := NewPaymentRepo(testDB(t))
	now := time.Now().UTC()

	first := newRecord("visit-1")
	require.NoError(t, repo.Insert(first))
	require.NoError(t, repo.MarkAuthorized(first.ID, "auth-1", nil, now))
	require.NoError(t, repo.BeginProcessing(first.ID, now))
	require.NoError(t, repo.MarkCompleted(first.ID, "txn-1", 40_000, 460_000, now))

	// A second record for the same job can exist (e.g. after a failed first
	// attempt) but can never also reach COMPLETED.
	second := newRecord("visit-1")
	require.NoError(t, repo.Insert(second))
	require.NoError(t, repo.MarkAuthorized(second.ID, "auth-2", nil, now))
	require.NoError(t, repo.BeginProcessing(second.ID, now))

	err := repo.MarkCompleted(second.ID, "txn-2", 40_000, 460_000, now)
	assert.ErrorIs(t, err, domain.ErrDuplicateCompleted)
}

func TestReleaseForRetryBumpsCounter(t *testing.T) {
	repo := NewPaymentRepo(testDB(t))
	now := time.Now().UTC()

	rec := newRecord("visit-1")
	require.NoError(t, repo.Insert(rec))
	require.NoError(t, repo.MarkAuthorized(rec.ID, "auth-1", nil, now))

	for attempt := 1; attempt <= 2; attempt++ {
		require.NoError(t, repo.BeginProcessing(rec.ID, now))
		require.NoError(t, repo.ReleaseForRetry(rec.ID, "gateway timeout"))

		got, err := repo.GetByID(rec.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAuthorized, got.Status)
		assert.Equal(t, attempt, got.RetryCount)
		assert.Equal(t, "gateway timeout", got.FailureReason)
	}

	// Final attempt fails permanently; the counter never passes the ceiling.
	require.NoError(t, repo.BeginProcessing(rec.ID, now))
	require.NoError(t, repo.MarkCaptureFailed(rec.ID, "still down"))

	got, err := repo.GetByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, got.MaxRetries, got.RetryCount)
}

func TestReleaseForRetryRefusesAtCeiling(t *testing.T) {
	repo := NewPaymentRepo(testDB(t))
	now := time.Now().UTC()

	rec := newRecord("visit-1")
	rec.RetryCount = rec.MaxRetries
	require.NoError(t, repo.Insert(rec))
	require.NoError(t, repo.MarkAuthorized(rec.ID, "auth-1", nil, now))
	require.NoError(t, repo.BeginProcessing(rec.ID, now))

	assert.ErrorIs(t, repo.ReleaseForRetry(rec.ID, "x"), domain.ErrConflict)
}

func TestReleaseKeepsCounter(t *testing.T) {
	repo := NewPaymentRepo(testDB(t))
	now := time.Now().UTC()

	rec := newRecord("visit-1")
	rec.RetryCount = rec.MaxRetries
	require.NoError(t, repo.Insert(rec))
	require.NoError(t, repo.MarkAuthorized(rec.ID, "auth-1", nil, now))
	require.NoError(t, repo.BeginProcessing(rec.ID, now))

	// Unlike ReleaseForRetry, Release works at the ceiling and leaves the
	// counter alone.
	require.NoError(t, repo.Release(rec.ID, "no provider configured"))

	got, err := repo.GetByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorized, got.Status)
	assert.Equal(t, rec.MaxRetries, got.RetryCount)
	assert.Equal(t, "no provider configured", got.FailureReason)

	assert.ErrorIs(t, repo.Release(rec.ID, "x"), domain.ErrConflict)
}

func TestOnlyOneInflightPerJob(t *testing.T) {
	repo := NewPaymentRepo(testDB(t))

	first := newRecord("visit-1")
	require.NoError(t, repo.Insert(first))

	// A competing attempt for the same job cannot open a second live record.
	second := newRecord("visit-1")
	assert.ErrorIs(t, repo.Insert(second), domain.ErrConflict)

	// Once the first attempt fails, a fresh record may open.
	require.NoError(t, repo.MarkAuthFailed(first.ID, "declined"))
	require.NoError(t, repo.Insert(second))
}

func TestFindActiveSkipsFailed(t *testing.T) {
	repo := NewPaymentRepo(testDB(t))

	failed := newRecord("visit-1")
	require.NoError(t, repo.Insert(failed))
	require.NoError(t, repo.MarkAuthFailed(failed.ID, "declined"))

	_, err := repo.FindActive("visit-1", domain.JobVisit)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	live := newRecord("visit-1")
	live.CreatedAt = time.Now().UTC().Add(time.Second)
	require.NoError(t, repo.Insert(live))

	got, err := repo.FindActive("visit-1", domain.JobVisit)
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)
}

func TestRecoverStale(t *testing.T) {
	repo := NewPaymentRepo(testDB(t))
	old := time.Now().UTC().Add(-time.Hour)

	rec := newRecord("visit-1")
	require.NoError(t, repo.Insert(rec))
	require.NoError(t, repo.MarkAuthorized(rec.ID, "auth-1", nil, old))
	require.NoError(t, repo.BeginProcessing(rec.ID, old))

	fresh := newRecord("visit-2")
	require.NoError(t, repo.Insert(fresh))
	require.NoError(t, repo.MarkAuthorized(fresh.ID, "auth-2", nil, old))
	require.NoError(t, repo.BeginProcessing(fresh.ID, time.Now().UTC()))

	n, err := repo.RecoverStale(time.Now().UTC().Add(-5 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorized, got.Status)

	still, err := repo.GetByID(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, still.Status)
}

func TestListAuthorizedRetries(t *testing.T) {
	repo := NewPaymentRepo(testDB(t))
	now := time.Now().UTC()

	// Fresh AUTHORIZED record with no failed attempts: not a retry candidate.
	clean := newRecord("visit-1")
	require.NoError(t, repo.Insert(clean))
	require.NoError(t, repo.MarkAuthorized(clean.ID, "auth-1", nil, now))

	// One failed attempt: candidate.
	retry := newRecord("visit-2")
	require.NoError(t, repo.Insert(retry))
	require.NoError(t, repo.MarkAuthorized(retry.ID, "auth-2", nil, now))
	require.NoError(t, repo.BeginProcessing(retry.ID, now))
	require.NoError(t, repo.ReleaseForRetry(retry.ID, "timeout"))

	// A first attempt that crashed and was recovered has no failed attempts
	// on the counter, only a recorded attempt time: still a candidate.
	crashed := newRecord("visit-3")
	require.NoError(t, repo.Insert(crashed))
	require.NoError(t, repo.MarkAuthorized(crashed.ID, "auth-3", nil, now))
	require.NoError(t, repo.BeginProcessing(crashed.ID, now.Add(-time.Hour)))
	n, err := repo.RecoverStale(now.Add(-5 * time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	candidates, err := repo.ListAuthorizedRetries()
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, crashed.ID, candidates[0].ID, "oldest attempt first")
	assert.Equal(t, 0, candidates[0].RetryCount)
	assert.Equal(t, retry.ID, candidates[1].ID)
	assert.Equal(t, 1, candidates[1].RetryCount)
}

func TestMarkRefundedOnlyFromCompleted(t *testing.T) {
	repo := NewPaymentRepo(testDB(t))
	now := time.Now().UTC()

	rec := newRecord("visit-1")
	require.NoError(t, repo.Insert(rec))
	require.NoError(t, repo.MarkAuthorized(rec.ID, "auth-1", nil, now))

	assert.ErrorIs(t, repo.MarkRefunded(rec.ID, "duplicate booking"), domain.ErrConflict)

	require.NoError(t, repo.BeginProcessing(rec.ID, now))
	require.NoError(t, repo.MarkCompleted(rec.ID, "txn-1", 40_000, 460_000, now))
	require.NoError(t, repo.MarkRefunded(rec.ID, "duplicate booking"))

	got, err := repo.GetByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, got.Status)
	assert.Equal(t, "duplicate booking", got.RefundReason)
}
