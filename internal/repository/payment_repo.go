package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rentora/payments/internal/domain"
)

// PaymentRepo persists PaymentRecords. Every state transition is a single
// conditional UPDATE guarded by the expected source status: the caller that
// sees zero rows affected lost the race and gets domain.ErrConflict. There is
// deliberately no unconditional "save" method.
type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

const paymentColumns = `id, job_id, job_type, payer_id, payee_id, amount, currency,
	method, status, external_authorization_id, external_transaction_id,
	commission, net_amount, retry_count, max_retries, failure_reason,
	refund_reason, provider_metadata, created_at, authorized_at, processed_at,
	last_attempt_at`

func (r *PaymentRepo) Insert(p *domain.PaymentRecord) error {
	meta := ""
	if p.ProviderMetadata != nil {
		var err error
		meta, err = p.ProviderMetadata.Marshal()
		if err != nil {
			return err
		}
	}

	_, err := r.db.Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.JobID, string(p.JobType), p.PayerID, p.PayeeID, p.Amount,
		p.Currency, string(p.Method), string(p.Status),
		p.ExternalAuthorizationID, p.ExternalTransactionID,
		p.Commission, p.NetAmount, p.RetryCount, p.MaxRetries,
		p.FailureReason, p.RefundReason, meta,
		p.CreatedAt.Format(timeLayout),
		formatNullableTime(p.AuthorizedAt), formatNullableTime(p.ProcessedAt),
		formatNullableTime(p.LastAttemptAt),
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", mapConstraintErr(err))
	}
	return nil
}

func (r *PaymentRepo) GetByID(id string) (*domain.PaymentRecord, error) {
	row := r.db.QueryRow(`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	return scanPayment(row)
}

// GetByJob returns the most recent payment record for a job, if any.
func (r *PaymentRepo) GetByJob(jobID string, jobType domain.JobType) (*domain.PaymentRecord, error) {
	row := r.db.QueryRow(
		`SELECT `+paymentColumns+` FROM payments
		WHERE job_id = ? AND job_type = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`,
		jobID, string(jobType),
	)
	return scanPayment(row)
}

// FindActive returns the job's non-failed, non-refunded record. Completed
// records count as active here so the authorization path can return them
// idempotently instead of opening a second payment.
func (r *PaymentRepo) FindActive(jobID string, jobType domain.JobType) (*domain.PaymentRecord, error) {
	row := r.db.QueryRow(
		`SELECT `+paymentColumns+` FROM payments
		WHERE job_id = ? AND job_type = ?
		  AND status IN ('PENDING','AUTHORIZED','PROCESSING','COMPLETED')
		ORDER BY created_at DESC, id DESC LIMIT 1`,
		jobID, string(jobType),
	)
	return scanPayment(row)
}

// MarkAuthorized moves PENDING -> AUTHORIZED, storing the provider handle and
// the adapter's metadata.
func (r *PaymentRepo) MarkAuthorized(id, externalAuthID string, meta *domain.ProviderMetadata, at time.Time) error {
	metaJSON := ""
	if meta != nil {
		var err error
		metaJSON, err = meta.Marshal()
		if err != nil {
			return err
		}
	}
	return r.transition(
		`UPDATE payments SET status = ?, external_authorization_id = ?,
			provider_metadata = ?, authorized_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.StatusAuthorized), externalAuthID, metaJSON,
		at.Format(timeLayout), id, string(domain.StatusPending),
	)
}

// MarkAuthFailed moves PENDING -> FAILED with the adapter's failure reason.
func (r *PaymentRepo) MarkAuthFailed(id, reason string) error {
	return r.transition(
		`UPDATE payments SET status = ?, failure_reason = ? WHERE id = ? AND status = ?`,
		string(domain.StatusFailed), reason, id, string(domain.StatusPending),
	)
}

// BeginProcessing moves AUTHORIZED -> PROCESSING. Exactly one concurrent
// settlement attempt wins this update; the rest get domain.ErrConflict.
func (r *PaymentRepo) BeginProcessing(id string, at time.Time) error {
	return r.transition(
		`UPDATE payments SET status = ?, last_attempt_at = ? WHERE id = ? AND status = ?`,
		string(domain.StatusProcessing), at.Format(timeLayout),
		id, string(domain.StatusAuthorized),
	)
}

// MarkCompleted moves PROCESSING -> COMPLETED, writing the capture handle and
// the commission split in the same statement so they are atomic with the
// status change.
func (r *PaymentRepo) MarkCompleted(id, externalTxnID string, commission, netAmount int64, at time.Time) error {
	return r.transition(
		`UPDATE payments SET status = ?, external_transaction_id = ?,
			commission = ?, net_amount = ?, processed_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.StatusCompleted), externalTxnID, commission, netAmount,
		at.Format(timeLayout), id, string(domain.StatusProcessing),
	)
}

// ReleaseForRetry moves PROCESSING -> AUTHORIZED after a failed capture that
// still has retry budget, bumping the attempt counter. The counter can never
// pass max_retries: attempts at the ceiling go through MarkCaptureFailed.
func (r *PaymentRepo) ReleaseForRetry(id, reason string) error {
	return r.transition(
		`UPDATE payments SET status = ?, retry_count = retry_count + 1,
			failure_reason = ?
		WHERE id = ? AND status = ? AND retry_count < max_retries`,
		string(domain.StatusAuthorized), reason, id, string(domain.StatusProcessing),
	)
}

// Release moves PROCESSING -> AUTHORIZED without touching the attempt
// counter, for attempts aborted by an engine fault before any provider
// outcome existed. Unlike ReleaseForRetry it works at the retry ceiling.
func (r *PaymentRepo) Release(id, reason string) error {
	return r.transition(
		`UPDATE payments SET status = ?, failure_reason = ? WHERE id = ? AND status = ?`,
		string(domain.StatusAuthorized), reason, id, string(domain.StatusProcessing),
	)
}

// MarkCaptureFailed moves PROCESSING -> FAILED once retries are exhausted.
func (r *PaymentRepo) MarkCaptureFailed(id, reason string) error {
	return r.transition(
		`UPDATE payments SET status = ?, retry_count = retry_count + 1,
			failure_reason = ?
		WHERE id = ? AND status = ?`,
		string(domain.StatusFailed), reason, id, string(domain.StatusProcessing),
	)
}

// MarkRefunded moves COMPLETED -> REFUNDED, recording the operator's reason.
func (r *PaymentRepo) MarkRefunded(id, reason string) error {
	return r.transition(
		`UPDATE payments SET status = ?, refund_reason = ? WHERE id = ? AND status = ?`,
		string(domain.StatusRefunded), reason, id, string(domain.StatusCompleted),
	)
}

// ListAuthorizedRetries returns AUTHORIZED records with at least one capture
// attempt behind them. Matching on last_attempt_at rather than retry_count
// also picks up records whose attempt crashed before the counter moved; a
// record that was never charged has no last_attempt_at and is excluded. The
// scheduler decides which candidates are due.
func (r *PaymentRepo) ListAuthorizedRetries() ([]domain.PaymentRecord, error) {
	rows, err := r.db.Query(
		`SELECT `+paymentColumns+` FROM payments
		WHERE status = ? AND last_attempt_at IS NOT NULL AND retry_count < max_retries
		ORDER BY last_attempt_at`,
		string(domain.StatusAuthorized),
	)
	if err != nil {
		return nil, fmt.Errorf("query retries: %w", err)
	}
	return collectPayments(rows)
}

// RecoverStale releases PROCESSING records whose attempt started before the
// cutoff back to AUTHORIZED. A record is only ever PROCESSING while a capture
// attempt is in flight, so anything older than the coordinator timeout is a
// crashed attempt.
func (r *PaymentRepo) RecoverStale(cutoff time.Time) (int, error) {
	res, err := r.db.Exec(
		`UPDATE payments SET status = ? WHERE status = ? AND last_attempt_at < ?`,
		string(domain.StatusAuthorized), string(domain.StatusProcessing),
		cutoff.Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("recover stale: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PaymentFilter narrows List results.
type PaymentFilter struct {
	JobType string
	Status  string
	PayeeID string
	Page    int
	Limit   int
}

func (r *PaymentRepo) List(f PaymentFilter) ([]domain.PaymentRecord, int, error) {
	where, args := buildPaymentWhere(f)

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM payments"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	query := `SELECT ` + paymentColumns + ` FROM payments` + where +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	records, err := collectPayments(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// --- helpers ---

// transition runs a guarded UPDATE and maps "no rows" to ErrConflict.
func (r *PaymentRepo) transition(query string, args ...any) error {
	res, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("transition: %w", mapConstraintErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrConflict
	}
	return nil
}

func mapConstraintErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "idx_payments_one_completed") {
		return domain.ErrDuplicateCompleted
	}
	if strings.Contains(err.Error(), "idx_payments_one_inflight") {
		return domain.ErrConflict
	}
	return err
}

func buildPaymentWhere(f PaymentFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.JobType != "" {
		clauses = append(clauses, "job_type = ?")
		args = append(args, f.JobType)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.PayeeID != "" {
		clauses = append(clauses, "payee_id = ?")
		args = append(args, f.PayeeID)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(timeLayout)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*domain.PaymentRecord, error) {
	var p domain.PaymentRecord
	var jobType, method, status, createdAt, metaJSON string
	var commission, netAmount sql.NullInt64
	var authorizedAt, processedAt, lastAttemptAt sql.NullString

	err := row.Scan(
		&p.ID, &p.JobID, &jobType, &p.PayerID, &p.PayeeID, &p.Amount,
		&p.Currency, &method, &status,
		&p.ExternalAuthorizationID, &p.ExternalTransactionID,
		&commission, &netAmount, &p.RetryCount, &p.MaxRetries,
		&p.FailureReason, &p.RefundReason, &metaJSON,
		&createdAt, &authorizedAt, &processedAt, &lastAttemptAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	p.JobType = domain.JobType(jobType)
	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	p.CreatedAt, _ = time.Parse(timeLayout, createdAt)

	if commission.Valid {
		v := commission.Int64
		p.Commission = &v
	}
	if netAmount.Valid {
		v := netAmount.Int64
		p.NetAmount = &v
	}
	p.AuthorizedAt = parseNullableTime(authorizedAt)
	p.ProcessedAt = parseNullableTime(processedAt)
	p.LastAttemptAt = parseNullableTime(lastAttemptAt)

	meta, err := domain.UnmarshalProviderMetadata(metaJSON)
	if err != nil {
		return nil, err
	}
	p.ProviderMetadata = meta

	return &p, nil
}

func collectPayments(rows *sql.Rows) ([]domain.PaymentRecord, error) {
	defer rows.Close()
	var out []domain.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}
