package domain

import "time"

type PaymentStatus string

const (
	StatusPending    PaymentStatus = "PENDING"
	StatusAuthorized PaymentStatus = "AUTHORIZED"
	StatusProcessing PaymentStatus = "PROCESSING"
	StatusCompleted  PaymentStatus = "COMPLETED"
	StatusFailed     PaymentStatus = "FAILED"
	StatusRefunded   PaymentStatus = "REFUNDED"
)

// Terminal reports whether a record in this status can never transition again.
// FAILED is terminal only once retries are exhausted; that check lives on the
// record itself (see PaymentRecord.RetriesExhausted).
func (s PaymentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRefunded
}

type JobType string

const (
	JobVisit       JobType = "VISIT"
	JobServiceJob  JobType = "SERVICE_JOB"
	JobMaintenance JobType = "MAINTENANCE"
)

func (t JobType) Valid() bool {
	switch t {
	case JobVisit, JobServiceJob, JobMaintenance:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodCardGateway    PaymentMethod = "CARD_GATEWAY"
	MethodWalletGateway  PaymentMethod = "WALLET_GATEWAY"
	MethodBankRedirect   PaymentMethod = "BANK_REDIRECT"
	MethodVoucherGateway PaymentMethod = "VOUCHER_GATEWAY"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCardGateway, MethodWalletGateway, MethodBankRedirect, MethodVoucherGateway:
		return true
	}
	return false
}

// DefaultMaxRetries is the capture attempt ceiling applied to new records.
const DefaultMaxRetries = 3

// PaymentRecord is the unit of isolation for the whole engine: one row per
// payment attempt for a (jobID, jobType) pair. Amounts are integer minor
// currency units (cents, etc.) and Amount is immutable after creation.
// Commission and NetAmount are written exactly once, atomically with the
// COMPLETED transition, and always satisfy Commission+NetAmount == Amount.
type PaymentRecord struct {
	ID      string  `json:"id"`
	JobID   string  `json:"job_id"`
	JobType JobType `json:"job_type"`

	PayerID string `json:"payer_id"`
	PayeeID string `json:"payee_id"`

	Amount   int64         `json:"amount"`
	Currency string        `json:"currency"`
	Method   PaymentMethod `json:"method"`
	Status   PaymentStatus `json:"status"`

	ExternalAuthorizationID string `json:"external_authorization_id,omitempty"`
	ExternalTransactionID   string `json:"external_transaction_id,omitempty"`

	Commission *int64 `json:"commission,omitempty"`
	NetAmount  *int64 `json:"net_amount,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	FailureReason string `json:"failure_reason,omitempty"`
	RefundReason  string `json:"refund_reason,omitempty"`

	ProviderMetadata *ProviderMetadata `json:"provider_metadata,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	AuthorizedAt  *time.Time `json:"authorized_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// RetriesExhausted reports whether the record has used up its capture budget.
func (p *PaymentRecord) RetriesExhausted() bool {
	return p.RetryCount >= p.MaxRetries
}

// Reauthorizable reports whether a fresh authorization attempt may create a
// new record for the same job. Only a failed attempt unblocks the job.
func (p *PaymentRecord) Reauthorizable() bool {
	return p.Status == StatusFailed
}
