package domain

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusAssigned   JobStatus = "ASSIGNED"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// Job is the engine's read-only view of a unit of work owned by the
// job-lifecycle side of the platform. Ownership fields differ per type:
//
//	VISIT        payer = property owner, payee = field agent
//	SERVICE_JOB  payer = requester,      payee = service provider
//	MAINTENANCE  payer = owner or broker, payee = contractor
//
// The engine never writes job state.
type Job struct {
	ID       string    `json:"id"`
	Type     JobType   `json:"type"`
	Status   JobStatus `json:"status"`
	OwnerID  string    `json:"owner_id"`
	BrokerID string    `json:"broker_id,omitempty"`
	PayeeID  string    `json:"payee_id"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PayableBy reports whether userID is allowed to fund this job.
func (j *Job) PayableBy(userID string) bool {
	switch j.Type {
	case JobMaintenance:
		return userID == j.OwnerID || (j.BrokerID != "" && userID == j.BrokerID)
	default:
		return userID == j.OwnerID
	}
}

// Payee holds the earning party's payout state as seen by the engine.
type Payee struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PayoutVerified bool   `json:"payout_verified"`
	Earnings       int64  `json:"earnings"`
}
