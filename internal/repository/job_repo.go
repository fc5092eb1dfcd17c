package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rentora/payments/internal/domain"
)

// JobRepo reads job lifecycle state from the dispatch/contracting side of the
// platform. The payment engine never writes here; the insert and status
// helpers exist for seeding and tests.
type JobRepo struct {
	db *sql.DB
}

func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db}
}

// Get resolves a job of any type into the engine's common view, including the
// payer/payee parties for that job type.
func (r *JobRepo) Get(jobID string, jobType domain.JobType) (*domain.Job, error) {
	switch jobType {
	case domain.JobVisit:
		return r.getVisit(jobID)
	case domain.JobServiceJob:
		return r.getServiceJob(jobID)
	case domain.JobMaintenance:
		return r.getMaintenanceJob(jobID)
	default:
		return nil, domain.Validationf("jobType", "unsupported job type %q", jobType)
	}
}

func (r *JobRepo) getVisit(id string) (*domain.Job, error) {
	row := r.db.QueryRow(
		`SELECT id, owner_id, agent_id, status, created_at, completed_at
		FROM visits WHERE id = ?`, id)

	j := domain.Job{Type: domain.JobVisit}
	var status, createdAt string
	var completedAt sql.NullString
	err := row.Scan(&j.ID, &j.OwnerID, &j.PayeeID, &status, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan visit: %w", err)
	}
	finishJob(&j, status, createdAt, completedAt)
	return &j, nil
}

func (r *JobRepo) getServiceJob(id string) (*domain.Job, error) {
	row := r.db.QueryRow(
		`SELECT id, requester_id, provider_id, status, created_at, completed_at
		FROM service_jobs WHERE id = ?`, id)

	j := domain.Job{Type: domain.JobServiceJob}
	var status, createdAt string
	var completedAt sql.NullString
	err := row.Scan(&j.ID, &j.OwnerID, &j.PayeeID, &status, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan service job: %w", err)
	}
	finishJob(&j, status, createdAt, completedAt)
	return &j, nil
}

func (r *JobRepo) getMaintenanceJob(id string) (*domain.Job, error) {
	row := r.db.QueryRow(
		`SELECT id, owner_id, broker_id, contractor_id, status, created_at, completed_at
		FROM maintenance_jobs WHERE id = ?`, id)

	j := domain.Job{Type: domain.JobMaintenance}
	var status, createdAt string
	var completedAt sql.NullString
	err := row.Scan(&j.ID, &j.OwnerID, &j.BrokerID, &j.PayeeID, &status, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan maintenance job: %w", err)
	}
	finishJob(&j, status, createdAt, completedAt)
	return &j, nil
}

// Insert stores a job row in the table matching its type. Seeding/tests only.
func (r *JobRepo) Insert(j *domain.Job) error {
	var err error
	switch j.Type {
	case domain.JobVisit:
		_, err = r.db.Exec(
			`INSERT INTO visits (id, owner_id, agent_id, status, created_at, completed_at)
			VALUES (?,?,?,?,?,?)`,
			j.ID, j.OwnerID, j.PayeeID, string(j.Status),
			j.CreatedAt.Format(timeLayout), formatNullableTime(j.CompletedAt))
	case domain.JobServiceJob:
		_, err = r.db.Exec(
			`INSERT INTO service_jobs (id, requester_id, provider_id, status, created_at, completed_at)
			VALUES (?,?,?,?,?,?)`,
			j.ID, j.OwnerID, j.PayeeID, string(j.Status),
			j.CreatedAt.Format(timeLayout), formatNullableTime(j.CompletedAt))
	case domain.JobMaintenance:
		_, err = r.db.Exec(
			`INSERT INTO maintenance_jobs (id, owner_id, broker_id, contractor_id, status, created_at, completed_at)
			VALUES (?,?,?,?,?,?,?)`,
			j.ID, j.OwnerID, j.BrokerID, j.PayeeID, string(j.Status),
			j.CreatedAt.Format(timeLayout), formatNullableTime(j.CompletedAt))
	default:
		return domain.Validationf("jobType", "unsupported job type %q", j.Type)
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// SetStatus updates a job's lifecycle status. Seeding/tests only.
func (r *JobRepo) SetStatus(jobID string, jobType domain.JobType, status domain.JobStatus) error {
	table := map[domain.JobType]string{
		domain.JobVisit:       "visits",
		domain.JobServiceJob:  "service_jobs",
		domain.JobMaintenance: "maintenance_jobs",
	}[jobType]
	if table == "" {
		return domain.Validationf("jobType", "unsupported job type %q", jobType)
	}

	var completedAt any
	if status == domain.JobStatusCompleted {
		completedAt = time.Now().UTC().Format(timeLayout)
	}
	_, err := r.db.Exec(
		`UPDATE `+table+` SET status = ?, completed_at = COALESCE(?, completed_at) WHERE id = ?`,
		string(status), completedAt, jobID,
	)
	if err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}

func finishJob(j *domain.Job, status, createdAt string, completedAt sql.NullString) {
	j.Status = domain.JobStatus(status)
	j.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	j.CompletedAt = parseNullableTime(completedAt)
}
