package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rentora/payments/internal/domain"
)

// PayeeRepo reads payout state and maintains the aggregate earnings counter
// for the earning parties (agents, providers, contractors).
type PayeeRepo struct {
	db *sql.DB
}

func NewPayeeRepo(db *sql.DB) *PayeeRepo {
	return &PayeeRepo{db: db}
}

func (r *PayeeRepo) Get(id string) (*domain.Payee, error) {
	row := r.db.QueryRow(
		`SELECT id, name, payout_verified, earnings FROM payees WHERE id = ?`, id)

	var p domain.Payee
	var verified int
	err := row.Scan(&p.ID, &p.Name, &verified, &p.Earnings)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payee: %w", err)
	}
	p.PayoutVerified = verified != 0
	return &p, nil
}

func (r *PayeeRepo) Insert(p *domain.Payee) error {
	verified := 0
	if p.PayoutVerified {
		verified = 1
	}
	_, err := r.db.Exec(
		`INSERT INTO payees (id, name, payout_verified, earnings) VALUES (?,?,?,?)`,
		p.ID, p.Name, verified, p.Earnings,
	)
	if err != nil {
		return fmt.Errorf("insert payee: %w", err)
	}
	return nil
}

// IncrementEarnings adds delta (minor units, may be negative for refund
// reversal) to the payee's aggregate earnings in a single statement.
func (r *PayeeRepo) IncrementEarnings(id string, delta int64) error {
	res, err := r.db.Exec(
		`UPDATE payees SET earnings = earnings + ? WHERE id = ?`, delta, id)
	if err != nil {
		return fmt.Errorf("increment earnings: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetPayoutVerified flips the payout destination flag. Seeding/tests only.
func (r *PayeeRepo) SetPayoutVerified(id string, verified bool) error {
	v := 0
	if verified {
		v = 1
	}
	_, err := r.db.Exec(`UPDATE payees SET payout_verified = ? WHERE id = ?`, v, id)
	if err != nil {
		return fmt.Errorf("set payout verified: %w", err)
	}
	return nil
}
