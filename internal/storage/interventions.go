package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"beacon/internal/domain"
)

// InterventionStore persists autonomously proposed actions. This engine reads
// them to decide dispatch eligibility and updates only their status.
type InterventionStore struct {
	db *sql.DB
}

// Save inserts or replaces an intervention.
func (s *InterventionStore) Save(ctx context.Context, iv domain.Intervention) error {
	if iv.ID == "" || iv.TenantID == "" {
		return errors.New("interventions: id and tenant_id are required")
	}
	createdAt := iv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interventions
			(id, tenant_id, title, benefit_score, verdict, status, user_feedback, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			benefit_score = excluded.benefit_score,
			verdict = excluded.verdict,
			status = excluded.status,
			user_feedback = excluded.user_feedback`,
		iv.ID, iv.TenantID, iv.Title, iv.BenefitScore, string(iv.Verdict),
		string(iv.Status), iv.UserFeedback, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("interventions: save %s: %w", iv.ID, err)
	}
	return nil
}

// Get loads one intervention.
func (s *InterventionStore) Get(ctx context.Context, id string) (*domain.Intervention, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, title, benefit_score, verdict, status, user_feedback, created_at
		FROM interventions WHERE id = ?`, id)
	iv, err := scanIntervention(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("interventions: %w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("interventions: get %s: %w", id, err)
	}
	return iv, nil
}

// NextProposed returns the oldest proposed intervention for a tenant, or nil
// when none is pending.
func (s *InterventionStore) NextProposed(ctx context.Context, tenantID string) (*domain.Intervention, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, title, benefit_score, verdict, status, user_feedback, created_at
		FROM interventions
		WHERE tenant_id = ? AND status = 'proposed'
		ORDER BY created_at ASC LIMIT 1`, tenantID)
	iv, err := scanIntervention(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("interventions: next proposed: %w", err)
	}
	return iv, nil
}

// SetStatus advances an intervention's lifecycle.
func (s *InterventionStore) SetStatus(ctx context.Context, id string, status domain.InterventionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE interventions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("interventions: set status %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("interventions: %w: %s", ErrNotFound, id)
	}
	return nil
}

func scanIntervention(r rowScanner) (*domain.Intervention, error) {
	var (
		iv              domain.Intervention
		verdict, status string
		createdAt       int64
	)
	err := r.Scan(&iv.ID, &iv.TenantID, &iv.Title, &iv.BenefitScore, &verdict,
		&status, &iv.UserFeedback, &createdAt)
	if err != nil {
		return nil, err
	}
	iv.Verdict = domain.GuardianVerdict(verdict)
	iv.Status = domain.InterventionStatus(status)
	iv.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &iv, nil
}
