package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provex/proctor-backend/internal/model"
)

// ViolationRepository provides data access for the integrity audit trail.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// ListByAttempt retrieves the violation trail for one attempt, oldest first.
func (r *ViolationRepository) ListByAttempt(ctx context.Context, examID uuid.UUID, studentID int) ([]model.Violation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, student_id, event_id, kind, occurred_at, recorded_at
		 FROM exam_violations
		 WHERE exam_id = $1 AND student_id = $2
		 ORDER BY occurred_at`, examID, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []model.Violation
	for rows.Next() {
		var v model.Violation
		if err := rows.Scan(&v.ID, &v.ExamID, &v.StudentID, &v.EventID, &v.Kind, &v.OccurredAt, &v.RecordedAt); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// GetViolationCounts returns the number of integrity events recorded for each
// candidate in the given exam.
func (r *ViolationRepository) GetViolationCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM exam_violations
		 WHERE exam_id = $1
		 GROUP BY student_id`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var sid int
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		counts[sid] = count
	}

	return counts, rows.Err()
}

// Insert records a single violation. The batch path lives in the worker; this
// is the fallback used when a row fails inside a bulk copy.
func (r *ViolationRepository) Insert(ctx context.Context, v *model.Violation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_violations (exam_id, student_id, event_id, kind, occurred_at, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (exam_id, student_id, event_id) DO NOTHING`,
		v.ExamID, v.StudentID, v.EventID, v.Kind, v.OccurredAt, time.Now())
	return err
}
