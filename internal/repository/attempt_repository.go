package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provex/proctor-backend/internal/model"
)

// AttemptResult combines candidate data with their attempt details, as shown
// on the examiner's results page.
type AttemptResult struct {
	StudentID    int                `json:"student_id"`
	Name         string             `json:"name"`
	Number       string             `json:"number"`
	Phase        model.AttemptPhase `json:"phase"`
	CorrectCount *int               `json:"correct_count"`
	Verdict      *model.Verdict     `json:"verdict"`
	EndTrigger   *string            `json:"end_trigger"`
	StartedAt    *time.Time         `json:"started_at"`
	FinishedAt   *time.Time         `json:"finished_at"`
}

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// GetByExamAndStudent retrieves an attempt for a specific exam-candidate pair.
func (r *AttemptRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, student_id, phase, started_at, finished_at,
		        violation_count, end_trigger, correct_count, verdict
		 FROM attempts
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	).Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Phase, &a.StartedAt, &a.FinishedAt,
		&a.ViolationCount, &a.EndTrigger, &a.CorrectCount, &a.Verdict)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Open inserts the attempt row when the candidate enters InProgress. The
// insert is idempotent per exam+candidate: a concurrent or repeated open
// hits the conflict clause and returns no row.
func (r *AttemptRepository) Open(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (exam_id, student_id, phase)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id, started_at`,
		a.ExamID, a.StudentID, model.PhaseInProgress,
	).Scan(&a.ID, &a.StartedAt)
}

// Complete marks an attempt as completed with its grading outcome.
func (r *AttemptRepository) Complete(ctx context.Context, report *model.Report) error {
	now := time.Now()
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET phase = $1, correct_count = $2, verdict = $3, end_trigger = $4, finished_at = $5
		 WHERE exam_id = $6 AND student_id = $7`,
		model.PhaseCompleted, report.CorrectCount(), report.Verdict, report.Trigger, now,
		report.ExamID, report.StudentID)
	return err
}

// BumpViolations synchronizes the attempt row's violation counter with the
// in-memory watchdog count. Monotonic: the stored value never decreases.
func (r *AttemptRepository) BumpViolations(ctx context.Context, examID uuid.UUID, studentID, count int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET violation_count = GREATEST(violation_count, $1)
		 WHERE exam_id = $2 AND student_id = $3`,
		count, examID, studentID)
	return err
}

// ListByStudent retrieves all attempts for a given candidate.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, student_id, phase, started_at, finished_at,
		        violation_count, end_trigger, correct_count, verdict
		 FROM attempts
		 WHERE student_id = $1
		 ORDER BY started_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Phase, &a.StartedAt, &a.FinishedAt,
			&a.ViolationCount, &a.EndTrigger, &a.CorrectCount, &a.Verdict); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListByExam retrieves paginated attempt results for the examiner view.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]AttemptResult, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	rows, err := r.pool.Query(ctx,
		`SELECT a.student_id, s.name, s.number, a.phase,
		        a.correct_count, a.verdict, a.end_trigger, a.started_at, a.finished_at
		 FROM attempts a
		 JOIN students s ON s.id = a.student_id
		 WHERE a.exam_id = $1
		 ORDER BY s.name
		 LIMIT $2 OFFSET $3`, examID, perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []AttemptResult
	for rows.Next() {
		var res AttemptResult
		if err := rows.Scan(&res.StudentID, &res.Name, &res.Number, &res.Phase,
			&res.CorrectCount, &res.Verdict, &res.EndTrigger, &res.StartedAt, &res.FinishedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}
