package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provex/proctor-backend/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam definition by its UUID, without questions.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	e := &model.ExamDefinition{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, author_id, duration_seconds, total_marks, passing_marks,
		        start_window, end_window, status, created_at, updated_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.AuthorID, &e.DurationSeconds, &e.TotalMarks, &e.PassingMarks,
		&e.StartWindow, &e.EndWindow, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListByAuthorPaginated retrieves exams filtered by author with pagination.
// Pass authorID=0 to list all exams.
func (r *ExamRepository) ListByAuthorPaginated(ctx context.Context, authorID, limit, offset int) ([]model.ExamDefinition, int, error) {
	countQuery := `SELECT COUNT(*) FROM exams`
	var countArgs []interface{}
	if authorID > 0 {
		countQuery += ` WHERE author_id = $1`
		countArgs = append(countArgs, authorID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, title, author_id, duration_seconds, total_marks, passing_marks,
	                 start_window, end_window, status, created_at, updated_at
	          FROM exams`
	var args []interface{}
	argIdx := 1

	if authorID > 0 {
		query += ` WHERE author_id = $1`
		args = append(args, authorID)
		argIdx++
	}

	query += ` ORDER BY created_at DESC LIMIT $` + formatInt(argIdx) + ` OFFSET $` + formatInt(argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.ExamDefinition
	for rows.Next() {
		var e model.ExamDefinition
		if err := rows.Scan(&e.ID, &e.Title, &e.AuthorID, &e.DurationSeconds, &e.TotalMarks, &e.PassingMarks,
			&e.StartWindow, &e.EndWindow, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		exams = append(exams, e)
	}
	return exams, total, rows.Err()
}

func formatInt(n int) string {
	// simple helper safe for low numbers
	if n == 1 {
		return "1"
	}
	if n == 2 {
		return "2"
	}
	if n == 3 {
		return "3"
	}
	return "4"
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.ExamDefinition) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, author_id, duration_seconds, total_marks, passing_marks, start_window, end_window, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.AuthorID, e.DurationSeconds, e.TotalMarks, e.PassingMarks,
		e.StartWindow, e.EndWindow, e.Status,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update persists changed exam fields.
func (r *ExamRepository) Update(ctx context.Context, e *model.ExamDefinition) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET title = $1, duration_seconds = $2, total_marks = $3, passing_marks = $4,
		     start_window = $5, end_window = $6, updated_at = NOW()
		 WHERE id = $7`,
		e.Title, e.DurationSeconds, e.TotalMarks, e.PassingMarks,
		e.StartWindow, e.EndWindow, e.ID)
	return err
}

// UpdateStatus updates an exam's status.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	return err
}

// ListPublished returns all exams with PUBLISHED status.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.ExamDefinition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, author_id, duration_seconds, total_marks, passing_marks,
		        start_window, end_window, status, created_at, updated_at
		 FROM exams WHERE status = $1
		 ORDER BY created_at DESC`, model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.ExamDefinition
	for rows.Next() {
		var e model.ExamDefinition
		if err := rows.Scan(&e.ID, &e.Title, &e.AuthorID, &e.DurationSeconds, &e.TotalMarks, &e.PassingMarks,
			&e.StartWindow, &e.EndWindow, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Delete removes an exam and, via FK cascade, its questions.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	return err
}
