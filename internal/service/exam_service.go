package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/provex/proctor-backend/internal/config"
	"github.com/provex/proctor-backend/internal/model"
	"github.com/provex/proctor-backend/internal/repository"
	"github.com/provex/proctor-backend/internal/response"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Domain Errors
var (
	ErrNotExamAuthor    = errors.New("not the author of this exam")
	ErrNoQuestions      = errors.New("exam has no questions, cannot publish")
	ErrExamNotDraft     = errors.New("exam status is not DRAFT")
	ErrExamNotPublished = errors.New("exam status is not PUBLISHED")
	ErrBadPassingMarks  = errors.New("passing marks exceed question count")
)

// ExamService handles exam business logic and Redis caching.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// GetByID retrieves an exam definition by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	return s.examRepo.GetByID(ctx, id)
}

// ListByAuthor retrieves an author's exams with pagination.
func (s *ExamService) ListByAuthor(ctx context.Context, authorID, page, perPage int) ([]model.ExamDefinition, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	limit := perPage
	offset := (page - 1) * perPage

	exams, total, err := s.examRepo.ListByAuthorPaginated(ctx, authorID, limit, offset)
	if err != nil {
		return nil, nil, err
	}

	if exams == nil {
		exams = []model.ExamDefinition{}
	}

	totalPages := (total + perPage - 1) / perPage

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}

	return exams, pagination, nil
}

// Create inserts a new exam as DRAFT.
func (s *ExamService) Create(ctx context.Context, exam *model.ExamDefinition) error {
	exam.Status = model.ExamStatusDraft
	return s.examRepo.Create(ctx, exam)
}

// Publish changes exam status to PUBLISHED and caches the payload + answer key
// in Redis. This is the critical path that populates the fast lane candidates
// hit when an exam opens.
func (s *ExamService) Publish(ctx context.Context, examID uuid.UUID, authorID int) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}

	if authorID != 0 && exam.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}

	if err := s.WarmExamCache(ctx, exam); err != nil {
		return err
	}

	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam published")
	return nil
}

// RefreshCache re-caches the payload + answer key for a published exam.
// Called when questions are updated after publish.
func (s *ExamService) RefreshCache(ctx context.Context, examID uuid.UUID, authorID int) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}

	if authorID != 0 && exam.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusPublished {
		return ErrExamNotPublished
	}

	if err := s.WarmExamCache(ctx, exam); err != nil {
		return err
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Cache refreshed")
	return nil
}

// WarmExamCache loads an exam's payload and answer key from PostgreSQL into
// Redis. Core cache-warming logic used by Publish, RefreshCache, and
// PrewarmAllCaches. The answer key hash is keyed by question index so the
// grading path never touches PostgreSQL.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.ExamDefinition) error {
	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}
	if exam.PassingMarks > len(questions) {
		return ErrBadPassingMarks
	}

	candidateQuestions := make([]model.QuestionForCandidate, len(questions))
	for i, q := range questions {
		candidateQuestions[i] = q.ForCandidate()
	}

	payload := model.ExamPayload{
		ExamID:          exam.ID,
		Title:           exam.Title,
		DurationSeconds: exam.DurationSeconds,
		TotalMarks:      exam.TotalMarks,
		PassingMarks:    exam.PassingMarks,
		StartWindow:     exam.StartWindow,
		EndWindow:       exam.EndWindow,
		Questions:       candidateQuestions,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	answerKey := make(map[string]interface{}, len(questions))
	for i, q := range questions {
		answerKey[strconv.Itoa(i)] = q.CorrectOption
	}

	examID := exam.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamPayloadKey(examID), payloadJSON, 0)
	pipe.Set(ctx, config.CacheKey.ExamDurationKey(examID), exam.DurationSeconds, 0)
	pipe.Del(ctx, config.CacheKey.ExamAnswerKey(examID))
	pipe.HSet(ctx, config.CacheKey.ExamAnswerKey(examID), answerKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", examID).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published exams into Redis on application startup.
// This prevents any lazy-loading race conditions under thundering herd traffic.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(exams)).Msg("Prewarming published exams...")

	warmed := 0
	for i := range exams {
		if err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// GetExamPayload retrieves the cached candidate payload from Redis. On a cache
// miss for a published exam it self-heals by rewarming from PostgreSQL.
func (s *ExamService) GetExamPayload(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	key := config.CacheKey.ExamPayloadKey(examID.String())
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		exam, repoErr := s.examRepo.GetByID(ctx, examID)
		if repoErr != nil {
			return nil, repoErr
		}
		if exam.Status != model.ExamStatusPublished {
			return nil, ErrExamNotPublished
		}
		if repoErr := s.WarmExamCache(ctx, exam); repoErr != nil {
			return nil, repoErr
		}
		data, err = s.rdb.Get(ctx, key).Bytes()
	}
	if err != nil {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	var payload model.ExamPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}

// GetAnswerKey retrieves the answer key from Redis, keyed by question index.
func (s *ExamService) GetAnswerKey(ctx context.Context, examID uuid.UUID) (map[string]string, error) {
	result, err := s.rdb.HGetAll(ctx, config.CacheKey.ExamAnswerKey(examID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	if len(result) == 0 {
		return nil, errors.New("answer key not found in cache")
	}
	return result, nil
}

// GetDefinition assembles a full exam definition, correct options included,
// from the Redis fast lane. Falls back to PostgreSQL when the cache is cold.
// This is what the session controller grades against.
func (s *ExamService) GetDefinition(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	payload, err := s.GetExamPayload(ctx, examID)
	if err != nil {
		return nil, err
	}

	answerKey, err := s.GetAnswerKey(ctx, examID)
	if err != nil {
		// Payload present but key hash missing. Self-heal from PostgreSQL.
		return s.definitionFromPostgres(ctx, examID)
	}

	questions := make([]model.Question, len(payload.Questions))
	for i, q := range payload.Questions {
		correct, ok := answerKey[strconv.Itoa(i)]
		if !ok {
			return s.definitionFromPostgres(ctx, examID)
		}
		questions[i] = model.Question{
			ID:            q.ID,
			ExamID:        examID,
			Prompt:        q.Prompt,
			Options:       q.Options,
			CorrectOption: correct,
			OrderNum:      q.OrderNum,
		}
	}

	return &model.ExamDefinition{
		ID:              payload.ExamID,
		Title:           payload.Title,
		DurationSeconds: payload.DurationSeconds,
		TotalMarks:      payload.TotalMarks,
		PassingMarks:    payload.PassingMarks,
		StartWindow:     payload.StartWindow,
		EndWindow:       payload.EndWindow,
		Status:          model.ExamStatusPublished,
		Questions:       questions,
	}, nil
}

func (s *ExamService) definitionFromPostgres(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}
	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, err
	}
	exam.Questions = questions
	return exam, nil
}

// Update modifies an existing draft exam.
func (s *ExamService) Update(ctx context.Context, authorID int, exam *model.ExamDefinition) error {
	existing, err := s.examRepo.GetByID(ctx, exam.ID)
	if err != nil {
		return err
	}
	if authorID != 0 && existing.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if existing.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.examRepo.Update(ctx, exam)
}

// Delete removes a draft exam.
func (s *ExamService) Delete(ctx context.Context, id uuid.UUID, authorID int) error {
	existing, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if authorID != 0 && existing.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if existing.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.examRepo.Delete(ctx, id)
}

// ReplaceQuestions swaps the full question set for a draft exam.
func (s *ExamService) ReplaceQuestions(ctx context.Context, examID uuid.UUID, authorID int, questions []model.Question) error {
	existing, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return err
	}
	if authorID != 0 && existing.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if existing.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.questionRepo.ReplaceAll(ctx, examID, questions)
}

// ListQuestions retrieves an exam's questions for its author.
func (s *ExamService) ListQuestions(ctx context.Context, examID uuid.UUID, authorID int) ([]model.Question, error) {
	existing, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if authorID != 0 && existing.AuthorID != authorID {
		return nil, ErrNotExamAuthor
	}
	return s.questionRepo.ListByExam(ctx, examID)
}
