package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/provex/proctor-backend/internal/config"
	"github.com/provex/proctor-backend/internal/model"
	"github.com/provex/proctor-backend/internal/repository"
	"github.com/redis/go-redis/v9"
)

// AttemptService handles lobby listing and attempt lifecycle outside the live
// proctored session itself.
type AttemptService struct {
	attemptRepo *repository.AttemptRepository
	examRepo    *repository.ExamRepository
	rdb         *redis.Client
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	examRepo *repository.ExamRepository,
	rdb *redis.Client,
) *AttemptService {
	return &AttemptService{
		attemptRepo: attemptRepo,
		examRepo:    examRepo,
		rdb:         rdb,
	}
}

// LobbyStatus represents the concrete state of an exam in the lobby.
type LobbyStatus string

const (
	LobbyStatusUpcoming   LobbyStatus = "UPCOMING"
	LobbyStatusAvailable  LobbyStatus = "AVAILABLE"
	LobbyStatusInProgress LobbyStatus = "IN_PROGRESS"
	LobbyStatusCompleted  LobbyStatus = "COMPLETED"
	LobbyStatusClosed     LobbyStatus = "CLOSED"
)

// LobbyExam represents an exam as displayed in the candidate lobby.
type LobbyExam struct {
	model.ExamDefinition
	LobbyStatus LobbyStatus         `json:"lobby_status"`
	Phase       *model.AttemptPhase `json:"phase,omitempty"`
	Verdict     *model.Verdict      `json:"verdict,omitempty"`
}

// GetLobby returns published exams overlaid with the candidate's attempt state.
func (s *AttemptService) GetLobby(ctx context.Context, studentID int) ([]LobbyExam, error) {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published exams: %w", err)
	}

	attempts, err := s.attemptRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	attemptMap := make(map[uuid.UUID]*model.Attempt, len(attempts))
	for i := range attempts {
		attemptMap[attempts[i].ExamID] = &attempts[i]
	}

	var lobby []LobbyExam
	now := time.Now()

	for i := range exams {
		exam := &exams[i]
		entry := LobbyExam{ExamDefinition: *exam}

		if att, ok := attemptMap[exam.ID]; ok {
			entry.Phase = &att.Phase
			entry.Verdict = att.Verdict
			if att.Phase == model.PhaseCompleted {
				entry.LobbyStatus = LobbyStatusCompleted
			} else {
				entry.LobbyStatus = LobbyStatusInProgress
			}
		} else if exam.StartWindow != nil && now.Before(*exam.StartWindow) {
			entry.LobbyStatus = LobbyStatusUpcoming
		} else if exam.EndWindow != nil && now.After(*exam.EndWindow) {
			entry.LobbyStatus = LobbyStatusClosed
		} else {
			entry.LobbyStatus = LobbyStatusAvailable
		}

		lobby = append(lobby, entry)
	}

	return lobby, nil
}

// OpenAttempt records the attempt row when the candidate enters InProgress,
// idempotently per exam-candidate pair. A concurrent open on another
// connection resolves to the already-created row.
func (s *AttemptService) OpenAttempt(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	existing, err := s.attemptRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}

	// Already opened, possibly on another device. Make sure Redis still has
	// the start time so state restores stay fast.
	if existing != nil {
		_ = s.rdb.Set(ctx, config.CacheKey.AttemptStartKey(examID.String(), studentID), existing.StartedAt.Unix(), 0)
		return existing, nil
	}

	attempt := &model.Attempt{
		ExamID:    examID,
		StudentID: studentID,
		Phase:     model.PhaseInProgress,
		StartedAt: time.Now(),
	}

	if err := s.attemptRepo.Open(ctx, attempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent open hit the conflict clause. Fetch the winner.
			existing, fetchErr := s.attemptRepo.GetByExamAndStudent(ctx, examID, studentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent open detected, but fetch failed: %w", fetchErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("open attempt: %w", err)
	}

	startKey := config.CacheKey.AttemptStartKey(attempt.ExamID.String(), attempt.StudentID)
	if err := s.rdb.Set(ctx, startKey, attempt.StartedAt.Unix(), 0).Err(); err != nil {
		// Not fatal. GetState falls back to PostgreSQL when the key is cold.
		return attempt, nil
	}

	return attempt, nil
}

// GetAttempt retrieves the attempt for an exam-candidate pair.
func (s *AttemptService) GetAttempt(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	return s.attemptRepo.GetByExamAndStudent(ctx, examID, studentID)
}

// SyncViolationCount writes the watchdog's authoritative violation count to
// the attempt row. Monotonic: a replayed or out-of-order sync never lowers
// the stored value.
func (s *AttemptService) SyncViolationCount(ctx context.Context, examID uuid.UUID, studentID, count int) error {
	return s.attemptRepo.BumpViolations(ctx, examID, studentID, count)
}

// VerifyActive checks that a candidate has an attempt that is still in
// progress for the given exam.
func (s *AttemptService) VerifyActive(ctx context.Context, examID uuid.UUID, studentID int) error {
	att, err := s.attemptRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return fmt.Errorf("no active attempt: %w", err)
	}
	if att.Phase == model.PhaseCompleted {
		return errors.New("attempt is already completed")
	}
	return nil
}

// GetState restores the candidate's exam screen after a reconnect: autosaved
// answers from Redis plus the remaining seconds computed from the attempt
// start time. Start time reads go through Redis with a PostgreSQL fallback.
func (s *AttemptService) GetState(ctx context.Context, examID uuid.UUID, studentID int) (*model.AttemptState, error) {
	answersKey := config.CacheKey.StudentAnswersKey(examID.String(), studentID)
	answers, err := s.rdb.HGetAll(ctx, answersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("get autosaved answers: %w", err)
	}

	durationStr, err := s.rdb.Get(ctx, config.CacheKey.ExamDurationKey(examID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get exam duration: %w", err)
	}
	durationSeconds, err := strconv.Atoi(durationStr)
	if err != nil {
		return nil, fmt.Errorf("invalid duration format in redis: %w", err)
	}

	var startTimeUnix int64
	startKey := config.CacheKey.AttemptStartKey(examID.String(), studentID)

	val, err := s.rdb.Get(ctx, startKey).Result()
	if errors.Is(err, redis.Nil) {
		// Cache miss, maybe evicted. PostgreSQL is the source of truth.
		att, dbErr := s.attemptRepo.GetByExamAndStudent(ctx, examID, studentID)
		if dbErr != nil {
			return nil, fmt.Errorf("attempt not found in cache or db: %w", dbErr)
		}

		startTimeUnix = att.StartedAt.Unix()

		// Self-heal so the next restore is fast.
		_ = s.rdb.Set(ctx, startKey, startTimeUnix, 0)
	} else if err != nil {
		return nil, fmt.Errorf("redis error getting start time: %w", err)
	} else {
		startTimeUnix, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid start time format in cache: %w", err)
		}
	}

	startTime := time.Unix(startTimeUnix, 0)
	endTime := startTime.Add(time.Duration(durationSeconds) * time.Second)
	remaining := time.Until(endTime)
	if remaining < 0 {
		remaining = 0
	}

	return &model.AttemptState{
		ExamID:           examID,
		StudentID:        studentID,
		AutosavedAnswers: answers,
		RemainingSeconds: remaining.Seconds(),
	}, nil
}

// GetExamResults retrieves paginated attempt results for the examiner view.
func (s *AttemptService) GetExamResults(ctx context.Context, examID uuid.UUID, page, perPage int) ([]repository.AttemptResult, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return s.attemptRepo.ListByExam(ctx, examID, page, perPage)
}
