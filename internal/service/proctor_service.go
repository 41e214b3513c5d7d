package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/provex/proctor-backend/internal/config"
	"github.com/provex/proctor-backend/internal/model"
	"github.com/provex/proctor-backend/internal/proctor"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ProctorService bridges the session controller to the rest of the backend.
// It implements proctor.ContentSource (exam definitions from the Redis fast
// lane, attempt rows in PostgreSQL) and proctor.ReportSink (reports enqueued
// to the persistence worker), and tracks live sessions so a candidate cannot
// run the same attempt on two connections.
type ProctorService struct {
	examSvc    *ExamService
	attemptSvc *AttemptService
	rdb        *redis.Client
	policy     config.ProctorPolicy
	log        zerolog.Logger

	mu   sync.Mutex
	live map[string]*proctor.Session
}

// NewProctorService creates a new ProctorService.
func NewProctorService(
	examSvc *ExamService,
	attemptSvc *AttemptService,
	rdb *redis.Client,
	policy config.ProctorPolicy,
	log zerolog.Logger,
) *ProctorService {
	return &ProctorService{
		examSvc:    examSvc,
		attemptSvc: attemptSvc,
		rdb:        rdb,
		policy:     policy,
		log:        log.With().Str("component", "proctor_service").Logger(),
		live:       make(map[string]*proctor.Session),
	}
}

// Policy returns the supervision policy sessions run under.
func (s *ProctorService) Policy() config.ProctorPolicy {
	return s.policy
}

func liveKey(examID uuid.UUID, studentID int) string {
	return fmt.Sprintf("%s:%d", examID, studentID)
}

// Register tracks a live session. Returns false when the candidate already
// has one running for this exam.
func (s *ProctorService) Register(examID uuid.UUID, studentID int, sess *proctor.Session) bool {
	key := liveKey(examID, studentID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.live[key]; exists {
		return false
	}
	s.live[key] = sess
	return true
}

// Unregister drops a live session. Only the owning session is removed, so a
// stale disconnect cannot evict a newer connection.
func (s *ProctorService) Unregister(examID uuid.UUID, studentID int, sess *proctor.Session) {
	key := liveKey(examID, studentID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live[key] == sess {
		delete(s.live, key)
	}
}

// LiveCount returns the number of sessions currently running.
func (s *ProctorService) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// FetchExam implements proctor.ContentSource.
func (s *ProctorService) FetchExam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	return s.examSvc.GetDefinition(ctx, examID)
}

// MarkAttempted implements proctor.ContentSource. Idempotent per
// exam-candidate pair.
func (s *ProctorService) MarkAttempted(ctx context.Context, examID uuid.UUID, studentID int) error {
	_, err := s.attemptSvc.OpenAttempt(ctx, examID, studentID)
	return err
}

// SubmitReport implements proctor.ReportSink. The report is pushed to the
// persistence queue synchronously; a failed push is surfaced to the session
// so the candidate sees the retry affordance. A copy is parked under a
// pending key either way, and cleared once the push succeeds.
func (s *ProctorService) SubmitReport(ctx context.Context, report *model.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	pendingKey := config.CacheKey.PendingReportKey(report.ExamID.String(), report.StudentID)

	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistReportsQueue, data).Err(); err != nil {
		// Park the report so a manual retry or operator sweep can recover it
		// even if this process dies.
		_ = s.rdb.Set(ctx, pendingKey, data, 24*time.Hour).Err()
		s.log.Error().
			Err(err).
			Str("exam_id", report.ExamID.String()).
			Int("student_id", report.StudentID).
			Msg("Report enqueue failed, parked as pending")
		return fmt.Errorf("enqueue report: %w", err)
	}

	_ = s.rdb.Del(ctx, pendingKey).Err()

	s.log.Info().
		Str("exam_id", report.ExamID.String()).
		Int("student_id", report.StudentID).
		Str("verdict", string(report.Verdict)).
		Str("trigger", string(report.Trigger)).
		Msg("Report enqueued")
	return nil
}

// AutosaveAnswer writes a single answer to the candidate's Redis hash and
// enqueues it for durable persistence. Autosave is best-effort; the graded
// submission never depends on it.
func (s *ProctorService) AutosaveAnswer(ctx context.Context, examID uuid.UUID, studentID, questionIndex int, option string) error {
	answersKey := config.CacheKey.StudentAnswersKey(examID.String(), studentID)

	payload, err := json.Marshal(answerPayload{
		ExamID:        examID.String(),
		StudentID:     studentID,
		QuestionIndex: questionIndex,
		Option:        option,
		Timestamp:     time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, answersKey, fmt.Sprintf("%d", questionIndex), option)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)
	_, err = pipe.Exec(ctx)
	return err
}

// RecordViolation persists a counted integrity event: the attempt row's
// violation counter is synced with the watchdog count, and the event itself
// is enqueued for the audit-trail worker. The watchdog already acted on the
// event; nothing here can fail the session.
func (s *ProctorService) RecordViolation(ctx context.Context, examID uuid.UUID, studentID int, ev proctor.IntegrityEvent, count int) {
	if err := s.attemptSvc.SyncViolationCount(ctx, examID, studentID, count); err != nil {
		s.log.Warn().
			Err(err).
			Str("exam_id", examID.String()).
			Int("student_id", studentID).
			Msg("Violation count sync failed")
	}

	payload, err := json.Marshal(violationPayload{
		ExamID:    examID.String(),
		StudentID: studentID,
		EventID:   ev.ID,
		Kind:      string(ev.Kind),
		Timestamp: ev.At.Unix(),
	})
	if err != nil {
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		s.log.Warn().
			Err(err).
			Str("exam_id", examID.String()).
			Int("student_id", studentID).
			Msg("Violation enqueue failed, audit record dropped")
	}
}

// ClearAutosave removes the candidate's autosave hash after a completed
// attempt is durably persisted.
func (s *ProctorService) ClearAutosave(ctx context.Context, examID uuid.UUID, studentID int) error {
	return s.rdb.Del(ctx, config.CacheKey.StudentAnswersKey(examID.String(), studentID)).Err()
}

// answerPayload is the queue wire format shared with the answer worker.
type answerPayload struct {
	ExamID        string `json:"exam_id"`
	StudentID     int    `json:"student_id"`
	QuestionIndex int    `json:"question_index"`
	Option        string `json:"option"`
	Timestamp     int64  `json:"timestamp"`
}

// violationPayload is the queue wire format shared with the violation worker.
type violationPayload struct {
	ExamID    string `json:"exam_id"`
	StudentID int    `json:"student_id"`
	EventID   string `json:"event_id"`
	Kind      string `json:"kind"`
	Timestamp int64  `json:"timestamp"`
}
