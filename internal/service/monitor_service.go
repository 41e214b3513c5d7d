package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/provex/proctor-backend/internal/model"
	"github.com/provex/proctor-backend/internal/repository"
)

// MonitorService orchestrates live exam monitoring business logic.
type MonitorService struct {
	monitorRepo   *repository.MonitorRepository
	violationRepo *repository.ViolationRepository
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository, violationRepo *repository.ViolationRepository) *MonitorService {
	return &MonitorService{monitorRepo: monitorRepo, violationRepo: violationRepo}
}

// ProgressSnapshot holds the answered count and violation count for every
// in-progress candidate.
type ProgressSnapshot struct {
	AnsweredCounts  map[int]int64 // student_id → answered_count
	ViolationCounts map[int]int64 // student_id → violation_count
	TotalViolations int64         // total violations in the exam
}

// GetProgress returns answered counts and violation counts concurrently.
// It fires two independent data fetches in parallel to minimize latency.
func (s *MonitorService) GetProgress(ctx context.Context, examID uuid.UUID) (*ProgressSnapshot, error) {
	snapshot := &ProgressSnapshot{
		AnsweredCounts:  make(map[int]int64),
		ViolationCounts: make(map[int]int64),
	}

	var (
		answeredCounts  map[int]int64
		violationCounts map[int]int64
		answeredErr     error
		violationErr    error
		wg              sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		answeredCounts, answeredErr = s.monitorRepo.GetAnsweredCounts(ctx, examID)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		violationCounts, violationErr = s.violationRepo.GetViolationCounts(ctx, examID)
	}()

	wg.Wait()

	// Answered counts are critical; violation counts are best-effort.
	if answeredErr != nil {
		return nil, answeredErr
	}

	if answeredCounts != nil {
		snapshot.AnsweredCounts = answeredCounts
	}

	if violationErr == nil && violationCounts != nil {
		snapshot.ViolationCounts = violationCounts
		for _, count := range violationCounts {
			snapshot.TotalViolations += count
		}
	}

	return snapshot, nil
}

// GetInProgressStudentIDs returns candidates with an active attempt.
func (s *MonitorService) GetInProgressStudentIDs(ctx context.Context, examID uuid.UUID) ([]int, error) {
	return s.monitorRepo.GetInProgressStudentIDs(ctx, examID)
}

// GetViolationTrail returns the full audit trail for one attempt.
func (s *MonitorService) GetViolationTrail(ctx context.Context, examID uuid.UUID, studentID int) ([]model.Violation, error) {
	return s.violationRepo.ListByAttempt(ctx, examID, studentID)
}
