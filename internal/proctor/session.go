package proctor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/provex/proctor-backend/internal/capability"
	"github.com/provex/proctor-backend/internal/config"
	"github.com/provex/proctor-backend/internal/model"
	"github.com/rs/zerolog"
)

// Deps bundles the collaborators a session needs. Everything is an
// interface so tests can instantiate isolated sessions in parallel.
type Deps struct {
	Source   ContentSource
	Sink     ReportSink
	Media    capability.MediaProvider
	Detector capability.FaceDetector
	Events   Events
	Log      zerolog.Logger
}

// Session supervises one candidate's attempt at one exam. It owns the
// countdown timer, integrity watchdog, presence monitor, and submission
// coordinator for the attempt's lifetime, and is the only writer of the
// attempt phase, which moves strictly forward:
//
//	Instructions → InProgress → Completed
type Session struct {
	exam      *model.ExamDefinition
	studentID int
	policy    config.ProctorPolicy
	source    ContentSource
	events    Events
	log       zerolog.Logger

	countdown *Countdown
	watchdog  *Watchdog
	presence  *PresenceMonitor
	coord     *Coordinator

	mu    sync.RWMutex
	phase model.AttemptPhase

	answersMu sync.Mutex
	answers   map[int]string

	closeOnce sync.Once
}

// NewSession creates a session in the Instructions phase. No monitor runs
// and no resource is held until Begin succeeds.
func NewSession(exam *model.ExamDefinition, studentID int, policy config.ProctorPolicy, deps Deps) *Session {
	log := deps.Log.With().
		Str("exam_id", exam.ID.String()).
		Int("student_id", studentID).
		Logger()

	events := deps.Events
	if events == nil {
		events = NopEvents{}
	}

	s := &Session{
		exam:      exam,
		studentID: studentID,
		policy:    policy,
		source:    deps.Source,
		events:    events,
		log:       log,
		phase:     model.PhaseInstructions,
		answers:   make(map[int]string),
	}

	s.countdown = NewCountdown(exam.Duration())
	s.watchdog = NewWatchdog(policy, func() { s.finalize(model.TriggerForceSubmit) }, log)
	s.presence = NewPresenceMonitor(deps.Media, deps.Detector, policy, s.absenceConfirmed, log)
	s.coord = NewCoordinator(
		exam,
		studentID,
		s.snapshotAnswers,
		[]func(){
			s.countdown.Stop,
			s.watchdog.Stop,
			s.presence.Release,
			events.OnExitFullscreen,
		},
		deps.Sink,
		log,
	)

	return s
}

// Begin transitions Instructions → InProgress. The transition requires the
// current time inside the exam window and a successfully acquired capture
// handle; either failure leaves the session in Instructions with nothing
// held. On success the attempt is marked as opened (idempotent) before any
// monitor starts.
func (s *Session) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != model.PhaseInstructions {
		return ErrAlreadyStarted
	}

	if !s.exam.InWindow(time.Now()) {
		return ErrOutOfWindow
	}

	if err := s.presence.Acquire(ctx); err != nil {
		return fmt.Errorf("acquire capture: %w", err)
	}

	if err := s.source.MarkAttempted(ctx, s.exam.ID, s.studentID); err != nil {
		s.presence.Release()
		return fmt.Errorf("mark attempted: %w", err)
	}

	s.phase = model.PhaseInProgress

	s.countdown.Start(func() { s.finalize(model.TriggerTimeExpired) })
	s.presence.Start()

	s.log.Info().
		Int("duration_seconds", s.exam.DurationSeconds).
		Int("questions", len(s.exam.Questions)).
		Msg("Attempt started")

	return nil
}

// Answer records the candidate's selection for a question. The answer set
// grows only while InProgress and is frozen by the winning finalize.
func (s *Session) Answer(questionIndex int, optionKey string) error {
	if s.Phase() != model.PhaseInProgress {
		return ErrNotInProgress
	}
	if questionIndex < 0 || questionIndex >= len(s.exam.Questions) {
		return fmt.Errorf("question index %d out of range", questionIndex)
	}
	if _, ok := s.exam.Questions[questionIndex].Options[optionKey]; !ok {
		return fmt.Errorf("unknown option %q for question %d", optionKey, questionIndex)
	}

	s.answersMu.Lock()
	s.answers[questionIndex] = optionKey
	s.answersMu.Unlock()
	return nil
}

func (s *Session) snapshotAnswers() map[int]string {
	s.answersMu.Lock()
	defer s.answersMu.Unlock()
	snap := make(map[int]string, len(s.answers))
	for k, v := range s.answers {
		snap[k] = v
	}
	return snap
}

// ReportIntegrity feeds a visibility/fullscreen event to the watchdog and
// surfaces the resulting warning, if any, to the candidate.
func (s *Session) ReportIntegrity(ev IntegrityEvent) WatchdogOutcome {
	if s.Phase() != model.PhaseInProgress {
		return OutcomeIgnored
	}

	outcome := s.watchdog.Observe(ev)
	if outcome == OutcomeWarned {
		s.events.OnWarning(s.watchdog.Count())
	}
	return outcome
}

// AckWarning acknowledges the currently displayed warning modal.
func (s *Session) AckWarning() {
	s.watchdog.AckWarning()
}

// Submit is the candidate's explicit submission.
func (s *Session) Submit() error {
	if s.Phase() != model.PhaseInProgress {
		return ErrNotInProgress
	}
	s.finalize(model.TriggerManual)
	return nil
}

// absenceConfirmed is the presence monitor's trigger path.
func (s *Session) absenceConfirmed() {
	s.events.OnAbsenceConfirmed()
	s.finalize(model.TriggerAbsence)
}

// finalize funnels every trigger through the coordinator's claim. The
// losing callers return without side effects.
func (s *Session) finalize(trigger model.Trigger) {
	if !s.coord.Finalize(trigger) {
		return
	}

	s.mu.Lock()
	s.phase = model.PhaseCompleted
	s.mu.Unlock()

	report, sinkErr := s.coord.Result()
	s.events.OnResult(report, sinkErr)
}

// RetryReport resends a report whose transport submission failed. Only
// valid after completion; it never reopens the exam.
func (s *Session) RetryReport(ctx context.Context) error {
	return s.coord.RetrySubmit(ctx)
}

// Close releases every resource the session holds. It is the unmount path:
// if the attempt was never finalized, no report is produced; the candidate
// simply abandoned the screen. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.countdown.Stop()
		s.watchdog.Stop()
		s.presence.Release()
		s.log.Debug().Str("phase", string(s.Phase())).Msg("Session closed")
	})
}

// Phase returns the current attempt phase.
func (s *Session) Phase() model.AttemptPhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Remaining returns the countdown's remaining time.
func (s *Session) Remaining() time.Duration {
	return s.countdown.Remaining()
}

// ViolationCount returns the watchdog's monotonic violation count.
func (s *Session) ViolationCount() int {
	return s.watchdog.Count()
}

// Presence returns the presence monitor's current verdict.
func (s *Session) Presence() PresenceState {
	return s.presence.State()
}

// AudioLevel returns the live microphone level for candidate feedback.
func (s *Session) AudioLevel() float64 {
	return s.presence.AudioLevel()
}

// Submitted reports whether the attempt has been finalized.
func (s *Session) Submitted() bool {
	return s.coord.Submitted()
}

// Exam returns the immutable exam definition backing this session.
func (s *Session) Exam() *model.ExamDefinition {
	return s.exam
}

// Result returns the report and sink error after completion.
func (s *Session) Result() (*model.Report, error) {
	return s.coord.Result()
}
