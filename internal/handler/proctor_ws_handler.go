package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
	"github.com/provex/proctor-backend/internal/capability"
	"github.com/provex/proctor-backend/internal/middleware"
	"github.com/provex/proctor-backend/internal/model"
	"github.com/provex/proctor-backend/internal/proctor"
	"github.com/provex/proctor-backend/internal/response"
	"github.com/provex/proctor-backend/internal/service"
	ws "github.com/provex/proctor-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// ProctorWSHandler runs proctored exam sessions over WebSocket. One
// connection owns one proctor.Session: the read loop feeds candidate actions
// and capability samples in, the session's monitors push supervision events
// back out on their own goroutines.
type ProctorWSHandler struct {
	proctorService *service.ProctorService
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewProctorWSHandler creates a new ProctorWSHandler.
func NewProctorWSHandler(proctorService *service.ProctorService, attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *ProctorWSHandler {
	return &ProctorWSHandler{
		proctorService: proctorService,
		attemptService: attemptService,
		log:            log.With().Str("component", "proctor_ws").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// wsEvents relays supervision outcomes to the candidate. Callbacks run on
// monitor goroutines; the shared ws.Conn serializes the writes.
type wsEvents struct {
	conn *ws.Conn
}

func (e *wsEvents) OnWarning(count int) {
	_ = e.conn.WriteTyped(ws.WarningResponse{Event: ws.EventWarning, ViolationCount: count})
}

func (e *wsEvents) OnAbsenceConfirmed() {
	_ = e.conn.WriteTyped(ws.AbsenceResponse{Event: ws.EventAbsence})
}

func (e *wsEvents) OnExitFullscreen() {
	_ = e.conn.WriteTyped(ws.ExitFullscreenResponse{Event: ws.EventExitFullscreen})
}

func (e *wsEvents) OnResult(report *model.Report, sinkErr error) {
	_ = e.conn.WriteTyped(ws.ResultResponse{
		Event:        ws.EventResult,
		Verdict:      string(report.Verdict),
		CorrectCount: report.CorrectCount(),
		WrongCount:   len(report.WrongIDs),
		PassingMarks: report.PassingMarks,
		Trigger:      string(report.Trigger),
		ReportSaved:  sinkErr == nil,
	})
}

// ExamSessionStream godoc
// WS /ws/v1/student/exams/:exam_id/session
// Upgrades to WebSocket and supervises the candidate's attempt end to end.
func (h *ProctorWSHandler) ExamSessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	studentID := claims.UserID

	// A completed attempt can never be reopened; reject before upgrading.
	attempt, err := h.attemptService.GetAttempt(c.Request.Context(), examID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "attempt lookup failed"})
		return
	}
	if attempt != nil && attempt.Phase == model.PhaseCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "attempt is already completed"})
		return
	}

	rawConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(rawConn)
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("exam_id", examID.String()).
		Logger()

	exam, err := h.proctorService.FetchExam(context.Background(), examID)
	if err != nil {
		wsLog.Warn().Err(err).Msg("Exam fetch failed")
		conn.WriteError(string(response.ErrExamNotAvailable), "exam is not available")
		return
	}

	media := capability.NewStreamProvider()
	detector := capability.RemoteDetector{}

	sess := proctor.NewSession(exam, studentID, h.proctorService.Policy(), proctor.Deps{
		Source:   h.proctorService,
		Sink:     h.proctorService,
		Media:    media,
		Detector: detector,
		Events:   &wsEvents{conn: conn},
		Log:      wsLog,
	})

	if !h.proctorService.Register(examID, studentID, sess) {
		conn.WriteError(string(response.ErrConflict), "attempt already running on another connection")
		return
	}
	defer h.proctorService.Unregister(examID, studentID, sess)
	defer sess.Close()

	wsLog.Info().Msg("Candidate connected")

	for {
		data, err := conn.ReadRaw()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			conn.WriteError(string(response.ErrInvalidPayload), "malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionBegin:
			h.handleBegin(conn, wsLog, sess, media, data)
		case ws.ActionSample:
			h.handleSample(media, data)
		case ws.ActionViolation:
			h.handleViolation(conn, sess, examID, studentID, data)
		case ws.ActionAckWarning:
			sess.AckWarning()
		case ws.ActionAnswer:
			h.handleAnswer(conn, sess, examID, studentID, data)
		case ws.ActionSubmit:
			if err := sess.Submit(); err != nil {
				conn.WriteError(string(response.ErrAttemptNotFound), err.Error())
			}
		case ws.ActionRetryReport:
			h.handleRetryReport(conn, sess)
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(envelope.Action))
		}
	}
}

// handleBegin resolves the capability handshake and starts the attempt.
// Grant/Deny is decided before Begin runs, so the acquire step never blocks
// the read loop.
func (h *ProctorWSHandler) handleBegin(conn *ws.Conn, wsLog zerolog.Logger, sess *proctor.Session, media *capability.StreamProvider, data []byte) {
	var req ws.BeginRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.WriteError(string(response.ErrInvalidPayload), "malformed begin request")
		return
	}

	if req.MediaGranted {
		media.Grant(req.FaceDetection)
	} else {
		media.Deny()
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.proctorService.Policy().AcquireTimeout)
	defer cancel()

	if err := sess.Begin(ctx); err != nil {
		switch {
		case errors.Is(err, capability.ErrPermissionDenied):
			conn.WriteError(string(response.ErrPermissionDenied), "camera or microphone access is required")
		case errors.Is(err, proctor.ErrOutOfWindow):
			conn.WriteError(string(response.ErrOutOfWindow), "exam is not currently available")
		case errors.Is(err, proctor.ErrAlreadyStarted):
			conn.WriteError(string(response.ErrConflict), "attempt already started")
		default:
			wsLog.Error().Err(err).Msg("Begin failed")
			conn.WriteError(string(response.ErrInternal), "could not start the attempt")
		}
		return
	}

	conn.WriteTyped(ws.StartedResponse{
		Event:            ws.EventStarted,
		RemainingSeconds: sess.Remaining().Seconds(),
		Questions:        len(sess.Exam().Questions),
	})
}

func (h *ProctorWSHandler) handleSample(media *capability.StreamProvider, data []byte) {
	var req ws.SampleRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	media.Push(capability.Frame{
		Faces:      req.Faces,
		AudioLevel: req.AudioLevel,
		CapturedAt: time.Now(),
	})
}

func (h *ProctorWSHandler) handleViolation(conn *ws.Conn, sess *proctor.Session, examID uuid.UUID, studentID int, data []byte) {
	var req ws.ViolationRequest
	if err := json.Unmarshal(data, &req); err != nil || req.EventID == "" {
		conn.WriteError(string(response.ErrInvalidPayload), "event_id and kind are required")
		return
	}

	ev := proctor.IntegrityEvent{
		ID:   req.EventID,
		Kind: model.ViolationKind(req.Kind),
		At:   time.Now(),
	}
	if !ev.Kind.Qualifies() {
		conn.WriteError(string(response.ErrInvalidPayload), "unknown violation kind: "+req.Kind)
		return
	}

	outcome := sess.ReportIntegrity(ev)
	if outcome == proctor.OutcomeIgnored {
		return
	}

	// The watchdog already acted; the persistence side is fire-and-forget.
	h.proctorService.RecordViolation(context.Background(), examID, studentID, ev, sess.ViolationCount())
}

func (h *ProctorWSHandler) handleAnswer(conn *ws.Conn, sess *proctor.Session, examID uuid.UUID, studentID int, data []byte) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Option == "" {
		conn.WriteError(string(response.ErrInvalidPayload), "question_index and option are required")
		return
	}

	if err := sess.Answer(req.QuestionIndex, req.Option); err != nil {
		conn.WriteError(string(response.ErrValidation), err.Error())
		return
	}

	if err := h.proctorService.AutosaveAnswer(context.Background(), examID, studentID, req.QuestionIndex, req.Option); err != nil {
		// The in-memory answer set already has it; grading is unaffected.
		h.log.Warn().Err(err).Int("student_id", studentID).Msg("Autosave failed")
	}

	conn.WriteTyped(ws.SuccessResponse{Event: ws.EventSuccess, Status: "saved"})
}

func (h *ProctorWSHandler) handleRetryReport(conn *ws.Conn, sess *proctor.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := sess.RetryReport(ctx)
	switch {
	case err == nil:
		conn.WriteTyped(ws.SuccessResponse{Event: ws.EventSuccess, Status: "report_saved"})
	case errors.Is(err, proctor.ErrNotCompleted):
		conn.WriteError(string(response.ErrNothingToRetry), "attempt is not completed")
	case errors.Is(err, proctor.ErrReportSaved):
		conn.WriteError(string(response.ErrNothingToRetry), "report already saved")
	default:
		conn.WriteError(string(response.ErrReportNotSaved), "report submission failed again")
	}
}
