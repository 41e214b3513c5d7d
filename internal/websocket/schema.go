package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	// ActionBegin starts the attempt: Instructions → InProgress. Carries
	// the getUserMedia handshake outcome and capability flags.
	ActionBegin Action = "begin"
	// ActionSample pushes one capture observation (face count from the
	// client-side detector plus microphone level).
	ActionSample Action = "sample"
	// ActionViolation reports a tab-hidden or fullscreen-exit event.
	ActionViolation Action = "violation"
	// ActionAckWarning acknowledges the integrity warning modal.
	ActionAckWarning Action = "ack_warning"
	// ActionAnswer autosaves a single answer selection.
	ActionAnswer Action = "answer"
	// ActionSubmit is the candidate's explicit submission.
	ActionSubmit Action = "submit"
	// ActionRetryReport resends a report after a transport failure.
	ActionRetryReport Action = "retry_report"
	ActionPing        Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// BeginRequest starts the attempt.
type BeginRequest struct {
	Action Action `json:"action"`
	// MediaGranted is false when the candidate declined camera/microphone
	// access or has no devices.
	MediaGranted bool `json:"media_granted"`
	// FaceDetection reports whether the client runtime can detect faces.
	FaceDetection bool `json:"face_detection"`
}

// SampleRequest pushes one capture observation.
type SampleRequest struct {
	Action Action `json:"action"`
	// Faces is the detected face count; -1 when detection is unsupported.
	Faces      int     `json:"faces"`
	AudioLevel float64 `json:"audio_level"`
}

// ViolationRequest reports one integrity event.
type ViolationRequest struct {
	Action Action `json:"action"`
	// EventID identifies the logical event so visibility and fullscreen
	// signals firing together are counted once.
	EventID string `json:"event_id"`
	Kind    string `json:"kind"` // TAB_HIDDEN | FULLSCREEN_EXIT
}

// AnswerRequest autosaves a single answer.
type AnswerRequest struct {
	Action        Action `json:"action"`
	QuestionIndex int    `json:"question_index"`
	Option        string `json:"option"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventSuccess Event = "success"
	// EventStarted confirms the attempt entered InProgress.
	EventStarted Event = "started"
	// EventWarning surfaces an integrity warning modal.
	EventWarning Event = "warning"
	// EventAbsence tells the candidate sustained absence ended the attempt.
	EventAbsence Event = "absence"
	// EventExitFullscreen asks the client to leave fullscreen on teardown.
	EventExitFullscreen Event = "exit_fullscreen"
	// EventResult delivers the graded report.
	EventResult Event = "result"
	EventPong   Event = "pong"
)

type StartedResponse struct {
	Event            Event   `json:"event"`
	RemainingSeconds float64 `json:"remaining_seconds"`
	Questions        int     `json:"questions"`
}

type SuccessResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

type WarningResponse struct {
	Event          Event `json:"event"`
	ViolationCount int   `json:"violation_count"`
}

type AbsenceResponse struct {
	Event Event `json:"event"`
}

type ExitFullscreenResponse struct {
	Event Event `json:"event"`
}

type ResultResponse struct {
	Event        Event  `json:"event"`
	Verdict      string `json:"verdict"`
	CorrectCount int    `json:"correct_count"`
	WrongCount   int    `json:"wrong_count"`
	PassingMarks int    `json:"passing_marks"`
	Trigger      string `json:"trigger"`
	// ReportSaved is false when the report sink rejected the submission;
	// the verdict above is still valid and retry_report is available.
	ReportSaved bool `json:"report_saved"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
