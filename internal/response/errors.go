package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrConflict        ErrCode = "CONFLICT"
	ErrActionForbidden ErrCode = "ACTION_FORBIDDEN"

	// ─── Proctoring ────────────────────────────────────────────────────
	ErrExamNotAvailable  ErrCode = "EXAM_NOT_AVAILABLE"
	ErrExamNotPublished  ErrCode = "EXAM_NOT_PUBLISHED"
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"
	ErrExamNotDraft      ErrCode = "EXAM_NOT_DRAFT"
	ErrOutOfWindow       ErrCode = "OUT_OF_WINDOW"
	ErrPermissionDenied  ErrCode = "PERMISSION_DENIED"
	ErrAttemptCompleted  ErrCode = "ATTEMPT_ALREADY_COMPLETED"
	ErrAttemptNotFound   ErrCode = "ATTEMPT_NOT_FOUND"
	ErrReportNotSaved    ErrCode = "REPORT_NOT_SAVED"
	ErrNothingToRetry    ErrCode = "NOTHING_TO_RETRY"
	ErrCapabilityMissing ErrCode = "CAPABILITY_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrSessionActive:
		return "Another session is already active for this account."
	case ErrSessionInvalidated:
		return "Your session was invalidated. Please sign in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have access to this resource."
	case ErrStudentAccessOnly:
		return "This endpoint is for candidates only."
	case ErrAdminAccessOnly:
		return "This endpoint is for administrators only."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "The request contains invalid fields."
	case ErrInvalidID:
		return "The resource identifier is malformed."
	case ErrInvalidPayload:
		return "The request payload could not be parsed."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "The requested resource was not found."
	case ErrConflict:
		return "The resource already exists."
	case ErrActionForbidden:
		return "This action is not allowed in the current state."

	// ─── Proctoring ────────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "The exam is not available for joining."
	case ErrExamNotPublished:
		return "The exam has not been published."
	case ErrNoQuestions:
		return "The exam has no questions."
	case ErrExamNotDraft:
		return "Only draft exams can be modified."
	case ErrOutOfWindow:
		return "The exam is not currently available. Check its start and end times."
	case ErrPermissionDenied:
		return "Camera and microphone access is required. Allow access and reload the page."
	case ErrAttemptCompleted:
		return "This attempt has already been completed."
	case ErrAttemptNotFound:
		return "No attempt exists for this exam."
	case ErrReportNotSaved:
		return "Your result was computed but may not have been saved. Use retry to send it again."
	case ErrNothingToRetry:
		return "Your result has already been saved."
	case ErrCapabilityMissing:
		return "A required browser capability is missing."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Try again shortly."

	// ─── Server ────────────────────────────────────────────────────────
	default:
		return "An internal error occurred."
	}
}
