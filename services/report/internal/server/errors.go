package server

import (
	"errors"
	"net/http"
	"strings"

	"sinapsisdata/services/report/internal/app"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

type appErrorEntry struct {
	err    error
	status int
	code   string
}

var appErrors = []appErrorEntry{
	{app.ErrInvalidCredentials, http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS"},
	{app.ErrUnauthorized, http.StatusUnauthorized, "AUTH_INVALID_TOKEN"},
	{app.ErrUserDisabled, http.StatusForbidden, "AUTH_USER_DISABLED"},
	{app.ErrForbidden, http.StatusForbidden, "ACCESS_FORBIDDEN"},

	{app.ErrProjectNotFound, http.StatusNotFound, "PROJECT_NOT_FOUND"},
	{app.ErrReportNotFound, http.StatusNotFound, "REPORT_NOT_FOUND"},
	{app.ErrQuestionNotFound, http.StatusNotFound, "QUESTION_NOT_FOUND"},
	{app.ErrProposalNotFound, http.StatusNotFound, "PROPOSAL_NOT_FOUND"},
	{app.ErrJobNotFound, http.StatusNotFound, "JOB_NOT_FOUND"},
	{app.ErrFileNotFound, http.StatusNotFound, "FILE_NOT_FOUND"},
	{app.ErrJobsUnavailable, http.StatusNotFound, "JOB_TRACKING_DISABLED"},

	{app.ErrReportBusy, http.StatusConflict, "REPORT_BUSY"},
	{app.ErrAlreadyResolved, http.StatusConflict, "FEEDBACK_ALREADY_RESOLVED"},

	{app.ErrNameRequired, http.StatusBadRequest, "PROJECT_NAME_REQUIRED"},
	{app.ErrTitleRequired, http.StatusBadRequest, "REPORT_TITLE_REQUIRED"},
	{app.ErrPromptRequired, http.StatusBadRequest, "REPORT_PROMPT_REQUIRED"},
	{app.ErrAnswerRequired, http.StatusBadRequest, "QUESTION_ANSWER_REQUIRED"},
	{app.ErrInvalidVote, http.StatusBadRequest, "PROPOSAL_INVALID_ACTION"},
	{app.ErrInvalidStatus, http.StatusBadRequest, "INVALID_STATUS"},
	{app.ErrInvalidPeriod, http.StatusBadRequest, "REPORT_INVALID_PERIOD"},
	{app.ErrNoData, http.StatusBadRequest, "REPORT_NO_DATA"},
	{app.ErrNoContent, http.StatusBadRequest, "REPORT_NO_CONTENT"},
	{app.ErrNoReadyReports, http.StatusBadRequest, "OVERVIEW_NO_READY_REPORTS"},
	{app.ErrNotCustomReport, http.StatusBadRequest, "REPORT_NOT_CUSTOM"},
	{app.ErrReportNotReady, http.StatusBadRequest, "REPORT_NOT_READY"},
	{app.ErrFileRequired, http.StatusBadRequest, "FILE_REQUIRED"},
	{app.ErrInvalidHTML, http.StatusBadRequest, "FILE_INVALID_HTML"},

	{app.ErrGenerationFailed, http.StatusInternalServerError, "GENERATION_FAILED"},
	{app.ErrRevokeUnsupported, http.StatusNotImplemented, "AUTH_REVOKE_UNSUPPORTED"},
}

// writeAppError maps an app error onto a status and a stable code.
// Unknown errors are logged and masked.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range appErrors {
		if errors.Is(err, e.err) {
			msg := e.err.Error()
			if e.err == app.ErrGenerationFailed {
				logHandlerError(r, err)
			}
			writeErrorCode(w, e.status, e.code, msg)
			return
		}
	}
	logHandlerError(r, err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeErrorCode(w, status, errorCodeFor(status, msg), msg)
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCodeFor(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "file too large":
		return "FILE_TOO_LARGE"
	case strings.Contains(message, "file is required"):
		return "FILE_REQUIRED"
	case strings.Contains(message, "unsupported file type"):
		return "FILE_UNSUPPORTED_TYPE"
	case message == "invalid form data":
		return "INVALID_UPLOAD_FORM"
	case message == "invalid json body":
		return "INVALID_REQUEST"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "ACCESS_FORBIDDEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "FILE_TOO_LARGE"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
