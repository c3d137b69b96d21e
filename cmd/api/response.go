package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"scorevera/analyzer"
	"scorevera/auth"
	"scorevera/dispute"
)

// retryAfterSeconds is advertised when an external collaborator timed out.
const retryAfterSeconds = 5

type apiError struct {
	Status  string         `json:"status"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{Status: "error", Code: code, Message: message})
}

// writeServiceError maps a service error onto a status code and a stable
// error code.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := mapError(err)
	if status == http.StatusServiceUnavailable && body.Code == "EXTERNAL_TIMEOUT" {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	if status >= http.StatusInternalServerError {
		s.log().Error("request failed",
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, body)
}

func mapError(err error) (int, apiError) {
	var (
		format     *analyzer.UnsupportedFormatError
		size       *analyzer.SizeLimitError
		duplicate  *dispute.DuplicateOpenDisputeError
		round      *dispute.RoundNotEligibleError
		transition *dispute.InvalidTransitionError
		date       *dispute.InvalidDateError
	)
	fail := func(code, message string, details map[string]any) apiError {
		return apiError{Status: "error", Code: code, Message: message, Details: details}
	}

	switch {
	case errors.As(err, &format):
		return http.StatusUnsupportedMediaType, fail("UNSUPPORTED_FORMAT", "report must be a PDF", map[string]any{"contentType": format.ContentType})
	case errors.As(err, &size):
		return http.StatusRequestEntityTooLarge, fail("REPORT_TOO_LARGE", "report exceeds the upload limit", map[string]any{"limitBytes": size.Limit})
	case errors.Is(err, analyzer.ErrUnavailable):
		return http.StatusServiceUnavailable, fail("ANALYZER_UNAVAILABLE", "report analysis is not available", nil)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, fail("INVALID_CREDENTIALS", "invalid email or password", nil)
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidInput):
		return http.StatusUnprocessableEntity, fail("INVALID_INPUT", err.Error(), nil)
	case errors.Is(err, auth.ErrDuplicateEmail):
		return http.StatusConflict, fail("EMAIL_TAKEN", "email already registered", nil)
	case errors.As(err, &duplicate):
		return http.StatusConflict, fail("DUPLICATE_OPEN_DISPUTE", err.Error(), map[string]any{
			"openDisputeId": duplicate.OpenDisputeID,
			"openRound":     duplicate.OpenRound,
			"openStatus":    duplicate.OpenStatus,
		})
	case errors.As(err, &round):
		return http.StatusConflict, fail("ROUND_NOT_ELIGIBLE", err.Error(), map[string]any{
			"round":  round.Round,
			"reason": round.Reason,
		})
	case errors.As(err, &transition):
		return http.StatusConflict, fail("INVALID_TRANSITION", err.Error(), map[string]any{
			"current":   transition.Current,
			"attempted": transition.Attempted,
		})
	case errors.As(err, &date):
		return http.StatusUnprocessableEntity, fail("INVALID_DATE", err.Error(), map[string]any{
			"field":  date.Field,
			"reason": date.Reason,
		})
	}

	switch dispute.Classify(err) {
	case dispute.KindInput:
		return http.StatusUnprocessableEntity, fail("INVALID_INPUT", err.Error(), nil)
	case dispute.KindConflict:
		return http.StatusConflict, fail("CONFLICT", err.Error(), nil)
	case dispute.KindRetry:
		return http.StatusServiceUnavailable, fail("EXTERNAL_TIMEOUT", "an upstream service timed out, retry later", nil)
	case dispute.KindNotFound:
		return http.StatusNotFound, fail("NOT_FOUND", "resource not found", nil)
	}
	return http.StatusInternalServerError, fail("INTERNAL_ERROR", "internal server error", nil)
}
