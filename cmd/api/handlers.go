package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"scorevera/analyzer"
	"scorevera/auth"
	"scorevera/dispute"
	"scorevera/tradeline"
)

const (
	maxJSONBody = 1 << 20
	// multipart framing on top of the report itself
	multipartSlack = 1 << 20
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid JSON payload")
		return false
	}
	return true
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(raw))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     result.Token,
		"expiresAt": result.ExpiresAt.UTC().Format(time.RFC3339),
		"user":      toUserResponse(result.User),
	})
}

// handleUploadReport accepts a PDF either as the raw request body or as the
// "report" field of a multipart form.
func (s *Server) handleUploadReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, analyzer.MaxReportBytes+multipartSlack)
	pdf, err := readReport(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			s.writeServiceError(w, r, &analyzer.SizeLimitError{Size: tooLarge.Limit + 1, Limit: analyzer.MaxReportBytes})
		case errors.Is(err, http.ErrMissingFile):
			writeError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", `multipart upload requires a "report" file`)
		default:
			writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "could not read report upload")
		}
		return
	}
	if err := analyzer.Check(pdf); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result, err := s.tradelineService.Ingest(r.Context(), userID, pdf)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	items := make([]tradelineResponse, 0, len(result.Tradelines))
	for _, t := range result.Tradelines {
		items = append(items, toTradelineResponse(t))
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"reportId":   result.ReportID,
		"tradelines": items,
		"skipped":    result.Skipped,
	})
}

func readReport(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}
	file, _, err := r.FormFile("report")
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (s *Server) handleListTradelines(w http.ResponseWriter, r *http.Request) {
	userID, ok := subjectUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}
	tradelines, err := s.tradelineService.List(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	items := make([]tradelineResponse, 0, len(tradelines))
	for _, t := range tradelines {
		items = append(items, toTradelineResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleGetTradeline(w http.ResponseWriter, r *http.Request) {
	userID, ok := subjectUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}
	t, err := s.tradelineService.Get(r.Context(), userID, chi.URLParam(r, "tradelineID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTradelineResponse(t))
}

type createDisputeRequest struct {
	TradelineID string `json:"tradelineId"`
	Bureau      string `json:"bureau"`
	Round       int    `json:"round"`
}

func (s *Server) handleCreateDispute(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}
	var req createDisputeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TradelineID) == "" {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", "tradelineId is required")
		return
	}
	params := dispute.CreateParams{TradelineID: strings.TrimSpace(req.TradelineID), Round: req.Round}
	if strings.TrimSpace(req.Bureau) != "" {
		bureau, err := tradeline.ParseBureau(req.Bureau)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		params.Bureau = bureau
	}

	view, err := s.disputeService.Create(r.Context(), userID, params)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDisputeResponse(view))
}

func (s *Server) handleListDisputes(w http.ResponseWriter, r *http.Request) {
	userID, ok := subjectUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}
	views, err := s.disputeService.List(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	status := dispute.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", fmt.Sprintf("unknown status %q", status))
		return
	}
	items := make([]disputeResponse, 0, len(views))
	for _, v := range views {
		if status != "" && v.Status != status {
			continue
		}
		items = append(items, toDisputeResponse(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleGetDispute(w http.ResponseWriter, r *http.Request) {
	userID, ok := subjectUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}
	view, err := s.disputeService.Get(r.Context(), userID, chi.URLParam(r, "disputeID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(view))
}

func (s *Server) handleDisputeEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := subjectUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}
	events, err := s.disputeService.Events(r.Context(), userID, chi.URLParam(r, "disputeID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	items := make([]eventResponse, 0, len(events))
	for _, e := range events {
		items = append(items, toEventResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleRequestLetter(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}
	view, l, err := s.disputeService.RequestLetter(r.Context(), userID, chi.URLParam(r, "disputeID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dispute": toDisputeResponse(view),
		"letter":  toLetterResponse(l, true),
	})
}

type recordMailedRequest struct {
	MailedOn string `json:"mailedOn"`
}

func (s *Server) handleRecordMailed(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}
	var req recordMailedRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mailedOn, err := parseDate(req.MailedOn)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_DATE", "mailedOn must be YYYY-MM-DD")
		return
	}
	view, err := s.disputeService.RecordMailed(r.Context(), userID, chi.URLParam(r, "disputeID"), mailedOn)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(view))
}

type recordOutcomeRequest struct {
	Outcome     string  `json:"outcome"`
	RespondedOn *string `json:"respondedOn"`
}

func (s *Server) handleRecordOutcome(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}
	var req recordOutcomeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	params := dispute.OutcomeParams{Outcome: dispute.Outcome(strings.ToLower(strings.TrimSpace(req.Outcome)))}
	if _, ok := params.Outcome.Status(); !ok {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", `outcome must be "verified" or "deleted"`)
		return
	}
	if req.RespondedOn != nil && strings.TrimSpace(*req.RespondedOn) != "" {
		respondedOn, err := parseDate(*req.RespondedOn)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "INVALID_DATE", "respondedOn must be YYYY-MM-DD")
			return
		}
		params.RespondedOn = &respondedOn
	}

	view, err := s.disputeService.RecordOutcome(r.Context(), userID, chi.URLParam(r, "disputeID"), params)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(view))
}

func (s *Server) handleListLetters(w http.ResponseWriter, r *http.Request) {
	userID, ok := subjectUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}
	letters, err := s.disputeService.ListLetters(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	items := make([]letterResponse, 0, len(letters))
	for _, l := range letters {
		items = append(items, toLetterResponse(l, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleGetLetter(w http.ResponseWriter, r *http.Request) {
	userID, ok := subjectUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}
	l, err := s.disputeService.GetLetter(r.Context(), userID, chi.URLParam(r, "letterID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLetterResponse(l, true))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := subjectUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}
	sum, err := s.summaryService.ForUser(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(sum))
}

// handlePurgeAccountData removes the caller's tradelines, disputes, letters
// and timeline. The account itself is kept.
func (s *Server) handlePurgeAccountData(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}
	n, err := s.tradelineService.Purge(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tradelinesRemoved": n})
}
