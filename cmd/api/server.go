package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"scorevera/auth"
	"scorevera/dispute"
	"scorevera/letter"
	"scorevera/summary"
	"scorevera/tradeline"
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (auth.Claims, error)
}

type tradelineService interface {
	Ingest(ctx context.Context, userID string, pdf []byte) (tradeline.IngestResult, error)
	Get(ctx context.Context, userID, id string) (tradeline.Tradeline, error)
	List(ctx context.Context, userID string) ([]tradeline.Tradeline, error)
	Purge(ctx context.Context, userID string) (int64, error)
}

type disputeService interface {
	Create(ctx context.Context, userID string, params dispute.CreateParams) (dispute.View, error)
	RequestLetter(ctx context.Context, userID, disputeID string) (dispute.View, letter.Letter, error)
	RecordMailed(ctx context.Context, userID, disputeID string, mailedOn time.Time) (dispute.View, error)
	RecordOutcome(ctx context.Context, userID, disputeID string, params dispute.OutcomeParams) (dispute.View, error)
	Get(ctx context.Context, userID, disputeID string) (dispute.View, error)
	List(ctx context.Context, userID string) ([]dispute.View, error)
	Events(ctx context.Context, userID, disputeID string) ([]dispute.Event, error)
	ListLetters(ctx context.Context, userID string) ([]letter.Letter, error)
	GetLetter(ctx context.Context, userID, letterID string) (letter.Letter, error)
}

type summaryService interface {
	ForUser(ctx context.Context, userID string) (summary.Summary, error)
}

// Server holds the HTTP handlers. Every route below /api except register and
// login requires a bearer token and is scoped to the token's user.
type Server struct {
	authService      authService
	tradelineService tradelineService
	disputeService   disputeService
	summaryService   summaryService
	logger           *zap.Logger
	ready            func(context.Context) error
}

func (s *Server) log() *zap.Logger {
	if s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/reports", s.handleUploadReport)
			r.Get("/tradelines", s.handleListTradelines)
			r.Get("/tradelines/{tradelineID}", s.handleGetTradeline)

			r.Route("/disputes", func(r chi.Router) {
				r.Get("/", s.handleListDisputes)
				r.Post("/", s.handleCreateDispute)
				r.Get("/{disputeID}", s.handleGetDispute)
				r.Get("/{disputeID}/events", s.handleDisputeEvents)
				r.Post("/{disputeID}/letter", s.handleRequestLetter)
				r.Post("/{disputeID}/mailed", s.handleRecordMailed)
				r.Post("/{disputeID}/outcome", s.handleRecordOutcome)
			})

			r.Get("/letters", s.handleListLetters)
			r.Get("/letters/{letterID}", s.handleGetLetter)
			r.Get("/summary", s.handleSummary)
			r.Delete("/account/data", s.handlePurgeAccountData)
		})
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
