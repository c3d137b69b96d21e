package tradeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scorevera/external"
)

// Analyzer extracts candidate negative items from a credit report PDF.
type Analyzer interface {
	Analyze(ctx context.Context, pdf []byte) ([]Candidate, error)
}

// PurgeHook removes data owned by other stores when a user's tradelines are
// purged. Postgres cascades on its own; in-memory stores register here.
type PurgeHook func(ctx context.Context, userID string) error

type Service struct {
	repo     Repository
	analyzer Analyzer
	timeout  time.Duration
	logger   *zap.Logger
	hooks    []PurgeHook
	now      func() time.Time
	idGen    func() string
}

func NewService(repo Repository, analyzer Analyzer, timeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		analyzer: analyzer,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
		idGen:    uuid.NewString,
	}
}

// WithClock overrides the time source, primarily for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// WithIDGenerator overrides tradeline id generation, primarily for tests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	if gen != nil {
		s.idGen = gen
	}
	return s
}

func (s *Service) WithPurgeHook(hook PurgeHook) *Service {
	if hook != nil {
		s.hooks = append(s.hooks, hook)
	}
	return s
}

// ReportID fingerprints a report so re-uploads land on the same rows.
func ReportID(pdf []byte) string {
	sum := sha256.Sum256(pdf)
	return hex.EncodeToString(sum[:16])
}

// Ingest runs the analyzer on pdf and stores every valid candidate. Invalid
// candidates are skipped and counted; the analyzer call is bounded by the
// service timeout and runs before anything is written.
func (s *Service) Ingest(ctx context.Context, userID string, pdf []byte) (IngestResult, error) {
	if userID == "" {
		return IngestResult{}, fmt.Errorf("tradeline: ingest: missing user id")
	}
	candidates, err := external.Call(ctx, "report analyzer", s.timeout, func(ctx context.Context) ([]Candidate, error) {
		return s.analyzer.Analyze(ctx, pdf)
	})
	if err != nil {
		s.logger.Warn("report analysis failed", zap.String("user_id", userID), zap.Error(err))
		return IngestResult{}, fmt.Errorf("tradeline: analyze: %w", err)
	}

	reportID := ReportID(pdf)
	now := s.now().UTC()
	result := IngestResult{ReportID: reportID}
	items := make([]Tradeline, 0, len(candidates))
	for _, c := range candidates {
		t, err := s.normalize(userID, reportID, c, now)
		if err != nil {
			result.Skipped++
			s.logger.Debug("skipping analyzer candidate", zap.String("creditor", c.Creditor), zap.Error(err))
			continue
		}
		items = append(items, t)
	}

	stored, err := s.repo.InsertBatch(ctx, items)
	if err != nil {
		return IngestResult{}, err
	}
	result.Tradelines = stored
	s.logger.Info("report ingested",
		zap.String("user_id", userID),
		zap.String("report_id", reportID),
		zap.Int("tradelines", len(stored)),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (s *Service) normalize(userID, reportID string, c Candidate, now time.Time) (Tradeline, error) {
	creditor := strings.TrimSpace(c.Creditor)
	if creditor == "" {
		return Tradeline{}, fmt.Errorf("%w: missing creditor", ErrInvalidCandidate)
	}
	bureau, err := ParseBureau(c.Bureau)
	if err != nil {
		return Tradeline{}, fmt.Errorf("%w: bureau %q", ErrInvalidCandidate, c.Bureau)
	}
	itemType, err := ParseItemType(c.ItemType)
	if err != nil {
		return Tradeline{}, fmt.Errorf("%w: missing type", ErrInvalidCandidate)
	}
	reportedOn, err := parseReportedOn(c.ReportedOn)
	if err != nil {
		return Tradeline{}, fmt.Errorf("%w: reported_on %q", ErrInvalidCandidate, c.ReportedOn)
	}
	if c.AmountCents != nil && *c.AmountCents < 0 {
		return Tradeline{}, fmt.Errorf("%w: negative amount", ErrInvalidCandidate)
	}
	return Tradeline{
		ID:          s.idGen(),
		UserID:      userID,
		ReportID:    reportID,
		Creditor:    creditor,
		Bureau:      bureau,
		ItemType:    itemType,
		AmountCents: c.AmountCents,
		ReportedOn:  reportedOn,
		CreatedAt:   now,
	}, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (Tradeline, error) {
	return s.repo.Get(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, userID string) ([]Tradeline, error) {
	return s.repo.List(ctx, userID)
}

// Purge removes the user's tradelines and everything derived from them.
func (s *Service) Purge(ctx context.Context, userID string) (int64, error) {
	for _, hook := range s.hooks {
		if err := hook(ctx, userID); err != nil {
			return 0, fmt.Errorf("tradeline: purge dependents: %w", err)
		}
	}
	n, err := s.repo.Purge(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("user data purged", zap.String("user_id", userID), zap.Int64("tradelines", n))
	return n, nil
}
