package dispute

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scorevera/external"
	"scorevera/letter"
	"scorevera/tradeline"
)

const DefaultLetterTimeout = 30 * time.Second

// Service is the per-user dispute boundary. Every mutation runs inside one
// user-scoped write transaction and either fully applies or leaves the
// dispute untouched.
type Service struct {
	store         Store
	tradelines    TradelineReader
	letters       letter.Generator
	policy        Policy
	letterTimeout time.Duration
	logger        *zap.Logger
	now           func() time.Time
	idGen         func() string
}

func NewService(store Store, tradelines TradelineReader, letters letter.Generator, policy Policy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:         store,
		tradelines:    tradelines,
		letters:       letters,
		policy:        policy,
		letterTimeout: DefaultLetterTimeout,
		logger:        logger,
		now:           time.Now,
		idGen:         uuid.NewString,
	}
}

// WithClock overrides the time source, primarily for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// WithIDGenerator overrides dispute and letter id generation.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	if gen != nil {
		s.idGen = gen
	}
	return s
}

func (s *Service) WithLetterTimeout(timeout time.Duration) *Service {
	s.letterTimeout = timeout
	return s
}

func (s *Service) Policy() Policy {
	return s.policy
}

func (s *Service) inTx(ctx context.Context, userID string, fn func(Tx) error) error {
	tx, err := s.store.Begin(ctx, userID)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("dispute: commit: %w", err)
	}
	return nil
}

// materialize persists a lazily expired window before a write looks at rec.
func (s *Service) materialize(ctx context.Context, tx Tx, rec *Record, now time.Time) ([]Event, error) {
	ev, ok := s.policy.expire(rec, now)
	if !ok {
		return nil, nil
	}
	if err := tx.Update(ctx, *rec); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}

// Create opens a dispute for a tradeline at a bureau in the next eligible
// round.
func (s *Service) Create(ctx context.Context, userID string, params CreateParams) (View, error) {
	if userID == "" {
		return View{}, fmt.Errorf("%w: missing user id", ErrInvalidInput)
	}
	if params.TradelineID == "" {
		return View{}, fmt.Errorf("%w: missing tradeline id", ErrInvalidInput)
	}
	tl, err := s.tradelines.Get(ctx, userID, params.TradelineID)
	if err != nil {
		return View{}, err
	}
	bureau := params.Bureau
	if bureau == "" {
		bureau = tl.Bureau
	}
	if !bureau.Valid() {
		return View{}, fmt.Errorf("%w: unknown bureau %q", ErrInvalidInput, bureau)
	}

	now := s.now().UTC()
	var created Record
	err = s.inTx(ctx, userID, func(tx Tx) error {
		pair, err := tx.ListPair(ctx, tl.ID, bureau)
		if err != nil {
			return err
		}
		var events []Event
		if n := len(pair); n > 0 {
			expired, err := s.materialize(ctx, tx, &pair[n-1], now)
			if err != nil {
				return err
			}
			events = append(events, expired...)
		}

		round, err := s.policy.nextRound(tl.ID, bureau, pair, params.Round, now)
		if err != nil {
			return err
		}
		created = Record{
			ID:          s.idGen(),
			UserID:      userID,
			TradelineID: tl.ID,
			Bureau:      bureau,
			Round:       round,
			Status:      StatusDrafted,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Insert(ctx, created); err != nil {
			return err
		}
		events = append(events, createdEvent(created))
		return tx.Append(ctx, events...)
	})
	if err != nil {
		return View{}, err
	}

	s.logger.Info("dispute created",
		zap.String("user_id", userID),
		zap.String("dispute_id", created.ID),
		zap.String("tradeline_id", created.TradelineID),
		zap.String("bureau", string(created.Bureau)),
		zap.Int("round", created.Round))
	return s.policy.View(created, now), nil
}

// RequestLetter asks the generator for the dispute's letter and moves it to
// letter_ready. A dispute that already has a letter returns it without
// calling the generator. The generator runs outside the user's lock.
func (s *Service) RequestLetter(ctx context.Context, userID, disputeID string) (View, letter.Letter, error) {
	rec, err := s.store.Get(ctx, userID, disputeID)
	if err != nil {
		return View{}, letter.Letter{}, err
	}
	if rec.LetterID != nil {
		l, err := s.store.GetLetter(ctx, userID, *rec.LetterID)
		if err != nil {
			return View{}, letter.Letter{}, err
		}
		return s.policy.View(rec, s.now().UTC()), l, nil
	}
	if rec.Status != StatusDrafted {
		return View{}, letter.Letter{}, invalidTransition(rec, StatusLetterReady)
	}

	tl, err := s.tradelines.Get(ctx, userID, rec.TradelineID)
	if err != nil {
		return View{}, letter.Letter{}, err
	}
	req := letter.Request{
		DisputeID:   rec.ID,
		TradelineID: tl.ID,
		Creditor:    tl.Creditor,
		ItemType:    tl.ItemType,
		Bureau:      rec.Bureau,
		Round:       rec.Round,
		ReportedOn:  tl.ReportedOn,
		AmountCents: tl.AmountCents,
		Today:       Day(s.now()),
	}
	draft, err := external.Call(ctx, "letter generator", s.letterTimeout, func(ctx context.Context) (letter.Draft, error) {
		return s.letters.Generate(ctx, req)
	})
	if err != nil {
		s.logger.Warn("letter generation failed",
			zap.String("user_id", userID),
			zap.String("dispute_id", disputeID),
			zap.Error(err))
		return View{}, letter.Letter{}, fmt.Errorf("dispute: generate letter: %w", err)
	}
	if draft.Body == "" {
		return View{}, letter.Letter{}, fmt.Errorf("dispute: generate letter: %w", letter.ErrEmptyDraft)
	}

	now := s.now().UTC()
	var (
		updated Record
		stored  letter.Letter
		reused  bool
	)
	err = s.inTx(ctx, userID, func(tx Tx) error {
		cur, err := tx.GetForUpdate(ctx, disputeID)
		if err != nil {
			return err
		}
		// A concurrent request won the race; keep its letter.
		if cur.LetterID != nil {
			existing, err := tx.GetLetter(ctx, *cur.LetterID)
			if err != nil {
				return err
			}
			updated, stored, reused = cur, existing, true
			return nil
		}

		id := draft.ID
		if id == "" {
			id = s.idGen()
		}
		l := letter.Letter{
			ID:        id,
			DisputeID: cur.ID,
			UserID:    userID,
			Round:     cur.Round,
			Bureau:    cur.Bureau,
			Creditor:  tl.Creditor,
			Body:      draft.Body,
			Model:     draft.Model,
			CreatedAt: now,
		}
		events, err := attachLetter(&cur, l.ID, now)
		if err != nil {
			return err
		}
		if err := tx.InsertLetter(ctx, l); err != nil {
			return err
		}
		if err := tx.Update(ctx, cur); err != nil {
			return err
		}
		if err := tx.Append(ctx, events...); err != nil {
			return err
		}
		updated, stored = cur, l
		return nil
	})
	if err != nil {
		return View{}, letter.Letter{}, err
	}

	if !reused {
		s.logger.Info("letter attached",
			zap.String("user_id", userID),
			zap.String("dispute_id", disputeID),
			zap.String("letter_id", stored.ID),
			zap.String("model", stored.Model))
	}
	return s.policy.View(updated, now), stored, nil
}

// RecordMailed logs the date the user mailed the letter and opens the
// response window.
func (s *Service) RecordMailed(ctx context.Context, userID, disputeID string, mailedOn time.Time) (View, error) {
	if mailedOn.IsZero() {
		return View{}, fmt.Errorf("%w: missing mailed date", ErrInvalidInput)
	}
	now := s.now().UTC()
	var updated Record
	err := s.inTx(ctx, userID, func(tx Tx) error {
		cur, err := tx.GetForUpdate(ctx, disputeID)
		if err != nil {
			return err
		}
		events, err := s.policy.mail(&cur, mailedOn, now)
		if err != nil {
			return err
		}
		if err := tx.Update(ctx, cur); err != nil {
			return err
		}
		updated = cur
		return tx.Append(ctx, events...)
	})
	if err != nil {
		return View{}, err
	}

	s.logger.Info("dispute mailed",
		zap.String("user_id", userID),
		zap.String("dispute_id", disputeID),
		zap.Time("mailed_on", *updated.MailedOn))
	return s.policy.View(updated, now), nil
}

// RecordOutcome records the bureau's answer. Once the window has elapsed the
// dispute is no_response and the outcome is rejected.
func (s *Service) RecordOutcome(ctx context.Context, userID, disputeID string, params OutcomeParams) (View, error) {
	now := s.now().UTC()
	var updated Record
	err := s.inTx(ctx, userID, func(tx Tx) error {
		cur, err := tx.GetForUpdate(ctx, disputeID)
		if err != nil {
			return err
		}
		expired, err := s.materialize(ctx, tx, &cur, now)
		if err != nil {
			return err
		}
		events, err := s.policy.resolve(&cur, params, now)
		if err != nil {
			return err
		}
		if err := tx.Update(ctx, cur); err != nil {
			return err
		}
		updated = cur
		return tx.Append(ctx, append(expired, events...)...)
	})
	if err != nil {
		return View{}, err
	}

	s.logger.Info("dispute outcome recorded",
		zap.String("user_id", userID),
		zap.String("dispute_id", disputeID),
		zap.String("outcome", string(params.Outcome)))
	return s.policy.View(updated, now), nil
}

func (s *Service) Get(ctx context.Context, userID, disputeID string) (View, error) {
	rec, err := s.store.Get(ctx, userID, disputeID)
	if err != nil {
		return View{}, err
	}
	return s.policy.View(rec, s.now().UTC()), nil
}

func (s *Service) List(ctx context.Context, userID string) ([]View, error) {
	recs, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	out := make([]View, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.policy.View(rec, now))
	}
	return out, nil
}

// Events returns the dispute's timeline, oldest first.
func (s *Service) Events(ctx context.Context, userID, disputeID string) ([]Event, error) {
	return s.store.Events(ctx, userID, disputeID)
}

func (s *Service) ListLetters(ctx context.Context, userID string) ([]letter.Letter, error) {
	return s.store.ListLetters(ctx, userID)
}

func (s *Service) GetLetter(ctx context.Context, userID, letterID string) (letter.Letter, error) {
	return s.store.GetLetter(ctx, userID, letterID)
}

// compile-time check that the tradeline service satisfies TradelineReader.
var _ TradelineReader = (*tradeline.Service)(nil)
