package dispute

import (
	"fmt"
	"sort"
	"time"

	"scorevera/tradeline"
)

// nextRound decides which round a new dispute for (tradelineID, bureau)
// opens, given every existing dispute for that pair. requested 0 means "the
// next one".
func (p Policy) nextRound(tradelineID string, bureau tradeline.Bureau, existing []Record, requested int, now time.Time) (int, error) {
	if requested < 0 {
		return 0, fmt.Errorf("%w: round must be positive, got %d", ErrInvalidInput, requested)
	}

	sorted := append([]Record(nil), existing...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Round < sorted[j].Round })
	for i, rec := range sorted {
		if rec.Round != i+1 {
			return 0, fmt.Errorf("dispute: rounds for tradeline %s at %s are not contiguous (found %d at position %d)",
				tradelineID, bureau, rec.Round, i+1)
		}
	}

	notEligible := func(round int, reason EligibilityReason) error {
		return &RoundNotEligibleError{TradelineID: tradelineID, Bureau: bureau, Round: round, Reason: reason}
	}

	next := 1
	if n := len(sorted); n > 0 {
		latest := sorted[n-1]
		switch status := p.Effective(latest, now); {
		case status.Open():
			return 0, &DuplicateOpenDisputeError{
				TradelineID:   tradelineID,
				Bureau:        bureau,
				OpenDisputeID: latest.ID,
				OpenRound:     latest.Round,
				OpenStatus:    status,
			}
		case status == StatusDeleted:
			return 0, notEligible(latest.Round+1, ReasonItemDeleted)
		}
		next = latest.Round + 1
	}

	if requested != 0 && requested != next {
		if requested < next {
			return 0, notEligible(requested, ReasonRoundExists)
		}
		return 0, notEligible(requested, ReasonRoundGap)
	}
	if p.MaxRounds > 0 && next > p.MaxRounds {
		return 0, notEligible(next, ReasonRoundLimit)
	}
	return next, nil
}
