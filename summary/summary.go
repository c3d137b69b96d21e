// Package summary derives the per-user dashboard numbers and round timeline
// from dispute views. It never writes.
package summary

import (
	"context"
	"sort"
	"time"

	"scorevera/dispute"
	"scorevera/tradeline"
)

// Summary is the dashboard read model. NearestDeadline is nil when no
// dispute is waiting on a bureau; ScoreTrend has no data source yet and is
// always nil.
type Summary struct {
	ActiveDisputes   int
	LettersGenerated int
	NearestDeadline  *int
	ScoreTrend       *int
	Rounds           []RoundView
}

// RoundState is the timeline state of one round number.
type RoundState string

const (
	RoundActive   RoundState = "active"
	RoundComplete RoundState = "complete"
	RoundUpcoming RoundState = "upcoming"
)

// RoundView aggregates every dispute of one round number.
type RoundView struct {
	Round           int
	State           RoundState
	SentOn          *time.Time
	DueOn           *time.Time
	DaysLeft        *int
	WindowDays      int
	ProgressPercent float64
	Urgent          bool
	Items           []RoundItem
}

type RoundItem struct {
	DisputeID   string
	TradelineID string
	Creditor    string
	Bureau      tradeline.Bureau
	Status      dispute.Status
}

// Build aggregates views. tradelines supplies creditor names and may be
// incomplete.
func Build(views []dispute.View, tradelines []tradeline.Tradeline, policy dispute.Policy) Summary {
	creditors := make(map[string]string, len(tradelines))
	for _, t := range tradelines {
		creditors[t.ID] = t.Creditor
	}

	var s Summary
	byRound := make(map[int][]dispute.View)
	highest := 0
	for _, v := range views {
		if v.Status.Open() {
			s.ActiveDisputes++
		}
		if v.LetterID != nil {
			s.LettersGenerated++
		}
		if v.Status == dispute.StatusAwaitingResponse && v.Deadline != nil {
			if s.NearestDeadline == nil || v.Deadline.DaysLeft < *s.NearestDeadline {
				left := v.Deadline.DaysLeft
				s.NearestDeadline = &left
			}
		}
		byRound[v.Round] = append(byRound[v.Round], v)
		if v.Round > highest {
			highest = v.Round
		}
	}

	last := policy.MaxRounds
	if highest > last {
		last = highest
	}
	if last == 0 {
		last = 1
	}
	s.Rounds = make([]RoundView, 0, last)
	for round := 1; round <= last; round++ {
		s.Rounds = append(s.Rounds, buildRound(round, byRound[round], creditors, policy))
	}
	return s
}

func buildRound(round int, views []dispute.View, creditors map[string]string, policy dispute.Policy) RoundView {
	rv := RoundView{Round: round, State: RoundUpcoming, WindowDays: policy.WindowDays}
	if len(views) == 0 {
		return rv
	}

	rv.State = RoundComplete
	sort.Slice(views, func(i, j int) bool {
		if creditors[views[i].TradelineID] != creditors[views[j].TradelineID] {
			return creditors[views[i].TradelineID] < creditors[views[j].TradelineID]
		}
		return views[i].Bureau < views[j].Bureau
	})

	var nearest *dispute.Deadline
	for _, v := range views {
		if v.Status.Open() {
			rv.State = RoundActive
		}
		if v.MailedOn != nil && (rv.SentOn == nil || v.MailedOn.Before(*rv.SentOn)) {
			sent := *v.MailedOn
			rv.SentOn = &sent
		}
		if v.Status == dispute.StatusAwaitingResponse && v.Deadline != nil {
			if nearest == nil || v.Deadline.DaysLeft < nearest.DaysLeft {
				d := *v.Deadline
				nearest = &d
			}
		}
		rv.Items = append(rv.Items, RoundItem{
			DisputeID:   v.ID,
			TradelineID: v.TradelineID,
			Creditor:    creditors[v.TradelineID],
			Bureau:      v.Bureau,
			Status:      v.Status,
		})
	}

	if rv.SentOn != nil {
		due := rv.SentOn.AddDate(0, 0, policy.WindowDays)
		rv.DueOn = &due
	}
	if nearest != nil {
		left := nearest.DaysLeft
		rv.DaysLeft = &left
		rv.ProgressPercent = nearest.ProgressPercent
		rv.Urgent = nearest.Urgent
	} else if rv.State == RoundComplete && rv.SentOn != nil {
		rv.ProgressPercent = 100
	}
	return rv
}

// DisputeLister and TradelineLister are satisfied by the dispute and
// tradeline services.
type DisputeLister interface {
	List(ctx context.Context, userID string) ([]dispute.View, error)
	Policy() dispute.Policy
}

type TradelineLister interface {
	List(ctx context.Context, userID string) ([]tradeline.Tradeline, error)
}

type Service struct {
	disputes   DisputeLister
	tradelines TradelineLister
}

func NewService(disputes DisputeLister, tradelines TradelineLister) *Service {
	return &Service{disputes: disputes, tradelines: tradelines}
}

// ForUser computes the summary for userID as of now.
func (s *Service) ForUser(ctx context.Context, userID string) (Summary, error) {
	views, err := s.disputes.List(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	tls, err := s.tradelines.List(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	return Build(views, tls, s.disputes.Policy()), nil
}
