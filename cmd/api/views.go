package main

import (
	"time"

	"scorevera/auth"
	"scorevera/dispute"
	"scorevera/letter"
	"scorevera/summary"
	"scorevera/tradeline"
)

const dateLayout = "2006-01-02"

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(dateLayout)
	return &s
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type tradelineResponse struct {
	ID          string `json:"id"`
	ReportID    string `json:"reportId"`
	Creditor    string `json:"creditor"`
	Bureau      string `json:"bureau"`
	Type        string `json:"type"`
	AmountCents *int64 `json:"amountCents,omitempty"`
	ReportedOn  string `json:"reportedOn"`
	CreatedAt   string `json:"createdAt"`
}

func toTradelineResponse(t tradeline.Tradeline) tradelineResponse {
	return tradelineResponse{
		ID:          t.ID,
		ReportID:    t.ReportID,
		Creditor:    t.Creditor,
		Bureau:      string(t.Bureau),
		Type:        string(t.ItemType),
		AmountCents: t.AmountCents,
		ReportedOn:  t.ReportedOn.UTC().Format(dateLayout),
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type deadlineResponse struct {
	MailedOn        string  `json:"mailedOn"`
	DueOn           string  `json:"dueOn"`
	WindowDays      int     `json:"windowDays"`
	DaysElapsed     int     `json:"daysElapsed"`
	DaysLeft        int     `json:"daysLeft"`
	ProgressPercent float64 `json:"progressPercent"`
	Expired         bool    `json:"expired"`
	Urgent          bool    `json:"urgent"`
}

type disputeResponse struct {
	ID           string            `json:"id"`
	TradelineID  string            `json:"tradelineId"`
	Bureau       string            `json:"bureau"`
	Round        int               `json:"round"`
	Status       string            `json:"status"`
	StoredStatus string            `json:"storedStatus"`
	LetterID     *string           `json:"letterId"`
	MailedOn     *string           `json:"mailedOn"`
	RespondedOn  *string           `json:"respondedOn"`
	Deadline     *deadlineResponse `json:"deadline,omitempty"`
	CreatedAt    string            `json:"createdAt"`
	UpdatedAt    string            `json:"updatedAt"`
}

func toDisputeResponse(v dispute.View) disputeResponse {
	resp := disputeResponse{
		ID:           v.ID,
		TradelineID:  v.TradelineID,
		Bureau:       string(v.Bureau),
		Round:        v.Round,
		Status:       string(v.Status),
		StoredStatus: string(v.StoredStatus),
		LetterID:     v.LetterID,
		MailedOn:     formatDate(v.MailedOn),
		RespondedOn:  formatDate(v.RespondedOn),
		CreatedAt:    v.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    v.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if d := v.Deadline; d != nil {
		resp.Deadline = &deadlineResponse{
			MailedOn:        d.MailedOn.Format(dateLayout),
			DueOn:           d.DueOn.Format(dateLayout),
			WindowDays:      d.WindowDays,
			DaysElapsed:     d.DaysElapsed,
			DaysLeft:        d.DaysLeft,
			ProgressPercent: d.ProgressPercent,
			Expired:         d.Expired,
			Urgent:          d.Urgent,
		}
	}
	return resp
}

type eventResponse struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	From    string         `json:"from,omitempty"`
	To      string         `json:"to"`
	Round   int            `json:"round"`
	At      string         `json:"at"`
	Payload map[string]any `json:"payload,omitempty"`
}

func toEventResponse(e dispute.Event) eventResponse {
	return eventResponse{
		ID:      e.ID,
		Type:    string(e.Type),
		From:    string(e.From),
		To:      string(e.To),
		Round:   e.Round,
		At:      e.At.UTC().Format(time.RFC3339),
		Payload: e.Payload,
	}
}

type letterResponse struct {
	ID        string `json:"id"`
	DisputeID string `json:"disputeId"`
	Round     int    `json:"round"`
	Bureau    string `json:"bureau"`
	Creditor  string `json:"creditor"`
	Body      string `json:"body,omitempty"`
	Model     string `json:"model"`
	CreatedAt string `json:"createdAt"`
}

func toLetterResponse(l letter.Letter, withBody bool) letterResponse {
	resp := letterResponse{
		ID:        l.ID,
		DisputeID: l.DisputeID,
		Round:     l.Round,
		Bureau:    string(l.Bureau),
		Creditor:  l.Creditor,
		Model:     l.Model,
		CreatedAt: l.CreatedAt.UTC().Format(time.RFC3339),
	}
	if withBody {
		resp.Body = l.Body
	}
	return resp
}

type roundItemResponse struct {
	DisputeID   string `json:"disputeId"`
	TradelineID string `json:"tradelineId"`
	Creditor    string `json:"creditor"`
	Bureau      string `json:"bureau"`
	Status      string `json:"status"`
}

type roundResponse struct {
	Round           int                 `json:"round"`
	State           string              `json:"state"`
	SentOn          *string             `json:"sentOn"`
	DueOn           *string             `json:"dueOn"`
	DaysLeft        *int                `json:"daysLeft"`
	WindowDays      int                 `json:"windowDays"`
	ProgressPercent float64             `json:"progressPercent"`
	Urgent          bool                `json:"urgent"`
	Items           []roundItemResponse `json:"items"`
}

type summaryResponse struct {
	ActiveDisputes   int             `json:"activeDisputes"`
	LettersGenerated int             `json:"lettersGenerated"`
	NearestDeadline  *int            `json:"nearestDeadline"`
	ScoreTrend       *int            `json:"scoreTrend"`
	Rounds           []roundResponse `json:"rounds"`
}

func toSummaryResponse(s summary.Summary) summaryResponse {
	resp := summaryResponse{
		ActiveDisputes:   s.ActiveDisputes,
		LettersGenerated: s.LettersGenerated,
		NearestDeadline:  s.NearestDeadline,
		ScoreTrend:       s.ScoreTrend,
		Rounds:           make([]roundResponse, 0, len(s.Rounds)),
	}
	for _, r := range s.Rounds {
		round := roundResponse{
			Round:           r.Round,
			State:           string(r.State),
			SentOn:          formatDate(r.SentOn),
			DueOn:           formatDate(r.DueOn),
			DaysLeft:        r.DaysLeft,
			WindowDays:      r.WindowDays,
			ProgressPercent: r.ProgressPercent,
			Urgent:          r.Urgent,
			Items:           make([]roundItemResponse, 0, len(r.Items)),
		}
		for _, item := range r.Items {
			round.Items = append(round.Items, roundItemResponse{
				DisputeID:   item.DisputeID,
				TradelineID: item.TradelineID,
				Creditor:    item.Creditor,
				Bureau:      string(item.Bureau),
				Status:      string(item.Status),
			})
		}
		resp.Rounds = append(resp.Rounds, round)
	}
	return resp
}
