package tradeline

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("tradeline: not found")
	ErrInvalidCandidate = errors.New("tradeline: invalid candidate")
	ErrInvalidBureau    = errors.New("tradeline: invalid bureau")
)

// Bureau identifies one of the three consumer reporting agencies.
type Bureau string

const (
	BureauEquifax    Bureau = "equifax"
	BureauExperian   Bureau = "experian"
	BureauTransUnion Bureau = "transunion"
)

// Bureaus lists every supported bureau in display order.
var Bureaus = []Bureau{BureauEquifax, BureauExperian, BureauTransUnion}

func (b Bureau) Valid() bool {
	switch b {
	case BureauEquifax, BureauExperian, BureauTransUnion:
		return true
	}
	return false
}

// ParseBureau accepts the spellings analyzers and users tend to produce
// ("TransUnion", "trans_union", " Experian ").
func ParseBureau(raw string) (Bureau, error) {
	b := Bureau(normalize(raw, ""))
	if !b.Valid() {
		return "", ErrInvalidBureau
	}
	return b, nil
}

// ItemType classifies the negative item reported on a tradeline.
type ItemType string

const (
	ItemLatePayment   ItemType = "late_payment"
	ItemCollection    ItemType = "collection"
	ItemChargeOff     ItemType = "charge_off"
	ItemOtherNegative ItemType = "other_negative"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemLatePayment, ItemCollection, ItemChargeOff, ItemOtherNegative:
		return true
	}
	return false
}

// ParseItemType maps free text from the analyzer onto a known type. Anything
// unrecognised but non-empty is treated as other_negative.
func ParseItemType(raw string) (ItemType, error) {
	t := ItemType(normalize(raw, "_"))
	if t == "" {
		return "", ErrInvalidCandidate
	}
	switch t {
	case "late", "late_pay", "late_payments":
		return ItemLatePayment, nil
	case "collections", "collection_account":
		return ItemCollection, nil
	case "chargeoff", "charged_off":
		return ItemChargeOff, nil
	}
	if !t.Valid() {
		return ItemOtherNegative, nil
	}
	return t, nil
}

func normalize(raw, sep string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", sep, " ", sep, "_", sep).Replace(s)
	return s
}

// Tradeline is a negative item extracted from a credit report. It is
// immutable after ingest.
type Tradeline struct {
	ID          string
	UserID      string
	ReportID    string
	Creditor    string
	Bureau      Bureau
	ItemType    ItemType
	AmountCents *int64
	ReportedOn  time.Time
	CreatedAt   time.Time
}

// Candidate is an unvalidated item as returned by the report analyzer.
type Candidate struct {
	Creditor    string `json:"creditor"`
	Bureau      string `json:"bureau"`
	ItemType    string `json:"type"`
	AmountCents *int64 `json:"amount_cents,omitempty"`
	ReportedOn  string `json:"reported_on"`
}

var reportedOnLayouts = []string{"2006-01-02", "2006-01", "Jan 2006", "January 2006", "01/2006"}

func parseReportedOn(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range reportedOnLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidCandidate
}

// IngestResult summarises one analyzed report.
type IngestResult struct {
	ReportID   string
	Tradelines []Tradeline
	Skipped    int
}
