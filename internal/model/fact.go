package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// FactType identifies the financial quantity a fact describes.
type FactType string

const (
	FactUnitCount          FactType = "unit_count"
	FactOccupancyRate      FactType = "occupancy_rate"
	FactGrossScheduledRent FactType = "gross_scheduled_rent"
	FactCollectedRent      FactType = "collected_rent"
	FactOperatingExpenses  FactType = "operating_expenses"
	FactNetOperatingIncome FactType = "net_operating_income"
	FactDebtService        FactType = "debt_service"
	FactPropertyValue      FactType = "property_value"
	FactMortgageBalance    FactType = "mortgage_balance"
	FactInterestRate       FactType = "interest_rate"
	FactOther              FactType = "other"
)

// AllFactTypes returns all defined fact types.
func AllFactTypes() []FactType {
	return []FactType{
		FactUnitCount,
		FactOccupancyRate,
		FactGrossScheduledRent,
		FactCollectedRent,
		FactOperatingExpenses,
		FactNetOperatingIncome,
		FactDebtService,
		FactPropertyValue,
		FactMortgageBalance,
		FactInterestRate,
		FactOther,
	}
}

// ParseFactType maps a stored string to a FactType. Unlike document type
// classification there is no fallback: fact types are an internal invariant,
// so an unknown value is an error.
func ParseFactType(s string) (FactType, error) {
	for _, ft := range AllFactTypes() {
		if s == string(ft) {
			return ft, nil
		}
	}
	return "", eris.Errorf("model: unknown fact type %q", s)
}

// FactStatus represents the human-review state of a fact.
type FactStatus string

const (
	StatusPendingApproval FactStatus = "pending_approval"
	StatusApproved        FactStatus = "approved"
	StatusRejected        FactStatus = "rejected"
)

// ParseFactStatus maps a stored string to a FactStatus, erroring on
// unrecognized values.
func ParseFactStatus(s string) (FactStatus, error) {
	switch FactStatus(s) {
	case StatusPendingApproval, StatusApproved, StatusRejected:
		return FactStatus(s), nil
	}
	return "", eris.Errorf("model: unknown fact status %q", s)
}

// BoundingBox locates a text fragment on a page, in page coordinates.
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SourceCitation links a fact value back to the page (and, when the OCR
// fragment was located, the exact position) it was read from.
type SourceCitation struct {
	DocumentPage int          `json:"document_page"`
	Text         string       `json:"text"`
	BBox         *BoundingBox `json:"bbox,omitempty"`
}

// CandidateFact is an unvalidated extraction result. Produced by the pattern
// extractor or the AI extractor; it carries the claimed source location that
// citation resolution verifies. Never persisted directly.
type CandidateFact struct {
	FactType   FactType `json:"fact_type"`
	Label      string   `json:"label"`
	Value      string   `json:"value"`
	Unit       string   `json:"unit,omitempty"`
	Confidence float64  `json:"confidence"`
	SourcePage *int     `json:"source_page,omitempty"` // 1-indexed
	SourceText string   `json:"source_text,omitempty"`
}

// ValidatedFact is a candidate that has been through citation resolution.
// A nil Citation is valid: it marks a low-confidence or unverifiable fact,
// not an extraction failure.
type ValidatedFact struct {
	CandidateFact
	Citation *SourceCitation `json:"citation,omitempty"`
}

// Fact is the persisted, reviewable form of a validated fact.
type Fact struct {
	FactID     string          `json:"fact_id"`
	DocumentID string          `json:"document_id"`
	DealID     string          `json:"deal_id"`
	FactType   FactType        `json:"fact_type"`
	Label      string          `json:"label"`
	Value      string          `json:"value"`
	Unit       string          `json:"unit,omitempty"`
	Citation   *SourceCitation `json:"citation,omitempty"`
	Confidence float64         `json:"confidence"`
	Status     FactStatus      `json:"status"`
	Locked     bool            `json:"locked"`
	ApprovedAt *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy string          `json:"approved_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// SetValue mutates the fact's value and unit. Locked facts refuse mutation;
// the only way to edit them again is an explicit unlock-and-reset.
func (f *Fact) SetValue(value, unit string) error {
	if f.Locked {
		return eris.Errorf("model: fact %s is locked", f.FactID)
	}
	f.Value = value
	if unit != "" {
		f.Unit = unit
	}
	return nil
}

// Approve marks the fact approved and locks it against further edits.
func (f *Fact) Approve(by string, now time.Time) {
	f.Status = StatusApproved
	f.Locked = true
	f.ApprovedAt = &now
	f.ApprovedBy = by
}

// Unlock clears the lock and returns the fact to pending review.
func (f *Fact) Unlock() {
	f.Locked = false
	f.Status = StatusPendingApproval
	f.ApprovedAt = nil
	f.ApprovedBy = ""
}
