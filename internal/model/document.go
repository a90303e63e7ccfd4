package model

import "time"

// DocumentType represents a classified deal document category.
type DocumentType string

const (
	DocTypeRentRoll          DocumentType = "rent_roll"
	DocTypeProfitAndLoss     DocumentType = "profit_and_loss"
	DocTypeMortgageStatement DocumentType = "mortgage_statement"
	DocTypeTaxDocument       DocumentType = "tax_document"
	DocTypeBankStatement     DocumentType = "bank_statement"
	DocTypePropertyDeed      DocumentType = "property_deed"
	DocTypeInsurancePolicy   DocumentType = "insurance_policy"
	DocTypeOther             DocumentType = "other"
)

// AllDocumentTypes returns all defined document types.
func AllDocumentTypes() []DocumentType {
	return []DocumentType{
		DocTypeRentRoll,
		DocTypeProfitAndLoss,
		DocTypeMortgageStatement,
		DocTypeTaxDocument,
		DocTypeBankStatement,
		DocTypePropertyDeed,
		DocTypeInsurancePolicy,
		DocTypeOther,
	}
}

// ParseDocumentType maps a stored string to a DocumentType. Unrecognized
// values map to DocTypeOther with ok=false so callers can log the fallback.
func ParseDocumentType(s string) (DocumentType, bool) {
	for _, dt := range AllDocumentTypes() {
		if s == string(dt) {
			return dt, true
		}
	}
	return DocTypeOther, false
}

// ExtractionStatus represents the fact-extraction progress of a document.
type ExtractionStatus string

const (
	ExtractionPending   ExtractionStatus = "pending"
	ExtractionRunning   ExtractionStatus = "running"
	ExtractionCompleted ExtractionStatus = "completed"
	ExtractionFailed    ExtractionStatus = "failed"
)

// Document represents an uploaded deal document. The blob itself lives with
// an external storage collaborator; only metadata is tracked here.
type Document struct {
	DocumentID   string           `json:"document_id"`
	DealID       string           `json:"deal_id"`
	FileName     string           `json:"file_name"`
	DocumentType DocumentType     `json:"document_type"`
	Status       ExtractionStatus `json:"status"`
	PageCount    int              `json:"page_count"`
	CreatedAt    time.Time        `json:"created_at"`
}
