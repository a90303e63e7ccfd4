package store

import (
	"context"

	"github.com/sells-group/dealdesk-cli/internal/model"
	"github.com/sells-group/dealdesk-cli/internal/underwrite"
)

// FactFilter specifies criteria for listing facts.
type FactFilter struct {
	DealID     string           `json:"deal_id,omitempty"`
	DocumentID string           `json:"document_id,omitempty"`
	Status     model.FactStatus `json:"status,omitempty"`
	FactType   model.FactType   `json:"fact_type,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	Offset     int              `json:"offset,omitempty"`
}

// Store defines the persistence interface for the deal pipeline.
type Store interface {
	// Documents
	CreateDocument(ctx context.Context, doc model.Document) error
	GetDocument(ctx context.Context, documentID string) (*model.Document, error)
	ListDocuments(ctx context.Context, dealID string) ([]model.Document, error)
	UpdateDocumentStatus(ctx context.Context, documentID string, status model.ExtractionStatus, docType model.DocumentType) error

	// Facts
	CreateFacts(ctx context.Context, facts []model.Fact) error
	GetFact(ctx context.Context, factID string) (*model.Fact, error)
	ListFacts(ctx context.Context, filter FactFilter) ([]model.Fact, error)
	UpdateFactValue(ctx context.Context, factID, value, unit string) error
	ApproveFacts(ctx context.Context, factIDs []string, approvedBy string) error
	RejectFact(ctx context.Context, factID string) error
	UnlockFact(ctx context.Context, factID string) error

	// Underwriting
	SaveUnderwriting(ctx context.Context, dealID string, result *underwrite.UnderwritingResult) error
	GetUnderwriting(ctx context.Context, dealID string) (*underwrite.UnderwritingResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
