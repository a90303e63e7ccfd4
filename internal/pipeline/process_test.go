package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealdesk-cli/internal/classify"
	"github.com/sells-group/dealdesk-cli/internal/extract"
	"github.com/sells-group/dealdesk-cli/internal/model"
	"github.com/sells-group/dealdesk-cli/internal/store"
	"github.com/sells-group/dealdesk-cli/internal/underwrite"
)

// memStore records status transitions and created facts.
type memStore struct {
	mu          sync.Mutex
	statuses    []model.ExtractionStatus
	docTypes    []model.DocumentType
	facts       []model.Fact
	factsErr    error
	statusErr   error
	statusErrOn model.ExtractionStatus
}

func (s *memStore) CreateDocument(ctx context.Context, doc model.Document) error { return nil }
func (s *memStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	return nil, nil
}
func (s *memStore) ListDocuments(ctx context.Context, dealID string) ([]model.Document, error) {
	return nil, nil
}

func (s *memStore) UpdateDocumentStatus(ctx context.Context, id string, status model.ExtractionStatus, docType model.DocumentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil && status == s.statusErrOn {
		return s.statusErr
	}
	s.statuses = append(s.statuses, status)
	s.docTypes = append(s.docTypes, docType)
	return nil
}

func (s *memStore) CreateFacts(ctx context.Context, facts []model.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.factsErr != nil {
		return s.factsErr
	}
	s.facts = append(s.facts, facts...)
	return nil
}

func (s *memStore) GetFact(ctx context.Context, id string) (*model.Fact, error) { return nil, nil }
func (s *memStore) ListFacts(ctx context.Context, f store.FactFilter) ([]model.Fact, error) {
	return nil, nil
}
func (s *memStore) UpdateFactValue(ctx context.Context, id, value, unit string) error { return nil }
func (s *memStore) ApproveFacts(ctx context.Context, ids []string, by string) error   { return nil }
func (s *memStore) RejectFact(ctx context.Context, id string) error                   { return nil }
func (s *memStore) UnlockFact(ctx context.Context, id string) error                   { return nil }
func (s *memStore) SaveUnderwriting(ctx context.Context, dealID string, r *underwrite.UnderwritingResult) error {
	return nil
}
func (s *memStore) GetUnderwriting(ctx context.Context, dealID string) (*underwrite.UnderwritingResult, error) {
	return nil, nil
}
func (s *memStore) Migrate(ctx context.Context) error { return nil }
func (s *memStore) Close() error                      { return nil }

// stubExtractor scripts the AI extraction result.
type stubExtractor struct {
	facts []model.CandidateFact
	err   error
	calls int
}

func (s *stubExtractor) ExtractFacts(ctx context.Context, docType model.DocumentType, fullText, instructions string) ([]model.CandidateFact, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.facts, nil
}

func ocrPages(texts ...string) []model.OCRPage {
	out := make([]model.OCRPage, 0, len(texts))
	for _, t := range texts {
		out = append(out, model.OCRPage{Fragments: []model.OCRFragment{{Text: t}}})
	}
	return out
}

func testDoc() model.Document {
	return model.Document{
		DocumentID:   "doc-1",
		DealID:       "deal-1",
		FileName:     "rent_roll_2024.pdf",
		DocumentType: model.DocTypeOther,
		Status:       model.ExtractionPending,
	}
}

func TestProcessDocument(t *testing.T) {
	st := &memStore{}
	p := New(st, classify.New(nil), extract.NewPatternExtractor(nil))

	pages := ocrPages(
		"Total Units: 24 Occupancy: 95.8%",
		"Collected Rent: $114,000.00",
	)
	result, err := p.ProcessDocument(context.Background(), testDoc(), pages)
	require.NoError(t, err)

	assert.Equal(t, model.DocTypeRentRoll, result.DocumentType)
	assert.False(t, result.AIDegraded)
	assert.Len(t, result.FactIDs, 3)

	assert.Equal(t, []model.ExtractionStatus{
		model.ExtractionRunning,
		model.ExtractionCompleted,
	}, st.statuses)
	// The completed transition carries the resolved type
	assert.Equal(t, model.DocTypeRentRoll, st.docTypes[1])

	require.Len(t, st.facts, 3)
	for _, f := range st.facts {
		assert.Equal(t, "doc-1", f.DocumentID)
		assert.Equal(t, "deal-1", f.DealID)
		assert.Equal(t, model.StatusPendingApproval, f.Status)
		assert.False(t, f.Locked)
		assert.NotEmpty(t, f.FactID)
	}
}

func TestProcessDocumentEarliestPageWins(t *testing.T) {
	st := &memStore{}
	p := New(st, classify.New(nil), extract.NewPatternExtractor(nil), WithMaxConcurrentPages(8))

	pages := ocrPages(
		"Collected Rent: $114,000",
		"Collected Rent: $999,999",
	)
	_, err := p.ProcessDocument(context.Background(), testDoc(), pages)
	require.NoError(t, err)

	require.Len(t, st.facts, 1)
	assert.Equal(t, "114000", st.facts[0].Value)
	require.NotNil(t, st.facts[0].Citation)
	assert.Equal(t, 1, st.facts[0].Citation.DocumentPage)
}

func TestProcessDocumentMergesAIFacts(t *testing.T) {
	st := &memStore{}
	ai := &stubExtractor{facts: []model.CandidateFact{
		// Collides with the pattern result: pattern wins
		{FactType: model.FactCollectedRent, Label: "Collected Rent", Value: "999999", Confidence: 0.6},
		// New fact: kept
		{FactType: model.FactPropertyValue, Label: "Property Value", Value: "1000000", Confidence: 0.7},
	}}
	p := New(st, classify.New(nil), extract.NewPatternExtractor(nil), WithAIExtractor(ai, nil))

	_, err := p.ProcessDocument(context.Background(), testDoc(), ocrPages("Collected Rent: $114,000"))
	require.NoError(t, err)

	assert.Equal(t, 1, ai.calls)
	require.Len(t, st.facts, 2)
	assert.Equal(t, "114000", st.facts[0].Value)
	assert.Equal(t, model.FactPropertyValue, st.facts[1].FactType)
}

func TestProcessDocumentAIDegrades(t *testing.T) {
	st := &memStore{}
	ai := &stubExtractor{err: eris.New("api: overloaded")}
	p := New(st, classify.New(nil), extract.NewPatternExtractor(nil), WithAIExtractor(ai, nil))

	result, err := p.ProcessDocument(context.Background(), testDoc(), ocrPages("Collected Rent: $114,000"))
	require.NoError(t, err)

	assert.True(t, result.AIDegraded)
	// Pattern facts still persisted
	require.Len(t, st.facts, 1)
	assert.Equal(t, []model.ExtractionStatus{
		model.ExtractionRunning,
		model.ExtractionCompleted,
	}, st.statuses)
}

func TestProcessDocumentPersistFailureMarksFailed(t *testing.T) {
	st := &memStore{factsErr: eris.New("db: connection lost")}
	p := New(st, classify.New(nil), extract.NewPatternExtractor(nil))

	_, err := p.ProcessDocument(context.Background(), testDoc(), ocrPages("Collected Rent: $114,000"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist facts")

	assert.Equal(t, []model.ExtractionStatus{
		model.ExtractionRunning,
		model.ExtractionFailed,
	}, st.statuses)
}

func TestProcessDocumentRunningTransitionFailure(t *testing.T) {
	st := &memStore{
		statusErr:   eris.New("db: down"),
		statusErrOn: model.ExtractionRunning,
	}
	p := New(st, classify.New(nil), extract.NewPatternExtractor(nil))

	_, err := p.ProcessDocument(context.Background(), testDoc(), ocrPages("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark document running")
}

func TestMergeCandidates(t *testing.T) {
	patterns := []model.CandidateFact{
		{FactType: model.FactCollectedRent, Label: "Collected Rent", Value: "114000"},
	}
	ai := []model.CandidateFact{
		{FactType: model.FactCollectedRent, Label: "Collected Rent", Value: "999999"},
		{FactType: model.FactUnitCount, Label: "Unit Count", Value: "24"},
		{FactType: model.FactUnitCount, Label: "Unit Count", Value: "25"},
	}

	merged := mergeCandidates(patterns, ai)
	require.Len(t, merged, 2)
	assert.Equal(t, "114000", merged[0].Value)
	assert.Equal(t, "24", merged[1].Value)
}
