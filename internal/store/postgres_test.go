package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealdesk-cli/internal/model"
	"github.com/sells-group/dealdesk-cli/internal/underwrite"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var documentPgColumns = []string{"id", "deal_id", "file_name", "document_type", "status", "page_count", "created_at"}

func TestPostgresStore_GetDocument(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, deal_id, file_name, document_type, status, page_count, created_at FROM documents WHERE id = \$1`).
		WithArgs("doc-1").
		WillReturnRows(pgxmock.NewRows(documentPgColumns).
			AddRow("doc-1", "deal-1", "rent_roll_2024.pdf", "rent_roll", "completed", 3, created))

	doc, err := s.GetDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "deal-1", doc.DealID)
	assert.Equal(t, model.DocTypeRentRoll, doc.DocumentType)
	assert.Equal(t, model.ExtractionCompleted, doc.Status)
	assert.Equal(t, 3, doc.PageCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDocument_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM documents WHERE id = \$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetDocument(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateDocument(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	doc := model.Document{
		DocumentID:   "doc-1",
		DealID:       "deal-1",
		FileName:     "p_and_l.pdf",
		DocumentType: model.DocTypeProfitAndLoss,
		Status:       model.ExtractionPending,
		PageCount:    2,
		CreatedAt:    time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO documents`).
		WithArgs(doc.DocumentID, doc.DealID, doc.FileName, "profit_and_loss", "pending", 2, doc.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.CreateDocument(context.Background(), doc))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateDocumentStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE documents SET status = \$1, document_type = \$2 WHERE id = \$3`).
		WithArgs("completed", "rent_roll", "missing-doc").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateDocumentStatus(context.Background(), "missing-doc", model.ExtractionCompleted, model.DocTypeRentRoll)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document not found: missing-doc")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetFact(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	approved := created.Add(time.Hour)
	citation, err := json.Marshal(model.SourceCitation{DocumentPage: 2, Text: "Total Expenses: $45,000"})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT .+ FROM facts WHERE id = \$1`).
		WithArgs("fact-1").
		WillReturnRows(pgxmock.NewRows(factColumns).
			AddRow("fact-1", "doc-1", "deal-1", "operating_expenses", "Total Operating Expenses",
				"45000.00", "USD/year", citation, 0.9, "approved", true, &approved, "analyst@example.com", created))

	f, err := s.GetFact(context.Background(), "fact-1")
	require.NoError(t, err)
	assert.Equal(t, model.FactOperatingExpenses, f.FactType)
	assert.Equal(t, model.StatusApproved, f.Status)
	assert.True(t, f.Locked)
	require.NotNil(t, f.Citation)
	assert.Equal(t, 2, f.Citation.DocumentPage)
	require.NotNil(t, f.ApprovedAt)
	assert.Equal(t, approved, *f.ApprovedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetFact_UnknownStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM facts WHERE id = \$1`).
		WithArgs("fact-1").
		WillReturnRows(pgxmock.NewRows(factColumns).
			AddRow("fact-1", "doc-1", "deal-1", "collected_rent", "Collected Rent",
				"114000", "USD/year", []byte(nil), 0.8, "archived", false, (*time.Time)(nil), "", time.Now().UTC()))

	_, err := s.GetFact(context.Background(), "fact-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown fact status "archived"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListFacts_FilterArgs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM facts WHERE 1=1 AND deal_id = \$1 AND status = \$2 ORDER BY created_at, id LIMIT \$3`).
		WithArgs("deal-1", "approved", 500).
		WillReturnRows(pgxmock.NewRows(factColumns).
			AddRow("fact-1", "doc-1", "deal-1", "collected_rent", "Collected Rent",
				"114000", "USD/year", []byte(nil), 0.8, "approved", true, (*time.Time)(nil), "", time.Now().UTC()))

	facts, err := s.ListFacts(context.Background(), FactFilter{DealID: "deal-1", Status: model.StatusApproved})
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "fact-1", facts[0].FactID)
	assert.Nil(t, facts[0].Citation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListFacts_Pagination(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM facts WHERE 1=1 AND deal_id = \$1 ORDER BY created_at, id LIMIT \$2 OFFSET \$3`).
		WithArgs("deal-1", 10, 20).
		WillReturnRows(pgxmock.NewRows(factColumns))

	facts, err := s.ListFacts(context.Background(), FactFilter{DealID: "deal-1", Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Empty(t, facts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateFacts_Copy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"facts"}, factColumns).WillReturnResult(2)

	now := time.Now().UTC()
	facts := []model.Fact{
		{FactID: "fact-1", DocumentID: "doc-1", DealID: "deal-1", FactType: model.FactCollectedRent,
			Label: "Collected Rent", Value: "114000", Status: model.StatusPendingApproval, CreatedAt: now},
		{FactID: "fact-2", DocumentID: "doc-1", DealID: "deal-1", FactType: model.FactOperatingExpenses,
			Label: "Total Operating Expenses", Value: "45000", Status: model.StatusPendingApproval, CreatedAt: now,
			Citation: &model.SourceCitation{DocumentPage: 1, Text: "Total Expenses: $45,000"}},
	}
	require.NoError(t, s.CreateFacts(context.Background(), facts))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateFactValue_WithUnit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE facts SET value = \$1, unit = \$2 WHERE id = \$3 AND NOT locked`).
		WithArgs("120000", "USD/year", "fact-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateFactValue(context.Background(), "fact-1", "120000", "USD/year"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateFactValue_Locked(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE facts SET value = \$1 WHERE id = \$2 AND NOT locked`).
		WithArgs("120000", "fact-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	// Zero rows means either missing or locked; the follow-up read decides.
	mock.ExpectQuery(`SELECT .+ FROM facts WHERE id = \$1`).
		WithArgs("fact-1").
		WillReturnRows(pgxmock.NewRows(factColumns).
			AddRow("fact-1", "doc-1", "deal-1", "collected_rent", "Collected Rent",
				"114000", "USD/year", []byte(nil), 0.8, "approved", true, (*time.Time)(nil), "", time.Now().UTC()))

	err := s.UpdateFactValue(context.Background(), "fact-1", "120000", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fact fact-1 is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateFactValue_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE facts SET value = \$1 WHERE id = \$2 AND NOT locked`).
		WithArgs("120000", "nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT .+ FROM facts WHERE id = \$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	err := s.UpdateFactValue(context.Background(), "nope", "120000", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fact not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApproveFacts(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ids := []string{"fact-1", "fact-2"}

	mock.ExpectExec(`UPDATE facts SET status = \$1, locked = true, approved_at = \$2, approved_by = \$3 WHERE id = ANY\(\$4\)`).
		WithArgs("approved", pgxmock.AnyArg(), "analyst@example.com", ids).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	require.NoError(t, s.ApproveFacts(context.Background(), ids, "analyst@example.com"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApproveFacts_PartialMiss(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ids := []string{"fact-1", "missing-fact"}

	mock.ExpectExec(`WHERE id = ANY\(\$4\)`).
		WithArgs("approved", pgxmock.AnyArg(), "analyst@example.com", ids).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.ApproveFacts(context.Background(), ids, "analyst@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "approved 1 of 2 facts, some not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApproveFacts_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	require.NoError(t, s.ApproveFacts(context.Background(), nil, "analyst@example.com"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RejectFact(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE facts SET status = \$1, locked = false, approved_at = NULL, approved_by = '' WHERE id = \$2`).
		WithArgs("rejected", "fact-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.RejectFact(context.Background(), "fact-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UnlockFact_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE facts SET status = \$1, locked = false, approved_at = NULL, approved_by = '' WHERE id = \$2`).
		WithArgs("pending_approval", "nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UnlockFact(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fact not found: nope")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveUnderwriting_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(deal_id\) DO UPDATE`).
		WithArgs("deal-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	result := &underwrite.UnderwritingResult{NOI: 69000}
	require.NoError(t, s.SaveUnderwriting(context.Background(), "deal-1", result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetUnderwriting(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	dscr := 1.38
	stored, err := json.Marshal(underwrite.UnderwritingResult{NOI: 69000, DSCR: &dscr})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT result FROM underwriting WHERE deal_id = \$1`).
		WithArgs("deal-1").
		WillReturnRows(pgxmock.NewRows([]string{"result"}).AddRow(stored))

	result, err := s.GetUnderwriting(context.Background(), "deal-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 69000.0, result.NOI)
	require.NotNil(t, result.DSCR)
	assert.Equal(t, 1.38, *result.DSCR)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetUnderwriting_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT result FROM underwriting WHERE deal_id = \$1`).
		WithArgs("unknown-deal").
		WillReturnError(pgx.ErrNoRows)

	result, err := s.GetUnderwriting(context.Background(), "unknown-deal")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS documents`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
