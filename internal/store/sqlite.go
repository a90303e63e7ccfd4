package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/dealdesk-cli/internal/model"
	"github.com/sells-group/dealdesk-cli/internal/underwrite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	deal_id       TEXT NOT NULL,
	file_name     TEXT NOT NULL,
	document_type TEXT NOT NULL DEFAULT 'other',
	status        TEXT NOT NULL DEFAULT 'pending',
	page_count    INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS facts (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	deal_id     TEXT NOT NULL,
	fact_type   TEXT NOT NULL,
	label       TEXT NOT NULL,
	value       TEXT NOT NULL,
	unit        TEXT NOT NULL DEFAULT '',
	citation    TEXT,
	confidence  REAL NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'pending_approval',
	locked      INTEGER NOT NULL DEFAULT 0,
	approved_at DATETIME,
	approved_by TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS underwriting (
	deal_id    TEXT PRIMARY KEY,
	result     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_documents_deal_id ON documents(deal_id);
CREATE INDEX IF NOT EXISTS idx_facts_deal_id ON facts(deal_id);
CREATE INDEX IF NOT EXISTS idx_facts_document_id ON facts(document_id);
CREATE INDEX IF NOT EXISTS idx_facts_status ON facts(status);
CREATE INDEX IF NOT EXISTS idx_facts_fact_type ON facts(fact_type);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc model.Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, deal_id, file_name, document_type, status, page_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.DocumentID, doc.DealID, doc.FileName, string(doc.DocumentType),
		string(doc.Status), doc.PageCount, doc.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert document")
}

func (s *SQLiteStore) GetDocument(ctx context.Context, documentID string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, deal_id, file_name, document_type, status, page_count, created_at
		 FROM documents WHERE id = ?`,
		documentID,
	)
	return scanDocument(row)
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, dealID string) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, deal_id, file_name, document_type, status, page_count, created_at
		 FROM documents WHERE deal_id = ? ORDER BY created_at`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: list documents iterate")
}

func (s *SQLiteStore) UpdateDocumentStatus(ctx context.Context, documentID string, status model.ExtractionStatus, docType model.DocumentType) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, document_type = ? WHERE id = ?`,
		string(status), string(docType), documentID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document status %s", documentID)
	}
	return checkRowsAffected(res, "document", documentID)
}

func (s *SQLiteStore) CreateFacts(ctx context.Context, facts []model.Fact) error {
	if len(facts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	for _, f := range facts {
		citationJSON, err := marshalCitation(f.Citation)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO facts (id, document_id, deal_id, fact_type, label, value, unit, citation, confidence, status, locked, approved_at, approved_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.FactID, f.DocumentID, f.DealID, string(f.FactType), f.Label, f.Value, f.Unit,
			citationJSON, f.Confidence, string(f.Status), f.Locked, f.ApprovedAt, f.ApprovedBy, f.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert fact %s", f.FactID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit facts")
}

func (s *SQLiteStore) GetFact(ctx context.Context, factID string) (*model.Fact, error) {
	row := s.db.QueryRowContext(ctx, selectFactSQL+` WHERE id = ?`, factID)
	return scanFact(row)
}

const selectFactSQL = `SELECT id, document_id, deal_id, fact_type, label, value, unit, citation, confidence, status, locked, approved_at, approved_by, created_at FROM facts`

func (s *SQLiteStore) ListFacts(ctx context.Context, filter FactFilter) ([]model.Fact, error) {
	query := selectFactSQL + ` WHERE 1=1`
	var args []any

	if filter.DealID != "" {
		query += ` AND deal_id = ?`
		args = append(args, filter.DealID)
	}
	if filter.DocumentID != "" {
		query += ` AND document_id = ?`
		args = append(args, filter.DocumentID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.FactType != "" {
		query += ` AND fact_type = ?`
		args = append(args, string(filter.FactType))
	}
	query += ` ORDER BY created_at, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list facts")
	}
	defer rows.Close()

	var facts []model.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, *f)
	}
	return facts, eris.Wrap(rows.Err(), "sqlite: list facts iterate")
}

func (s *SQLiteStore) UpdateFactValue(ctx context.Context, factID, value, unit string) error {
	query := `UPDATE facts SET value = ? WHERE id = ? AND locked = 0`
	args := []any{value, factID}
	if unit != "" {
		query = `UPDATE facts SET value = ?, unit = ? WHERE id = ? AND locked = 0`
		args = []any{value, unit, factID}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update fact value %s", factID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		// Either the fact does not exist or it is locked.
		if _, err := s.GetFact(ctx, factID); err != nil {
			return err
		}
		return eris.Errorf("sqlite: fact %s is locked", factID)
	}
	return nil
}

func (s *SQLiteStore) ApproveFacts(ctx context.Context, factIDs []string, approvedBy string) error {
	if len(factIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(factIDs)), ", ")
	args := []any{string(model.StatusApproved), time.Now().UTC(), approvedBy}
	for _, id := range factIDs {
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE facts SET status = ?, locked = 1, approved_at = ?, approved_by = ? WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: approve facts")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if int(n) != len(factIDs) {
		return eris.Errorf("sqlite: approved %d of %d facts, some not found", n, len(factIDs))
	}
	return nil
}

func (s *SQLiteStore) RejectFact(ctx context.Context, factID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE facts SET status = ?, locked = 0, approved_at = NULL, approved_by = '' WHERE id = ?`,
		string(model.StatusRejected), factID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: reject fact %s", factID)
	}
	return checkRowsAffected(res, "fact", factID)
}

func (s *SQLiteStore) UnlockFact(ctx context.Context, factID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE facts SET status = ?, locked = 0, approved_at = NULL, approved_by = '' WHERE id = ?`,
		string(model.StatusPendingApproval), factID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: unlock fact %s", factID)
	}
	return checkRowsAffected(res, "fact", factID)
}

func (s *SQLiteStore) SaveUnderwriting(ctx context.Context, dealID string, result *underwrite.UnderwritingResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal underwriting result")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO underwriting (deal_id, result, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(deal_id) DO UPDATE SET result = excluded.result, updated_at = excluded.updated_at`,
		dealID, string(resultJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save underwriting %s", dealID)
}

func (s *SQLiteStore) GetUnderwriting(ctx context.Context, dealID string) (*underwrite.UnderwritingResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT result FROM underwriting WHERE deal_id = ?`,
		dealID,
	)

	var resultJSON string
	err := row.Scan(&resultJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get underwriting %s", dealID)
	}

	var result underwrite.UnderwritingResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal underwriting result")
	}
	return &result, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func marshalCitation(c *model.SourceCitation) (sql.NullString, error) {
	if c == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return sql.NullString{}, eris.Wrap(err, "sqlite: marshal citation")
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func scanDocument(row scannable) (*model.Document, error) {
	var d model.Document
	var docType, status string

	err := row.Scan(&d.DocumentID, &d.DealID, &d.FileName, &docType, &status, &d.PageCount, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("document not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan document")
	}

	d.DocumentType, _ = model.ParseDocumentType(docType)
	d.Status = model.ExtractionStatus(status)
	return &d, nil
}

func scanFact(row scannable) (*model.Fact, error) {
	var f model.Fact
	var factType, status string
	var citationJSON sql.NullString
	var approvedAt sql.NullTime

	err := row.Scan(&f.FactID, &f.DocumentID, &f.DealID, &factType, &f.Label, &f.Value, &f.Unit,
		&citationJSON, &f.Confidence, &status, &f.Locked, &approvedAt, &f.ApprovedBy, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("fact not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan fact")
	}

	if f.FactType, err = model.ParseFactType(factType); err != nil {
		return nil, err
	}
	if f.Status, err = model.ParseFactStatus(status); err != nil {
		return nil, err
	}
	if citationJSON.Valid {
		f.Citation = &model.SourceCitation{}
		if err := json.Unmarshal([]byte(citationJSON.String), f.Citation); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal citation")
		}
	}
	if approvedAt.Valid {
		f.ApprovedAt = &approvedAt.Time
	}
	return &f, nil
}
