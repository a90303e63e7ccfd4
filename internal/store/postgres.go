package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dealdesk-cli/internal/db"
	"github.com/sells-group/dealdesk-cli/internal/model"
	"github.com/sells-group/dealdesk-cli/internal/underwrite"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_document":      selectDocumentPgSQL + ` WHERE id = $1`,
	"get_fact":          selectFactPgSQL + ` WHERE id = $1`,
	"update_fact_value": `UPDATE facts SET value = $1, unit = $2 WHERE id = $3 AND NOT locked`,
	"reject_fact":       `UPDATE facts SET status = $1, locked = false, approved_at = NULL, approved_by = '' WHERE id = $2`,
	"get_underwriting":  `SELECT result FROM underwriting WHERE deal_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	deal_id       TEXT NOT NULL,
	file_name     TEXT NOT NULL,
	document_type TEXT NOT NULL DEFAULT 'other',
	status        TEXT NOT NULL DEFAULT 'pending',
	page_count    INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS facts (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	deal_id     TEXT NOT NULL,
	fact_type   TEXT NOT NULL,
	label       TEXT NOT NULL,
	value       TEXT NOT NULL,
	unit        TEXT NOT NULL DEFAULT '',
	citation    JSONB,
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'pending_approval',
	locked      BOOLEAN NOT NULL DEFAULT false,
	approved_at TIMESTAMPTZ,
	approved_by TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS underwriting (
	deal_id    TEXT PRIMARY KEY,
	result     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_deal_id ON documents(deal_id);
CREATE INDEX IF NOT EXISTS idx_facts_deal_id ON facts(deal_id);
CREATE INDEX IF NOT EXISTS idx_facts_document_id ON facts(document_id);
CREATE INDEX IF NOT EXISTS idx_facts_status ON facts(status);
CREATE INDEX IF NOT EXISTS idx_facts_fact_type ON facts(fact_type);
`

const (
	selectDocumentPgSQL = `SELECT id, deal_id, file_name, document_type, status, page_count, created_at FROM documents`
	selectFactPgSQL     = `SELECT id, document_id, deal_id, fact_type, label, value, unit, citation, confidence, status, locked, approved_at, approved_by, created_at FROM facts`
)

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc model.Document) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, deal_id, file_name, document_type, status, page_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.DocumentID, doc.DealID, doc.FileName, string(doc.DocumentType),
		string(doc.Status), doc.PageCount, doc.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert document")
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx, selectDocumentPgSQL+` WHERE id = $1`, documentID)
	return scanDocumentPg(row)
}

func (s *PostgresStore) ListDocuments(ctx context.Context, dealID string) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx, selectDocumentPgSQL+` WHERE deal_id = $1 ORDER BY created_at`, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocumentPg(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: list documents iterate")
}

func (s *PostgresStore) UpdateDocumentStatus(ctx context.Context, documentID string, status model.ExtractionStatus, docType model.DocumentType) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $1, document_type = $2 WHERE id = $3`,
		string(status), string(docType), documentID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document status %s", documentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("document not found: %s", documentID)
	}
	return nil
}

var factColumns = []string{
	"id", "document_id", "deal_id", "fact_type", "label", "value", "unit",
	"citation", "confidence", "status", "locked", "approved_at", "approved_by", "created_at",
}

func (s *PostgresStore) CreateFacts(ctx context.Context, facts []model.Fact) error {
	rows := make([][]any, len(facts))
	for i, f := range facts {
		var citationJSON []byte
		if f.Citation != nil {
			b, err := json.Marshal(f.Citation)
			if err != nil {
				return eris.Wrap(err, "postgres: marshal citation")
			}
			citationJSON = b
		}
		rows[i] = []any{
			f.FactID, f.DocumentID, f.DealID, string(f.FactType), f.Label, f.Value, f.Unit,
			citationJSON, f.Confidence, string(f.Status), f.Locked, f.ApprovedAt, f.ApprovedBy, f.CreatedAt,
		}
	}

	_, err := db.CopyFrom(ctx, s.pool, "facts", factColumns, rows)
	return eris.Wrap(err, "postgres: create facts")
}

func (s *PostgresStore) GetFact(ctx context.Context, factID string) (*model.Fact, error) {
	row := s.pool.QueryRow(ctx, selectFactPgSQL+` WHERE id = $1`, factID)
	return scanFactPg(row)
}

func (s *PostgresStore) ListFacts(ctx context.Context, filter FactFilter) ([]model.Fact, error) {
	query := selectFactPgSQL + ` WHERE 1=1`
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.DealID != "" {
		query += ` AND deal_id = ` + arg(filter.DealID)
	}
	if filter.DocumentID != "" {
		query += ` AND document_id = ` + arg(filter.DocumentID)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.FactType != "" {
		query += ` AND fact_type = ` + arg(string(filter.FactType))
	}
	query += ` ORDER BY created_at, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list facts")
	}
	defer rows.Close()

	var facts []model.Fact
	for rows.Next() {
		f, err := scanFactPg(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, *f)
	}
	return facts, eris.Wrap(rows.Err(), "postgres: list facts iterate")
}

func (s *PostgresStore) UpdateFactValue(ctx context.Context, factID, value, unit string) error {
	var tag pgconn.CommandTag
	var err error
	if unit != "" {
		tag, err = s.pool.Exec(ctx,
			`UPDATE facts SET value = $1, unit = $2 WHERE id = $3 AND NOT locked`,
			value, unit, factID,
		)
	} else {
		tag, err = s.pool.Exec(ctx,
			`UPDATE facts SET value = $1 WHERE id = $2 AND NOT locked`,
			value, factID,
		)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: update fact value %s", factID)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetFact(ctx, factID); err != nil {
			return err
		}
		return eris.Errorf("postgres: fact %s is locked", factID)
	}
	return nil
}

func (s *PostgresStore) ApproveFacts(ctx context.Context, factIDs []string, approvedBy string) error {
	if len(factIDs) == 0 {
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE facts SET status = $1, locked = true, approved_at = $2, approved_by = $3 WHERE id = ANY($4)`,
		string(model.StatusApproved), time.Now().UTC(), approvedBy, factIDs,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: approve facts")
	}
	if int(tag.RowsAffected()) != len(factIDs) {
		return eris.Errorf("postgres: approved %d of %d facts, some not found", tag.RowsAffected(), len(factIDs))
	}
	return nil
}

func (s *PostgresStore) RejectFact(ctx context.Context, factID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE facts SET status = $1, locked = false, approved_at = NULL, approved_by = '' WHERE id = $2`,
		string(model.StatusRejected), factID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: reject fact %s", factID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("fact not found: %s", factID)
	}
	return nil
}

func (s *PostgresStore) UnlockFact(ctx context.Context, factID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE facts SET status = $1, locked = false, approved_at = NULL, approved_by = '' WHERE id = $2`,
		string(model.StatusPendingApproval), factID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: unlock fact %s", factID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("fact not found: %s", factID)
	}
	return nil
}

func (s *PostgresStore) SaveUnderwriting(ctx context.Context, dealID string, result *underwrite.UnderwritingResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal underwriting result")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO underwriting (deal_id, result, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (deal_id) DO UPDATE SET result = EXCLUDED.result, updated_at = EXCLUDED.updated_at`,
		dealID, resultJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save underwriting %s", dealID)
}

func (s *PostgresStore) GetUnderwriting(ctx context.Context, dealID string) (*underwrite.UnderwritingResult, error) {
	var resultJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT result FROM underwriting WHERE deal_id = $1`, dealID).Scan(&resultJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get underwriting %s", dealID)
	}

	var result underwrite.UnderwritingResult
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal underwriting result")
	}
	return &result, nil
}

// helpers

func scanDocumentPg(row scannable) (*model.Document, error) {
	var d model.Document
	var docType, status string

	err := row.Scan(&d.DocumentID, &d.DealID, &d.FileName, &docType, &status, &d.PageCount, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("document not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan document")
	}

	d.DocumentType, _ = model.ParseDocumentType(docType)
	d.Status = model.ExtractionStatus(status)
	return &d, nil
}

func scanFactPg(row scannable) (*model.Fact, error) {
	var f model.Fact
	var factType, status string
	var citationJSON []byte

	err := row.Scan(&f.FactID, &f.DocumentID, &f.DealID, &factType, &f.Label, &f.Value, &f.Unit,
		&citationJSON, &f.Confidence, &status, &f.Locked, &f.ApprovedAt, &f.ApprovedBy, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("fact not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan fact")
	}

	if f.FactType, err = model.ParseFactType(factType); err != nil {
		return nil, err
	}
	if f.Status, err = model.ParseFactStatus(status); err != nil {
		return nil, err
	}
	if len(citationJSON) > 0 {
		f.Citation = &model.SourceCitation{}
		if err := json.Unmarshal(citationJSON, f.Citation); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal citation")
		}
	}
	return &f, nil
}
