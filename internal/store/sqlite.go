package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/lotworks/dealdocs/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the default
// single-dealership deployment backend.
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS templates (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	category       TEXT NOT NULL,
	version        INTEGER NOT NULL,
	status         TEXT NOT NULL DEFAULT 'draft',
	pdf_fields     TEXT,
	field_mappings TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (tenant_id, category, version)
);

CREATE TABLE IF NOT EXISTS category_state (
	tenant_id      TEXT NOT NULL,
	category       TEXT NOT NULL,
	active_version INTEGER NOT NULL DEFAULT 0,
	change_token   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (tenant_id, category)
);

CREATE TABLE IF NOT EXISTS document_instances (
	id          TEXT PRIMARY KEY,
	template_id TEXT NOT NULL REFERENCES templates(id),
	prepared    TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_templates_tenant_category ON templates(tenant_id, category);
CREATE INDEX IF NOT EXISTS idx_templates_status ON templates(status);
CREATE INDEX IF NOT EXISTS idx_document_instances_template ON document_instances(template_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTemplate(ctx context.Context, tenantID, category string) (*model.DocumentTemplate, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin create template")
	}
	defer tx.Rollback()

	// Version numbers count deleted versions too so they are never reused.
	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM templates WHERE tenant_id = ? AND category = ?`,
		tenantID, category,
	).Scan(&next)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: next version")
	}

	t := &model.DocumentTemplate{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Category:  category,
		Version:   next,
		Status:    model.TemplateStatusDraft,
		CreatedAt: time.Now().UTC(),
	}
	t.UpdatedAt = t.CreatedAt

	_, err = tx.ExecContext(ctx,
		`INSERT INTO templates (id, tenant_id, category, version, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TenantID, t.Category, t.Version, string(t.Status), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert template")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit create template")
	}
	return t, nil
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*model.DocumentTemplate, error) {
	return getSQLiteTemplate(ctx, s.db, id)
}

func (s *SQLiteStore) GetActiveTemplate(ctx context.Context, tenantID, category string) (*model.DocumentTemplate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, category, version, status, pdf_fields, field_mappings, created_at, updated_at
		 FROM templates WHERE tenant_id = ? AND category = ? AND status = 'active'`,
		tenantID, category,
	)
	return scanTemplate(row)
}

func (s *SQLiteStore) ListTemplates(ctx context.Context, tenantID, category string) ([]model.DocumentTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, category, version, status, pdf_fields, field_mappings, created_at, updated_at
		 FROM templates
		 WHERE tenant_id = ? AND category = ? AND status != 'deleted'
		 ORDER BY version DESC`,
		tenantID, category,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list templates")
	}
	defer rows.Close()

	var out []model.DocumentTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list templates iterate")
}

func (s *SQLiteStore) SaveExtractedFields(ctx context.Context, id string, fields []model.PdfField, mappings []model.FieldMapping) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal pdf fields")
	}
	mappingsJSON, err := json.Marshal(mappings)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal mappings")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET pdf_fields = ?, field_mappings = ?, status = 'extracted', updated_at = ?
		 WHERE id = ? AND status = 'draft'`,
		string(fieldsJSON), string(mappingsJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save extracted fields %s", id)
	}
	return checkTransition(ctx, s.db, res, id)
}

func (s *SQLiteStore) SaveMappings(ctx context.Context, id string, mappings []model.FieldMapping) error {
	mappingsJSON, err := json.Marshal(mappings)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal mappings")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET field_mappings = ?, updated_at = ? WHERE id = ? AND status != 'deleted'`,
		string(mappingsJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save mappings %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "template %s", id)
	}
	return nil
}

func (s *SQLiteStore) GetCategoryState(ctx context.Context, tenantID, category string) (CategoryState, error) {
	st := CategoryState{TenantID: tenantID, Category: category}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO category_state (tenant_id, category) VALUES (?, ?)`,
		tenantID, category,
	)
	if err != nil {
		return st, eris.Wrap(err, "sqlite: ensure category state")
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT active_version, change_token FROM category_state WHERE tenant_id = ? AND category = ?`,
		tenantID, category,
	).Scan(&st.ActiveVersion, &st.ChangeToken)
	if err != nil {
		return st, eris.Wrap(err, "sqlite: get category state")
	}
	return st, nil
}

func (s *SQLiteStore) ActivateTemplate(ctx context.Context, id string, expectedToken int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin activate")
	}
	defer tx.Rollback()

	t, err := getSQLiteTemplate(ctx, tx, id)
	if err != nil {
		return err
	}
	if !t.Activatable() {
		return eris.Wrapf(ErrInvalidState, "activate %s from %s", id, t.Status)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO category_state (tenant_id, category) VALUES (?, ?)`,
		t.TenantID, t.Category,
	); err != nil {
		return eris.Wrap(err, "sqlite: ensure category state")
	}

	// Conditional write on the change token: a lost race surfaces as
	// ErrConflict for the manager to retry with a fresh read.
	res, err := tx.ExecContext(ctx,
		`UPDATE category_state SET active_version = ?, change_token = change_token + 1
		 WHERE tenant_id = ? AND category = ? AND change_token = ?`,
		t.Version, t.TenantID, t.Category, expectedToken,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: bump change token")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrConflict, "activate %s", id)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE templates SET status = 'superseded', updated_at = ?
		 WHERE tenant_id = ? AND category = ? AND status = 'active' AND id != ?`,
		now, t.TenantID, t.Category, id,
	); err != nil {
		return eris.Wrap(err, "sqlite: supersede previous active")
	}
	// The status predicate re-checks the state at write time so a template
	// deleted between the read and the commit cannot come back as active.
	res, err = tx.ExecContext(ctx,
		`UPDATE templates SET status = 'active', updated_at = ?
		 WHERE id = ? AND status IN ('extracted', 'superseded')`,
		now, id,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: mark active")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrInvalidState, "activate %s", id)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit activate")
}

func (s *SQLiteStore) DeactivateTemplate(ctx context.Context, id string, expectedToken int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin deactivate")
	}
	defer tx.Rollback()

	t, err := getSQLiteTemplate(ctx, tx, id)
	if err != nil {
		return err
	}
	if t.Status != model.TemplateStatusActive {
		return eris.Wrapf(ErrInvalidState, "deactivate %s from %s", id, t.Status)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE category_state SET active_version = 0, change_token = change_token + 1
		 WHERE tenant_id = ? AND category = ? AND change_token = ?`,
		t.TenantID, t.Category, expectedToken,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: bump change token")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrConflict, "deactivate %s", id)
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE templates SET status = 'extracted', updated_at = ?
		 WHERE id = ? AND status = 'active'`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: mark extracted")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrInvalidState, "deactivate %s", id)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit deactivate")
}

func (s *SQLiteStore) DeleteTemplate(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin delete")
	}
	defer tx.Rollback()

	t, err := getSQLiteTemplate(ctx, tx, id)
	if err != nil {
		return err
	}
	if t.Status == model.TemplateStatusActive {
		return eris.Wrapf(ErrTemplateActive, "delete %s", id)
	}

	// The ref count must be read in the same transaction as the delete so
	// an instance created in between does not end up orphaned.
	var refs int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_instances WHERE template_id = ?`, id,
	).Scan(&refs); err != nil {
		return eris.Wrap(err, "sqlite: count document refs")
	}
	if refs > 0 {
		return eris.Wrapf(ErrTemplateReferenced, "delete %s (%d documents)", id, refs)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE templates SET status = 'deleted', updated_at = ?
		 WHERE id = ? AND status != 'active'`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete template %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrTemplateActive, "delete %s", id)
	}

	// A delete invalidates any activation token read before it.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO category_state (tenant_id, category) VALUES (?, ?)`,
		t.TenantID, t.Category,
	); err != nil {
		return eris.Wrap(err, "sqlite: ensure category state")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE category_state SET change_token = change_token + 1 WHERE tenant_id = ? AND category = ?`,
		t.TenantID, t.Category,
	); err != nil {
		return eris.Wrap(err, "sqlite: bump change token")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit delete")
}

func (s *SQLiteStore) CountDocumentRefs(ctx context.Context, templateID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_instances WHERE template_id = ?`,
		templateID,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count document refs")
}

func (s *SQLiteStore) CreateDocumentInstance(ctx context.Context, templateID string, doc *model.PreparedDocument) (string, error) {
	preparedJSON, err := json.Marshal(doc)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal prepared document")
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO document_instances (id, template_id, prepared, created_at) VALUES (?, ?, ?, ?)`,
		id, templateID, string(preparedJSON), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert document instance")
	}
	return id, nil
}

// helpers

// checkTransition distinguishes "no such template" from "wrong state" after
// a guarded UPDATE matched zero rows.
func checkTransition(ctx context.Context, db *sql.DB, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM templates WHERE id = ?`, id,
	).Scan(&exists); err != nil {
		return eris.Wrap(err, "sqlite: check template exists")
	}
	if exists == 0 {
		return eris.Wrapf(ErrNotFound, "template %s", id)
	}
	return eris.Wrapf(ErrInvalidState, "template %s", id)
}

// sqliteQuerier is satisfied by both *sql.DB and *sql.Tx so template reads
// can run inside or outside a transaction.
type sqliteQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSQLiteTemplate(ctx context.Context, q sqliteQuerier, id string) (*model.DocumentTemplate, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, tenant_id, category, version, status, pdf_fields, field_mappings, created_at, updated_at
		 FROM templates WHERE id = ?`,
		id,
	)
	return scanTemplate(row)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTemplate(row scannable) (*model.DocumentTemplate, error) {
	var t model.DocumentTemplate
	var status string
	var fieldsJSON, mappingsJSON sql.NullString

	err := row.Scan(&t.ID, &t.TenantID, &t.Category, &t.Version, &status,
		&fieldsJSON, &mappingsJSON, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan template")
	}

	t.Status = model.TemplateStatus(status)
	if fieldsJSON.Valid && fieldsJSON.String != "" {
		if err := json.Unmarshal([]byte(fieldsJSON.String), &t.PDFFields); err != nil {
			return nil, eris.Wrap(err, "unmarshal pdf fields")
		}
	}
	if mappingsJSON.Valid && mappingsJSON.String != "" {
		if err := json.Unmarshal([]byte(mappingsJSON.String), &t.FieldMappings); err != nil {
			return nil, eris.Wrap(err, "unmarshal field mappings")
		}
	}
	return &t, nil
}
