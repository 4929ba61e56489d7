package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/lotworks/dealdocs/internal/db"
	"github.com/lotworks/dealdocs/internal/model"
)

// PostgresStore implements Store using pgxpool. It is the multi-tenant
// deployment backend.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS templates (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id      TEXT NOT NULL,
	category       TEXT NOT NULL,
	version        INTEGER NOT NULL,
	status         TEXT NOT NULL DEFAULT 'draft',
	pdf_fields     JSONB,
	field_mappings JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, category, version)
);

CREATE TABLE IF NOT EXISTS category_state (
	tenant_id      TEXT NOT NULL,
	category       TEXT NOT NULL,
	active_version INTEGER NOT NULL DEFAULT 0,
	change_token   BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (tenant_id, category)
);

CREATE TABLE IF NOT EXISTS document_instances (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	template_id TEXT NOT NULL REFERENCES templates(id),
	prepared    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_templates_tenant_category ON templates(tenant_id, category);
CREATE INDEX IF NOT EXISTS idx_templates_status ON templates(status);
CREATE INDEX IF NOT EXISTS idx_document_instances_template ON document_instances(template_id);
`

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

func (s *PostgresStore) CreateTemplate(ctx context.Context, tenantID, category string) (*model.DocumentTemplate, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin create template")
	}
	defer tx.Rollback(ctx)

	var next int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM templates WHERE tenant_id = $1 AND category = $2`,
		tenantID, category,
	).Scan(&next)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: next version")
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

	_, err = tx.Exec(ctx,
		`INSERT INTO templates (id, tenant_id, category, version, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.TenantID, t.Category, t.Version, string(t.Status), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert template")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit create template")
	}
	return t, nil
}

func (s *PostgresStore) GetTemplate(ctx context.Context, id string) (*model.DocumentTemplate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, category, version, status, pdf_fields, field_mappings, created_at, updated_at
		 FROM templates WHERE id = $1`,
		id,
	)
	return scanPgTemplate(row)
}

func (s *PostgresStore) GetActiveTemplate(ctx context.Context, tenantID, category string) (*model.DocumentTemplate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, category, version, status, pdf_fields, field_mappings, created_at, updated_at
		 FROM templates WHERE tenant_id = $1 AND category = $2 AND status = 'active'`,
		tenantID, category,
	)
	return scanPgTemplate(row)
}

func (s *PostgresStore) ListTemplates(ctx context.Context, tenantID, category string) ([]model.DocumentTemplate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, category, version, status, pdf_fields, field_mappings, created_at, updated_at
		 FROM templates
		 WHERE tenant_id = $1 AND category = $2 AND status != 'deleted'
		 ORDER BY version DESC`,
		tenantID, category,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list templates")
	}
	defer rows.Close()

	var out []model.DocumentTemplate
	for rows.Next() {
		t, err := scanPgTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list templates iterate")
}

func (s *PostgresStore) SaveExtractedFields(ctx context.Context, id string, fields []model.PdfField, mappings []model.FieldMapping) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal pdf fields")
	}
	mappingsJSON, err := json.Marshal(mappings)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal mappings")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE templates SET pdf_fields = $1, field_mappings = $2, status = 'extracted', updated_at = $3
		 WHERE id = $4 AND status = 'draft'`,
		string(fieldsJSON), string(mappingsJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save extracted fields %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyZeroRows(ctx, id)
	}
	return nil
}

func (s *PostgresStore) SaveMappings(ctx context.Context, id string, mappings []model.FieldMapping) error {
	mappingsJSON, err := json.Marshal(mappings)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal mappings")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE templates SET field_mappings = $1, updated_at = $2 WHERE id = $3 AND status != 'deleted'`,
		string(mappingsJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save mappings %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "template %s", id)
	}
	return nil
}

func (s *PostgresStore) GetCategoryState(ctx context.Context, tenantID, category string) (CategoryState, error) {
	st := CategoryState{TenantID: tenantID, Category: category}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO category_state (tenant_id, category) VALUES ($1, $2)
		 ON CONFLICT (tenant_id, category) DO NOTHING`,
		tenantID, category,
	)
	if err != nil {
		return st, eris.Wrap(err, "postgres: ensure category state")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT active_version, change_token FROM category_state WHERE tenant_id = $1 AND category = $2`,
		tenantID, category,
	).Scan(&st.ActiveVersion, &st.ChangeToken)
	if err != nil {
		return st, eris.Wrap(err, "postgres: get category state")
	}
	return st, nil
}

func (s *PostgresStore) ActivateTemplate(ctx context.Context, id string, expectedToken int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin activate")
	}
	defer tx.Rollback(ctx)

	t, err := getPgTemplateForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if !t.Activatable() {
		return eris.Wrapf(ErrInvalidState, "activate %s from %s", id, t.Status)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO category_state (tenant_id, category) VALUES ($1, $2)
		 ON CONFLICT (tenant_id, category) DO NOTHING`,
		t.TenantID, t.Category,
	); err != nil {
		return eris.Wrap(err, "postgres: ensure category state")
	}

	tag, err := tx.Exec(ctx,
		`UPDATE category_state SET active_version = $1, change_token = change_token + 1
		 WHERE tenant_id = $2 AND category = $3 AND change_token = $4`,
		t.Version, t.TenantID, t.Category, expectedToken,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: bump change token")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrConflict, "activate %s", id)
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE templates SET status = 'superseded', updated_at = $1
		 WHERE tenant_id = $2 AND category = $3 AND status = 'active' AND id != $4`,
		now, t.TenantID, t.Category, id,
	); err != nil {
		return eris.Wrap(err, "postgres: supersede previous active")
	}
	tag, err = tx.Exec(ctx,
		`UPDATE templates SET status = 'active', updated_at = $1
		 WHERE id = $2 AND status IN ('extracted', 'superseded')`,
		now, id,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: mark active")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrInvalidState, "activate %s", id)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit activate")
}

func (s *PostgresStore) DeactivateTemplate(ctx context.Context, id string, expectedToken int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin deactivate")
	}
	defer tx.Rollback(ctx)

	t, err := getPgTemplateForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if t.Status != model.TemplateStatusActive {
		return eris.Wrapf(ErrInvalidState, "deactivate %s from %s", id, t.Status)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE category_state SET active_version = 0, change_token = change_token + 1
		 WHERE tenant_id = $1 AND category = $2 AND change_token = $3`,
		t.TenantID, t.Category, expectedToken,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: bump change token")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrConflict, "deactivate %s", id)
	}

	tag, err = tx.Exec(ctx,
		`UPDATE templates SET status = 'extracted', updated_at = $1
		 WHERE id = $2 AND status = 'active'`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: mark extracted")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrInvalidState, "deactivate %s", id)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit deactivate")
}

func (s *PostgresStore) DeleteTemplate(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin delete")
	}
	defer tx.Rollback(ctx)

	t, err := getPgTemplateForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if t.Status == model.TemplateStatusActive {
		return eris.Wrapf(ErrTemplateActive, "delete %s", id)
	}

	// The ref count must be read in the same transaction as the delete so
	// an instance created in between does not end up orphaned.
	var refs int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_instances WHERE template_id = $1`, id,
	).Scan(&refs); err != nil {
		return eris.Wrap(err, "postgres: count document refs")
	}
	if refs > 0 {
		return eris.Wrapf(ErrTemplateReferenced, "delete %s (%d documents)", id, refs)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE templates SET status = 'deleted', updated_at = $1
		 WHERE id = $2 AND status != 'active'`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete template %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrTemplateActive, "delete %s", id)
	}

	// A delete invalidates any activation token read before it.
	if _, err := tx.Exec(ctx,
		`INSERT INTO category_state (tenant_id, category) VALUES ($1, $2)
		 ON CONFLICT (tenant_id, category) DO NOTHING`,
		t.TenantID, t.Category,
	); err != nil {
		return eris.Wrap(err, "postgres: ensure category state")
	}
	if _, err := tx.Exec(ctx,
		`UPDATE category_state SET change_token = change_token + 1 WHERE tenant_id = $1 AND category = $2`,
		t.TenantID, t.Category,
	); err != nil {
		return eris.Wrap(err, "postgres: bump change token")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit delete")
}

func (s *PostgresStore) CountDocumentRefs(ctx context.Context, templateID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_instances WHERE template_id = $1`,
		templateID,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count document refs")
}

func (s *PostgresStore) CreateDocumentInstance(ctx context.Context, templateID string, doc *model.PreparedDocument) (string, error) {
	preparedJSON, err := json.Marshal(doc)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal prepared document")
	}

	id := uuid.New().String()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO document_instances (id, template_id, prepared, created_at) VALUES ($1, $2, $3, $4)`,
		id, templateID, string(preparedJSON), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert document instance")
	}
	return id, nil
}

// getPgTemplateForUpdate reads a template inside tx and locks its row for
// the remainder of the transaction.
func getPgTemplateForUpdate(ctx context.Context, tx pgx.Tx, id string) (*model.DocumentTemplate, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, tenant_id, category, version, status, pdf_fields, field_mappings, created_at, updated_at
		 FROM templates WHERE id = $1 FOR UPDATE`,
		id,
	)
	return scanPgTemplate(row)
}

// classifyZeroRows distinguishes a missing template from a wrong-state one.
func (s *PostgresStore) classifyZeroRows(ctx context.Context, id string) error {
	var exists int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM templates WHERE id = $1`, id,
	).Scan(&exists); err != nil {
		return eris.Wrap(err, "postgres: check template exists")
	}
	if exists == 0 {
		return eris.Wrapf(ErrNotFound, "template %s", id)
	}
	return eris.Wrapf(ErrInvalidState, "template %s", id)
}

func scanPgTemplate(row scannable) (*model.DocumentTemplate, error) {
	var t model.DocumentTemplate
	var status string
	var fieldsJSON, mappingsJSON []byte

	err := row.Scan(&t.ID, &t.TenantID, &t.Category, &t.Version, &status,
		&fieldsJSON, &mappingsJSON, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan template")
	}

	t.Status = model.TemplateStatus(status)
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &t.PDFFields); err != nil {
			return nil, eris.Wrap(err, "unmarshal pdf fields")
		}
	}
	if len(mappingsJSON) > 0 {
		if err := json.Unmarshal(mappingsJSON, &t.FieldMappings); err != nil {
			return nil, eris.Wrap(err, "unmarshal field mappings")
		}
	}
	return &t, nil
}
