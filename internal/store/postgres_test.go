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

	"github.com/lotworks/dealdocs/internal/model"
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

func templateRow(t *testing.T, tmpl *model.DocumentTemplate) *pgxmock.Rows {
	t.Helper()
	fieldsJSON, err := json.Marshal(tmpl.PDFFields)
	require.NoError(t, err)
	mappingsJSON, err := json.Marshal(tmpl.FieldMappings)
	require.NoError(t, err)

	return pgxmock.NewRows([]string{
		"id", "tenant_id", "category", "version", "status",
		"pdf_fields", "field_mappings", "created_at", "updated_at",
	}).AddRow(tmpl.ID, tmpl.TenantID, tmpl.Category, tmpl.Version, string(tmpl.Status),
		fieldsJSON, mappingsJSON, tmpl.CreatedAt, tmpl.UpdatedAt)
}

func TestPostgresStore_CreateTemplate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) \+ 1 FROM templates`).
		WithArgs("dealer-1", "deal").
		WillReturnRows(pgxmock.NewRows([]string{"next"}).AddRow(3))
	mock.ExpectExec(`INSERT INTO templates`).
		WithArgs(pgxmock.AnyArg(), "dealer-1", "deal", 3, "draft", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tmpl, err := s.CreateTemplate(context.Background(), "dealer-1", "deal")
	require.NoError(t, err)
	assert.Equal(t, 3, tmpl.Version)
	assert.Equal(t, model.TemplateStatusDraft, tmpl.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetTemplate_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, tenant_id, category, version, status, pdf_fields, field_mappings, created_at, updated_at`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetTemplate(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetActiveTemplate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	want := &model.DocumentTemplate{
		ID: "t-1", TenantID: "dealer-1", Category: "deal", Version: 2,
		Status:        model.TemplateStatusActive,
		PDFFields:     []model.PdfField{{Name: "VIN", Type: "text", Page: 1}},
		FieldMappings: []model.FieldMapping{{PDFFieldName: "VIN", DataPath: "vehicle.vin", AutoMapped: true}},
		CreatedAt:     now, UpdatedAt: now,
	}

	mock.ExpectQuery(`FROM templates WHERE tenant_id = \$1 AND category = \$2 AND status = 'active'`).
		WithArgs("dealer-1", "deal").
		WillReturnRows(templateRow(t, want))

	got, err := s.GetActiveTemplate(context.Background(), "dealer-1", "deal")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveExtractedFields_WrongState(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE templates SET pdf_fields = \$1, field_mappings = \$2, status = 'extracted'`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "t-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM templates WHERE id = \$1`).
		WithArgs("t-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	err := s.SaveExtractedFields(context.Background(), "t-1", nil, nil)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ActivateTemplate(t *testing.T) {
	now := time.Now().UTC()
	extracted := &model.DocumentTemplate{
		ID: "t-1", TenantID: "dealer-1", Category: "deal", Version: 2,
		Status: model.TemplateStatusExtracted, CreatedAt: now, UpdatedAt: now,
	}

	t.Run("wins with matching token", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM templates WHERE id = \$1 FOR UPDATE`).
			WithArgs("t-1").
			WillReturnRows(templateRow(t, extracted))
		mock.ExpectExec(`INSERT INTO category_state`).
			WithArgs("dealer-1", "deal").
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectExec(`UPDATE category_state SET active_version = \$1, change_token = change_token \+ 1`).
			WithArgs(2, "dealer-1", "deal", int64(7)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`UPDATE templates SET status = 'superseded'`).
			WithArgs(pgxmock.AnyArg(), "dealer-1", "deal", "t-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`UPDATE templates SET status = 'active'`).
			WithArgs(pgxmock.AnyArg(), "t-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		require.NoError(t, s.ActivateTemplate(context.Background(), "t-1", 7))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale token conflicts", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM templates WHERE id = \$1 FOR UPDATE`).
			WithArgs("t-1").
			WillReturnRows(templateRow(t, extracted))
		mock.ExpectExec(`INSERT INTO category_state`).
			WithArgs("dealer-1", "deal").
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectExec(`UPDATE category_state SET active_version = \$1, change_token = change_token \+ 1`).
			WithArgs(2, "dealer-1", "deal", int64(6)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		err := s.ActivateTemplate(context.Background(), "t-1", 6)
		require.ErrorIs(t, err, ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("draft not activatable", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)

		draft := *extracted
		draft.Status = model.TemplateStatusDraft
		mock.ExpectBegin()
		mock.ExpectQuery(`FROM templates WHERE id = \$1 FOR UPDATE`).
			WithArgs("t-1").
			WillReturnRows(templateRow(t, &draft))
		mock.ExpectRollback()

		err := s.ActivateTemplate(context.Background(), "t-1", 0)
		require.ErrorIs(t, err, ErrInvalidState)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("status change under the write rolls back", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM templates WHERE id = \$1 FOR UPDATE`).
			WithArgs("t-1").
			WillReturnRows(templateRow(t, extracted))
		mock.ExpectExec(`INSERT INTO category_state`).
			WithArgs("dealer-1", "deal").
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectExec(`UPDATE category_state SET active_version = \$1, change_token = change_token \+ 1`).
			WithArgs(2, "dealer-1", "deal", int64(7)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`UPDATE templates SET status = 'superseded'`).
			WithArgs(pgxmock.AnyArg(), "dealer-1", "deal", "t-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectExec(`UPDATE templates SET status = 'active'`).
			WithArgs(pgxmock.AnyArg(), "t-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		err := s.ActivateTemplate(context.Background(), "t-1", 7)
		require.ErrorIs(t, err, ErrInvalidState)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_DeleteTemplate_Guards(t *testing.T) {
	now := time.Now().UTC()

	t.Run("active refused", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)

		active := &model.DocumentTemplate{
			ID: "t-1", TenantID: "dealer-1", Category: "deal", Version: 1,
			Status: model.TemplateStatusActive, CreatedAt: now, UpdatedAt: now,
		}
		mock.ExpectBegin()
		mock.ExpectQuery(`FROM templates WHERE id = \$1 FOR UPDATE`).
			WithArgs("t-1").
			WillReturnRows(templateRow(t, active))
		mock.ExpectRollback()

		err := s.DeleteTemplate(context.Background(), "t-1")
		require.ErrorIs(t, err, ErrTemplateActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("referenced refused", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)

		inactive := &model.DocumentTemplate{
			ID: "t-1", TenantID: "dealer-1", Category: "deal", Version: 1,
			Status: model.TemplateStatusExtracted, CreatedAt: now, UpdatedAt: now,
		}
		mock.ExpectBegin()
		mock.ExpectQuery(`FROM templates WHERE id = \$1 FOR UPDATE`).
			WithArgs("t-1").
			WillReturnRows(templateRow(t, inactive))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM document_instances`).
			WithArgs("t-1").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))
		mock.ExpectRollback()

		err := s.DeleteTemplate(context.Background(), "t-1")
		require.ErrorIs(t, err, ErrTemplateReferenced)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete bumps the change token", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)

		inactive := &model.DocumentTemplate{
			ID: "t-1", TenantID: "dealer-1", Category: "deal", Version: 1,
			Status: model.TemplateStatusExtracted, CreatedAt: now, UpdatedAt: now,
		}
		mock.ExpectBegin()
		mock.ExpectQuery(`FROM templates WHERE id = \$1 FOR UPDATE`).
			WithArgs("t-1").
			WillReturnRows(templateRow(t, inactive))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM document_instances`).
			WithArgs("t-1").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(`UPDATE templates SET status = 'deleted'`).
			WithArgs(pgxmock.AnyArg(), "t-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(`INSERT INTO category_state`).
			WithArgs("dealer-1", "deal").
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectExec(`UPDATE category_state SET change_token = change_token \+ 1`).
			WithArgs("dealer-1", "deal").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		require.NoError(t, s.DeleteTemplate(context.Background(), "t-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_GetCategoryState(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO category_state`).
		WithArgs("dealer-1", "deal").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(`SELECT active_version, change_token FROM category_state`).
		WithArgs("dealer-1", "deal").
		WillReturnRows(pgxmock.NewRows([]string{"active_version", "change_token"}).AddRow(2, int64(5)))

	st, err := s.GetCategoryState(context.Background(), "dealer-1", "deal")
	require.NoError(t, err)
	assert.Equal(t, 2, st.ActiveVersion)
	assert.EqualValues(t, 5, st.ChangeToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateDocumentInstance(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO document_instances`).
		WithArgs(pgxmock.AnyArg(), "t-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := s.CreateDocumentInstance(context.Background(), "t-1", &model.PreparedDocument{})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}
