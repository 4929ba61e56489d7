package store

import (
	"context"
	"errors"

	"github.com/lotworks/dealdocs/internal/model"
)

// Sentinel errors shared by every backend. They are wrapped with context by
// the implementations; match with errors.Is.
var (
	// ErrNotFound: no template (or category state) matches the query.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict: a conditional write lost the race on the category's
	// change token. The caller re-reads and retries.
	ErrConflict = errors.New("store: conflict")
	// ErrInvalidState: the template is not in a state that permits the
	// requested transition.
	ErrInvalidState = errors.New("store: invalid template state")
	// ErrTemplateActive: delete refused because the version is active.
	ErrTemplateActive = errors.New("store: template is active")
	// ErrTemplateReferenced: delete refused because generated documents
	// still reference the version.
	ErrTemplateReferenced = errors.New("store: template is referenced")
)

// CategoryState is the per-(tenant, category) activation cell. ChangeToken
// is the optimistic-concurrency token: every activation or deactivation
// bumps it, and conditional writes carry the token they read.
type CategoryState struct {
	TenantID      string `json:"tenantId"`
	Category      string `json:"category"`
	ActiveVersion int    `json:"activeVersion"` // 0 = no active version
	ChangeToken   int64  `json:"changeToken"`
}

// Store is the persistence contract for templates, mappings, and generated
// document instances. Implementations must make ActivateTemplate and
// DeactivateTemplate single serializable units: no reader may observe two
// active versions, or zero immediately after a successful activate-replace.
type Store interface {
	// CreateTemplate allocates the next version number for the
	// (tenant, category) and persists a draft.
	CreateTemplate(ctx context.Context, tenantID, category string) (*model.DocumentTemplate, error)

	GetTemplate(ctx context.Context, id string) (*model.DocumentTemplate, error)

	// GetActiveTemplate returns the single active version for the
	// (tenant, category), or ErrNotFound when none is active.
	GetActiveTemplate(ctx context.Context, tenantID, category string) (*model.DocumentTemplate, error)

	// ListTemplates returns all non-deleted versions for the
	// (tenant, category), newest version first.
	ListTemplates(ctx context.Context, tenantID, category string) ([]model.DocumentTemplate, error)

	// SaveExtractedFields records the extraction result and moves a draft
	// to extracted. Returns ErrInvalidState if the template is not a draft.
	SaveExtractedFields(ctx context.Context, id string, fields []model.PdfField, mappings []model.FieldMapping) error

	// SaveMappings overwrites the mapping list wholesale.
	SaveMappings(ctx context.Context, id string, mappings []model.FieldMapping) error

	// GetCategoryState reads (creating if absent) the activation cell.
	GetCategoryState(ctx context.Context, tenantID, category string) (CategoryState, error)

	// ActivateTemplate activates the version and supersedes the previously
	// active one as a single unit, conditional on expectedToken still being
	// the category's change token. Returns ErrConflict on token mismatch
	// and ErrInvalidState if the version cannot be activated.
	ActivateTemplate(ctx context.Context, id string, expectedToken int64) error

	// DeactivateTemplate moves the active version back to extracted without
	// promoting a replacement, conditional on expectedToken.
	DeactivateTemplate(ctx context.Context, id string, expectedToken int64) error

	// DeleteTemplate soft-deletes a non-active, unreferenced version.
	DeleteTemplate(ctx context.Context, id string) error

	// CountDocumentRefs reports how many generated documents reference the
	// template version.
	CountDocumentRefs(ctx context.Context, templateID string) (int, error)

	// CreateDocumentInstance records one generated document against the
	// template version it was produced from.
	CreateDocumentInstance(ctx context.Context, templateID string, doc *model.PreparedDocument) (string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
