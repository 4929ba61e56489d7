package template

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lotworks/dealdocs/internal/automap"
	"github.com/lotworks/dealdocs/internal/model"
	"github.com/lotworks/dealdocs/internal/prepare"
	"github.com/lotworks/dealdocs/internal/resilience"
	"github.com/lotworks/dealdocs/internal/store"
)

// ErrFieldsPending is returned by WaitForExtraction when the template's
// field list has not been produced within the configured timeout.
var ErrFieldsPending = errors.New("field extraction pending")

// FieldExtractor produces the fillable field list of a PDF document.
// Implemented by pkg/pdfengine.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, pdf []byte) ([]model.PdfField, error)
}

// Config tunes manager behavior.
type Config struct {
	// ActivateAttempts bounds optimistic-concurrency retries on
	// activation and deactivation. Default: 5.
	ActivateAttempts int

	// PollInterval is the delay between extraction status checks.
	// Default: 2s.
	PollInterval time.Duration

	// PollTimeout bounds WaitForExtraction. Default: 2m.
	PollTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ActivateAttempts <= 0 {
		c.ActivateAttempts = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 2 * time.Minute
	}
	return c
}

// Manager drives the template lifecycle: creation, field extraction,
// mapping, activation, and document preparation against the active version.
type Manager struct {
	store     store.Store
	extractor FieldExtractor
	mapper    *automap.Mapper
	cfg       Config
}

// NewManager creates a Manager. extractor may be nil if field extraction
// is performed out of band (fields arriving via SaveExtractedFields).
func NewManager(st store.Store, extractor FieldExtractor, mapper *automap.Mapper, cfg Config) *Manager {
	return &Manager{
		store:     st,
		extractor: extractor,
		mapper:    mapper,
		cfg:       cfg.withDefaults(),
	}
}

// Create registers a new draft template for the tenant and category. The
// version number is assigned by the store.
func (m *Manager) Create(ctx context.Context, tenantID, category string) (*model.DocumentTemplate, error) {
	if tenantID == "" {
		return nil, eris.New("template: tenant id is required")
	}
	if !model.IsCategory(category) {
		return nil, eris.Errorf("template: unknown category %q", category)
	}

	t, err := m.store.CreateTemplate(ctx, tenantID, category)
	if err != nil {
		return nil, eris.Wrap(err, "template: create")
	}

	zap.L().Info("template created",
		zap.String("template_id", t.ID),
		zap.String("tenant_id", tenantID),
		zap.String("category", category),
		zap.Int("version", t.Version),
	)
	return t, nil
}

// Get returns a template by ID.
func (m *Manager) Get(ctx context.Context, id string) (*model.DocumentTemplate, error) {
	return m.store.GetTemplate(ctx, id)
}

// List returns all non-deleted versions for the tenant and category,
// newest first.
func (m *Manager) List(ctx context.Context, tenantID, category string) ([]model.DocumentTemplate, error) {
	return m.store.ListTemplates(ctx, tenantID, category)
}

// Extract runs field extraction for a draft template and persists the
// result. Every discovered field gets an unmapped placeholder entry so
// that later mapping passes see the full field list.
func (m *Manager) Extract(ctx context.Context, templateID string, pdf []byte) (*model.DocumentTemplate, error) {
	if m.extractor == nil {
		return nil, eris.New("template: no field extractor configured")
	}

	fields, err := m.extractor.ExtractFields(ctx, pdf)
	if err != nil {
		return nil, eris.Wrapf(err, "template: extract fields for %s", templateID)
	}

	mappings := BlankMappings(fields)
	if err := m.store.SaveExtractedFields(ctx, templateID, fields, mappings); err != nil {
		return nil, eris.Wrapf(err, "template: save extracted fields for %s", templateID)
	}

	zap.L().Info("template fields extracted",
		zap.String("template_id", templateID),
		zap.Int("fields", len(fields)),
	)
	return m.store.GetTemplate(ctx, templateID)
}

// BlankMappings builds one unmapped entry per PDF field, preserving field
// order.
func BlankMappings(fields []model.PdfField) []model.FieldMapping {
	mappings := make([]model.FieldMapping, len(fields))
	for i, f := range fields {
		mappings[i] = model.FieldMapping{PDFFieldName: f.Name}
	}
	return mappings
}

// WaitForExtraction polls the store until the template leaves the draft
// state. It returns ErrFieldsPending if the timeout elapses first.
func (m *Manager) WaitForExtraction(ctx context.Context, templateID string) (*model.DocumentTemplate, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		t, err := m.store.GetTemplate(ctx, templateID)
		if err != nil {
			// A ctx-honoring store surfaces the deadline as its own
			// error; callers still get ErrFieldsPending on timeout.
			if ctx.Err() != nil {
				return nil, eris.Wrapf(ErrFieldsPending, "template %s", templateID)
			}
			return nil, err
		}
		if t.Status != model.TemplateStatusDraft {
			return t, nil
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ErrFieldsPending, "template %s", templateID)
		case <-ticker.C:
		}
	}
}

// AutoMap runs the mapper over the template's fields and persists the
// resulting mappings. Manual mappings already on the template are kept
// as-is.
func (m *Manager) AutoMap(ctx context.Context, templateID string) (*automap.Result, error) {
	if m.mapper == nil {
		return nil, eris.New("template: no mapper configured")
	}

	t, err := m.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if len(t.PDFFields) == 0 {
		return nil, eris.Errorf("template: %s has no extracted fields", templateID)
	}

	result := m.mapper.AutoMapAll(t.PDFFields, t.FieldMappings)
	if err := m.store.SaveMappings(ctx, templateID, result.Mappings); err != nil {
		return nil, eris.Wrapf(err, "template: save mappings for %s", templateID)
	}

	zap.L().Info("template auto-mapped",
		zap.String("template_id", templateID),
		zap.Int("mapped", result.Mapped),
		zap.Int("unmapped", result.Unmapped),
		zap.Int("manual", result.Manual),
	)
	return &result, nil
}

// SetMapping records a manual mapping for one PDF field, replacing any
// existing entry for that field. Manual mappings survive later AutoMap
// runs.
func (m *Manager) SetMapping(ctx context.Context, templateID string, mapping model.FieldMapping) error {
	if mapping.PDFFieldName == "" {
		return eris.New("template: mapping needs a pdf field name")
	}
	if !mapping.Transform.Valid() {
		return eris.Errorf("template: unknown transform %q", mapping.Transform)
	}
	mapping.AutoMapped = false

	t, err := m.store.GetTemplate(ctx, templateID)
	if err != nil {
		return err
	}

	replaced := false
	for i := range t.FieldMappings {
		if t.FieldMappings[i].PDFFieldName == mapping.PDFFieldName {
			t.FieldMappings[i] = mapping
			replaced = true
			break
		}
	}
	if !replaced {
		return eris.Errorf("template: %s has no field %q", templateID, mapping.PDFFieldName)
	}

	return m.store.SaveMappings(ctx, templateID, t.FieldMappings)
}

// Activate makes the template the active version for its tenant and
// category, superseding any previous active version. Concurrent
// activations race on the category change token; losers are retried a
// bounded number of times against the fresh token.
func (m *Manager) Activate(ctx context.Context, templateID string) error {
	return m.casLoop(ctx, "activate", templateID, m.store.ActivateTemplate)
}

// Deactivate removes the template from active rotation without deleting
// it. The category is left with no active version.
func (m *Manager) Deactivate(ctx context.Context, templateID string) error {
	return m.casLoop(ctx, "deactivate", templateID, m.store.DeactivateTemplate)
}

func (m *Manager) casLoop(ctx context.Context, op, templateID string, fn func(context.Context, string, int64) error) error {
	cfg := resilience.RetryConfig{
		MaxAttempts:    m.cfg.ActivateAttempts,
		InitialBackoff: 25 * time.Millisecond,
		MaxBackoff:     time.Second,
		JitterFraction: 0.5,
		ShouldRetry: func(err error) bool {
			return errors.Is(err, store.ErrConflict)
		},
		OnRetry: resilience.RetryLogger("template", op),
	}

	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		t, err := m.store.GetTemplate(ctx, templateID)
		if err != nil {
			return err
		}
		state, err := m.store.GetCategoryState(ctx, t.TenantID, t.Category)
		if err != nil {
			return err
		}
		return fn(ctx, templateID, state.ChangeToken)
	})
	if err != nil {
		return eris.Wrapf(err, "template: %s %s", op, templateID)
	}

	zap.L().Info("template "+op+"d", zap.String("template_id", templateID))
	return nil
}

// Delete soft-deletes a template. Active templates and templates with
// prepared documents on record are refused.
func (m *Manager) Delete(ctx context.Context, templateID string) error {
	if err := m.store.DeleteTemplate(ctx, templateID); err != nil {
		return eris.Wrapf(err, "template: delete %s", templateID)
	}
	zap.L().Info("template deleted", zap.String("template_id", templateID))
	return nil
}

// PreparedInstance is the outcome of preparing deal data against the
// active template of a category.
type PreparedInstance struct {
	TemplateID string
	InstanceID string
	Document   *model.PreparedDocument
}

// PrepareDocument resolves the active template for the tenant and
// category, prepares the deal data against its mappings, and records a
// document instance. Preparation diagnostics (validation errors, missing
// required fields) are returned on the document, not as an error.
func (m *Manager) PrepareDocument(ctx context.Context, tenantID, category string, data *model.DealData) (*PreparedInstance, error) {
	t, err := m.store.GetActiveTemplate(ctx, tenantID, category)
	if err != nil {
		return nil, eris.Wrapf(err, "template: prepare %s/%s", tenantID, category)
	}

	doc, err := prepare.Prepare(t.FieldMappings, data)
	if err != nil {
		return nil, eris.Wrapf(err, "template: prepare %s/%s", tenantID, category)
	}

	instanceID, err := m.store.CreateDocumentInstance(ctx, t.ID, doc)
	if err != nil {
		return nil, eris.Wrapf(err, "template: record document for %s", t.ID)
	}

	zap.L().Info("document prepared",
		zap.String("template_id", t.ID),
		zap.String("instance_id", instanceID),
		zap.Int("fields", len(doc.Fields)),
		zap.Int("validation_errors", len(doc.ValidationErrors)),
		zap.Int("missing_required", len(doc.MissingRequiredFields)),
	)
	return &PreparedInstance{TemplateID: t.ID, InstanceID: instanceID, Document: doc}, nil
}

// ValidateDeal gates deal data against the active template for the
// category without recording a document instance.
func (m *Manager) ValidateDeal(ctx context.Context, tenantID, category string, data *model.DealData) (*prepare.ValidationResult, error) {
	t, err := m.store.GetActiveTemplate(ctx, tenantID, category)
	if err != nil {
		return nil, eris.Wrapf(err, "template: validate %s/%s", tenantID, category)
	}
	res, err := prepare.ValidateDealData(data, t.FieldMappings)
	if err != nil {
		return nil, eris.Wrapf(err, "template: validate %s/%s", tenantID, category)
	}
	return res, nil
}
