package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/lotworks/dealdocs/internal/model"
)

// MemoryStore is an in-process Store used by tests and dry runs. All
// methods take one mutex, so the activation exchange is trivially a single
// serializable unit; the change token is still maintained so the manager's
// optimistic-concurrency path is exercised the same way as against a real
// backend.
type MemoryStore struct {
	mu        sync.Mutex
	templates map[string]*model.DocumentTemplate
	states    map[stateKey]*CategoryState
	docRefs   map[string][]string // templateID -> document instance IDs
}

type stateKey struct {
	tenantID string
	category string
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		templates: make(map[string]*model.DocumentTemplate),
		states:    make(map[stateKey]*CategoryState),
		docRefs:   make(map[string][]string),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close() error                  { return nil }

func (s *MemoryStore) CreateTemplate(_ context.Context, tenantID, category string) (*model.DocumentTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := 1
	for _, t := range s.templates {
		if t.TenantID == tenantID && t.Category == category && t.Version >= next {
			next = t.Version + 1
		}
	}

	now := time.Now().UTC()
	t := &model.DocumentTemplate{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Category:  category,
		Version:   next,
		Status:    model.TemplateStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.templates[t.ID] = t
	return cloneTemplate(t), nil
}

func (s *MemoryStore) GetTemplate(_ context.Context, id string) (*model.DocumentTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "template %s", id)
	}
	return cloneTemplate(t), nil
}

func (s *MemoryStore) GetActiveTemplate(_ context.Context, tenantID, category string) (*model.DocumentTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.templates {
		if t.TenantID == tenantID && t.Category == category && t.Status == model.TemplateStatusActive {
			return cloneTemplate(t), nil
		}
	}
	return nil, eris.Wrapf(ErrNotFound, "active template for %s/%s", tenantID, category)
}

func (s *MemoryStore) ListTemplates(_ context.Context, tenantID, category string) ([]model.DocumentTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DocumentTemplate
	for _, t := range s.templates {
		if t.TenantID == tenantID && t.Category == category && t.Status != model.TemplateStatusDeleted {
			out = append(out, *cloneTemplate(t))
		}
	}
	// Newest version first.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Version > out[i].Version {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveExtractedFields(_ context.Context, id string, fields []model.PdfField, mappings []model.FieldMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "template %s", id)
	}
	if t.Status != model.TemplateStatusDraft {
		return eris.Wrapf(ErrInvalidState, "template %s is %s", id, t.Status)
	}
	t.PDFFields = append([]model.PdfField(nil), fields...)
	t.FieldMappings = append([]model.FieldMapping(nil), mappings...)
	t.Status = model.TemplateStatusExtracted
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SaveMappings(_ context.Context, id string, mappings []model.FieldMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok || t.Status == model.TemplateStatusDeleted {
		return eris.Wrapf(ErrNotFound, "template %s", id)
	}
	t.FieldMappings = append([]model.FieldMapping(nil), mappings...)
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetCategoryState(_ context.Context, tenantID, category string) (CategoryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.stateLocked(tenantID, category), nil
}

func (s *MemoryStore) stateLocked(tenantID, category string) *CategoryState {
	k := stateKey{tenantID, category}
	st, ok := s.states[k]
	if !ok {
		st = &CategoryState{TenantID: tenantID, Category: category}
		s.states[k] = st
	}
	return st
}

func (s *MemoryStore) ActivateTemplate(_ context.Context, id string, expectedToken int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "template %s", id)
	}
	if !t.Activatable() {
		return eris.Wrapf(ErrInvalidState, "activate %s from %s", id, t.Status)
	}

	st := s.stateLocked(t.TenantID, t.Category)
	if st.ChangeToken != expectedToken {
		return eris.Wrapf(ErrConflict, "activate %s", id)
	}
	st.ChangeToken++
	st.ActiveVersion = t.Version

	now := time.Now().UTC()
	for _, other := range s.templates {
		if other.TenantID == t.TenantID && other.Category == t.Category &&
			other.Status == model.TemplateStatusActive && other.ID != id {
			other.Status = model.TemplateStatusSuperseded
			other.UpdatedAt = now
		}
	}
	t.Status = model.TemplateStatusActive
	t.UpdatedAt = now
	return nil
}

func (s *MemoryStore) DeactivateTemplate(_ context.Context, id string, expectedToken int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "template %s", id)
	}
	if t.Status != model.TemplateStatusActive {
		return eris.Wrapf(ErrInvalidState, "deactivate %s from %s", id, t.Status)
	}

	st := s.stateLocked(t.TenantID, t.Category)
	if st.ChangeToken != expectedToken {
		return eris.Wrapf(ErrConflict, "deactivate %s", id)
	}
	st.ChangeToken++
	st.ActiveVersion = 0

	t.Status = model.TemplateStatusExtracted
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DeleteTemplate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "template %s", id)
	}
	if t.Status == model.TemplateStatusActive {
		return eris.Wrapf(ErrTemplateActive, "delete %s", id)
	}
	if n := len(s.docRefs[id]); n > 0 {
		return eris.Wrapf(ErrTemplateReferenced, "delete %s (%d documents)", id, n)
	}
	t.Status = model.TemplateStatusDeleted
	t.UpdatedAt = time.Now().UTC()

	// A delete invalidates any activation token read before it, so an
	// in-flight activation in the category must re-read before committing.
	s.stateLocked(t.TenantID, t.Category).ChangeToken++
	return nil
}

func (s *MemoryStore) CountDocumentRefs(_ context.Context, templateID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docRefs[templateID]), nil
}

func (s *MemoryStore) CreateDocumentInstance(_ context.Context, templateID string, _ *model.PreparedDocument) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[templateID]; !ok {
		return "", eris.Wrapf(ErrNotFound, "template %s", templateID)
	}
	id := uuid.New().String()
	s.docRefs[templateID] = append(s.docRefs[templateID], id)
	return id, nil
}

func cloneTemplate(t *model.DocumentTemplate) *model.DocumentTemplate {
	c := *t
	c.PDFFields = append([]model.PdfField(nil), t.PDFFields...)
	c.FieldMappings = append([]model.FieldMapping(nil), t.FieldMappings...)
	return &c
}
