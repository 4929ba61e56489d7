package model

import "time"

// TemplateStatus is the lifecycle state of one template version.
type TemplateStatus string

const (
	// TemplateStatusDraft: uploaded, fields not yet extracted.
	TemplateStatusDraft TemplateStatus = "draft"
	// TemplateStatusExtracted: fields and mappings present, not active.
	TemplateStatusExtracted TemplateStatus = "extracted"
	// TemplateStatusActive: the single version used for new documents.
	TemplateStatusActive TemplateStatus = "active"
	// TemplateStatusSuperseded: was active, replaced by a newer activation.
	TemplateStatusSuperseded TemplateStatus = "superseded"
	// TemplateStatusDeleted: soft-deleted; only legal when unreferenced.
	TemplateStatusDeleted TemplateStatus = "deleted"
)

// DocumentTemplate is one version of a category-scoped document template:
// the extracted PDF field list plus the field-mapping list. At most one
// version per (tenant, category) is active at any observable instant, and
// version numbers are monotonically increasing and never reused.
type DocumentTemplate struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenantId"`
	Category      string         `json:"category"`
	Version       int            `json:"version"`
	Status        TemplateStatus `json:"status"`
	PDFFields     []PdfField     `json:"pdfFields,omitempty"`
	FieldMappings []FieldMapping `json:"fieldMappings,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// IsActive reports whether this version is the active one for its
// (tenant, category).
func (t *DocumentTemplate) IsActive() bool {
	return t.Status == TemplateStatusActive
}

// Activatable reports whether the version may transition to active:
// extracted versions and previously superseded versions qualify.
func (t *DocumentTemplate) Activatable() bool {
	return t.Status == TemplateStatusExtracted || t.Status == TemplateStatusSuperseded
}
