// Package prepare orchestrates per-mapping evaluation, transform, and
// required/default policy to produce the exact values burned into a form.
// One bad mapping never aborts the batch: data-shape problems become
// diagnostics, and the only hard failure is a structurally invalid mapping
// list.
package prepare

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lotworks/dealdocs/internal/docpath"
	"github.com/lotworks/dealdocs/internal/model"
	"github.com/lotworks/dealdocs/internal/transform"
)

// IsSecondPartyFieldName reports whether a PDF field name conventionally
// belongs to the second buyer. The convention is any name containing the
// digit "2" ("Buyer2Name", "Signature 2"). This is knowingly over-broad; it
// is kept as its own rule, separate from the cobuyer path check, so it can
// be narrowed independently if product ever confirms a tighter convention.
func IsSecondPartyFieldName(name string) bool {
	return strings.Contains(name, "2")
}

// Prepare resolves every mapping against the deal snapshot and returns one
// PreparedField per mapping, in input order, plus the diagnostic
// side-collections. The returned error is non-nil only for a structurally
// invalid mapping list (duplicate pdfFieldName); everything else is
// reported through the document's ValidationErrors.
func Prepare(mappings []model.FieldMapping, data *model.DealData) (*model.PreparedDocument, error) {
	seen := make(map[string]struct{}, len(mappings))
	for _, m := range mappings {
		if _, dup := seen[m.PDFFieldName]; dup {
			return nil, eris.Errorf("prepare: duplicate pdf field name %q", m.PDFFieldName)
		}
		seen[m.PDFFieldName] = struct{}{}
	}

	doc := &model.PreparedDocument{
		Fields: make([]model.PreparedField, 0, len(mappings)),
	}

	for _, m := range mappings {
		doc.Fields = append(doc.Fields, prepareOne(m, data, doc))
	}

	return doc, nil
}

// prepareOne implements the per-mapping policy, appending diagnostics to
// doc's side-collections as it goes.
func prepareOne(m model.FieldMapping, data *model.DealData, doc *model.PreparedDocument) model.PreparedField {
	// Signature and initial placeholders are not data: defer them to the
	// signing step regardless of the snapshot contents.
	if docpath.IsSpecialPlaceholder(m.DataPath) {
		doc.SignatureFields = append(doc.SignatureFields, m.PDFFieldName)
		return model.PreparedField{
			PDFFieldName: m.PDFFieldName,
			Transform:    m.Transform,
			Skipped:      true,
			SkipReason:   model.SkipReasonSignature,
		}
	}

	raw, err := docpath.Evaluate(m.DataPath, data)
	if err != nil {
		doc.ValidationErrors = append(doc.ValidationErrors, model.ValidationError{
			PDFFieldName: m.PDFFieldName,
			DataPath:     m.DataPath,
			Error:        err.Error(),
		})
		return model.PreparedField{
			PDFFieldName: m.PDFFieldName,
			Value:        applyDefault(m, doc),
			Transform:    m.Transform,
			Skipped:      true,
			SkipReason:   model.SkipReasonInvalidPath,
		}
	}

	if raw.IsMissing() {
		return prepareMissing(m, data, doc)
	}

	value, terr := transform.Apply(raw, m.Transform)
	if terr != nil {
		// Best-effort value was still produced; record the note.
		doc.ValidationErrors = append(doc.ValidationErrors, model.ValidationError{
			PDFFieldName: m.PDFFieldName,
			DataPath:     m.DataPath,
			Error:        terr.Error(),
		})
	}
	return model.PreparedField{
		PDFFieldName:  m.PDFFieldName,
		Value:         value,
		OriginalValue: raw,
		Transform:     m.Transform,
	}
}

// prepareMissing applies the required/default/relaxation policy when the
// evaluated value is null or empty.
func prepareMissing(m model.FieldMapping, data *model.DealData, doc *model.PreparedDocument) model.PreparedField {
	if m.Required && !coBuyerRelaxed(m, data) {
		doc.MissingRequiredFields = append(doc.MissingRequiredFields, m.PDFFieldName)
		doc.ValidationErrors = append(doc.ValidationErrors, model.ValidationError{
			PDFFieldName: m.PDFFieldName,
			DataPath:     m.DataPath,
			Error:        "required field has no value",
		})
		if m.DefaultValue == "" {
			return model.PreparedField{
				PDFFieldName: m.PDFFieldName,
				Transform:    m.Transform,
				Skipped:      true,
				SkipReason:   model.SkipReasonRequiredNoDefault,
			}
		}
	}

	return model.PreparedField{
		PDFFieldName: m.PDFFieldName,
		Value:        applyDefault(m, doc),
		Transform:    m.Transform,
	}
}

// coBuyerRelaxed reports whether a required-but-missing field should be
// treated as optional for this evaluation: the field belongs to the second
// party (by data path category or by the name convention) and the cobuyer
// category is entirely absent from the snapshot, meaning this is a
// single-buyer deal whose second-buyer section is legitimately blank.
func coBuyerRelaxed(m model.FieldMapping, data *model.DealData) bool {
	if _, present := data.Category(model.CategoryCoBuyer); present {
		return false
	}
	if p, err := docpath.Parse(m.DataPath); err == nil && p.Category == model.CategoryCoBuyer {
		return true
	}
	return IsSecondPartyFieldName(m.PDFFieldName)
}

// applyDefault renders the mapping's default value through its transform,
// or the empty string when no default is configured.
func applyDefault(m model.FieldMapping, doc *model.PreparedDocument) string {
	if m.DefaultValue == "" {
		return ""
	}
	value, err := transform.Apply(model.String(m.DefaultValue), m.Transform)
	if err != nil {
		doc.ValidationErrors = append(doc.ValidationErrors, model.ValidationError{
			PDFFieldName: m.PDFFieldName,
			DataPath:     m.DataPath,
			Error:        err.Error(),
		})
	}
	return value
}

// ValidationResult is the outcome of the generation gate.
type ValidationResult struct {
	// OK is true when nothing blocks generation.
	OK bool `json:"ok"`
	// Blocking lists the conditions that must clear before final signing
	// and delivery: absent required categories and missing required fields.
	Blocking []string `json:"blocking,omitempty"`
	// Document is the prepared output, present whenever the mapping list
	// itself was structurally valid.
	Document *model.PreparedDocument `json:"document,omitempty"`
}

// ValidateDealData is the externally visible "can we generate this
// document" gate: it checks the four required top-level categories are
// present, runs the preparer, and surfaces missing required fields as
// blocking. Generation itself proceeds even with blocking entries present;
// enforcement at signing time is the caller's responsibility.
func ValidateDealData(data *model.DealData, mappings []model.FieldMapping) (*ValidationResult, error) {
	res := &ValidationResult{}

	for _, cat := range model.RequiredCategories {
		if _, present := data.Category(cat); !present {
			res.Blocking = append(res.Blocking, "missing data category: "+cat)
		}
	}

	doc, err := Prepare(mappings, data)
	if err != nil {
		return nil, err
	}
	res.Document = doc

	for _, name := range doc.MissingRequiredFields {
		res.Blocking = append(res.Blocking, "missing required field: "+name)
	}

	res.OK = len(res.Blocking) == 0
	if !res.OK {
		zap.L().Debug("prepare: validation gate not clear",
			zap.Int("blocking", len(res.Blocking)),
		)
	}
	return res, nil
}
