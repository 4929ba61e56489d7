package model

// TransformKind names a pure value-to-string formatter applied after path
// evaluation. The zero value (empty string) is equivalent to TransformNone.
type TransformKind string

const (
	TransformNone      TransformKind = "none"
	TransformUppercase TransformKind = "uppercase"
	TransformLowercase TransformKind = "lowercase"
	TransformTitlecase TransformKind = "titlecase"
	TransformCurrency  TransformKind = "currency"
	TransformDate      TransformKind = "date"
)

// Valid reports whether k is a known transform kind. The empty string is
// valid and means no transform.
func (k TransformKind) Valid() bool {
	switch k {
	case "", TransformNone, TransformUppercase, TransformLowercase,
		TransformTitlecase, TransformCurrency, TransformDate:
		return true
	}
	return false
}

// FieldMapping associates one PDF form field with a data path, a transform,
// a default value, and a required flag. PDFFieldName is unique within a
// template version. AutoMapped marks entries written by the auto-mapper; a
// manual edit clears it.
type FieldMapping struct {
	PDFFieldName string        `json:"pdfFieldName"`
	DataPath     string        `json:"dataPath"`
	Transform    TransformKind `json:"transform,omitempty"`
	DefaultValue string        `json:"defaultValue,omitempty"`
	Required     bool          `json:"required"`
	AutoMapped   bool          `json:"autoMapped"`
}

// IsManual reports whether the mapping was set by a user: not auto-mapped
// and pointing somewhere. Manual mappings are never overwritten by a
// re-run of the auto-mapper.
func (m FieldMapping) IsManual() bool {
	return !m.AutoMapped && m.DataPath != ""
}

// PdfField is one fillable form field as reported by the external
// extraction collaborator. Consumed read-only.
type PdfField struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Page int    `json:"page"`
}

// Skip reasons emitted by the preparer.
const (
	SkipReasonSignature         = "deferred to signing"
	SkipReasonRequiredNoDefault = "required and no default"
	SkipReasonInvalidPath       = "invalid data path"
)

// PreparedField is the per-mapping output of the preparer. Skipped means
// "do not attempt to fill this field".
type PreparedField struct {
	PDFFieldName  string        `json:"pdfFieldName"`
	Value         string        `json:"value"`
	OriginalValue Scalar        `json:"originalValue"`
	Transform     TransformKind `json:"transform,omitempty"`
	Skipped       bool          `json:"skipped"`
	SkipReason    string        `json:"skipReason,omitempty"`
}

// ValidationError is a purely diagnostic record tied to one mapping. It
// never blocks generation by itself.
type ValidationError struct {
	PDFFieldName string `json:"pdfFieldName"`
	DataPath     string `json:"dataPath"`
	Error        string `json:"error"`
}

// PreparedDocument is the full output of preparing one template against one
// deal snapshot: exactly one PreparedField per input mapping, in input
// order, plus the diagnostic side-collections.
type PreparedDocument struct {
	Fields                []PreparedField   `json:"fields"`
	ValidationErrors      []ValidationError `json:"validationErrors,omitempty"`
	MissingRequiredFields []string          `json:"missingRequiredFields,omitempty"`
	SignatureFields       []string          `json:"signatureFields,omitempty"`
}
