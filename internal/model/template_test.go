package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemplateStatusTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status      TemplateStatus
		active      bool
		activatable bool
	}{
		{TemplateStatusDraft, false, false},
		{TemplateStatusExtracted, false, true},
		{TemplateStatusActive, true, false},
		{TemplateStatusSuperseded, false, true},
		{TemplateStatusDeleted, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			tmpl := &DocumentTemplate{Status: tt.status}
			assert.Equal(t, tt.active, tmpl.IsActive())
			assert.Equal(t, tt.activatable, tmpl.Activatable())
		})
	}
}

func TestTransformKindValid(t *testing.T) {
	t.Parallel()

	for _, k := range []TransformKind{"", TransformNone, TransformUppercase,
		TransformLowercase, TransformTitlecase, TransformCurrency, TransformDate} {
		assert.True(t, k.Valid(), string(k))
	}
	assert.False(t, TransformKind("rot13").Valid())
	assert.False(t, TransformKind("Uppercase").Valid())
}

func TestFieldMappingIsManual(t *testing.T) {
	t.Parallel()

	assert.True(t, FieldMapping{PDFFieldName: "f", DataPath: "client.firstName"}.IsManual())
	assert.False(t, FieldMapping{PDFFieldName: "f", DataPath: "client.firstName", AutoMapped: true}.IsManual())
	assert.False(t, FieldMapping{PDFFieldName: "f"}.IsManual())
}
