// Package report produces human-review artifacts for template mappings.
package report

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/lotworks/dealdocs/internal/automap"
	"github.com/lotworks/dealdocs/internal/model"
)

// WriteMappingReview writes an XLSX workbook summarizing an auto-mapping
// run so a back-office user can review proposals before activation. The
// first sheet lists every mapping; a second sheet lists fields that ended
// up unmapped.
func WriteMappingReview(path string, t *model.DocumentTemplate, result *automap.Result) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("Mappings")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"PDF Field", "Data Path", "Rule", "Score", "Transform", "Required", "Default", "Source"} {
		cell := header.AddCell()
		cell.Value = h
		style := xlsx.NewStyle()
		style.Font.Bold = true
		cell.SetStyle(style)
	}

	proposals := make(map[string]automap.Proposal, len(result.Proposals))
	for _, p := range result.Proposals {
		proposals[p.PDFFieldName] = p
	}

	for _, m := range result.Mappings {
		row := sheet.AddRow()
		row.AddCell().Value = m.PDFFieldName
		row.AddCell().Value = m.DataPath

		if p, ok := proposals[m.PDFFieldName]; ok {
			row.AddCell().Value = p.Rule
			row.AddCell().Value = fmt.Sprintf("%d", p.Score)
		} else {
			row.AddCell().Value = ""
			row.AddCell().Value = ""
		}

		row.AddCell().Value = string(m.Transform)
		if m.Required {
			row.AddCell().Value = "yes"
		} else {
			row.AddCell().Value = ""
		}
		row.AddCell().Value = m.DefaultValue
		if m.IsManual() {
			row.AddCell().Value = "manual"
		} else if m.AutoMapped {
			row.AddCell().Value = "auto"
		} else {
			row.AddCell().Value = ""
		}
	}

	unmapped, err := f.AddSheet("Unmapped")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}
	uh := unmapped.AddRow()
	for _, h := range []string{"PDF Field", "Type", "Page"} {
		cell := uh.AddCell()
		cell.Value = h
		style := xlsx.NewStyle()
		style.Font.Bold = true
		cell.SetStyle(style)
	}

	mapped := make(map[string]bool, len(result.Mappings))
	for _, m := range result.Mappings {
		if m.DataPath != "" {
			mapped[m.PDFFieldName] = true
		}
	}
	for _, pf := range t.PDFFields {
		if mapped[pf.Name] {
			continue
		}
		row := unmapped.AddRow()
		row.AddCell().Value = pf.Name
		row.AddCell().Value = pf.Type
		row.AddCell().SetInt(pf.Page)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}
