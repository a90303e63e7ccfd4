// Package export writes deal data to spreadsheet workbooks for review
// outside the tool.
package export

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/dealdesk-cli/internal/model"
	"github.com/sells-group/dealdesk-cli/internal/underwrite"
)

// factColumns defines the ordered Facts sheet columns.
var factColumns = []string{
	"Fact ID",
	"Document ID",
	"Fact Type",
	"Label",
	"Value",
	"Unit",
	"Confidence",
	"Status",
	"Locked",
	"Source Page",
	"Source Text",
	"Approved By",
	"Approved At",
}

// auditColumns defines the ordered Underwriting sheet columns.
var auditColumns = []string{
	"Metric",
	"Formula",
	"Inputs",
	"Result",
}

// WriteWorkbook writes a deal's facts and underwriting summary to an xlsx
// file. The underwriting result may be nil, in which case only the Facts
// sheet is written.
func WriteWorkbook(path string, facts []model.Fact, uw *underwrite.UnderwritingResult) error {
	f := xlsx.NewFile()

	if err := addFactsSheet(f, facts); err != nil {
		return err
	}
	if uw != nil {
		if err := addUnderwritingSheet(f, uw); err != nil {
			return err
		}
	}

	return eris.Wrapf(f.Save(path), "export: save workbook %s", path)
}

func addFactsSheet(f *xlsx.File, facts []model.Fact) error {
	sheet, err := f.AddSheet("Facts")
	if err != nil {
		return eris.Wrap(err, "export: add facts sheet")
	}

	header := sheet.AddRow()
	for _, col := range factColumns {
		header.AddCell().Value = col
	}

	for _, fact := range facts {
		row := sheet.AddRow()
		row.AddCell().Value = fact.FactID
		row.AddCell().Value = fact.DocumentID
		row.AddCell().Value = string(fact.FactType)
		row.AddCell().Value = fact.Label
		row.AddCell().Value = fact.Value
		row.AddCell().Value = fact.Unit
		row.AddCell().Value = strconv.FormatFloat(fact.Confidence, 'f', 2, 64)
		row.AddCell().Value = string(fact.Status)
		row.AddCell().Value = strconv.FormatBool(fact.Locked)

		var page, text string
		if fact.Citation != nil {
			page = strconv.Itoa(fact.Citation.DocumentPage)
			text = fact.Citation.Text
		}
		row.AddCell().Value = page
		row.AddCell().Value = text
		row.AddCell().Value = fact.ApprovedBy
		if fact.ApprovedAt != nil {
			row.AddCell().Value = fact.ApprovedAt.Format("2006-01-02 15:04:05")
		} else {
			row.AddCell().Value = ""
		}
	}
	return nil
}

func addUnderwritingSheet(f *xlsx.File, uw *underwrite.UnderwritingResult) error {
	sheet, err := f.AddSheet("Underwriting")
	if err != nil {
		return eris.Wrap(err, "export: add underwriting sheet")
	}

	header := sheet.AddRow()
	for _, col := range auditColumns {
		header.AddCell().Value = col
	}

	for _, step := range uw.AuditTrail {
		row := sheet.AddRow()
		row.AddCell().Value = step.Metric
		row.AddCell().Value = step.Formula
		row.AddCell().Value = formatInputs(step.Inputs)
		row.AddCell().Value = strconv.FormatFloat(step.Result, 'f', 2, 64)
	}

	if len(uw.Warnings) > 0 {
		sheet.AddRow()
		warnHeader := sheet.AddRow()
		warnHeader.AddCell().Value = "Warnings"
		for _, w := range uw.Warnings {
			sheet.AddRow().AddCell().Value = w
		}
	}
	return nil
}

func formatInputs(inputs []underwrite.NamedInput) string {
	var out string
	for i, in := range inputs {
		if i > 0 {
			out += "; "
		}
		out += fmt.Sprintf("%s=%.2f", in.Name, in.Value)
	}
	return out
}
