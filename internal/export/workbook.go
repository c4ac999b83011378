// Package export renders a stored extraction as an XLSX workbook.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"claimsqa/internal/domain"
)

const (
	summarySheet    = "Summary"
	maxSheetNameLen = 31
)

// WriteWorkbook writes one workbook for rec: a summary sheet, one sheet per
// list section and one sheet per extracted table.
func WriteWorkbook(w io.Writer, rec *domain.ExtractionRecord) error {
	claim, err := rec.Claim()
	if err != nil {
		return fmt.Errorf("decoding extraction %s: %w", rec.DocumentID, err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return err
	}
	if err := writeSummary(f, rec, claim); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}

	names := map[string]bool{strings.ToLower(summarySheet): true}
	sections := []struct {
		name    string
		headers []string
		rows    [][]any
	}{
		{"Diagnoses", []string{"Name"}, diagnosisRows(claim.Diagnoses)},
		{"Medications", []string{"Name", "Dosage", "Form", "Frequency", "Quantity", "Unit Price", "Total Price", "Source", "Excerpt"}, medicationRows(claim.Medications)},
		{"Procedures", []string{"Name", "Quantity", "Unit Price", "Total Price"}, procedureRows(claim.Procedures)},
		{"Labs", []string{"Test", "Result", "Units"}, labRows(claim.Labs)},
	}
	for _, s := range sections {
		if err := writeSheet(f, uniqueSheetName(names, s.name), s.headers, s.rows); err != nil {
			return fmt.Errorf("%s sheet: %w", s.name, err)
		}
	}

	tableIDs := make([]string, 0, len(claim.Tables))
	for id := range claim.Tables {
		tableIDs = append(tableIDs, id)
	}
	sort.Strings(tableIDs)
	for _, id := range tableIDs {
		table := claim.Tables[id]
		headers := append([]string{"Row"}, table.Columns...)
		rows := make([][]any, 0, len(table.Rows))
		for _, r := range table.Rows {
			row := []any{r.RowID}
			for _, col := range table.Columns {
				row = append(row, r.Cells[col])
			}
			rows = append(rows, row)
		}
		if err := writeSheet(f, uniqueSheetName(names, "Table "+id), headers, rows); err != nil {
			return fmt.Errorf("table %s: %w", id, err)
		}
	}

	activeIndex, _ := f.GetSheetIndex(summarySheet)
	f.SetActiveSheet(activeIndex)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, rec *domain.ExtractionRecord, c *domain.ClaimExtraction) error {
	pairs := [][]any{
		{"Document ID", rec.DocumentID},
		{"Original Name", rec.OriginalName},
		{"Created At", rec.CreatedAt.UTC().Format(time.RFC3339)},
		{"Model", rec.Model},
		{"Schema Version", rec.SchemaVersion},
		{"Claims ID", c.ClaimsID},
		{"Patient Name", c.Patient.Name},
		{"Patient ID", c.Patient.ID},
		{"Gender", c.Patient.Gender},
		{"Age", c.Patient.Age},
		{"Date of Birth", c.Patient.DateOfBirth},
		{"Address", c.Demographics.Address},
		{"Phone", c.Demographics.Phone},
		{"Was Admitted", c.Admission.WasAdmitted},
		{"Admission Date", c.Admission.AdmissionDate},
		{"Discharge Date", c.Admission.DischargeDate},
		{"Ward", c.Admission.Ward},
		{"Bed No", c.Admission.BedNo},
		{"Total Amount", c.Billing.TotalAmountStr},
		{"Total Amount Value", c.Billing.TotalAmountValue},
		{"Currency", c.Billing.Currency},
		{"Notes", c.Notes},
		{"Warnings", strings.Join(c.Warnings, "; ")},
	}
	if err := writeSheet(f, summarySheet, []string{"Field", "Value"}, pairs); err != nil {
		return err
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 22)
	_ = f.SetColWidth(summarySheet, "B", "B", 60)
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for r, row := range rows {
		for col, v := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

var sheetNameReplacer = strings.NewReplacer(":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "(", "]", ")")

// uniqueSheetName returns a valid sheet name derived from name. Excel compares
// sheet names case-insensitively.
func uniqueSheetName(used map[string]bool, name string) string {
	base := sheetNameReplacer.Replace(name)
	if len(base) > maxSheetNameLen {
		base = base[:maxSheetNameLen]
	}
	candidate := base
	for i := 2; used[strings.ToLower(candidate)]; i++ {
		suffix := fmt.Sprintf(" %d", i)
		trimmed := base
		if len(trimmed)+len(suffix) > maxSheetNameLen {
			trimmed = trimmed[:maxSheetNameLen-len(suffix)]
		}
		candidate = trimmed + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func diagnosisRows(in []domain.Diagnosis) [][]any {
	out := make([][]any, 0, len(in))
	for _, d := range in {
		out = append(out, []any{d.Name})
	}
	return out
}

func medicationRows(in []domain.Medication) [][]any {
	out := make([][]any, 0, len(in))
	for _, m := range in {
		out = append(out, []any{m.Name, m.Dosage, m.Form, m.Frequency, m.Quantity, m.UnitPrice, m.TotalPrice, m.Source, m.RawTextExcerpt})
	}
	return out
}

func procedureRows(in []domain.Procedure) [][]any {
	out := make([][]any, 0, len(in))
	for _, p := range in {
		out = append(out, []any{p.Name, p.Quantity, p.UnitPrice, p.TotalPrice})
	}
	return out
}

func labRows(in []domain.Lab) [][]any {
	out := make([][]any, 0, len(in))
	for _, l := range in {
		out = append(out, []any{l.TestName, l.Result, l.Units})
	}
	return out
}
