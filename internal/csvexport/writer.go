package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"claimsqa/internal/domain"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// columns defines the CSV header row (18 columns).
var columns = []string{
	"Document ID",
	"Original Name",
	"Content Type",
	"Claims ID",
	"Patient Name",
	"Patient ID",
	"Gender",
	"Age",
	"Diagnoses",
	"Medication Count",
	"Procedure Count",
	"Was Admitted",
	"Total Amount",
	"Currency",
	"Warnings",
	"Model",
	"Schema Version",
	"Created At",
}

// Writer wraps csv.Writer for exporting extraction history as CSV.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteHeader writes the header row.
func (w *Writer) WriteHeader() error {
	return w.csv.Write(columns)
}

// WriteRecords converts a batch of extraction records to CSV rows and writes them.
func (w *Writer) WriteRecords(records []domain.ExtractionRecord) error {
	for i := range records {
		row := recordToRow(&records[i])
		if err := w.csv.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

// recordToRow converts a single record to a row. If the content does not
// decode into the claims view, only the metadata columns are filled.
func recordToRow(rec *domain.ExtractionRecord) []string {
	row := make([]string, len(columns))

	row[0] = rec.DocumentID
	row[1] = rec.OriginalName
	row[2] = rec.ContentType
	row[15] = rec.Model
	row[16] = rec.SchemaVersion
	row[17] = rec.CreatedAt.UTC().Format(time.RFC3339)

	claim, err := rec.Claim()
	if err != nil {
		return row
	}

	names := make([]string, 0, len(claim.Diagnoses))
	for _, d := range claim.Diagnoses {
		names = append(names, d.Name)
	}

	row[3] = claim.ClaimsID
	row[4] = claim.Patient.Name
	row[5] = claim.Patient.ID
	row[6] = claim.Patient.Gender
	row[7] = strconv.Itoa(claim.Patient.Age)
	row[8] = strings.Join(names, "; ")
	row[9] = strconv.Itoa(len(claim.Medications))
	row[10] = strconv.Itoa(len(claim.Procedures))
	row[11] = formatBool(claim.Admission.WasAdmitted)
	row[12] = formatMoney(claim.Billing.TotalAmountValue)
	row[13] = claim.Billing.Currency
	row[14] = strings.Join(claim.Warnings, "; ")

	return row
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatBool(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a name for use in Content-Disposition.
// Replaces non-alphanumeric chars (except - _) with _, collapses consecutive
// underscores, and truncates to 100 chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns a sanitized filename for the Content-Disposition header.
// Format: {sanitized_name}_{YYYY-MM-DD}.{ext}
func BuildFilename(name, ext string) string {
	sanitized := SanitizeFilename(name)
	if sanitized == "" {
		sanitized = "export"
	}
	date := time.Now().Format("2006-01-02")
	return fmt.Sprintf("%s_%s.%s", sanitized, date, ext)
}
