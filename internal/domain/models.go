package domain

import (
	"encoding/json"
	"time"
)

// ExtractionRecord is a stored, schema-validated extraction of one document.
type ExtractionRecord struct {
	DocumentID    string          `db:"document_id" json:"document_id"`
	Content       json.RawMessage `db:"content" json:"content"`
	SchemaVersion string          `db:"schema_version" json:"schema_version"`
	Model         string          `db:"model" json:"model"`
	ContentType   string          `db:"content_type" json:"content_type"`
	OriginalName  string          `db:"original_name" json:"original_name"`
	ArtifactKey   string          `db:"artifact_key" json:"artifact_key"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Clone returns a deep copy so that the content bytes are not shared.
func (r *ExtractionRecord) Clone() *ExtractionRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Content != nil {
		out.Content = append(json.RawMessage(nil), r.Content...)
	}
	return &out
}

// Claim decodes the content into its typed view.
func (r *ExtractionRecord) Claim() (*ClaimExtraction, error) {
	var c ClaimExtraction
	if err := json.Unmarshal(r.Content, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Answer is the result of a question asked against a stored extraction.
type Answer struct {
	DocumentID string `json:"document_id"`
	Answer     string `json:"answer"`
	Model      string `json:"model,omitempty"`
}

// ClaimExtraction is the typed view of the claims summary contract.
type ClaimExtraction struct {
	ClaimsID     string                `json:"claims_id"`
	Patient      Patient               `json:"patient"`
	Demographics Demographics          `json:"demographics"`
	Diagnoses    []Diagnosis           `json:"diagnoses"`
	Medications  []Medication          `json:"medications"`
	Procedures   []Procedure           `json:"procedures"`
	Admission    Admission             `json:"admission"`
	Vitals       map[string]any        `json:"vitals"`
	Labs         []Lab                 `json:"labs"`
	Billing      Billing               `json:"billing"`
	Tables       map[string]ClaimTable `json:"tables"`
	Notes        string                `json:"notes"`
	Metadata     map[string]any        `json:"metadata"`
	Warnings     []string              `json:"warnings"`
}

type Patient struct {
	Name        string `json:"name"`
	ID          string `json:"id"`
	Gender      string `json:"gender"`
	Age         int    `json:"age"`
	DateOfBirth string `json:"date_of_birth"`
}

type Demographics struct {
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type Diagnosis struct {
	Name string `json:"name"`
}

type Medication struct {
	Name           string  `json:"name"`
	Dosage         string  `json:"dosage"`
	Form           string  `json:"form"`
	Frequency      string  `json:"frequency"`
	Quantity       string  `json:"quantity"`
	UnitPrice      float64 `json:"unit_price"`
	TotalPrice     float64 `json:"total_price"`
	Source         string  `json:"source"`
	RawTextExcerpt string  `json:"raw_text_excerpt"`
}

type Procedure struct {
	Name       string  `json:"name"`
	Quantity   string  `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
}

type Admission struct {
	WasAdmitted   bool   `json:"was_admitted"`
	AdmissionDate string `json:"admission_date"`
	DischargeDate string `json:"discharge_date"`
	Ward          string `json:"ward"`
	BedNo         string `json:"bed_no"`
}

type Lab struct {
	TestName string `json:"test_name"`
	Result   string `json:"result"`
	Units    string `json:"units"`
}

type Billing struct {
	TotalAmountStr   string  `json:"total_amount_str"`
	TotalAmountValue float64 `json:"total_amount_value"`
	Currency         string  `json:"currency"`
	BreakdownTableID string  `json:"breakdown_table_id"`
}

// ClaimTable is a free-form table lifted from the document.
type ClaimTable struct {
	TableID string     `json:"table_id"`
	Columns []string   `json:"columns"`
	Rows    []TableRow `json:"rows"`
}

type TableRow struct {
	RowID string            `json:"row_id"`
	Cells map[string]string `json:"cells"`
}
