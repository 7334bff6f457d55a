package core

import "time"

// FieldType is the declared type of an importable field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldEmail   FieldType = "email"
	FieldEnum    FieldType = "enum"
	FieldDate    FieldType = "date"
)

// Valid reports whether t is one of the supported field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldNumber, FieldBoolean, FieldEmail, FieldEnum, FieldDate:
		return true
	}
	return false
}

// FieldInfo describes one importable column of a module.
type FieldInfo struct {
	Key        string    `json:"key" mapstructure:"key"`               // Record attribute: "serial_number"
	Name       string    `json:"name" mapstructure:"name"`             // Header text: "Serial Number"
	Type       FieldType `json:"type" mapstructure:"type"`             // Declared cell type
	Required   bool      `json:"required" mapstructure:"required"`     // Empty cell is an error
	MaxLength  *int      `json:"maxLength,omitempty" mapstructure:"max_length"`
	EnumValues []string  `json:"enumValues,omitempty" mapstructure:"enum_values"`
	Example    string    `json:"example,omitempty" mapstructure:"example"`
	Unique     bool      `json:"unique,omitempty" mapstructure:"unique"` // Natural key enforced on write
}

// ModuleImportSchema is the ordered field list of one module.
// Field order fixes template column order and error column naming.
type ModuleImportSchema struct {
	ModuleKey string      `json:"moduleKey" mapstructure:"module_key"`
	Label     string      `json:"label" mapstructure:"label"`
	Fields    []FieldInfo `json:"fields" mapstructure:"fields"`
}

// Field returns the field with the given key.
func (s ModuleImportSchema) Field(key string) (FieldInfo, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// UniqueKeys returns the keys of all fields flagged unique, in schema order.
func (s ModuleImportSchema) UniqueKeys() []string {
	var keys []string
	for _, f := range s.Fields {
		if f.Unique {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// UploadedRow is one data row of a spreadsheet keyed by header text.
// Line is the 1-indexed line in the original file (header is line 1).
type UploadedRow struct {
	Line   int
	Values map[string]string
}

// TypedRow is a row that passed validation, with values coerced to Go types
// and keyed by field key. Row keeps the original file line number.
//
// Value types by field type: string/email/enum -> string, number -> float64,
// boolean -> bool, date -> string in YYYY-MM-DD form. Empty optional cells
// are omitted.
type TypedRow struct {
	Row    int            `json:"row"`
	Values map[string]any `json:"values"`
}

// RowValidationError is one failing cell.
type RowValidationError struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
	Value  string `json:"value"`
	Error  string `json:"error"`
}

// PreviewResult is the outcome of validating an uploaded spreadsheet.
// TotalRows == ValidCount + ErrorCount and ErrorFileBase64 is set iff ErrorCount > 0.
type PreviewResult struct {
	TotalRows       int                  `json:"totalRows"`
	ValidCount      int                  `json:"validCount"`
	ErrorCount      int                  `json:"errorCount"`
	ValidRows       []TypedRow           `json:"validRows"`
	Errors          []RowValidationError `json:"errors"`
	ErrorFileBase64 string               `json:"errorFileBase64,omitempty"`
}

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition can happen from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// RowError records a row the worker could not create.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ImportJob is the durable record of one confirmed batch.
type ImportJob struct {
	ID              string     `json:"jobId"`
	ModuleKey       string     `json:"moduleKey"`
	Status          JobStatus  `json:"status"`
	Progress        int        `json:"progress"`
	TotalRows       int        `json:"totalRows"`
	CreatedCount    int        `json:"createdCount"`
	FailedCount     int        `json:"failedCount"`
	RowErrors       []RowError `json:"rowErrors"`
	Error           string     `json:"error,omitempty"`
	CancelRequested bool       `json:"cancelRequested,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy of the job.
func (j ImportJob) Clone() ImportJob {
	out := j
	if j.RowErrors != nil {
		out.RowErrors = append([]RowError(nil), j.RowErrors...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// JobResult is the per-row outcome of a completed job.
type JobResult struct {
	Created   int        `json:"created"`
	Failed    int        `json:"failed"`
	RowErrors []RowError `json:"rowErrors"`
}

// JobStatusView is what pollers see.
type JobStatusView struct {
	JobID     string     `json:"jobId"`
	ModuleKey string     `json:"moduleKey"`
	Status    JobStatus  `json:"status"`
	Progress  int        `json:"progress"`
	TotalRows int        `json:"totalRows"`
	Result    *JobResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// View projects a job to its polling representation. Result is set only
// once the job completed.
func (j ImportJob) View() JobStatusView {
	v := JobStatusView{
		JobID:     j.ID,
		ModuleKey: j.ModuleKey,
		Status:    j.Status,
		Progress:  j.Progress,
		TotalRows: j.TotalRows,
		Error:     j.Error,
	}
	if j.Status == JobCompleted {
		rowErrors := j.RowErrors
		if rowErrors == nil {
			rowErrors = []RowError{}
		}
		v.Result = &JobResult{
			Created:   j.CreatedCount,
			Failed:    j.FailedCount,
			RowErrors: append([]RowError(nil), rowErrors...),
		}
	}
	return v
}
