package generation

// ExportRecord is one line of a JSONL history export. The first line of a
// file is a header with TestsmithExport set and no generation fields.
type ExportRecord struct {
	TestsmithExport bool   `json:"_testsmith_export,omitempty"`
	SchemaVersion   string `json:"schema_version,omitempty"`
	ExportedAt      int64  `json:"exported_at,omitempty"`

	ID             string  `json:"id,omitempty"`
	Command        string  `json:"command,omitempty"`
	Kind           string  `json:"kind,omitempty"`
	Prompt         string  `json:"prompt,omitempty"`
	Model          string  `json:"model,omitempty"`
	TargetPath     *string `json:"target_path,omitempty"`
	DirCreated     bool    `json:"dir_created,omitempty"`
	HasFencedBlock bool    `json:"has_fenced_block,omitempty"`
	CodeText       string  `json:"code_text,omitempty"`
	Status         Status  `json:"status,omitempty"`
	ErrorCode      *string `json:"error_code,omitempty"`
	CreatedAt      int64   `json:"created_at,omitempty"`
}

// ToExportRecord converts a generation for export. Derived counts are left
// out; they are recomputed from CodeText.
func (g *Generation) ToExportRecord() *ExportRecord {
	return &ExportRecord{
		ID:             g.ID,
		Command:        g.Command,
		Kind:           g.Kind,
		Prompt:         g.Prompt,
		Model:          g.Model,
		TargetPath:     g.TargetPath,
		DirCreated:     g.DirCreated,
		HasFencedBlock: g.HasFencedBlock,
		CodeText:       g.CodeText,
		Status:         g.Status,
		ErrorCode:      g.ErrorCode,
		CreatedAt:      g.CreatedAt,
	}
}

// ToGeneration converts an export line back, recomputing derived fields.
func (r *ExportRecord) ToGeneration() *Generation {
	return &Generation{
		ID:             r.ID,
		Command:        r.Command,
		Kind:           r.Kind,
		Prompt:         r.Prompt,
		Model:          r.Model,
		TargetPath:     r.TargetPath,
		DirCreated:     r.DirCreated,
		HasFencedBlock: r.HasFencedBlock,
		CodeText:       r.CodeText,
		CodeChars:      CountChars(r.CodeText),
		TokensEstimate: EstimateTokens(r.CodeText),
		Status:         r.Status,
		ErrorCode:      r.ErrorCode,
		CreatedAt:      r.CreatedAt,
	}
}
