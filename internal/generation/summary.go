package generation

// Summary is a generation without its code, used by list views.
type Summary struct {
	ID             string  `json:"id"`
	Command        string  `json:"command"`
	Kind           string  `json:"kind,omitempty"`
	Prompt         string  `json:"prompt"`
	Model          string  `json:"model"`
	TargetPath     *string `json:"target_path,omitempty"`
	DirCreated     bool    `json:"dir_created,omitempty"`
	HasFencedBlock bool    `json:"has_fenced_block"`
	CodeChars      int     `json:"code_chars"`
	TokensEstimate int     `json:"tokens_estimate"`
	Status         Status  `json:"status"`
	ErrorCode      *string `json:"error_code,omitempty"`
	CreatedAt      int64   `json:"created_at"`
}

// ToSummary strips the code from a generation.
func (g *Generation) ToSummary() Summary {
	return Summary{
		ID:             g.ID,
		Command:        g.Command,
		Kind:           g.Kind,
		Prompt:         g.Prompt,
		Model:          g.Model,
		TargetPath:     g.TargetPath,
		DirCreated:     g.DirCreated,
		HasFencedBlock: g.HasFencedBlock,
		CodeChars:      g.CodeChars,
		TokensEstimate: g.TokensEstimate,
		Status:         g.Status,
		ErrorCode:      g.ErrorCode,
		CreatedAt:      g.CreatedAt,
	}
}
