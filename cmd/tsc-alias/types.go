package main

// CLIReport is the JSON summary of a run.
type CLIReport struct {
	Project             string          `json:"project"`
	FilesScanned        int             `json:"files_scanned"`
	FilesChanged        int             `json:"files_changed"`
	FilesSkipped        int             `json:"files_skipped"`
	SpecifiersRewritten int             `json:"specifiers_rewritten"`
	Diagnostics         int             `json:"diagnostics"`
	DurationMS          int64           `json:"duration_ms"`
	Problems            []CLIDiagnostic `json:"problems,omitempty"`
	Error               string          `json:"error,omitempty"`
}

// CLIDiagnostic is a warning or error reported during a run.
type CLIDiagnostic struct {
	Level     string `json:"level"`
	Code      string `json:"code"`
	File      string `json:"file,omitempty"`
	Specifier string `json:"specifier,omitempty"`
	Message   string `json:"message"`
}
