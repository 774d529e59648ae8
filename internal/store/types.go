package store

import "time"

// FileState is the state recorded for one output file after a rewrite.
type FileState struct {
	ID   int64
	Path string
	// Hash is the content hash of the file as written.
	Hash string
	// ConfigHash fingerprints the configuration the file was rewritten
	// under. State recorded under another configuration is stale.
	ConfigHash  string
	Specifiers  int
	RewrittenAt time.Time
}

// Run is the summary of one rewrite run.
type Run struct {
	ID                  int64
	ConfigFile          string
	StartedAt           time.Time
	FinishedAt          time.Time
	FilesScanned        int
	FilesChanged        int
	FilesSkipped        int
	SpecifiersRewritten int
	Diagnostics         int
}
