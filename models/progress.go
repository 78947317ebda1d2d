package models

// IndexProgress is the single-writer, multi-reader state of the active
// indexing run. Readers must use Running to detect the terminal state;
// Percent can plateau before completion.
type IndexProgress struct {
	Percent int    `json:"percent"`
	Message string `json:"message"`
	Running bool   `json:"running"`
	RunID   string `json:"run_id,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

// Indexing modes.
const (
	IndexModeIncremental = "incremental"
	IndexModeRebuild     = "rebuild"
)
