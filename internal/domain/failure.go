package domain

// FailureRecord represents one failure reported by a worker
type FailureRecord struct {
	ItemID      string `json:"item_id"`               // Test file the failure belongs to, empty for worker-level failures
	WorkerIndex int    `json:"worker_index"`          // Worker that reported it
	Location    string `json:"location,omitempty"`    // e.g. ./spec/models/user_spec.rb:42
	Description string `json:"description,omitempty"` // Example description from the runner summary
	Detail      string `json:"detail"`                // Raw failure detail (exit status, signal, runner output)
	ExitCode    int    `json:"exit_code"`
	Crash       bool   `json:"crash,omitempty"`
	Resolved    bool   `json:"resolved,omitempty"` // Marked as resolved in the failures viewer
}

// WorkerLevel reports whether the record is not tied to a single item
func (f FailureRecord) WorkerLevel() bool {
	return f.ItemID == ""
}
