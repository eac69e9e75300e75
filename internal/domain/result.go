package domain

import "time"

// WorkerState is the lifecycle state of one worker process
type WorkerState string

const (
	StatePending   WorkerState = "pending"
	StateRunning   WorkerState = "running"
	StateCompleted WorkerState = "completed"
	StateCrashed   WorkerState = "crashed"
	StateKilled    WorkerState = "killed"
)

// Terminal reports whether no further transition is possible
func (s WorkerState) Terminal() bool {
	return s == StateCompleted || s == StateCrashed || s == StateKilled
}

// Abnormal reports whether the worker ended without an orderly exit
func (s WorkerState) Abnormal() bool {
	return s == StateCrashed || s == StateKilled
}

// WorkerResult represents the outcome of executing one slice
type WorkerResult struct {
	Index           int             `json:"index"`
	State           WorkerState     `json:"state"`
	Items           Slice           `json:"items"`
	PID             int             `json:"pid,omitempty"`
	ExitCode        int             `json:"exit_code"`
	Signal          string          `json:"signal,omitempty"`
	Resource        string          `json:"resource,omitempty"`
	LogPath         string          `json:"log_path,omitempty"`
	Error           string          `json:"error,omitempty"` // Supervisor-side error (acquire or start failure)
	StartedAt       time.Time       `json:"started_at"`
	Duration        time.Duration   `json:"duration"`
	Counted         bool            `json:"counted,omitempty"` // The log carried a runner summary line
	Examples        int             `json:"examples,omitempty"`
	ExampleFailures int             `json:"example_failures,omitempty"`
	Failures        []FailureRecord `json:"-"`
}

// RunStatus is the single externally visible pass/fail signal of a run
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailure RunStatus = "failure"
)

// RunMeta contains metadata about a run
type RunMeta struct {
	RunID           string    `json:"run_id"`
	Status          RunStatus `json:"status"`
	TotalItems      int       `json:"total_items"`
	Workers         int       `json:"workers"`
	FailedWorkers   int       `json:"failed_workers"`
	CrashedWorkers  int       `json:"crashed_workers"`
	FailedItems     int       `json:"failed_items"`
	Failures        int       `json:"failures"`
	Duration        string    `json:"duration"`
	DurationSeconds float64   `json:"duration_seconds"`
	Timestamp       string    `json:"timestamp"`
	CombinedLog     string    `json:"combined_log,omitempty"`
}

// RunReport is the aggregated outcome of a run
type RunReport struct {
	Meta    RunMeta         `json:"meta"`
	Workers []WorkerResult  `json:"workers"`
	Details []FailureRecord `json:"details"`
}

// Succeeded reports whether the run passed
func (r *RunReport) Succeeded() bool {
	return r.Meta.Status == RunSuccess
}
