package domain

import "time"

// ResourceHandle references one worker's scratch resource
type ResourceHandle struct {
	RunID       string `json:"run_id"`
	WorkerIndex int    `json:"worker_index"`
	Name        string `json:"name"`
	// Primary handles point at the canonical resource and are never duplicated or dropped
	Primary bool `json:"primary,omitempty"`
}

// Key identifies the handle within and across runs
func (h ResourceHandle) Key() string {
	return h.RunID + "/" + h.Name
}

// WorkerEntry records a started worker process
type WorkerEntry struct {
	Index     int       `json:"index"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// Manifest is the persisted record of in-flight workers and resources of a run
type Manifest struct {
	RunID       string           `json:"run_id"`
	WorkerCount int              `json:"worker_count"`
	HostPID     int              `json:"host_pid"`
	CreatedAt   time.Time        `json:"created_at"`
	Workers     []WorkerEntry    `json:"workers"`
	Resources   []ResourceHandle `json:"resources"`
}

// AddWorker records a started worker, replacing a previous entry for the same index
func (m *Manifest) AddWorker(entry WorkerEntry) {
	m.RemoveWorker(entry.Index)
	m.Workers = append(m.Workers, entry)
}

// RemoveWorker drops the entry of the worker with the given index
func (m *Manifest) RemoveWorker(index int) {
	kept := m.Workers[:0]
	for _, w := range m.Workers {
		if w.Index != index {
			kept = append(kept, w)
		}
	}
	m.Workers = kept
}

// AddResource records an acquired resource once
func (m *Manifest) AddResource(h ResourceHandle) {
	for _, r := range m.Resources {
		if r.Key() == h.Key() {
			return
		}
	}
	m.Resources = append(m.Resources, h)
}

// RemoveResource drops the given resource
func (m *Manifest) RemoveResource(h ResourceHandle) {
	kept := m.Resources[:0]
	for _, r := range m.Resources {
		if r.Key() != h.Key() {
			kept = append(kept, r)
		}
	}
	m.Resources = kept
}

// Outstanding returns the number of entries still needing cleanup
func (m *Manifest) Outstanding() int {
	return len(m.Workers) + len(m.Resources)
}

// Clone returns a deep copy of the manifest
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Workers = append([]WorkerEntry(nil), m.Workers...)
	c.Resources = append([]ResourceHandle(nil), m.Resources...)
	return &c
}
