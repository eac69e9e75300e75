package domain

// WeightSource tells where a weighted item's weight came from
type WeightSource string

const (
	// SourceTimed means the weight is a recorded duration in seconds
	SourceTimed WeightSource = "timed"
	// SourceFallback means the weight is a size proxy in bytes
	SourceFallback WeightSource = "fallback"
)

// WorkItem represents a test file to be executed
type WorkItem struct {
	ID       string   // Path of the test file, unique within a run
	Duration *float64 // Recorded duration in seconds, if the report has one
	Size     *int64   // File size in bytes, if it could be read
}

// WeightedItem is a WorkItem with exactly one resolved weight
type WeightedItem struct {
	Item   WorkItem
	Weight float64
	Source WeightSource
}

// ID returns the identifier of the underlying item
func (w WeightedItem) ID() string {
	return w.Item.ID
}

// Slice is the ordered list of item identifiers assigned to one worker
type Slice []string

// IDs returns the identifiers of the given weighted items in order
func IDs(items []WeightedItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID()
	}
	return ids
}
