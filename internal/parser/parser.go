package parser

// Failure is one failing example reported by the test runner
type Failure struct {
	Location    string // e.g. ./spec/models/user_spec.rb:42
	Description string
}

// Parser extracts failures and counts from test runner output
type Parser interface {
	ParseFailures(output string) []Failure
	ParseCounts(output string) (examples, failures int, ok bool)
	// ParseFailuresFile reads the per-worker failures file, one location per line
	ParseFailuresFile(content string) []Failure
}
