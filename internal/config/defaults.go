package config

import "time"

const (
	// DefaultProjectPath is the default project path
	DefaultProjectPath = "."
	// DefaultStateDir holds the manifest, worker logs and the last run report
	DefaultStateDir = "tmp/ptsplit"
	// DefaultReportFile is the name of the saved run report inside the state dir
	DefaultReportFile = "last-run.json"
	// DefaultManifestFile is the name of the crash-recovery manifest inside the state dir
	DefaultManifestFile = "manifest.json"
	// DefaultTimingReport is the knapsack timing report path
	DefaultTimingReport = "knapsack_rspec_report.json"
	// DefaultTestFilePattern selects the test files of the suite
	DefaultTestFilePattern = "spec/**/*_spec.rb"
	// DefaultCommand is the test-execution command a worker runs
	DefaultCommand = "bundle exec rspec"
	// DefaultParallelThreshold is the largest suite that is never parallelized
	DefaultParallelThreshold = 2
	// DefaultMinimumPerProcess is the smallest number of items a worker may receive
	DefaultMinimumPerProcess = 1
	// DefaultStrategy lets the run pick weighted zig-zag when timings exist
	DefaultStrategy = "auto"
	// DefaultStagger is the per-worker start offset
	DefaultStagger = 0 * time.Second
	// DefaultParallelIDEnv carries the worker identifier to non-primary workers
	DefaultParallelIDEnv = "TC_PARALLEL_ID"
)

// DefaultPathsToIgnore are the default directories to ignore when scanning for tests
var DefaultPathsToIgnore = []string{
	"vendor",
	"node_modules",
	"tmp",
	"log",
	"public",
	"coverage",
}
