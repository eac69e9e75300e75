package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Project settings
	ProjectPath     string
	TestFilePattern string
	TimingReport    string

	// State settings
	StateDir     string
	ReportFile   string
	ManifestFile string

	// Execution settings
	Processors        int
	ParallelThreshold int
	MinimumPerProcess int
	Strategy          string
	Command           string
	RunnerArgs        []string
	Stagger           time.Duration
	ParallelIDEnv     string

	// CI node selection
	NodeTotal int
	NodeIndex int

	// Paths to ignore when scanning
	PathsToIgnore []string

	Database DatabaseConfig

	// Command flags
	Flags Flags
}

// DatabaseConfig describes the canonical test database workers duplicate
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// Enabled reports whether a canonical database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.Name != ""
}

// DSN returns the server-level MySQL DSN (no database selected)
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/?multiStatements=false&parseTime=true", d.User, d.Password, d.Host, d.Port)
}

// Flags holds command-line flags
type Flags struct {
	Processors   int
	NoParallel   bool
	Strategy     string
	Command      string
	Stagger      time.Duration
	StateDir     string
	TimingReport string
	Pattern      string
	NameFilter   string
	Verbose      bool
	LogFormat    string
	NoTUI        bool
	OpenFailures bool
	Force        bool
}

// New creates a new Config with defaults
func New() *Config {
	cfg := &Config{
		ProjectPath:       DefaultProjectPath,
		TestFilePattern:   DefaultTestFilePattern,
		TimingReport:      DefaultTimingReport,
		StateDir:          DefaultStateDir,
		ReportFile:        DefaultReportFile,
		ManifestFile:      DefaultManifestFile,
		Processors:        runtime.NumCPU(),
		ParallelThreshold: DefaultParallelThreshold,
		MinimumPerProcess: DefaultMinimumPerProcess,
		Strategy:          DefaultStrategy,
		Command:           DefaultCommand,
		Stagger:           DefaultStagger,
		ParallelIDEnv:     DefaultParallelIDEnv,
		NodeTotal:         1,
		NodeIndex:         0,
	}
	// Copy default paths to ignore
	cfg.PathsToIgnore = make([]string, len(DefaultPathsToIgnore))
	copy(cfg.PathsToIgnore, DefaultPathsToIgnore)
	return cfg
}

// Load creates a config, reads the environment and applies flags
func Load(flags Flags) *Config {
	cfg := New()
	cfg.LoadEnv()
	cfg.Apply(flags)
	return cfg
}

// LoadEnv reads the project's .env file and the CI and database variables
func (c *Config) LoadEnv() {
	// .env file might not exist, that's okay - use environment variables
	_ = godotenv.Load(filepath.Join(c.ProjectPath, ".env"))

	c.Database = DatabaseConfig{
		Host:     envOr("DB_HOST", "127.0.0.1"),
		Port:     envOr("DB_PORT", "3306"),
		User:     envOr("DB_USERNAME", "root"),
		Password: os.Getenv("DB_PASSWORD"),
		Name:     os.Getenv("DB_DATABASE"),
	}

	if total, err := strconv.Atoi(os.Getenv("CI_NODE_TOTAL")); err == nil && total > 0 {
		c.NodeTotal = total
	}
	if index, err := strconv.Atoi(os.Getenv("CI_NODE_INDEX")); err == nil && index >= 0 {
		c.NodeIndex = index
	}
	if c.NodeIndex >= c.NodeTotal {
		c.NodeIndex = c.NodeTotal - 1
	}
	if p := os.Getenv("KNAPSACK_REPORT_PATH"); p != "" {
		c.TimingReport = p
	}
	if p := os.Getenv("KNAPSACK_TEST_FILE_PATTERN"); p != "" {
		c.TestFilePattern = p
	}
}

// Apply copies flag overrides onto the config
func (c *Config) Apply(flags Flags) {
	c.Flags = flags
	if flags.Processors > 0 {
		c.Processors = flags.Processors
	}
	if flags.NoParallel {
		c.Processors = 1
	}
	if flags.Strategy != "" {
		c.Strategy = flags.Strategy
	}
	if flags.Command != "" {
		c.Command = flags.Command
	}
	if flags.Stagger > 0 {
		c.Stagger = flags.Stagger
	}
	if flags.StateDir != "" {
		c.StateDir = flags.StateDir
	}
	if flags.TimingReport != "" {
		c.TimingReport = flags.TimingReport
	}
	if flags.Pattern != "" {
		c.TestFilePattern = flags.Pattern
	}
}

// CommandLine returns the worker command split into program and arguments,
// followed by the pass-through runner arguments
func (c *Config) CommandLine() []string {
	parts := strings.Fields(c.Command)
	return append(parts, c.RunnerArgs...)
}

// GetStateDir returns the absolute state directory
func (c *Config) GetStateDir() string {
	p := c.StateDir
	if !filepath.IsAbs(p) {
		p = filepath.Join(c.ProjectPath, p)
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// GetReportPath returns the full path of the saved run report.
// Resolves to an absolute path so run and failures always read/write the same file regardless of cwd.
func (c *Config) GetReportPath() string {
	return filepath.Join(c.GetStateDir(), c.ReportFile)
}

// GetManifestPath returns the full path of the crash-recovery manifest
func (c *Config) GetManifestPath() string {
	return filepath.Join(c.GetStateDir(), c.ManifestFile)
}

// GetTimingReportPath returns the timing report path relative to the project
func (c *Config) GetTimingReportPath() string {
	if filepath.IsAbs(c.TimingReport) {
		return c.TimingReport
	}
	return filepath.Join(c.ProjectPath, c.TimingReport)
}

// GetRunDir returns the directory holding one run's worker logs
func (c *Config) GetRunDir(runID string) string {
	return filepath.Join(c.GetStateDir(), runID)
}

// GetWorkerLogPath returns the log destination of a worker
func (c *Config) GetWorkerLogPath(runID string, workerIndex int) string {
	return filepath.Join(c.GetRunDir(runID), fmt.Sprintf("worker_%d.log", workerIndex))
}

// GetWorkerFailuresPath returns the failure list destination of a worker
func (c *Config) GetWorkerFailuresPath(runID string, workerIndex int) string {
	return filepath.Join(c.GetRunDir(runID), fmt.Sprintf("worker_%d.failures", workerIndex))
}

// GetCombinedLogPath returns where the merged worker logs of a run are written
func (c *Config) GetCombinedLogPath(runID string) string {
	return filepath.Join(c.GetStateDir(), runID+".log")
}

// GetCombinedFailuresPath returns where failure locations of the last run are written
func (c *Config) GetCombinedFailuresPath() string {
	return filepath.Join(c.GetStateDir(), "failures.txt")
}

// GetDatabaseName returns the database name for a worker.
// The first worker uses the canonical database, others get a run-scoped copy.
func (c *Config) GetDatabaseName(runID string, workerIndex int) string {
	if workerIndex == 0 {
		return c.Database.Name
	}
	return fmt.Sprintf("%s_%s_%d", c.Database.Name, runID, workerIndex)
}

// ParallelID returns the identifier exported to a non-primary worker
func (c *Config) ParallelID(runID string, workerIndex int) string {
	return fmt.Sprintf("_%s_%d", runID, workerIndex)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
