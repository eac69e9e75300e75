package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"ptsplit/internal/domain"
)

// ProgressBar tracks finished workers of a run
type ProgressBar struct {
	bar      *progressbar.ProgressBar
	finished int
	passed   int
	failed   int
}

// NewProgressBar creates a progress bar over count workers writing to stderr
func NewProgressBar(count int) *ProgressBar {
	return NewProgressBarTo(os.Stderr, count)
}

// NewProgressBarTo creates a progress bar writing to w
func NewProgressBarTo(w io.Writer, count int) *ProgressBar {
	bar := progressbar.NewOptions(count,
		progressbar.OptionSetDescription(describe(0, 0)),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        color.CyanString("█"),
			SaucerHead:    color.CyanString("█"),
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(w),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)

	return &ProgressBar{bar: bar}
}

func describe(passed, failed int) string {
	return color.CyanString("Running workers: ") +
		color.GreenString("[passed: %d", passed) +
		" | " +
		color.RedString("failed: %d]", failed)
}

// Observe advances the bar by one finished worker
func (p *ProgressBar) Observe(result domain.WorkerResult) {
	p.finished++
	if result.State == domain.StateCompleted && len(result.Failures) == 0 {
		p.passed++
	} else {
		p.failed++
	}
	_ = p.bar.Set(p.finished)
	p.bar.Describe(describe(p.passed, p.failed))
}

// Finished returns how many workers were observed
func (p *ProgressBar) Finished() int {
	return p.finished
}

// Finish completes the progress bar
func (p *ProgressBar) Finish() {
	_ = p.bar.Finish()
}
