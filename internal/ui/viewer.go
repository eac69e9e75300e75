package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"ptsplit/internal/domain"
	"ptsplit/internal/storage"
)

// Viewer displays the failures of a run report
type Viewer interface {
	View(report *domain.RunReport) error
}

// FailureViewer browses failures in an interactive TUI. Toggling a failure as
// resolved is saved back to storage.
type FailureViewer struct {
	storage storage.Storage
}

// NewFailureViewer creates a new FailureViewer
func NewFailureViewer(st storage.Storage) *FailureViewer {
	return &FailureViewer{storage: st}
}

// View displays report failures in an interactive TUI
func (fv *FailureViewer) View(report *domain.RunReport) error {
	if len(report.Details) == 0 {
		color.Green("✓ No test failures found!")
		return nil
	}

	app := tview.NewApplication()

	list := tview.NewList().
		ShowSecondaryText(false).
		SetHighlightFullLine(true)

	updateListItem := func(index int) {
		if index < 0 || index >= list.GetItemCount() {
			return
		}
		list.SetItemText(index, listItemText(report.Details[index], index), "")
	}

	for i, failure := range report.Details {
		list.AddItem(listItemText(failure, i), "", 0, nil)
	}

	list.SetMainTextColor(tview.Styles.PrimaryTextColor).
		SetSelectedTextColor(tcell.ColorWhite).
		SetSelectedBackgroundColor(tcell.ColorDarkCyan).
		SetSecondaryTextColor(tview.Styles.SecondaryTextColor)

	statsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetWordWrap(false)

	detailsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetWordWrap(true)

	detailsContainer := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(detailsView, 0, 1, false).
		AddItem(tview.NewBox(), 2, 0, false)

	rightSide := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(statsView, 3, 0, false).
		AddItem(detailsContainer, 0, 1, false)

	flex := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(list, 0, 1, true).
		AddItem(rightSide, 0, 2, false)

	headerView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true)

	footerView := tview.NewTextView().
		SetDynamicColors(true)

	updateHeader := func() {
		headerView.SetText(fmt.Sprintf(
			" Run %s: %d failures, %d unresolved | ↑↓ navigate, [yellow]R[white] mark resolved, → details, ← back, Ctrl+C exit ",
			report.Meta.RunID, len(report.Details), countUnresolved(report.Details),
		))
	}
	updateHeader()

	updateDetails := func() {
		index := list.GetCurrentItem()
		if index >= 0 && index < len(report.Details) {
			failure := report.Details[index]
			statsView.SetText(formatFailureStats(failure, index+1))
			detailsView.SetText(formatFailureDetails(failure, report.Workers))
		}
	}

	list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEnter, tcell.KeyRight:
			app.SetFocus(detailsView)
			return nil
		case tcell.KeyCtrlC:
			app.Stop()
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'r' || event.Rune() == 'R' {
				index := list.GetCurrentItem()
				if index >= 0 && index < len(report.Details) {
					report.Details[index].Resolved = !report.Details[index].Resolved
					updateListItem(index)
					updateHeader()
					updateDetails()
					if err := fv.storage.Save(report); err != nil {
						footerView.SetText(fmt.Sprintf("[red]failed to save: %v[white]", err))
					} else {
						footerView.SetText("")
					}
				}
				return nil
			}
		}
		return event
	})

	detailsView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyLeft, tcell.KeyEsc:
			app.SetFocus(list)
			return nil
		case tcell.KeyCtrlC:
			app.Stop()
			return nil
		}
		return event
	})

	list.SetChangedFunc(func(int, string, string, rune) {
		updateDetails()
	})
	updateDetails()

	mainLayout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(headerView, 1, 0, false).
		AddItem(tview.NewBox(), 1, 0, false).
		AddItem(flex, 0, 1, true).
		AddItem(footerView, 1, 0, false)

	if err := app.SetRoot(mainLayout, true).SetFocus(list).Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func countUnresolved(details []domain.FailureRecord) int {
	count := 0
	for _, d := range details {
		if !d.Resolved {
			count++
		}
	}
	return count
}

func failureTitle(failure domain.FailureRecord, index int) string {
	switch {
	case failure.Description != "":
		return failure.Description
	case failure.WorkerLevel():
		return fmt.Sprintf("worker %d", failure.WorkerIndex)
	case failure.ItemID != "":
		return failure.ItemID
	}
	return fmt.Sprintf("Failure %d", index+1)
}

func listItemText(failure domain.FailureRecord, index int) string {
	title := tview.Escape(failureTitle(failure, index))
	if failure.Resolved {
		return fmt.Sprintf("[gray]✓ [yellow]%d.[gray] %s[white]", index+1, title)
	}
	if failure.Crash {
		return fmt.Sprintf("[yellow]%d.[red] %s[white]", index+1, title)
	}
	return fmt.Sprintf("[yellow]%d.[white] %s", index+1, title)
}

// formatFailureStats formats the header line of a failure using tview color tags
func formatFailureStats(failure domain.FailureRecord, number int) string {
	path := failure.ItemID
	if path == "" {
		path = "(whole worker)"
	}
	return fmt.Sprintf("[cyan]path:[white] [yellow]%s[white] [cyan]worker:[white] %d [cyan]#[white]%d\n",
		tview.Escape(path), failure.WorkerIndex, number)
}

// formatFailureDetails formats a failure for the details pane
func formatFailureDetails(failure domain.FailureRecord, workers []domain.WorkerResult) string {
	var b strings.Builder

	if failure.Crash {
		fmt.Fprintf(&b, "[red]✗ Worker %d crashed[white]\n\n", failure.WorkerIndex)
	} else {
		fmt.Fprintf(&b, "[red]✗ %s[white]\n\n", tview.Escape(failureTitle(failure, 0)))
	}
	if failure.ItemID != "" {
		fmt.Fprintf(&b, "[cyan]File: %s[white]\n", tview.Escape(failure.ItemID))
	}
	if failure.Location != "" {
		fmt.Fprintf(&b, "[yellow]Location: %s[white]\n", tview.Escape(failure.Location))
	}
	fmt.Fprintf(&b, "[yellow]Exit code:[white] %d\n\n", failure.ExitCode)
	if failure.Detail != "" {
		fmt.Fprintf(&b, "[yellow]Detail:[white]\n%s\n\n", tview.Escape(failure.Detail))
	}

	for _, w := range workers {
		if w.Index != failure.WorkerIndex {
			continue
		}
		fmt.Fprintf(&b, "[yellow]Worker %d slice (%s):[white]\n", w.Index, w.State)
		for _, item := range w.Items {
			fmt.Fprintf(&b, "  %s\n", tview.Escape(item))
		}
	}
	return b.String()
}
