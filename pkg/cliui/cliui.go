// Package cliui provides reusable terminal UI helpers (spinners, step indicators,
// column layout, markdown rendering) for particle CLI commands.
package cliui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/ansi"

	"github.com/saamerm/particle/pkg/particle"
)

var (
	SuccessMark  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	StepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	HeaderStyle  = lipgloss.NewStyle().Bold(true)
	EventStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	DeviceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Step prints an animated spinner while fn runs, then replaces it with
// a ✓ or ✗ checkmark and elapsed time.
func Step(w io.Writer, msg string, fn func() error) error {
	done := make(chan struct{})
	var wg sync.WaitGroup

	// Run spinner animation in background
	wg.Add(1)
	go func() {
		defer wg.Done()
		frame := 0
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			fmt.Fprintf(w, "\r  %s %s",
				spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]),
				msg,
			)

			select {
			case <-done:
				return
			case <-ticker.C:
				frame++
			}
		}
	}()

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	close(done)
	wg.Wait()

	// Clear the spinner line and print final result
	fmt.Fprintf(w, "\r  %s %s %s\n",
		Mark(err),
		msg,
		StepStyle.Render(fmt.Sprintf("(%s)", FormatDuration(elapsed))),
	)

	return err
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// FormatEvent renders one received event on a single line.
func FormatEvent(ev *particle.Event) string {
	return fmt.Sprintf("%s %s %s %s",
		StepStyle.Render(ev.PublishedAt.Local().Format(time.TimeOnly)),
		EventStyle.Render(ev.Name),
		DeviceStyle.Render(ev.DeviceID),
		ev.Data,
	)
}

// Columns writes rows as left-aligned columns under a bold header. Cells wider
// than maxCell are truncated with an ellipsis; zero disables truncation.
func Columns(w io.Writer, headers []string, rows [][]string, maxCell int) {
	widths := make([]int, len(headers))
	fit := func(cell string) string {
		if maxCell > 0 && lipgloss.Width(cell) > maxCell {
			return ansi.Truncate(cell, maxCell, "…")
		}
		return cell
	}

	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := range min(len(row), len(widths)) {
			widths[i] = max(widths[i], lipgloss.Width(fit(row[i])))
		}
	}

	line := func(cells []string, style func(string) string) {
		parts := make([]string, 0, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = fit(cells[i])
			}
			pad := strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			parts = append(parts, style(cell)+pad)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	line(headers, func(s string) string { return HeaderStyle.Render(s) })
	for _, row := range rows {
		line(row, func(s string) string { return s })
	}
}

// RenderMarkdown renders markdown content for terminal display using glamour.
func RenderMarkdown(content string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}

	return rendered, nil
}
