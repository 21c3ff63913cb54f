// Package ui renders shell output: result lines, the framed todo panel and
// the progress bar. Styling comes from the active Theme.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Makepad-fr/tada/internal/model"
)

const maxTitleWidth = 80

// OK prints a success line.
func OK(w io.Writer, msg string) {
	fmt.Fprintln(w, current.Success.Render(current.SymDone+" "+msg))
}

// Fail prints an error line.
func Fail(w io.Writer, msg string) {
	fmt.Fprintln(w, current.Error.Render("✖ "+msg))
}

// Hint prints a muted follow-up line.
func Hint(w io.Writer, msg string) {
	fmt.Fprintln(w, current.Muted.Render(msg))
}

// Panel frames lines with the theme border.
func Panel(lines []string) string {
	return lipgloss.NewStyle().
		Border(current.Border).
		BorderForeground(current.BorderColor).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}

// ProgressBar renders a bar with percentage.
func ProgressBar(done, total, width int) string {
	if total <= 0 {
		total = 1
	}
	if width < 5 {
		width = 5
	}
	filled := done * width / total
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s %3d%%", bar, done*100/total)
}

// Header is the one-line summary shown above a list.
func Header(done, pending, total int) string {
	return fmt.Sprintf("%s  %s %d  %s %d  %s %d",
		current.Title.Render("Todos"),
		current.Success.Render(current.SymDone), done,
		current.Pending.Render(current.SymPending), pending,
		current.Accent.Render("Total"), total,
	)
}

// TodoLine renders one todo with its 1-based index.
func TodoLine(index int, t model.Todo) string {
	box, style := current.Muted.Render(current.BoxUnchecked), lipgloss.NewStyle()
	if t.Completed {
		box, style = current.Success.Render(current.BoxChecked), current.Done
	}
	line := fmt.Sprintf("%s %s %s", current.Muted.Render(fmt.Sprintf("%2d.", index)), box, style.Render(Truncate(t.Title, maxTitleWidth)))
	if extra := Details(t); extra != "" {
		line += " " + current.Muted.Render(extra)
	}
	return line
}

// Details describes the optional photo and location of t.
func Details(t model.Todo) string {
	var parts []string
	if t.PhotoURI != "" {
		parts = append(parts, "photo")
	}
	if t.Location != nil {
		parts = append(parts, fmt.Sprintf("@%.4f,%.4f", t.Location.Latitude, t.Location.Longitude))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Truncate shortens s to max runes with a trailing ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// Lines renders todos flat, or split into Pending and Done sections. Indexes
// always refer to the position in todos.
func Lines(todos []model.Todo, group bool) []string {
	if len(todos) == 0 {
		return []string{current.Muted.Render("no todos")}
	}
	if !group {
		out := make([]string, 0, len(todos))
		for i, t := range todos {
			out = append(out, TodoLine(i+1, t))
		}
		return out
	}

	var pend, done []string
	for i, t := range todos {
		if t.Completed {
			done = append(done, TodoLine(i+1, t))
		} else {
			pend = append(pend, TodoLine(i+1, t))
		}
	}
	section := func(title string, lines []string) []string {
		out := []string{current.Accent.Render(title)}
		if len(lines) == 0 {
			return append(out, current.Muted.Render("(none)"))
		}
		return append(out, lines...)
	}
	out := section("Pending", pend)
	out = append(out, "")
	return append(out, section("Done", done)...)
}
