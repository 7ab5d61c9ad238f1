// Package ui renders CLI output: status glyphs, tables and amounts.
//
// Colors are dropped automatically when stdout is not a terminal or when
// NO_COLOR is set.
package ui

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	renderer = lipgloss.NewRenderer(os.Stdout)

	passStyle   = renderer.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1a7f37", Dark: "#3fb950"})
	warnStyle   = renderer.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9a6700", Dark: "#d29922"})
	failStyle   = renderer.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#cf222e", Dark: "#f85149"})
	accentStyle = renderer.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0969da", Dark: "#58a6ff"})
	mutedStyle  = renderer.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6e7781", Dark: "#8b949e"})
	boldStyle   = renderer.NewStyle().Bold(true)
	headerStyle = renderer.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = renderer.NewStyle().Padding(0, 1)
)

func init() {
	if _, ok := os.LookupEnv("NO_COLOR"); ok || !IsTerminal(os.Stdout) {
		DisableColor()
	}
}

// DisableColor switches every style to plain text.
func DisableColor() {
	renderer.SetColorProfile(termenv.Ascii)
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of stdout, or 80.
func Width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }
func RenderBold(s string) string   { return boldStyle.Render(s) }

// RenderStatus colors a sync status: synced green, pending yellow, anything
// else red.
func RenderStatus(status string) string {
	switch status {
	case "synced":
		return RenderPass(status)
	case "pending":
		return RenderWarn(status)
	default:
		return RenderFail(status)
	}
}

// FormatAmount groups the digits of n in thousands with dots: 1500000
// becomes "1.500.000".
func FormatAmount(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte('.')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// RenderSigned formats an amount with a sign, green for income and red for
// spending.
func RenderSigned(n int64) string {
	switch {
	case n > 0:
		return RenderPass("+" + FormatAmount(n))
	case n < 0:
		return RenderFail(FormatAmount(n))
	}
	return FormatAmount(0)
}

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

// PrintTable writes a table followed by a newline, or a muted placeholder
// when there are no rows.
func PrintTable(w io.Writer, headers []string, rows [][]string, empty string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, RenderMuted(empty))
		return
	}
	fmt.Fprintln(w, Table(headers, rows))
}
