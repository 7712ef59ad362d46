// Package display provides terminal formatting for mbox-search output.
package display

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dhcgn/mbox-search/model"
	"github.com/dhcgn/mbox-search/query"
)

var (
	Muted      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim        = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold       = lipgloss.NewStyle().Bold(true)
	Success    = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	ErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
	MatchStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706")).Bold(true)
	LabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2563eb"))
)

// SuccessMsg prints a green checkmark + message.
func SuccessMsg(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(Success.Render("✓") + " " + msg)
}

// ErrorMsg prints a red X + message to stderr.
func ErrorMsg(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, ErrStyle.Render("✗")+" "+msg)
}

// Header prints a section header.
func Header(title string) {
	fmt.Println(Bold.Render(title))
}

// Truncate shortens a string to maxLen, adding ellipsis if needed.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// Result prints one search hit with its rank position.
func Result(pos int, rec model.ResultRecord) {
	subject := rec.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	date := ""
	if rec.Date != nil {
		date = rec.Date.Format("2006-01-02")
	}
	fmt.Printf("%s %s  %s\n",
		Muted.Render(fmt.Sprintf("%3d.", pos)),
		Bold.Render(Truncate(subject, 70)),
		Dim.Render(date))
	fmt.Printf("     %s %s\n", Truncate(rec.Sender, 50), Muted.Render("["+rec.DocKey+"]"))
	if labels := rec.Labels(); len(labels) > 0 {
		fmt.Printf("     %s\n", LabelStyle.Render(strings.Join(labels, ", ")))
	}
}

// Fragments prints highlight fragments indented under a result, with the
// match marks rendered in color.
func Fragments(fragments []string) {
	for _, frag := range fragments {
		fmt.Printf("     %s\n", renderMarks(frag))
	}
}

// renderMarks converts the highlight marks into styled text.
func renderMarks(s string) string {
	var b strings.Builder
	for {
		open := strings.Index(s, query.Mark)
		if open < 0 {
			b.WriteString(Dim.Render(s))
			break
		}
		closing := strings.Index(s[open+len(query.Mark):], query.Mark)
		if closing < 0 {
			b.WriteString(Dim.Render(s))
			break
		}
		b.WriteString(Dim.Render(s[:open]))
		b.WriteString(MatchStyle.Render(s[open+len(query.Mark) : open+len(query.Mark)+closing]))
		s = s[open+len(query.Mark)+closing+len(query.Mark):]
	}
	return b.String()
}

// LabelCounts prints label counts in their sorted order.
func LabelCounts(sorted []string, counts map[string]int) {
	for _, label := range sorted {
		fmt.Printf("  %s %s\n", LabelStyle.Render(fmt.Sprintf("%-30s", label)), Dim.Render(fmt.Sprintf("%d", counts[label])))
	}
}
