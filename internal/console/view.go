package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nixlim/zbx-alerting/internal/display"
	"github.com/nixlim/zbx-alerting/internal/problem"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62"))

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	promptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

var severityStyles = map[problem.Severity]lipgloss.Style{
	problem.SeverityDisaster:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	problem.SeverityHigh:          lipgloss.NewStyle().Foreground(lipgloss.Color("202")),
	problem.SeverityAverage:       lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	problem.SeverityWarning:       lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
	problem.SeverityInformation:   lipgloss.NewStyle().Foreground(lipgloss.Color("117")),
	problem.SeverityNotClassified: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
}

const defaultWidth = 100

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}

	var b strings.Builder
	title := fmt.Sprintf(" Active alerts (%d) ", len(m.entries))
	b.WriteString(headerStyle.Width(width).Render(title))
	b.WriteString("\n")

	if len(m.entries) == 0 {
		b.WriteString(dimStyle.Render("  no alerts displayed"))
		b.WriteString("\n")
	}
	for i, e := range m.entries {
		b.WriteString(renderRow(e, width, i == m.cursor))
		b.WriteString("\n")
	}

	if m.composing {
		b.WriteString(promptStyle.Render(fmt.Sprintf("Acknowledge event #%s\n%s", m.composeTarget, m.input.View())))
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString(statusBarStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render(helpLine(m.keys)))
	return b.String()
}

// renderRow formats one entry as a single line no wider than width.
func renderRow(e display.Entry, width int, selected bool) string {
	p := e.Problem
	state := "UNACK"
	if p.Acknowledged {
		state = "ACK"
	}
	if e.Pending {
		state += "…"
	}

	sev := fmt.Sprintf("%-14s", p.Severity)
	prefix := fmt.Sprintf("  %s %-8s %-6s %-20s ", sev, "#"+p.EventID, state, truncate(p.DisplayHost(), 20))
	desc := truncate(p.Description, max(width-len([]rune(prefix)), 0))
	line := prefix + desc

	if selected {
		return cursorStyle.Render(">" + line[1:])
	}
	style, ok := severityStyles[p.Severity]
	if !ok {
		return line
	}
	return strings.Replace(line, sev, style.Render(sev), 1)
}

func helpLine(k KeyMap) string {
	parts := make([]string, 0, len(k.ShortHelp()))
	for _, b := range k.ShortHelp() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " · ")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return string(r[:max])
	}
	return string(r[:max-1]) + "…"
}
