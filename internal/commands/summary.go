package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).Width(16)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	summaryFrame = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// maxListed caps the failures and warnings printed; the summary file has all of them
const maxListed = 10

func renderSummary(out io.Writer, s *entity.RunSummary) {
	lines := []string{
		titleStyle.Render(fmt.Sprintf("%s run %s", stageTitle(s.Stage), shortID(s.ID))),
		row("Items", fmt.Sprintf("%d", s.Total)),
		row("Succeeded", okStyle.Render(fmt.Sprintf("%d", s.Succeeded))),
		row("Failed", failedCount(s.Failed)),
		row("Total amount", s.TotalAmount.StringFixed(2)),
		row("Duration", s.Duration().Round(time.Millisecond).String()),
	}

	for _, name := range sortedKeys(s.Categories) {
		lines = append(lines, row("  "+name, s.Categories[name]))
	}
	for _, name := range sortedKeys(s.Counters) {
		lines = append(lines, row(strings.ReplaceAll(name, "_", " "), fmt.Sprintf("%d", s.Counters[name])))
	}
	for _, a := range s.Artifacts {
		lines = append(lines, row("Output", a))
	}

	fmt.Fprintln(out, summaryFrame.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))

	if len(s.Failures) > 0 {
		fmt.Fprintln(out, failStyle.Render("Failures"))
		for i, f := range s.Failures {
			if i == maxListed {
				fmt.Fprintln(out, detailStyle.Render(fmt.Sprintf("  ... %d more", len(s.Failures)-maxListed)))
				break
			}
			fmt.Fprintf(out, "  %s %s\n", f.Item, detailStyle.Render(f.Error))
		}
	}
	if len(s.Warnings) > 0 {
		fmt.Fprintln(out, warnStyle.Render("Warnings"))
		for i, w := range s.Warnings {
			if i == maxListed {
				fmt.Fprintln(out, detailStyle.Render(fmt.Sprintf("  ... %d more", len(s.Warnings)-maxListed)))
				break
			}
			fmt.Fprintf(out, "  %s\n", w)
		}
	}
}

func renderRunList(out io.Writer, summaries []*entity.RunSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(out, detailStyle.Render("No runs recorded"))
		return
	}
	for _, s := range summaries {
		fmt.Fprintf(out, "%s  %-13s %s  %s/%s  %s\n",
			titleStyle.Render(shortID(s.ID)),
			s.Stage,
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			okStyle.Render(fmt.Sprintf("%d", s.Succeeded)),
			failedCount(s.Failed),
			detailStyle.Render(s.TotalAmount.StringFixed(2)))
	}
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func failedCount(n int) string {
	if n == 0 {
		return okStyle.Render("0")
	}
	return failStyle.Render(fmt.Sprintf("%d", n))
}

func stageTitle(stage string) string {
	if stage == "" {
		return "Pipeline"
	}
	return strings.ToUpper(stage[:1]) + stage[1:]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
