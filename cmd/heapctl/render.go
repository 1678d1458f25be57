package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	primaryColor = lipgloss.Color("#7D56F4")
	warningColor = lipgloss.Color("#FFA500")
	mutedColor   = lipgloss.Color("#666666")
	borderColor  = lipgloss.Color("#383838")
)

// styles returns the title, label and box styles, or plain ones when color
// is disabled.
func styles() (title, label, warn, box lipgloss.Style) {
	if noColor {
		plain := lipgloss.NewStyle()
		return plain.Bold(true), plain.Width(20), plain, plain.Border(lipgloss.NormalBorder()).Padding(0, 1)
	}
	title = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	label = lipgloss.NewStyle().Foreground(mutedColor).Width(20)
	warn = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1)
	return title, label, warn, box
}

func renderResult(res *workloadResult) string {
	title, label, warn, box := styles()
	st := res.Stats
	rep := res.FinalCollect

	row := func(name string, value any) string {
		return label.Render(name) + " " + fmt.Sprint(value)
	}

	summary := []string{
		title.Render("COLLECTOR"),
		"",
		row("Collections:", formatNumber(int64(st.Collections))),
		row("GC time:", st.GCTime),
		row("Live bytes:", formatBytes(st.LiveBytes)),
		row("Threshold:", formatBytes(st.Threshold)),
		row("System memory:", formatBytes(st.SystemBytes)),
		row("Regions:", st.Regions),
		row("Kept objects:", formatNumber(int64(res.Kept))),
		row("Finalizers run:", res.FinalizersRun),
	}
	if rep != nil {
		summary = append(summary,
			row("Last cycle freed:", formatNumber(int64(rep.TotalFreed()))),
			row("String bytes moved:", formatBytes(rep.StringBytesMoved)),
		)
	}

	pure := []string{
		title.Render("PURE ARENA"),
		"",
		row("Used:", fmt.Sprintf("%s of %s", formatBytes(int64(st.PureUsed)), formatBytes(int64(st.PureSize)))),
		row("Objects:", st.PureObjects),
		row("Dedup hits:", st.PureDedupHits),
	}
	if st.PureOverflow {
		pure = append(pure, warn.Render(fmt.Sprintf("overflowed by %s", formatBytes(st.PureOverflowBytes))))
	}
	if res.OutOfMemory || st.MemoryFull {
		pure = append(pure, "", warn.Render("memory exhausted during the workload"))
	}

	kinds := []string{title.Render("OBJECTS"), ""}
	kinds = append(kinds, label.Render("kind")+" "+fmt.Sprintf("%12s %12s %12s", "allocated", "live", "free"))
	for _, k := range st.Kinds {
		if k.Allocated == 0 {
			continue
		}
		kinds = append(kinds, label.Render(k.Kind)+" "+
			fmt.Sprintf("%12s %12s %12s",
				formatNumber(int64(k.Allocated)), formatNumber(k.Live), formatNumber(int64(k.Free))))
	}

	left := lipgloss.JoinVertical(lipgloss.Left,
		box.Render(strings.Join(summary, "\n")),
		box.Render(strings.Join(pure, "\n")),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, box.Render(strings.Join(kinds, "\n")))
}

func renderRegions(res regionsResult) string {
	title, label, _, box := styles()

	lines := []string{title.Render("REGIONS"), ""}
	for _, r := range res.Regions {
		lines = append(lines, fmt.Sprintf("%#016x-%#016x %10s %s", r.Start, r.End, formatBytes(int64(r.Size)), r.Type))
	}

	types := make([]string, 0, len(res.Counts))
	for t := range res.Counts {
		types = append(types, t)
	}
	sort.Strings(types)
	counts := []string{title.Render("BY TYPE"), ""}
	for _, t := range types {
		counts = append(counts, label.Render(t)+" "+formatNumber(int64(res.Counts[t])))
	}

	out := lipgloss.JoinVertical(lipgloss.Left,
		box.Render(strings.Join(counts, "\n")),
		box.Render(strings.Join(lines, "\n")),
	)
	if len(res.Lookups) > 0 {
		lookups := []string{title.Render("LOOKUPS"), ""}
		for _, l := range res.Lookups {
			where := "not found"
			if l.Found {
				where = l.Type
			}
			lookups = append(lookups, fmt.Sprintf("%#x %s", l.Addr, where))
		}
		out = lipgloss.JoinVertical(lipgloss.Left, out, box.Render(strings.Join(lookups, "\n")))
	}
	return out
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	// Add commas
	var result strings.Builder
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(c)
	}
	return result.String()
}
