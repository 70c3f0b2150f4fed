package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/auralis/tiercache/internal/buffer"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	keyword   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Render
	paragraph = lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2).Render

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EE6FF8"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"})
	hitStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	missStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5A56E0")).
			Padding(0, 1)
)

// plain disables styling, e.g. when NO_COLOR is set.
func plain() bool {
	return runtimeEnv.NoColor
}

func render(s lipgloss.Style, text string) string {
	if plain() {
		return text
	}
	return s.Render(text)
}

// mb formats a size given in MB.
func mb(sizeMB float64) string {
	return humanize.IBytes(uint64(sizeMB * 1024 * 1024))
}

// percent formats a 0..1 ratio with one decimal, dropping a trailing ".0".
func percent(ratio float64) string {
	return strings.TrimSuffix(humanize.FormatFloat("#,###.#", ratio*100), ".0") + "%"
}

// renderStats formats manager statistics as a table.
func renderStats(s buffer.Stats, maxWidth int) string {
	var b strings.Builder

	row := func(cols ...string) {
		fmt.Fprintf(&b, "%-5s %10s %10s %8s %7s %8s %8s %8s %9s\n", toAny(cols)...)
	}

	b.WriteString(render(headerStyle, "Chunk cache") + "\n")
	row("tier", "used", "budget", "entries", "util", "hits", "misses", "hit rate", "evictions")
	for _, t := range s.Tiers() {
		row(t.Name, mb(t.SizeMB), mb(t.MaxSizeMB),
			humanize.Comma(int64(t.Entries)), percent(t.Utilization),
			humanize.Comma(t.Hits), humanize.Comma(t.Misses), percent(t.HitRate),
			humanize.Comma(t.Evictions))
	}
	row("all", mb(s.TotalSizeMB), mb(s.TotalMaxSizeMB),
		humanize.Comma(int64(s.TotalEntries)), percent(s.TotalSizeMB/s.TotalMaxSizeMB),
		humanize.Comma(s.TotalHits), humanize.Comma(s.TotalMisses), percent(s.HitRate), "")

	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", render(labelStyle, "prediction accuracy:"), percent(s.PredictionAccuracy))
	fmt.Fprintf(&b, "%s %d\n", render(labelStyle, "preset switches:    "), s.SessionSwitches)
	fmt.Fprintf(&b, "%s %s\n", render(labelStyle, "session:            "), s.SessionDuration.Round(time.Second))

	out := strings.TrimRight(b.String(), "\n")
	if plain() {
		return out
	}
	return boxStyle.MaxWidth(maxWidth).Render(out)
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
