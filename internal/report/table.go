package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/vadiminshakov/movements/internal/domain"
)

// DefaultTableLimit number of events RenderTable shows when limit is not positive.
const DefaultTableLimit = 100

var (
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	upColor   = lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#73F59F"}
	downColor = lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#FF6B6B"}

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(highlight).
			Padding(0, 1)

	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	noteStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("245"))
)

// RenderTable renders the summary and the first limit events of the report.
// Prices are rounded to two decimals and times shown in the report's zone.
func RenderTable(r *domain.AnalysisReport, limit int) string {
	if limit <= 0 {
		limit = DefaultTableLimit
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s %s %s", strings.ToUpper(r.Platform), r.Pair, r.Interval)))
	sb.WriteString("\n")
	sb.WriteString(labelStyle.Render(fmt.Sprintf("%s .. %s (%s), %d candles, run %s",
		r.StartDate, r.EndDate, r.Timezone, r.CandleCount, r.RunID)))
	sb.WriteString("\n\n")

	m := r.Movements
	if m == nil {
		sb.WriteString(noteStyle.Render("no candles, nothing to analyze"))
		sb.WriteString("\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("%s %s   %s %s%%\n\n",
		labelStyle.Render("opening price"), round2(m.OpeningPrice),
		labelStyle.Render("IV"), strconv.FormatFloat(m.VolatilityPercent, 'f', -1, 64)))

	tiers := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(subtle)).
		Headers("TIER", "THRESHOLD", "HITS").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, t := range domain.Tiers() {
		tiers.Row(string(t), round2(m.Thresholds.For(t)), strconv.Itoa(m.HitCounts.For(t)))
	}
	tiers.Row("TOTAL", "", strconv.Itoa(m.HitCounts.Total()))
	sb.WriteString(tiers.String())
	sb.WriteString("\n\n")

	if len(m.Events) == 0 {
		sb.WriteString(noteStyle.Render("no movements detected"))
		sb.WriteString("\n")
		return sb.String()
	}

	shown := m.Events[:min(limit, len(m.Events))]
	loc := r.Location()
	events := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(subtle)).
		Headers("#", "TIME", "TIER", "DIR", "PRICE", "PREV", "DIFF").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 3 && row >= 0 && row < len(shown) {
				if shown[row].Direction == domain.DirectionUp {
					return cellStyle.Foreground(upColor)
				}
				return cellStyle.Foreground(downColor)
			}
			return cellStyle
		})
	for _, e := range shown {
		events.Row(
			strconv.Itoa(e.Index),
			time.UnixMilli(e.Timestamp).In(loc).Format(time.DateTime),
			string(e.Tier),
			string(e.Direction),
			round2(e.ObservedPrice),
			round2(e.PreviousReference),
			round2(e.Delta),
		)
	}
	sb.WriteString(events.String())
	sb.WriteString("\n")

	if len(shown) < len(m.Events) {
		sb.WriteString(noteStyle.Render(fmt.Sprintf("showing first %d of %d events", len(shown), len(m.Events))))
		sb.WriteString("\n")
	}
	return sb.String()
}
