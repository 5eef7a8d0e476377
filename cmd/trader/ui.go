package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/zono819/signal-trader/internal/app"
	"github.com/zono819/signal-trader/internal/domain/entity"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1).
			MarginBottom(1)

	tableStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	gainStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	lossStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)
)

func pnlText(v decimal.Decimal) string {
	s := v.StringFixed(2)
	switch v.Sign() {
	case 1:
		return gainStyle.Render("+" + s)
	case -1:
		return lossStyle.Render(s)
	}
	return s
}

func nullText(v decimal.NullDecimal, pnl bool) string {
	if !v.Valid {
		return mutedStyle.Render("n/a")
	}
	if pnl {
		return pnlText(v.Decimal)
	}
	return v.Decimal.StringFixed(2)
}

func renderPositions(rep app.PositionsReport) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Open positions"))
	b.WriteString("\n")

	if len(rep.Positions) == 0 {
		b.WriteString(mutedStyle.Render("no open positions"))
	} else {
		var rows strings.Builder
		rows.WriteString(headerStyle.Render(fmt.Sprintf("%-10s %-5s %10s %8s %10s %12s  %s",
			"SYMBOL", "SIDE", "ENTRY", "QTY", "MARK", "UNREALIZED", "OPENED")))
		for _, p := range rep.Positions {
			rows.WriteString("\n")
			rows.WriteString(fmt.Sprintf("%-10s %-5s %10s %8d %10s %12s  %s",
				p.Symbol, p.Side, p.EntryPrice.StringFixed(2), p.Quantity,
				nullText(p.MarkPrice, false), nullText(p.UnrealizedPnL, true),
				p.OpenedAt.Local().Format("2006-01-02 15:04")))
		}
		b.WriteString(tableStyle.Render(rows.String()))
	}

	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Realized PnL:   %s\n", pnlText(rep.RealizedPnL)))
	b.WriteString(fmt.Sprintf("Unrealized PnL: %s", pnlText(rep.UnrealizedPnL)))
	if !rep.SavedAt.IsZero() {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("snapshot saved " + rep.SavedAt.Local().Format(time.RFC3339)))
	}
	return b.String()
}

func renderTrades(day time.Time, entries []entity.TradeLogEntry) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Trades " + day.Format("2006-01-02")))
	b.WriteString("\n")
	if len(entries) == 0 {
		b.WriteString(mutedStyle.Render("no trades logged"))
		return b.String()
	}

	var rows strings.Builder
	rows.WriteString(headerStyle.Render(fmt.Sprintf("%-8s %-10s %-4s %10s %8s %10s %12s %10s",
		"TIME", "SYMBOL", "ACT", "PRICE", "QTY", "STOP", "PNL", "CONF")))
	for _, e := range entries {
		rows.WriteString("\n")
		rows.WriteString(fmt.Sprintf("%-8s %-10s %-4s %10s %8d %10s %12s %10.4f",
			e.Timestamp.Local().Format("15:04:05"), e.Symbol, e.Action, e.Price.StringFixed(2),
			e.Quantity, nullText(e.StopPrice, false), pnlText(e.PnL), e.Confidence))
	}
	b.WriteString(tableStyle.Render(rows.String()))
	return b.String()
}
