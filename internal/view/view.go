// Package view renders read-only snapshots of the sync layer's state for
// the terminal. It holds no state of its own; every frame is a pure
// function of the views passed in.
package view

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"mmconsole/internal/domain"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	alarm     = lipgloss.AdaptiveColor{Light: "#D94F70", Dark: "#F25D94"}

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(0, 1).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true)

	dimStyle  = lipgloss.NewStyle().Foreground(subtle)
	warnStyle = lipgloss.NewStyle().Foreground(alarm)
)

// Frame is everything one render pass needs.
type Frame struct {
	Conn      domain.ConnState
	Status    *domain.RunStatus
	Pending   domain.PendingAction
	LastError string
	Snapshots map[string]domain.SymbolSnapshot
	Symbols   []string
	Now       time.Time
}

// Render produces one terminal frame.
func Render(f Frame) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("MM CONSOLE"))
	b.WriteString("  " + dimStyle.Render("stream: "+connLabel(f.Conn)))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("RUN"))
	b.WriteString("\n")
	b.WriteString(runPanel(f))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("SYMBOLS"))
	b.WriteString("\n")
	b.WriteString(snapshotTable(f))

	if tail := logTail(f.Status); tail != "" {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("LOG"))
		b.WriteString("\n")
		b.WriteString(tail)
	}

	if f.LastError != "" {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render("last error: " + f.LastError))
		b.WriteString("\n")
	}

	return b.String()
}

func connLabel(st domain.ConnState) string {
	if st.Phase == domain.ConnClosed {
		return fmt.Sprintf("closed (code %d, attempt %d)", st.CloseCode, st.Attempt)
	}
	return st.Phase.String()
}

func runPanel(f Frame) string {
	st := f.Status
	if st == nil {
		return dimStyle.Render("waiting for first status") + "\n"
	}

	var b strings.Builder
	if st.Running {
		b.WriteString(fmt.Sprintf("running  run=%s  symbols=%s\n",
			st.RunID, strings.Join(st.Symbols, ",")))
	} else {
		b.WriteString("stopped\n")
		if st.Config != nil {
			b.WriteString(fmt.Sprintf("balance=%s  leverage=%s  order_size=%s\n",
				st.Config.Balance, st.Config.Leverage, st.Config.OrderSize))
		}
	}
	if f.Pending != "" {
		b.WriteString(dimStyle.Render(string(f.Pending)+" requested, awaiting confirmation") + "\n")
	}
	return b.String()
}

func snapshotTable(f Frame) string {
	symbols := append([]string(nil), f.Symbols...)
	sort.Strings(symbols)

	var b strings.Builder
	for _, sym := range symbols {
		snap, ok := f.Snapshots[sym]
		if !ok {
			b.WriteString(fmt.Sprintf("  %-12s %s\n", sym, dimStyle.Render("waiting")))
			continue
		}
		line := fmt.Sprintf("  %-12s %-10s %s ago", sym, snap.Freshness, snap.Age(f.Now).Truncate(time.Millisecond))
		if snap.Freshness != domain.FreshnessLive {
			line = warnStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	if len(symbols) == 0 {
		b.WriteString(dimStyle.Render("  no symbols selected") + "\n")
	}
	return b.String()
}

func logTail(st *domain.RunStatus) string {
	if st == nil || len(st.Logs) == 0 {
		return ""
	}

	logs := st.Logs
	if len(logs) > 5 {
		logs = logs[len(logs)-5:]
	}

	var b strings.Builder
	for _, entry := range logs {
		line := fmt.Sprintf("  %s [%s] %s", entry.Time.Format("15:04:05"), entry.Severity, entry.Message)
		if entry.Symbol != "" {
			line += " (" + entry.Symbol + ")"
		}
		if entry.Severity == domain.LogError {
			line = warnStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}
