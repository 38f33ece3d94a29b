package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of a test order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// IsValid reports whether the side is one of the known values.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// LogSeverity classifies a run log entry.
type LogSeverity string

const (
	LogInfo  LogSeverity = "info"
	LogWarn  LogSeverity = "warn"
	LogError LogSeverity = "error"
)

// RunLogEntry is one line of the bounded log tail carried by RunStatus.
type RunLogEntry struct {
	Seq      uint64      `json:"seq"`
	Time     time.Time   `json:"time"`
	Symbol   string      `json:"symbol,omitempty"`
	Severity LogSeverity `json:"severity"`
	Message  string      `json:"message"`
}

// RunConfig holds the numeric parameters of a run. The server reports it
// only while the run is stopped; while running these values are frozen.
type RunConfig struct {
	Balance   decimal.Decimal `json:"balance"`
	Leverage  decimal.Decimal `json:"leverage"`
	OrderSize decimal.Decimal `json:"order_size"`
}

// RunStatus is the server-owned description of the simulation. The console
// only ever caches it; every mutation happens on the server and arrives
// back through a poll or a command response.
type RunStatus struct {
	Running bool          `json:"running"`
	RunID   string        `json:"run_id,omitempty"`
	Symbols []string      `json:"symbols"`
	Config  *RunConfig    `json:"config,omitempty"`
	Logs    []RunLogEntry `json:"logs,omitempty"`
}

// Clone returns a deep copy safe to hand to consumers as a read-only view.
func (s *RunStatus) Clone() *RunStatus {
	if s == nil {
		return nil
	}
	out := &RunStatus{
		Running: s.Running,
		RunID:   s.RunID,
	}
	if len(s.Symbols) > 0 {
		out.Symbols = append([]string(nil), s.Symbols...)
	}
	if s.Config != nil {
		cfg := *s.Config
		out.Config = &cfg
	}
	if len(s.Logs) > 0 {
		out.Logs = append([]RunLogEntry(nil), s.Logs...)
	}
	return out
}

// PendingAction marks a control command issued but not yet confirmed by an
// authoritative status. It lives only between issue and the next status
// arrival and must never be rendered as confirmed truth.
type PendingAction string

const (
	PendingStart PendingAction = "start"
	PendingStop  PendingAction = "stop"
	PendingReset PendingAction = "reset"
)
