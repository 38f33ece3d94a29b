// Package domain defines core data structures shared by the stream and
// session layers of the console.
package domain

import (
	"encoding/json"
	"time"
)

// Freshness describes how current a symbol's telemetry is, as reported by
// the server inside the metrics message itself.
type Freshness string

const (
	FreshnessLive      Freshness = "LIVE"
	FreshnessStale     Freshness = "STALE"
	FreshnessResyncing Freshness = "RESYNCING"
)

// SymbolSnapshot holds the latest telemetry received for one symbol.
// Each inbound metrics message replaces the previous snapshot wholesale;
// snapshots are never merged field by field.
type SymbolSnapshot struct {
	Symbol     string
	Freshness  Freshness
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// Age returns how long ago the snapshot was received.
func (s SymbolSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.ReceivedAt)
}
