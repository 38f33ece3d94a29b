package domain

import "time"

// Mode selects which backend variant the console talks to.
type Mode string

const (
	// ModeSimulation drives a simulated run; status is polled every second
	// and the symbol selection is only pushed when a run starts.
	ModeSimulation Mode = "simulation"
	// ModeLive drives a live-execution run; status is polled every two
	// seconds and selection edits are synchronized after a quiet period.
	ModeLive Mode = "live"
)

// IsValid reports whether the mode is one of the known variants.
func (m Mode) IsValid() bool {
	return m == ModeSimulation || m == ModeLive
}

// PollInterval returns the authoritative status poll interval for the mode.
func (m Mode) PollInterval() time.Duration {
	if m == ModeLive {
		return 2 * time.Second
	}
	return time.Second
}

// SyncsSelection reports whether local selection edits are pushed to the
// server continuously (debounced) instead of only at run start.
func (m Mode) SyncsSelection() bool {
	return m == ModeLive
}
