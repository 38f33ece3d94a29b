// Package session manages the lifecycle of the remote run through
// idempotent commands and continuously reconciles the authoritative polled
// status against locally issued actions.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mmconsole/internal/clients"
	"mmconsole/internal/domain"
)

// selectionSyncQuiet is the edit quiet period before a changed selection is
// pushed to the server (live variant only).
const selectionSyncQuiet = 500 * time.Millisecond

// fallbackSymbols keeps the selector usable when the catalog fetch fails or
// comes back empty.
var fallbackSymbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

// ControlAPI is the request/response surface the session needs from the
// metrics server.
type ControlAPI interface {
	Catalog(ctx context.Context) ([]string, error)
	Status(ctx context.Context) (*domain.RunStatus, error)
	Start(ctx context.Context, req clients.StartRequest) (*domain.RunStatus, error)
	Stop(ctx context.Context) (*domain.RunStatus, error)
	Reset(ctx context.Context) (*domain.RunStatus, error)
	TestAction(ctx context.Context, req clients.TestActionRequest) (*domain.RunStatus, error)
	UpdateSymbols(ctx context.Context, symbols []string) (*domain.RunStatus, error)
}

// Session caches the server-owned run status and resolves the race between
// locally issued actions and truth arriving later via polling. The cached
// status is only ever replaced by an authoritative response; overlapping
// responses resolve as last received wins.
type Session struct {
	api    ControlAPI
	mode   domain.Mode
	logger *zap.Logger

	mu               sync.Mutex
	status           *domain.RunStatus
	form             *Form
	selection        []string
	selectionChanged map[string]time.Time
	catalog          []string
	pending          domain.PendingAction
	lastErr          string
	syncTimer        *time.Timer
	closed           bool
}

// New creates a control session over the given API.
func New(api ControlAPI, mode domain.Mode, logger *zap.Logger) *Session {
	return &Session{
		api:              api,
		mode:             mode,
		logger:           logger,
		form:             newForm(),
		selectionChanged: make(map[string]time.Time),
	}
}

// RunPolling fetches the authoritative status on the mode's fixed interval
// until ctx is cancelled. A failed poll keeps the last known-good status.
func (s *Session) RunPolling(ctx context.Context) error {
	s.RefreshCatalog(ctx)
	s.poll(ctx)

	ticker := time.NewTicker(s.mode.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Session) poll(ctx context.Context) {
	st, err := s.api.Status(ctx)
	if err != nil {
		// transient misses must not flicker the view to an empty state
		s.logger.Debug("status poll failed", zap.Error(err))
		return
	}
	if st == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyStatusLocked(st)
}

// applyStatusLocked installs an authoritative status and reconciles local
// state against it:
//  1. a running status with symbols overwrites the active selection, the
//     user cannot silently diverge from a running server's truth;
//  2. a stopped status with a config block resynchronizes every form field
//     the user is not currently editing;
//  3. pending action markers are cleared, truth has arrived.
func (s *Session) applyStatusLocked(st *domain.RunStatus) {
	s.status = st
	s.pending = ""

	if st.Running && len(st.Symbols) > 0 {
		s.selection = append([]string(nil), st.Symbols...)
	}
	if !st.Running && st.Config != nil {
		s.form.syncFrom(*st.Config)
	}
}

// StartRun issues the start command with the given selection and the form's
// configuration. On success the form counts as applied and every field is
// clean again. On failure the cached status and the form are untouched.
func (s *Session) StartRun(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return s.recordErr(domain.ValidationErr("selection is empty"))
	}

	s.mu.Lock()
	req := clients.StartRequest{
		Symbols: append([]string(nil), symbols...),
		Config:  s.form.config(),
	}
	s.pending = domain.PendingStart
	s.mu.Unlock()

	st, err := s.api.Start(ctx, req)
	if err != nil {
		s.clearPending()
		return s.recordErr(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st != nil {
		s.applyStatusLocked(st)
	}
	s.form.markClean()
	return nil
}

// StopRun issues the stop command. Stopping an already stopped run is fine;
// the server returns its current status either way.
func (s *Session) StopRun(ctx context.Context) error {
	return s.command(ctx, domain.PendingStop, s.api.Stop)
}

// ResetRun issues the reset command.
func (s *Session) ResetRun(ctx context.Context) error {
	return s.command(ctx, domain.PendingReset, s.api.Reset)
}

func (s *Session) command(ctx context.Context, pending domain.PendingAction,
	call func(context.Context) (*domain.RunStatus, error)) error {

	s.mu.Lock()
	s.pending = pending
	s.mu.Unlock()

	st, err := call(ctx)
	if err != nil {
		s.clearPending()
		return s.recordErr(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st != nil {
		s.applyStatusLocked(st)
	}
	return nil
}

// IssueTestAction submits a manual test order. A missing run or a symbol
// outside the active run's list fails locally before any network call;
// this is a guard against doomed requests, not an authorization decision.
func (s *Session) IssueTestAction(ctx context.Context, symbol string, side domain.Side) error {
	if !side.IsValid() {
		return s.recordErr(domain.ValidationErr("unknown side %q", side))
	}

	s.mu.Lock()
	st := s.status
	if st == nil || !st.Running {
		s.mu.Unlock()
		return s.recordErr(domain.PreconditionErr("no active run"))
	}
	if !containsSymbol(st.Symbols, symbol) {
		s.mu.Unlock()
		return s.recordErr(domain.PreconditionErr("symbol %s is not part of the active run", symbol))
	}
	s.mu.Unlock()

	resp, err := s.api.TestAction(ctx, clients.TestActionRequest{
		Symbol:   symbol,
		Side:     side,
		ClientID: uuid.NewString(),
	})
	if err != nil {
		return s.recordErr(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if resp != nil {
		s.applyStatusLocked(resp)
	}
	return nil
}

// RefreshCatalog fetches the symbol catalog, falling back to a fixed
// built-in set when the fetch fails or returns nothing. A working default
// outweighs catalog correctness on transient backend failure.
func (s *Session) RefreshCatalog(ctx context.Context) []string {
	syms, err := s.api.Catalog(ctx)
	if err != nil || len(syms) == 0 {
		if err != nil {
			s.logger.Warn("catalog fetch failed, using fallback", zap.Error(err))
		}
		syms = append([]string(nil), fallbackSymbols...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = syms
	return append([]string(nil), syms...)
}

// Catalog returns the last fetched catalog, or the fallback set.
func (s *Session) Catalog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.catalog) == 0 {
		return append([]string(nil), fallbackSymbols...)
	}
	return append([]string(nil), s.catalog...)
}

// SetSelection replaces the local symbol selection. While a run is active
// the server's symbol list still wins for streaming and test actions. In
// the live variant a changed selection is pushed after a quiet period with
// no further edits, least recently changed symbols first.
func (s *Session) SetSelection(symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	now := time.Now()
	previous := make(map[string]struct{}, len(s.selection))
	for _, sym := range s.selection {
		previous[sym] = struct{}{}
	}
	for _, sym := range symbols {
		if _, ok := previous[sym]; !ok {
			s.selectionChanged[sym] = now
		}
	}
	s.selection = append([]string(nil), symbols...)

	running := s.status != nil && s.status.Running
	if s.mode.SyncsSelection() && !running {
		s.scheduleSelectionSyncLocked()
	}
}

func (s *Session) scheduleSelectionSyncLocked() {
	if s.syncTimer != nil {
		s.syncTimer.Stop()
	}
	s.syncTimer = time.AfterFunc(selectionSyncQuiet, s.pushSelection)
}

func (s *Session) pushSelection() {
	s.mu.Lock()
	if s.closed || (s.status != nil && s.status.Running) {
		s.mu.Unlock()
		return
	}
	// least recently changed first; untouched symbols sort ahead of edits.
	// The sort must happen under the lock: SetSelection keeps writing the
	// change-time map while the timer callback runs.
	ordered := append([]string(nil), s.selection...)
	sortByChangeTime(ordered, s.selectionChanged)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := s.api.UpdateSymbols(ctx, ordered)
	if err != nil {
		s.recordErr(err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st != nil {
		s.applyStatusLocked(st)
	}
}

// SetField updates one editable configuration field and marks it dirty.
// Fields are frozen while a run is active.
func (s *Session) SetField(field Field, value decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != nil && s.status.Running {
		return domain.PreconditionErr("configuration is frozen while a run is active")
	}
	s.form.set(field, value)
	return nil
}

// FieldValue returns the current displayed value of a form field.
func (s *Session) FieldValue(field Field) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form.get(field)
}

// FieldDirty reports whether a form field has unconfirmed user edits.
func (s *Session) FieldDirty(field Field) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form.isDirty(field)
}

// FormConfig returns the run configuration the form currently holds.
func (s *Session) FormConfig() domain.RunConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form.config()
}

// Status returns a read-only copy of the last known-good run status.
func (s *Session) Status() *domain.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.Clone()
}

// Pending returns the optimistic action marker, if any. Empty once an
// authoritative status has arrived.
func (s *Session) Pending() domain.PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// ActiveSymbols returns the symbol set the stream should subscribe to: the
// server's authoritative list while a run is active, the local selection
// otherwise.
func (s *Session) ActiveSymbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != nil && s.status.Running && len(s.status.Symbols) > 0 {
		return append([]string(nil), s.status.Symbols...)
	}
	return append([]string(nil), s.selection...)
}

// LastError returns the most recently surfaced error string.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close cancels the debounced selection sync. The poll loop stops with its
// context.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.syncTimer != nil {
		s.syncTimer.Stop()
		s.syncTimer = nil
	}
}

func (s *Session) clearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = ""
}

// recordErr surfaces an error to the operator, last one wins. Cached
// authoritative state is never mutated on the error path.
func (s *Session) recordErr(err error) error {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()

	s.logger.Warn("control action failed", zap.Error(err))
	return err
}

func sortByChangeTime(symbols []string, changed map[string]time.Time) {
	// insertion sort, selections are small
	for i := 1; i < len(symbols); i++ {
		for j := i; j > 0 && changed[symbols[j]].Before(changed[symbols[j-1]]); j-- {
			symbols[j], symbols[j-1] = symbols[j-1], symbols[j]
		}
	}
}

func containsSymbol(symbols []string, symbol string) bool {
	for _, sym := range symbols {
		if sym == symbol {
			return true
		}
	}
	return false
}
