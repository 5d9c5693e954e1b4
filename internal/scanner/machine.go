// Package scanner models one scanning station as an explicit state
// machine, replacing ad-hoc busy flags: a station is Idle (accepting
// scans), Processing (one scan in flight) or Displaying a result while
// a reset timer runs.
package scanner

import (
	"sync"
	"time"
)

// State of a scanning station.
type State int

const (
	StateIdle State = iota
	StateProcessing
	StateResultDisplay
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateResultDisplay:
		return "result_display"
	}
	return "unknown"
}

// Machine serializes scans for one station. Only one scan is handled at
// a time; a scan arriving while a previous one is processing or its
// result is still displayed is turned away, matching the physical
// scanner being gated off.
type Machine struct {
	mu    sync.Mutex
	state State
	timer *time.Timer
}

// New returns an idle machine.
func New() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Begin claims the station for one scan. It returns false when the
// station is busy, in which case the caller must not process the scan.
func (m *Machine) Begin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return false
	}
	m.state = StateProcessing
	return true
}

// Finish moves a processing station to result display and schedules the
// return to idle after delay. A pending reset timer is replaced, never
// left racing.
func (m *Machine) Finish(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateProcessing {
		return
	}
	m.state = StateResultDisplay
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(delay, m.reset)
}

func (m *Machine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateResultDisplay {
		m.state = StateIdle
	}
	m.timer = nil
}

// Stop cancels any pending reset and idles the station. Used on
// shutdown so no timer fires into a torn-down server.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.state = StateIdle
}

// Stations tracks one machine per scanner device.
type Stations struct {
	mu       sync.Mutex
	machines map[string]*Machine
}

// NewStations creates an empty registry.
func NewStations() *Stations {
	return &Stations{machines: make(map[string]*Machine)}
}

// Get returns the machine for a scanner id, creating it on first use.
func (s *Stations) Get(scannerID string) *Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[scannerID]
	if !ok {
		m = New()
		s.machines[scannerID] = m
	}
	return m
}

// StopAll cancels every pending reset.
func (s *Stations) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.machines {
		m.Stop()
	}
}
