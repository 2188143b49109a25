// Package sim is the live simulator feed: the user's own aircraft and
// the AI aircraft tracked by the host simulator connection. The online
// controller compares this feed against downloaded network data to
// suppress duplicate aircraft symbols.
package sim

import (
	"sync"

	"github.com/QQ7ita/littlenavmap/pkg/online"
)

// Feed is an in-memory implementation of online.SimSource, safe for
// concurrent update from the simulator connection and reads from the
// query path.
type Feed struct {
	mu        sync.RWMutex
	user      online.SimAircraft
	haveUser  bool
	ai        []online.SimAircraft
	connected bool
}

// NewFeed creates an empty, disconnected feed.
func NewFeed() *Feed {
	return &Feed{}
}

// SetConnected marks the simulator connection active or inactive.
func (f *Feed) SetConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
}

// SetUserAircraft updates the user's own aircraft.
func (f *Feed) SetUserAircraft(ac online.SimAircraft) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = ac
	f.haveUser = true
}

// ClearUserAircraft removes the user aircraft from the feed.
func (f *Feed) ClearUserAircraft() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = online.SimAircraft{}
	f.haveUser = false
}

// SetAIAircraft replaces the tracked AI aircraft.
func (f *Feed) SetAIAircraft(aircraft []online.SimAircraft) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ai = append(f.ai[:0:0], aircraft...)
}

// UserAircraft returns the user's own aircraft, if any.
func (f *Feed) UserAircraft() (online.SimAircraft, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.user, f.haveUser
}

// AIAircraft returns a copy of all tracked AI aircraft.
func (f *Feed) AIAircraft() []online.SimAircraft {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]online.SimAircraft(nil), f.ai...)
}

// Connected reports whether the simulator connection is active.
func (f *Feed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

var _ online.SimSource = (*Feed)(nil)
