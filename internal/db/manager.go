package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/QQ7ita/littlenavmap/pkg/geo"
	"github.com/QQ7ita/littlenavmap/pkg/online"
	"github.com/QQ7ita/littlenavmap/pkg/whazzup"
)

// Manager is the backing-store manager behind the download controller.
// It parses downloaded status/whazzup/server files, replaces the stored
// records and remembers the state derived from the status file: the
// whazzup URL, its gzip flag, the voice URL and the operator message.
//
// It implements online.Manager.
type Manager struct {
	db *DB

	mu            sync.Mutex
	status        whazzup.Status
	lastUpdate    time.Time
	reloadMinutes int
}

// NewManager creates a manager on top of the store.
func NewManager(db *DB) *Manager {
	return &Manager{db: db}
}

// ReadFromStatus parses a status file and remembers the derived URLs,
// gzip flag and operator message. Parsing is tolerant; a malformed file
// simply yields empty fields.
func (m *Manager) ReadFromStatus(text string) {
	st := whazzup.ParseStatus(text)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = st
}

// ReadFromWhazzup parses a whazzup file and replaces the stored clients
// when the payload is newer than lastKnown. It reports whether the
// payload was accepted.
func (m *Manager) ReadFromWhazzup(ctx context.Context, text string, format whazzup.Format, lastKnown time.Time) (bool, error) {
	f, err := whazzup.Parse(text, format)
	if err != nil {
		return false, fmt.Errorf("failed to parse whazzup: %w", err)
	}

	// A missing or unchanged UPDATE timestamp means stale data.
	if f.General.Update.IsZero() || !f.General.Update.After(lastKnown) {
		return false, nil
	}

	now := time.Now().UTC()
	if err := m.db.replaceClients(ctx, f.Clients, now); err != nil {
		return false, err
	}
	// IVAO whazzup files carry the server list inline.
	if len(f.Servers) > 0 {
		if err := m.db.replaceServers(ctx, f.Servers, now); err != nil {
			return false, err
		}
	}

	m.mu.Lock()
	m.lastUpdate = f.General.Update
	m.reloadMinutes = f.General.ReloadMinutes
	m.mu.Unlock()

	return true, nil
}

// ReadServersFromWhazzup parses a standalone server list file and
// replaces the stored servers.
func (m *Manager) ReadServersFromWhazzup(ctx context.Context, text string, format whazzup.Format, lastKnown time.Time) error {
	servers := whazzup.ParseServers(text, format)
	return m.db.replaceServers(ctx, servers, time.Now().UTC())
}

// WhazzupURLFromStatus returns the whazzup URL derived from the last
// status file and whether it serves gzip data.
func (m *Manager) WhazzupURLFromStatus() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.WhazzupURL, m.status.WhazzupGzipped
}

// VoiceURLFromStatus returns the voice/server list URL from the last
// status file.
func (m *Manager) VoiceURLFromStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.VoiceURL
}

// MessageFromStatus returns the operator message from the last status
// file.
func (m *Manager) MessageFromStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.Message
}

// LastUpdateTimeFromWhazzup returns the UPDATE timestamp of the last
// accepted whazzup file.
func (m *Manager) LastUpdateTimeFromWhazzup() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUpdate
}

// ReloadMinutesFromWhazzup returns the reload interval advised by the
// last accepted whazzup file.
func (m *Manager) ReloadMinutesFromWhazzup() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reloadMinutes
}

// ResetForNewOptions forgets all state derived from downloaded files,
// including the whazzup URL from the status file.
func (m *Manager) ResetForNewOptions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = whazzup.Status{}
	m.lastUpdate = time.Time{}
	m.reloadMinutes = 0
}

// ClearData removes all clients and servers from the store.
func (m *Manager) ClearData(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM client`); err != nil {
		return fmt.Errorf("failed to clear clients: %w", err)
	}
	if _, err := m.db.ExecContext(ctx, `DELETE FROM server`); err != nil {
		return fmt.Errorf("failed to clear servers: %w", err)
	}
	return nil
}

// ClientsByRect implements the bounding-box query surface.
func (m *Manager) ClientsByRect(ctx context.Context, r geo.Rect) ([]online.Aircraft, error) {
	return m.db.ClientsByRect(ctx, r)
}

// ClientByID returns a single client record or nil.
func (m *Manager) ClientByID(ctx context.Context, id int) (*online.Aircraft, error) {
	return m.db.ClientByID(ctx, id)
}

// ClientCount returns the number of stored clients.
func (m *Manager) ClientCount(ctx context.Context) (int, error) {
	return m.db.ClientCount(ctx)
}

var _ online.Manager = (*Manager)(nil)
