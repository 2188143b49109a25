// Package online implements the acquisition core for online flight
// network data: the chained status/whazzup/servers download state
// machine, the reschedule policy deciding when the next poll cycle runs,
// and the spatially bounded aircraft result cache used by map rendering.
//
// The state machine is expressed as a pure transition function over a
// tagged event union; the Controller is the effect runner that executes
// the resulting actions (issue fetch, arm timer, clear caches, emit
// notifications) on a single FIFO event loop.
package online

import (
	"context"
	"time"

	"github.com/QQ7ita/littlenavmap/pkg/geo"
	"github.com/QQ7ita/littlenavmap/pkg/whazzup"
)

// Network is the active online network selection.
type Network int

const (
	// NetworkNone disables all online functionality
	NetworkNone Network = iota

	// NetworkVATSIM uses the predefined VATSIM status URL
	NetworkVATSIM

	// NetworkIVAO uses the predefined IVAO status URL
	NetworkIVAO

	// NetworkCustom fetches a whazzup file from an operator-configured URL
	NetworkCustom

	// NetworkCustomStatus fetches an operator-configured status file first
	NetworkCustomStatus
)

// String returns the display name of the network.
func (n Network) String() string {
	switch n {
	case NetworkVATSIM:
		return "VATSIM"
	case NetworkIVAO:
		return "IVAO"
	case NetworkCustom, NetworkCustomStatus:
		return "Custom Network"
	}
	return ""
}

// Tuning collects the thresholds of the acquisition core. They are
// configuration constants rather than inlined literals so tests can
// override them.
type Tuning struct {
	// MinServerDownloadInterval rate-limits the server list sub-fetch
	MinServerDownloadInterval time.Duration

	// DuplicateDistanceNM is the radius within which an online aircraft is
	// suppressed as a duplicate of a live simulator aircraft with the same
	// registration (500 kts for 3 minutes)
	DuplicateDistanceNM float64

	// MinRescheduleInterval is the floor for network- and file-provided
	// reload intervals
	MinRescheduleInterval time.Duration

	// MaxCacheRows bounds the spatial cache to limit rendering cost
	MaxCacheRows int

	// RectInflationFactor and RectInflationIncrement grow query rectangles
	// to reduce re-query thrash on small map pans
	RectInflationFactor    float64
	RectInflationIncrement float64
}

// DefaultTuning returns the production thresholds.
func DefaultTuning() Tuning {
	return Tuning{
		MinServerDownloadInterval: 15 * time.Minute,
		DuplicateDistanceNM:       30,
		MinRescheduleInterval:     60 * time.Second,
		MaxCacheRows:              5000,
		RectInflationFactor:       0.2,
		RectInflationIncrement:    0.1,
	}
}

// Options is the immutable configuration snapshot the controller works
// from. A new value is handed to SetOptions when the configuration
// changes; the controller never reads mutable shared settings.
type Options struct {
	// Network is the active network selection
	Network Network

	// Format is the whazzup format of the selected network
	Format whazzup.Format

	// StatusURL is the status file URL resolved for the selection
	StatusURL string

	// WhazzupURL is the whazzup file URL resolved for the selection,
	// used by custom networks without a status file
	WhazzupURL string

	// ReloadSeconds is the operator-configured reload interval used
	// directly for custom networks
	ReloadSeconds int

	// ReloadOverrideSeconds is the networks-file reload override;
	// -1 means not set
	ReloadOverrideSeconds int

	// DisableUserAgent suppresses the default User-Agent header
	DisableUserAgent bool
}

// Aircraft is one online client materialized for a spatial query.
// Values are transient, constructed per query row.
type Aircraft struct {
	// ID is the backing store row id
	ID int

	// Registration identifies the airframe; online networks use the
	// callsign as registration
	Registration string

	// Callsign as connected to the network
	Callsign string

	// CID is the network member id
	CID string

	// Name is the network member name
	Name string

	// ClientType is "PILOT" or "ATC"
	ClientType string

	// Frequency is the primary frequency for ATC clients
	Frequency string

	// Pos is the reported position
	Pos geo.Pos

	// Altitude in feet
	Altitude int

	// GroundSpeed in knots
	GroundSpeed int

	// Heading in degrees
	Heading int

	// AircraftType is the filed ICAO aircraft type
	AircraftType string

	// Departure and Destination are the filed airports
	Departure   string
	Destination string

	// Transponder code
	Transponder string
}

// SimAircraft is a position report from the live simulator feed, used to
// suppress duplicate symbols for aircraft known from both sources.
type SimAircraft struct {
	// Registration of the airframe; empty registrations are ignored
	Registration string

	// Pos is the last known position
	Pos geo.Pos

	// Debug marks a debug override aircraft that counts as a live feed
	// even without a simulator connection
	Debug bool
}

// SimSource supplies the live aircraft known to the host simulator.
type SimSource interface {
	// UserAircraft returns the user's own aircraft, if any.
	UserAircraft() (SimAircraft, bool)

	// AIAircraft returns all AI aircraft currently tracked.
	AIAircraft() []SimAircraft

	// Connected reports whether the simulator connection is active.
	Connected() bool
}

// Transport issues a single URL fetch. Completion is delivered through
// the controller's FetchSucceeded/FetchFailed methods, exactly once per
// started download; a cancelled download delivers nothing.
type Transport interface {
	SetURL(url string)
	SetUserAgent(ua string)
	StartDownload()
	CancelDownload()
}

// Manager is the backing-store manager: it parses downloaded files into
// the store and answers the queries of the acquisition core.
type Manager interface {
	// ReadFromStatus parses a status file and remembers the derived URLs,
	// gzip flag and operator message.
	ReadFromStatus(text string)

	// ReadFromWhazzup parses a whazzup file and replaces the stored
	// clients when the payload is newer than lastKnown. It reports whether
	// the payload was accepted.
	ReadFromWhazzup(ctx context.Context, text string, format whazzup.Format, lastKnown time.Time) (bool, error)

	// ReadServersFromWhazzup parses a server list file and replaces the
	// stored servers.
	ReadServersFromWhazzup(ctx context.Context, text string, format whazzup.Format, lastKnown time.Time) error

	// WhazzupURLFromStatus returns the whazzup URL derived from the last
	// status file and whether it serves gzip data.
	WhazzupURLFromStatus() (url string, gzipped bool)

	// VoiceURLFromStatus returns the voice/server list URL from the last
	// status file.
	VoiceURLFromStatus() string

	// MessageFromStatus returns the operator message from the last status
	// file.
	MessageFromStatus() string

	// LastUpdateTimeFromWhazzup returns the UPDATE timestamp of the last
	// accepted whazzup file.
	LastUpdateTimeFromWhazzup() time.Time

	// ReloadMinutesFromWhazzup returns the reload interval advised by the
	// last accepted whazzup file.
	ReloadMinutesFromWhazzup() int

	// ResetForNewOptions forgets all state derived from downloaded status
	// files.
	ResetForNewOptions()

	// ClearData removes all clients and servers from the store.
	ClearData(ctx context.Context) error

	// ClientsByRect returns the clients inside a bounding box. The
	// rectangle must not cross the antimeridian.
	ClientsByRect(ctx context.Context, r geo.Rect) ([]Aircraft, error)

	// ClientByID returns a single client record or nil.
	ClientByID(ctx context.Context, id int) (*Aircraft, error)

	// ClientCount returns the number of stored clients.
	ClientCount(ctx context.Context) (int, error)
}

// Dialogs is the user interaction surface. Both calls block until the
// user acknowledges; blocking ConfirmRetry is what gates the retry loop
// after a failed download.
type Dialogs interface {
	// ConfirmRetry reports a failed download and blocks until acknowledged.
	ConfirmRetry(url string, err error)

	// ShowMessage displays an operator message from the status file.
	ShowMessage(text string)
}

// Listeners are observer callbacks fired on data changes. Nil callbacks
// are skipped.
type Listeners struct {
	// ClientsUpdated fires after clients/ATC data changed
	ClientsUpdated func(loadAll, keepSelection bool)

	// ServersUpdated fires after server data changed
	ServersUpdated func(loadAll, keepSelection bool)

	// NetworkChanged fires after the network selection changed
	NetworkChanged func()
}
