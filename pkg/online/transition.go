package online

import (
	"time"

	"github.com/QQ7ita/littlenavmap/pkg/whazzup"
)

// Stage identifies the active step of the download chain. Exactly one
// stage is active at a time; StageIdle is both the initial and the
// terminal per-cycle state.
type Stage int

const (
	StageIdle Stage = iota
	StageFetchingStatus
	StageFetchingWhazzup
	StageFetchingServers
)

// String returns a log-friendly stage name.
func (s Stage) String() string {
	switch s {
	case StageFetchingStatus:
		return "status"
	case StageFetchingWhazzup:
		return "whazzup"
	case StageFetchingServers:
		return "servers"
	}
	return "idle"
}

// CycleContext is the mutable state carried across one chain run.
type CycleContext struct {
	// Stage is the currently active download stage
	Stage Stage

	// WhazzupGzipped records whether the whazzup payload is gzip encoded,
	// decided by the status stage
	WhazzupGzipped bool

	// Format is the resolved whazzup format for this cycle
	Format whazzup.Format

	// LastUpdate is the time of the last finalized cycle
	LastUpdate time.Time

	// LastServerDownload is the time of the last server list sub-fetch,
	// rate limited independently of the poll interval
	LastServerDownload time.Time
}

// Snapshot is the read-only view of configuration and status-derived
// state a single transition works from. The controller rebuilds it per
// event from the Options and the manager accessors.
type Snapshot struct {
	Network               Network
	Format                whazzup.Format
	StatusURL             string
	WhazzupURL            string
	ReloadSeconds         int
	ReloadOverrideSeconds int

	// StatusWhazzupURL is the whazzup URL derived from a previously
	// downloaded status file, empty if none was downloaded yet
	StatusWhazzupURL     string
	StatusWhazzupGzipped bool

	// VoiceURL is the server list URL from the status file
	VoiceURL string

	// ReloadMinutes is the reload interval advised by the last accepted
	// whazzup file
	ReloadMinutes int
}

// event is the tagged union of inputs to the state machine. Payload
// parsing happens before the transition so events carry parse outcomes,
// keeping the transition function pure.
type event interface{ isEvent() }

// startEvent requests a new download chain.
type startEvent struct{}

// statusParsedEvent reports the outcome of the status stage.
type statusParsedEvent struct {
	whazzupURL string
	gzipped    bool
	message    string
}

// whazzupParsedEvent reports the outcome of the whazzup stage.
type whazzupParsedEvent struct {
	accepted bool
	voiceURL string
}

// serversParsedEvent reports completion of the servers stage.
type serversParsedEvent struct{}

// fetchFailedEvent reports a transport failure at any stage.
type fetchFailedEvent struct {
	url string
	err error
}

func (startEvent) isEvent()         {}
func (statusParsedEvent) isEvent()  {}
func (whazzupParsedEvent) isEvent() {}
func (serversParsedEvent) isEvent() {}
func (fetchFailedEvent) isEvent()   {}

// action is the tagged union of effects a transition requests. The
// controller executes them in order; transitions never perform effects
// themselves.
type action interface{ isAction() }

// stopAllAction cancels the transport, stops the poll timer and forgets
// the remembered registration snapshot.
type stopAllAction struct{}

// fetchAction issues a download. Issuance is deferred to the next queue
// tick to avoid recursion across chained stages.
type fetchAction struct {
	url   string
	stage Stage
}

// armTimerAction arms the recurring poll timer.
type armTimerAction struct {
	interval time.Duration
	source   string
}

// clearCachesAction clears the spatial cache and the remembered
// registration snapshot.
type clearCachesAction struct{}

// notifyClientsAction emits the clients/ATC updated notification.
type notifyClientsAction struct{}

// notifyServersAction emits the servers updated notification.
type notifyServersAction struct{}

// showMessageAction displays an operator message.
type showMessageAction struct{ text string }

// confirmRetryAction surfaces a download failure, blocking until
// acknowledged, then restarts the chain.
type confirmRetryAction struct {
	url string
	err error
}

func (stopAllAction) isAction()       {}
func (fetchAction) isAction()         {}
func (armTimerAction) isAction()      {}
func (clearCachesAction) isAction()   {}
func (notifyClientsAction) isAction() {}
func (notifyServersAction) isAction() {}
func (showMessageAction) isAction()   {}
func (confirmRetryAction) isAction()  {}

// transition is the pure state machine of the download chain. Given the
// current cycle context, an event and the configuration snapshot it
// returns the next context and the effects to run. It performs no I/O.
func transition(cycle CycleContext, ev event, snap Snapshot, tun Tuning, now time.Time) (CycleContext, []action) {
	switch ev := ev.(type) {
	case startEvent:
		return transitionStart(cycle, snap)

	case statusParsedEvent:
		if cycle.Stage != StageFetchingStatus {
			return cycle, nil
		}
		var out []action
		if ev.message != "" {
			out = append(out, showMessageAction{text: ev.message})
		}
		if ev.whazzupURL != "" {
			cycle.Stage = StageFetchingWhazzup
			cycle.WhazzupGzipped = ev.gzipped
			return cycle, append(out, fetchAction{url: ev.whazzupURL, stage: StageFetchingWhazzup})
		}
		// Status yielded no whazzup URL: the cycle ends here without any
		// data update notification.
		cycle, fin := finalize(cycle, snap, tun, now)
		return cycle, append(out, fin...)

	case whazzupParsedEvent:
		if cycle.Stage != StageFetchingWhazzup {
			return cycle, nil
		}
		if !ev.accepted {
			// Stale payload: a normal no-op refresh. Caches stay untouched
			// and no notification fires.
			return finalize(cycle, snap, tun, now)
		}
		if ev.voiceURL != "" && now.Sub(cycle.LastServerDownload) >= tun.MinServerDownloadInterval {
			cycle.Stage = StageFetchingServers
			return cycle, []action{fetchAction{url: ev.voiceURL, stage: StageFetchingServers}}
		}
		cycle, out := finalize(cycle, snap, tun, now)
		return cycle, append(out, clearCachesAction{}, notifyClientsAction{})

	case serversParsedEvent:
		if cycle.Stage != StageFetchingServers {
			return cycle, nil
		}
		cycle.LastServerDownload = now
		cycle, out := finalize(cycle, snap, tun, now)
		return cycle, append(out, clearCachesAction{}, notifyClientsAction{}, notifyServersAction{})

	case fetchFailedEvent:
		cycle.Stage = StageIdle
		return cycle, []action{stopAllAction{}, confirmRetryAction{url: ev.url, err: ev.err}}
	}
	return cycle, nil
}

// transitionStart decides which stage opens a new chain. A chain start
// implies a stop of all in-flight work.
func transitionStart(cycle CycleContext, snap Snapshot) (CycleContext, []action) {
	cycle.Stage = StageIdle
	out := []action{stopAllAction{}}

	if snap.Network == NetworkNone {
		return cycle, out
	}
	cycle.Format = snap.Format

	switch {
	case snap.StatusWhazzupURL == "" && snap.StatusURL != "":
		// Status not downloaded yet and required by configuration.
		cycle.Stage = StageFetchingStatus
		out = append(out, fetchAction{url: snap.StatusURL, stage: StageFetchingStatus})

	case snap.StatusWhazzupURL != "":
		cycle.Stage = StageFetchingWhazzup
		cycle.WhazzupGzipped = snap.StatusWhazzupGzipped
		out = append(out, fetchAction{url: snap.StatusWhazzupURL, stage: StageFetchingWhazzup})

	case snap.WhazzupURL != "":
		cycle.Stage = StageFetchingWhazzup
		cycle.WhazzupGzipped = false
		out = append(out, fetchAction{url: snap.WhazzupURL, stage: StageFetchingWhazzup})
	}
	// No URL resolvable: remain idle. This is the expected state when the
	// network is not yet configured, not an error.
	return cycle, out
}

// finalize ends the cycle: arm the poll timer, clear the stage and stamp
// the cycle time.
func finalize(cycle CycleContext, snap Snapshot, tun Tuning, now time.Time) (CycleContext, []action) {
	interval, source := rescheduleInterval(snap, tun)
	cycle.Stage = StageIdle
	cycle.LastUpdate = now
	return cycle, []action{armTimerAction{interval: interval, source: source}}
}

// rescheduleInterval computes the next poll interval. Precedence:
// operator options for custom networks, then the whazzup-advised reload,
// then the networks-file override, the latter two floored at the minimum
// reschedule interval.
func rescheduleInterval(snap Snapshot, tun Tuning) (time.Duration, string) {
	if snap.Network == NetworkCustom || snap.Network == NetworkCustomStatus {
		// Custom networks use the configured interval directly, ignoring
		// the reload advice in the whazzup file.
		return time.Duration(snap.ReloadSeconds) * time.Second, "options"
	}

	if snap.ReloadOverrideSeconds == -1 {
		interval := time.Duration(snap.ReloadMinutes) * time.Minute
		if interval < tun.MinRescheduleInterval {
			interval = tun.MinRescheduleInterval
		}
		return interval, "whazzup"
	}

	interval := time.Duration(snap.ReloadOverrideSeconds) * time.Second
	if interval < tun.MinRescheduleInterval {
		interval = tun.MinRescheduleInterval
	}
	return interval, "networks.yaml"
}
