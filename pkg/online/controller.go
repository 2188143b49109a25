package online

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/charmap"
)

// userAgentPrefix is the default User-Agent sent with downloads unless
// disabled by configuration.
const userAgentPrefix = "lnm-onlined"

// Controller orchestrates the download chain and owns the spatial
// result cache. All state transitions run on a single FIFO event loop
// driven by Run; transport completions, timer firings and option changes
// are enqueued as tasks and handled one at a time, so at most one fetch
// is ever outstanding and no handler recurses into another.
type Controller struct {
	mgr       Manager
	transport Transport
	sim       SimSource
	dialogs   Dialogs
	listeners Listeners
	tun       Tuning

	// queue is the single-consumer FIFO task queue. Deferring fetch
	// issuance through it avoids unbounded call stacks across chained
	// stages.
	queue chan func()

	// stateMu guards opts, cycle and runCtx for readers outside the
	// event loop; only Run's goroutine ever writes them
	stateMu sync.RWMutex
	opts    Options
	cycle   CycleContext
	runCtx  context.Context

	// timer is loop-owned, touched only from Run's goroutine
	timer *time.Timer

	// cacheMu guards the spatial cache; queries arrive from other
	// goroutines than the event loop
	cacheMu sync.Mutex
	cache   aircraftCache
}

// NewController creates a controller for the given collaborators and
// initial options. Call Run to start the event loop, then Start to kick
// off the first download chain.
func NewController(mgr Manager, transport Transport, sim SimSource, dialogs Dialogs, opts Options, tun Tuning) *Controller {
	return &Controller{
		mgr:       mgr,
		transport: transport,
		sim:       sim,
		dialogs:   dialogs,
		tun:       tun,
		opts:      opts,
		queue:     make(chan func(), 128),
		runCtx:    context.Background(),
	}
}

// SetListeners installs the notification callbacks. Must be called
// before Run.
func (c *Controller) SetListeners(l Listeners) {
	c.listeners = l
}

// Run drains the task queue until the context is cancelled. It is the
// single consumer; every state transition happens here.
func (c *Controller) Run(ctx context.Context) {
	c.stateMu.Lock()
	c.runCtx = ctx
	c.stateMu.Unlock()
	for {
		select {
		case <-ctx.Done():
			c.stopAll()
			return
		case task := <-c.queue:
			task()
		}
	}
}

// Start requests a new download chain. Safe to call from any goroutine.
func (c *Controller) Start() {
	c.enqueue(c.handleStart)
}

// SetOptions applies a new configuration snapshot: all derived state is
// reset, caches and the store are cleared, subscribers are notified and
// a new chain starts immediately.
func (c *Controller) SetOptions(opts Options) {
	c.enqueue(func() { c.handleOptionsChanged(opts) })
}

// FetchSucceeded delivers a completed download. Wired to the transport's
// success callback.
func (c *Controller) FetchSucceeded(data []byte, url string) {
	c.enqueue(func() { c.handleFetchSucceeded(data, url) })
}

// FetchFailed delivers a failed download. Wired to the transport's
// failure callback.
func (c *Controller) FetchFailed(err error, url string) {
	c.enqueue(func() { c.handleFetchFailed(err, url) })
}

// Network returns the display name of the active network.
func (c *Controller) Network() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.opts.Network.String()
}

// LastUpdate returns the time of the last finalized cycle.
func (c *Controller) LastUpdate() time.Time {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.cycle.LastUpdate
}

// Stage returns the currently active download stage.
func (c *Controller) Stage() Stage {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.cycle.Stage
}

// ClientCount returns the number of clients in the backing store.
func (c *Controller) ClientCount(ctx context.Context) (int, error) {
	return c.mgr.ClientCount(ctx)
}

// ClientByID returns a single client record from the backing store.
func (c *Controller) ClientByID(ctx context.Context, id int) (*Aircraft, error) {
	return c.mgr.ClientByID(ctx, id)
}

func (c *Controller) enqueue(task func()) {
	c.stateMu.RLock()
	done := c.runCtx.Done()
	c.stateMu.RUnlock()
	select {
	case c.queue <- task:
	case <-done:
	}
}

// snapshot builds the immutable per-event view from the options and the
// status/whazzup derived state held by the manager.
func (c *Controller) snapshot() Snapshot {
	snap := Snapshot{
		Network:               c.opts.Network,
		Format:                c.opts.Format,
		StatusURL:             c.opts.StatusURL,
		WhazzupURL:            c.opts.WhazzupURL,
		ReloadSeconds:         c.opts.ReloadSeconds,
		ReloadOverrideSeconds: c.opts.ReloadOverrideSeconds,
		VoiceURL:              c.mgr.VoiceURLFromStatus(),
		ReloadMinutes:         c.mgr.ReloadMinutesFromWhazzup(),
	}
	snap.StatusWhazzupURL, snap.StatusWhazzupGzipped = c.mgr.WhazzupURLFromStatus()
	return snap
}

// apply runs one transition and executes its actions.
func (c *Controller) apply(ev event) {
	snap := c.snapshot()
	next, actions := transition(c.cycle, ev, snap, c.tun, time.Now())
	c.stateMu.Lock()
	c.cycle = next
	c.stateMu.Unlock()
	for _, a := range actions {
		c.execute(a)
	}
}

func (c *Controller) execute(a action) {
	switch a := a.(type) {
	case stopAllAction:
		c.stopAll()

	case fetchAction:
		c.transport.SetURL(a.url)
		log.Printf("online: fetching %s from %s", a.stage, a.url)
		// Issue on the next queue tick, never from inside a handler.
		c.enqueue(c.transport.StartDownload)

	case armTimerAction:
		c.stopTimer()
		log.Printf("online: download timer set to %s from %s", a.interval, a.source)
		c.timer = time.AfterFunc(a.interval, c.Start)

	case clearCachesAction:
		c.ClearCache()

	case notifyClientsAction:
		if c.listeners.ClientsUpdated != nil {
			c.listeners.ClientsUpdated(true, true)
		}

	case notifyServersAction:
		if c.listeners.ServersUpdated != nil {
			c.listeners.ServersUpdated(true, true)
		}

	case showMessageAction:
		text := a.text
		c.enqueue(func() { c.dialogs.ShowMessage(text) })

	case confirmRetryAction:
		// Blocks until the user acknowledges; the human gates the retry,
		// there is no automatic backoff.
		c.dialogs.ConfirmRetry(a.url, a.err)
		c.enqueue(c.handleStart)
	}
}

// stopAll cancels the outstanding download, stops the poll timer and
// forgets the remembered registration snapshot. The stage is left
// alone: the transition owns it, and on a restart the next stage is
// already committed by the time the stop-all action runs.
func (c *Controller) stopAll() {
	c.transport.CancelDownload()
	c.stopTimer()

	c.cacheMu.Lock()
	c.cache.regs = nil
	c.cacheMu.Unlock()
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) handleStart() {
	if c.opts.Network != NetworkNone {
		if c.opts.DisableUserAgent {
			c.transport.SetUserAgent("")
		} else {
			c.transport.SetUserAgent(fmt.Sprintf("%s Config/%s", userAgentPrefix, c.opts.Network))
		}
	}
	c.apply(startEvent{})
}

func (c *Controller) handleFetchSucceeded(data []byte, url string) {
	switch c.cycle.Stage {
	case StageFetchingStatus:
		c.mgr.ReadFromStatus(decodeNetworkText(data))
		whazzupURL, gzipped := c.mgr.WhazzupURLFromStatus()
		c.apply(statusParsedEvent{
			whazzupURL: whazzupURL,
			gzipped:    gzipped,
			message:    c.mgr.MessageFromStatus(),
		})

	case StageFetchingWhazzup:
		payload := data
		if c.cycle.WhazzupGzipped {
			decompressed, err := gunzip(data)
			if err != nil {
				// Degraded but non-fatal: keep going with the raw bytes,
				// the parser will reject them if they are unusable.
				log.Printf("online: error unzipping whazzup data: %v", err)
			} else {
				payload = decompressed
			}
		}
		accepted, err := c.mgr.ReadFromWhazzup(c.runCtx, decodeNetworkText(payload),
			c.cycle.Format, c.mgr.LastUpdateTimeFromWhazzup())
		if err != nil {
			log.Printf("online: whazzup not stored: %v", err)
			accepted = false
		}
		if !accepted {
			log.Printf("online: whazzup from %s is not recent", url)
		}
		c.apply(whazzupParsedEvent{
			accepted: accepted,
			voiceURL: c.mgr.VoiceURLFromStatus(),
		})

	case StageFetchingServers:
		err := c.mgr.ReadServersFromWhazzup(c.runCtx, decodeNetworkText(data),
			c.cycle.Format, c.mgr.LastUpdateTimeFromWhazzup())
		if err != nil {
			log.Printf("online: servers not stored: %v", err)
		}
		c.apply(serversParsedEvent{})

	default:
		// Completion of a download that was reset in the meantime.
		log.Printf("online: dropping stale download result from %s", url)
	}
}

func (c *Controller) handleFetchFailed(err error, url string) {
	log.Printf("online: download from %s failed: %v", url, err)
	c.apply(fetchFailedEvent{url: url, err: err})
}

// handleOptionsChanged resets everything derived from the previous
// configuration and restarts the chain.
func (c *Controller) handleOptionsChanged(opts Options) {
	c.mgr.ResetForNewOptions()
	c.stopAll()
	c.stateMu.Lock()
	c.cycle.WhazzupGzipped = false
	c.stateMu.Unlock()

	if err := c.mgr.ClearData(c.runCtx); err != nil {
		log.Printf("online: failed to clear store: %v", err)
	}
	c.ClearCache()

	if c.listeners.ClientsUpdated != nil {
		c.listeners.ClientsUpdated(true, true)
	}
	if c.listeners.ServersUpdated != nil {
		c.listeners.ServersUpdated(true, true)
	}
	if c.listeners.NetworkChanged != nil {
		c.listeners.NetworkChanged()
	}

	c.stateMu.Lock()
	c.cycle.LastUpdate = time.Time{}
	c.cycle.LastServerDownload = time.Time{}
	c.opts = opts
	c.stateMu.Unlock()

	c.handleStart()
}

// decodeNetworkText decodes a network file payload. Networks serve
// either UTF-8 or Windows-1252; valid UTF-8 passes through untouched so
// multi-byte ATIS text is not mangled by the charmap decoder.
func decodeNetworkText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

// gunzip decompresses a gzip payload.
func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
