// Package download provides the single-URL fetch transport used by the
// online data controller. A download is started fire-and-notify: exactly
// one of the finished or failed callbacks is invoked per started
// download, and a cancelled download invokes neither.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout for a single fetch
	DefaultTimeout = 30 * time.Second

	// maxPayloadBytes bounds the accepted response size. Whazzup files for
	// the large networks are a few megabytes uncompressed.
	maxPayloadBytes = 32 << 20
)

// Downloader issues one URL fetch at a time. Chained fetches are paced
// with a rate limiter so a status/whazzup/servers sequence cannot hammer
// the network operator's servers.
type Downloader struct {
	client  *http.Client
	limiter *rate.Limiter

	mu        sync.Mutex
	url       string
	userAgent string
	cancel    context.CancelFunc

	// OnFinished is called with the payload after a successful download.
	OnFinished func(data []byte, url string)

	// OnFailed is called with the failure after an unsuccessful download.
	OnFailed func(err error, url string)
}

// New creates a downloader with the default timeout and request pacing
// of one request per second with enough burst for a full fetch chain.
func New() *Downloader {
	return &Downloader{
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(1), 3),
	}
}

// SetURL sets the URL for the next StartDownload call.
func (d *Downloader) SetURL(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
}

// SetUserAgent sets the User-Agent header for subsequent downloads.
// An empty string sends no User-Agent header.
func (d *Downloader) SetUserAgent(ua string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.userAgent = ua
}

// StartDownload begins fetching the configured URL in the background.
// A download still in flight is cancelled first so at most one request
// is ever outstanding.
func (d *Downloader) StartDownload() {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	url := d.url
	ua := d.userAgent
	d.mu.Unlock()

	go d.fetch(ctx, url, ua)
}

// CancelDownload cancels an in-flight download. The callbacks for the
// cancelled download are suppressed.
func (d *Downloader) CancelDownload() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

func (d *Downloader) fetch(ctx context.Context, url, ua string) {
	if err := d.limiter.Wait(ctx); err != nil {
		d.fail(ctx, url, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		d.fail(ctx, url, fmt.Errorf("invalid download url: %w", err))
		return
	}
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.fail(ctx, url, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.fail(ctx, url, fmt.Errorf("server returned status %d", resp.StatusCode))
		return
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		d.fail(ctx, url, fmt.Errorf("failed to read payload: %w", err))
		return
	}

	if ctx.Err() != nil {
		// Cancelled while reading; the result must not be delivered.
		return
	}
	if d.OnFinished != nil {
		d.OnFinished(data, url)
	}
}

// fail delivers a failure unless the download was cancelled.
func (d *Downloader) fail(ctx context.Context, url string, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return
	}
	if d.OnFailed != nil {
		d.OnFailed(err, url)
	}
}
