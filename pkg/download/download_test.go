package download

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// TestStartDownload verifies payload delivery through the callbacks.
func TestStartDownload(t *testing.T) {
	t.Run("Successful download delivers payload once", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("url0=http://example.com/whazzup.txt"))
		}))
		defer server.Close()

		d := New()
		done := make(chan struct{})
		var calls int32
		d.OnFinished = func(data []byte, url string) {
			atomic.AddInt32(&calls, 1)
			if string(data) != "url0=http://example.com/whazzup.txt" {
				t.Errorf("Unexpected payload: %q", data)
			}
			if url != server.URL {
				t.Errorf("Expected url %s, got %s", server.URL, url)
			}
			close(done)
		}
		d.OnFailed = func(err error, url string) {
			t.Errorf("Unexpected failure: %v", err)
		}

		d.SetURL(server.URL)
		d.StartDownload()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out waiting for download")
		}
		if n := atomic.LoadInt32(&calls); n != 1 {
			t.Errorf("Expected exactly 1 delivery, got %d", n)
		}
	})

	t.Run("User agent header sent", func(t *testing.T) {
		gotUA := make(chan string, 1)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUA <- r.Header.Get("User-Agent")
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		d := New()
		done := make(chan struct{})
		d.OnFinished = func(data []byte, url string) { close(done) }

		d.SetURL(server.URL)
		d.SetUserAgent("lnm-onlined Config/VATSIM")
		d.StartDownload()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out waiting for download")
		}
		if ua := <-gotUA; ua != "lnm-onlined Config/VATSIM" {
			t.Errorf("Expected custom user agent, got %q", ua)
		}
	})
}

// TestDownloadFailure verifies failure delivery.
func TestDownloadFailure(t *testing.T) {
	t.Run("HTTP error status fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		defer server.Close()

		d := New()
		failed := make(chan error, 1)
		d.OnFinished = func(data []byte, url string) {
			t.Error("Unexpected success")
		}
		d.OnFailed = func(err error, url string) {
			failed <- err
		}

		d.SetURL(server.URL)
		d.StartDownload()

		select {
		case err := <-failed:
			if err == nil {
				t.Error("Expected non-nil error")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out waiting for failure")
		}
	})

	t.Run("Connection refused fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		d := New()
		failed := make(chan error, 1)
		d.OnFailed = func(err error, url string) {
			failed <- err
		}

		d.SetURL(url)
		d.StartDownload()

		select {
		case <-failed:
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out waiting for failure")
		}
	})
}

// TestCancelDownload verifies that cancelled downloads deliver nothing.
func TestCancelDownload(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte("late"))
	}))
	defer server.Close()
	defer close(release)

	d := New()
	var delivered int32
	d.OnFinished = func(data []byte, url string) {
		atomic.AddInt32(&delivered, 1)
	}
	d.OnFailed = func(err error, url string) {
		atomic.AddInt32(&delivered, 1)
	}

	d.SetURL(server.URL)
	d.StartDownload()
	time.Sleep(100 * time.Millisecond)
	d.CancelDownload()

	// Give any stray callback time to fire
	time.Sleep(300 * time.Millisecond)
	if n := atomic.LoadInt32(&delivered); n != 0 {
		t.Errorf("Expected no delivery after cancel, got %d", n)
	}
}

// TestRestartCancelsPrevious verifies that starting a new download
// supersedes an in-flight one.
func TestRestartCancelsPrevious(t *testing.T) {
	slowRelease := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-slowRelease
		w.Write([]byte("slow"))
	}))
	defer slow.Close()
	defer close(slowRelease)

	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fast"))
	}))
	defer fast.Close()

	d := New()
	results := make(chan string, 2)
	d.OnFinished = func(data []byte, url string) {
		results <- string(data)
	}

	d.SetURL(slow.URL)
	d.StartDownload()
	time.Sleep(100 * time.Millisecond)

	d.SetURL(fast.URL)
	d.StartDownload()

	select {
	case got := <-results:
		if got != "fast" {
			t.Errorf("Expected fast result, got %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for download")
	}

	select {
	case got := <-results:
		t.Errorf("Unexpected second delivery: %q", got)
	case <-time.After(300 * time.Millisecond):
	}
}
