package online

import (
	"context"
	"fmt"
	"testing"

	"github.com/QQ7ita/littlenavmap/pkg/geo"
)

// cacheTestController builds a controller over a fake manager and
// simulator feed for spatial cache tests.
func cacheTestController(mgr *fakeManager, sim *fakeSim, tun Tuning) *Controller {
	return NewController(mgr, &fakeTransport{}, sim, &fakeDialogs{}, Options{Network: NetworkVATSIM}, tun)
}

// TestAircraftQuery verifies query, caching and lazy behavior.
func TestAircraftQuery(t *testing.T) {
	ctx := context.Background()
	rect := geo.Rect{North: 55, South: 45, West: 0, East: 10}

	t.Run("Query materializes and caches", func(t *testing.T) {
		mgr := &fakeManager{clients: []Aircraft{
			{ID: 1, Registration: "DLH123", Pos: geo.Pos{Lat: 50, Lon: 5}},
			{ID: 2, Registration: "BAW456", Pos: geo.Pos{Lat: 51, Lon: 6}},
			{ID: 3, Registration: "AFR789", Pos: geo.Pos{Lat: 20, Lon: 5}},
		}}
		c := cacheTestController(mgr, &fakeSim{}, DefaultTuning())

		got, err := c.Aircraft(ctx, rect, LayerParams{}, false)
		if err != nil {
			t.Fatalf("Aircraft failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 aircraft inside the rectangle, got %d", len(got))
		}
		if mgr.queries != 1 {
			t.Errorf("Expected 1 store query, got %d", mgr.queries)
		}

		// Same region again: served from cache
		got, err = c.Aircraft(ctx, rect, LayerParams{}, false)
		if err != nil {
			t.Fatalf("Aircraft failed: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("Expected cached result, got %d aircraft", len(got))
		}
		if mgr.queries != 1 {
			t.Errorf("Expected no further store query, got %d", mgr.queries)
		}
	})

	t.Run("Smaller rectangle inside inflated cache reuses it", func(t *testing.T) {
		mgr := &fakeManager{clients: []Aircraft{
			{ID: 1, Registration: "DLH123", Pos: geo.Pos{Lat: 50, Lon: 5}},
		}}
		c := cacheTestController(mgr, &fakeSim{}, DefaultTuning())

		if _, err := c.Aircraft(ctx, rect, LayerParams{}, false); err != nil {
			t.Fatalf("Aircraft failed: %v", err)
		}
		small := geo.Rect{North: 52, South: 48, West: 2, East: 8}
		if _, err := c.Aircraft(ctx, small, LayerParams{}, false); err != nil {
			t.Fatalf("Aircraft failed: %v", err)
		}
		if mgr.queries != 1 {
			t.Errorf("Expected cache reuse for contained rectangle, got %d queries", mgr.queries)
		}
	})

	t.Run("Layer change invalidates", func(t *testing.T) {
		mgr := &fakeManager{clients: []Aircraft{
			{ID: 1, Registration: "DLH123", Pos: geo.Pos{Lat: 50, Lon: 5}, Altitude: 35000},
			{ID: 2, Registration: "BAW456", Pos: geo.Pos{Lat: 51, Lon: 6}, Altitude: 2000},
		}}
		c := cacheTestController(mgr, &fakeSim{}, DefaultTuning())

		got, _ := c.Aircraft(ctx, rect, LayerParams{}, false)
		if len(got) != 2 {
			t.Fatalf("Expected 2 aircraft unfiltered, got %d", len(got))
		}

		got, _ = c.Aircraft(ctx, rect, LayerParams{MinAltitudeFt: 10000}, false)
		if len(got) != 1 || got[0].Registration != "DLH123" {
			t.Errorf("Expected only the high altitude aircraft, got %d", len(got))
		}
		if mgr.queries != 2 {
			t.Errorf("Expected requery after layer change, got %d queries", mgr.queries)
		}
	})

	t.Run("Lazy never touches the store", func(t *testing.T) {
		mgr := &fakeManager{clients: []Aircraft{
			{ID: 1, Registration: "DLH123", Pos: geo.Pos{Lat: 50, Lon: 5}},
		}}
		c := cacheTestController(mgr, &fakeSim{}, DefaultTuning())

		if _, err := c.Aircraft(ctx, rect, LayerParams{}, false); err != nil {
			t.Fatalf("Aircraft failed: %v", err)
		}
		c.ClearCache()

		got, err := c.Aircraft(ctx, rect, LayerParams{}, true)
		if err != nil {
			t.Fatalf("Aircraft failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Expected empty result under lazy with cleared cache, got %d", len(got))
		}
		if mgr.queries != 1 {
			t.Errorf("Expected no store query under lazy, got %d", mgr.queries)
		}

		// A non-lazy call reloads
		got, _ = c.Aircraft(ctx, rect, LayerParams{}, false)
		if len(got) != 1 || mgr.queries != 2 {
			t.Errorf("Expected reload on non-lazy call, got %d aircraft after %d queries", len(got), mgr.queries)
		}
	})

	t.Run("Antimeridian rectangle queries both halves", func(t *testing.T) {
		mgr := &fakeManager{clients: []Aircraft{
			{ID: 1, Registration: "ANZ1", Pos: geo.Pos{Lat: -18, Lon: 178}},
			{ID: 2, Registration: "FJI2", Pos: geo.Pos{Lat: -18, Lon: -175}},
		}}
		c := cacheTestController(mgr, &fakeSim{}, DefaultTuning())

		crossing := geo.Rect{North: -10, South: -25, West: 170, East: -170}
		got, err := c.Aircraft(ctx, crossing, LayerParams{}, false)
		if err != nil {
			t.Fatalf("Aircraft failed: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("Expected aircraft from both sides of the line, got %d", len(got))
		}
		if mgr.queries != 2 {
			t.Errorf("Expected one query per half, got %d", mgr.queries)
		}
		for _, r := range mgr.queriedRects {
			if r.CrossesAntimeridian() {
				t.Errorf("Expected non-crossing query rectangles, got %+v", r)
			}
		}
	})

	t.Run("Row ceiling enforced", func(t *testing.T) {
		mgr := &fakeManager{}
		for i := 0; i < 10; i++ {
			mgr.clients = append(mgr.clients, Aircraft{
				ID:           i + 1,
				Registration: fmt.Sprintf("AC%03d", i),
				Pos:          geo.Pos{Lat: 50, Lon: 5},
			})
		}
		tun := DefaultTuning()
		tun.MaxCacheRows = 3
		c := cacheTestController(mgr, &fakeSim{}, tun)

		got, err := c.Aircraft(ctx, rect, LayerParams{}, false)
		if err != nil {
			t.Fatalf("Aircraft failed: %v", err)
		}
		if len(got) != 3 {
			t.Errorf("Expected result truncated to 3 rows, got %d", len(got))
		}
	})
}

// TestDuplicateSuppression verifies that aircraft known from the live
// simulator feed are not returned twice.
func TestDuplicateSuppression(t *testing.T) {
	ctx := context.Background()
	rect := geo.Rect{North: 55, South: 45, West: 0, East: 10}

	near := geo.Pos{Lat: 50, Lon: 5}
	// About 120 nm away, well outside the duplicate radius
	far := geo.Pos{Lat: 52, Lon: 5}

	t.Run("Nearby same registration suppressed", func(t *testing.T) {
		mgr := &fakeManager{clients: []Aircraft{
			{ID: 1, Registration: "N12345", Pos: geo.Pos{Lat: 50.1, Lon: 5.1}},
			{ID: 2, Registration: "BAW456", Pos: geo.Pos{Lat: 51, Lon: 6}},
		}}
		sim := &fakeSim{
			connected: true,
			user:      SimAircraft{Registration: "N12345", Pos: near},
			hasUser:   true,
		}
		c := cacheTestController(mgr, sim, DefaultTuning())

		got, err := c.Aircraft(ctx, rect, LayerParams{}, false)
		if err != nil {
			t.Fatalf("Aircraft failed: %v", err)
		}
		if len(got) != 1 || got[0].Registration != "BAW456" {
			t.Errorf("Expected the simulator duplicate suppressed, got %+v", got)
		}
	})

	t.Run("Distant same registration kept", func(t *testing.T) {
		mgr := &fakeManager{clients: []Aircraft{
			{ID: 1, Registration: "N12345", Pos: geo.Pos{Lat: 50.1, Lon: 5.1}},
		}}
		sim := &fakeSim{
			connected: true,
			user:      SimAircraft{Registration: "N12345", Pos: far},
			hasUser:   true,
		}
		c := cacheTestController(mgr, sim, DefaultTuning())

		got, err := c.Aircraft(ctx, rect, LayerParams{}, false)
		if err != nil {
			t.Fatalf("Aircraft failed: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("Expected distant aircraft kept, got %d", len(got))
		}
	})

	t.Run("AI aircraft only counted while connected", func(t *testing.T) {
		mgr := &fakeManager{clients: []Aircraft{
			{ID: 1, Registration: "AIB001", Pos: geo.Pos{Lat: 50.05, Lon: 5.05}},
		}}
		sim := &fakeSim{
			ai: []SimAircraft{{Registration: "AIB001", Pos: near}},
		}
		c := cacheTestController(mgr, sim, DefaultTuning())

		got, _ := c.Aircraft(ctx, rect, LayerParams{}, false)
		if len(got) != 1 {
			t.Errorf("Expected AI ignored while disconnected, got %d aircraft", len(got))
		}

		sim.connected = true
		got, _ = c.Aircraft(ctx, rect, LayerParams{}, false)
		if len(got) != 0 {
			t.Errorf("Expected AI duplicate suppressed while connected, got %d aircraft", len(got))
		}
	})

	t.Run("Debug user aircraft enables AI without connection", func(t *testing.T) {
		mgr := &fakeManager{clients: []Aircraft{
			{ID: 1, Registration: "AIB001", Pos: geo.Pos{Lat: 50.05, Lon: 5.05}},
		}}
		sim := &fakeSim{
			user:    SimAircraft{Registration: "XDEBUG", Pos: far, Debug: true},
			hasUser: true,
			ai:      []SimAircraft{{Registration: "AIB001", Pos: near}},
		}
		c := cacheTestController(mgr, sim, DefaultTuning())

		got, _ := c.Aircraft(ctx, rect, LayerParams{}, false)
		if len(got) != 0 {
			t.Errorf("Expected AI duplicate suppressed via debug aircraft, got %d", len(got))
		}
	})
}

// TestRegistrationInvalidation verifies that a changed set of live
// registrations clears the cache even under lazy.
func TestRegistrationInvalidation(t *testing.T) {
	ctx := context.Background()
	rect := geo.Rect{North: 55, South: 45, West: 0, East: 10}

	mgr := &fakeManager{clients: []Aircraft{
		{ID: 1, Registration: "DLH123", Pos: geo.Pos{Lat: 50, Lon: 5}},
	}}
	sim := &fakeSim{connected: true}
	c := cacheTestController(mgr, sim, DefaultTuning())

	if _, err := c.Aircraft(ctx, rect, LayerParams{}, false); err != nil {
		t.Fatalf("Aircraft failed: %v", err)
	}
	if mgr.queries != 1 {
		t.Fatalf("Expected 1 query, got %d", mgr.queries)
	}

	// A new live aircraft appears: even a lazy query must reload
	sim.user = SimAircraft{Registration: "N99999", Pos: geo.Pos{Lat: 50, Lon: 5}}
	sim.hasUser = true

	got, err := c.Aircraft(ctx, rect, LayerParams{}, true)
	if err != nil {
		t.Fatalf("Aircraft failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected cleared cache under lazy after feed change, got %d", len(got))
	}

	if _, err := c.Aircraft(ctx, rect, LayerParams{}, false); err != nil {
		t.Fatalf("Aircraft failed: %v", err)
	}
	if mgr.queries != 2 {
		t.Errorf("Expected reload after registration change, got %d queries", mgr.queries)
	}

	// Position-only movement of the same registration does not invalidate
	sim.user.Pos = geo.Pos{Lat: 51, Lon: 6}
	if _, err := c.Aircraft(ctx, rect, LayerParams{}, false); err != nil {
		t.Fatalf("Aircraft failed: %v", err)
	}
	if mgr.queries != 2 {
		t.Errorf("Expected no reload for position-only change, got %d queries", mgr.queries)
	}
}
