package online

import (
	"context"

	"github.com/QQ7ita/littlenavmap/pkg/geo"
)

// LayerParams are the map layer parameters that affect a spatial query
// result. A cache built for one parameter set is invalid for another.
type LayerParams struct {
	// MinAltitudeFt and MaxAltitudeFt bound the altitude band shown by
	// the layer. Zero values mean unbounded.
	MinAltitudeFt int
	MaxAltitudeFt int
}

// allows reports whether an aircraft passes the layer's altitude band.
func (l LayerParams) allows(ac Aircraft) bool {
	if l.MinAltitudeFt != 0 && ac.Altitude < l.MinAltitudeFt {
		return false
	}
	if l.MaxAltitudeFt != 0 && ac.Altitude > l.MaxAltitudeFt {
		return false
	}
	return true
}

// aircraftCache holds the last materialized aircraft result together
// with the inflated rectangle and layer parameters it was built for.
// Contents are only valid for that region; parameter changes and
// registration snapshot changes clear it.
type aircraftCache struct {
	list  []Aircraft
	rect  geo.Rect
	layer LayerParams
	valid bool

	// regs is the registration snapshot the cache was built against
	regs map[string]geo.Pos
}

// validateParams clears the cache when the requested rectangle is not
// covered by the cached one or the layer parameters changed.
func (c *aircraftCache) validateParams(rect geo.Rect, layer LayerParams) {
	if !c.valid {
		return
	}
	if c.layer != layer || !c.rect.ContainsRect(rect) {
		c.clear()
	}
}

// clear empties the cache and the remembered registration snapshot.
func (c *aircraftCache) clear() {
	c.list = nil
	c.valid = false
	c.regs = nil
}

// truncate bounds the cached list to the row ceiling.
func (c *aircraftCache) truncate(maxRows int) {
	if maxRows > 0 && len(c.list) > maxRows {
		c.list = c.list[:maxRows]
	}
}

// sameRegistrations compares two snapshots by key set only; position
// changes alone do not invalidate the cache.
func sameRegistrations(a, b map[string]geo.Pos) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// Aircraft returns the online aircraft for the given map region. A lazy
// caller accepts a possibly stale non-empty cache without triggering
// store I/O; that is the latency tradeoff for interactive map panning.
//
// Aircraft known from the live simulator feed under the same
// registration are suppressed when within the duplicate distance, so the
// same airframe is not drawn twice from two data sources.
func (c *Controller) Aircraft(ctx context.Context, rect geo.Rect, layer LayerParams, lazy bool) ([]Aircraft, error) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	c.cache.validateParams(rect, layer)

	cur := c.registrationSnapshot()
	if !sameRegistrations(cur, c.cache.regs) {
		// The set of live aircraft changed; force a clear and reload even
		// under lazy.
		c.cache.clear()
	}

	if len(c.cache.list) == 0 && !lazy {
		inflated := rect.Inflated(c.tun.RectInflationFactor, c.tun.RectInflationIncrement)

	query:
		for _, r := range geo.SplitAtAntimeridian(rect, c.tun.RectInflationFactor, c.tun.RectInflationIncrement) {
			records, err := c.mgr.ClientsByRect(ctx, r)
			if err != nil {
				return nil, err
			}
			for _, ac := range records {
				if !layer.allows(ac) {
					continue
				}
				if pos, ok := cur[ac.Registration]; ok &&
					geo.DistanceNM(ac.Pos, pos) <= c.tun.DuplicateDistanceNM {
					// Duplicate of a nearby simulator aircraft.
					continue
				}
				c.cache.list = append(c.cache.list, ac)
				if len(c.cache.list) >= c.tun.MaxCacheRows {
					break query
				}
			}
		}

		c.cache.rect = inflated
		c.cache.layer = layer
		c.cache.valid = true
		c.cache.regs = cur
	}

	c.cache.truncate(c.tun.MaxCacheRows)
	return c.cache.list, nil
}

// ClearCache empties the spatial cache and the remembered registration
// snapshot unconditionally.
func (c *Controller) ClearCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache.clear()
}

// registrationSnapshot builds the current registration-to-position map
// from the user's own aircraft plus, when the simulator connection is
// active or a debug aircraft is present, all tracked AI aircraft.
func (c *Controller) registrationSnapshot() map[string]geo.Pos {
	regs := make(map[string]geo.Pos)

	user, ok := c.sim.UserAircraft()
	if ok {
		regs[user.Registration] = user.Pos
	}
	if c.sim.Connected() || (ok && user.Debug) {
		for _, ac := range c.sim.AIAircraft() {
			regs[ac.Registration] = ac.Pos
		}
	}
	delete(regs, "")
	return regs
}
