package intensity

// DefaultLimit is the default cache budget in channel values.
const DefaultLimit = 1_000_000

// bucket holds the cached values for one plane/time.
type bucket struct {
	count  int // number of channel values across all pixels
	pixels map[PixelKey]ChannelValues
}

// Cache stores per-pixel channel intensities keyed by plane/time, bounded by
// a global budget counted in channel values. When a merge would exceed the
// budget, buckets for other plane/time keys are evicted first; the current
// bucket is sacrificed only as a last resort.
//
// It is not safe for concurrent use; callers must synchronize externally
// or confine access to a single goroutine (e.g., the Bubble Tea update loop).
type Cache struct {
	limit   int
	total   int
	buckets map[PlaneKey]*bucket
}

// New creates an empty cache with the given budget in channel values.
// A non-positive limit falls back to DefaultLimit.
func New(limit int) *Cache {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Cache{limit: limit, buckets: make(map[PlaneKey]*bucket)}
}

// Lookup returns the cached channel values for the exact plane/pixel, or
// nil and false on miss. The returned map is live cache state; callers must
// not modify it.
func (c *Cache) Lookup(plane PlaneKey, px PixelKey) (ChannelValues, bool) {
	b, ok := c.buckets[plane]
	if !ok {
		return nil, false
	}
	cv, ok := b.pixels[px]
	if !ok {
		return nil, false
	}
	return cv, true
}

// Missing returns the subset of channels not yet cached for the plane/pixel,
// preserving order. On a full miss it returns a copy of channels.
func (c *Cache) Missing(plane PlaneKey, px PixelKey, channels []int) []int {
	cv, ok := c.Lookup(plane, px)
	if !ok {
		return append([]int(nil), channels...)
	}
	var missing []int
	for _, ch := range channels {
		if _, ok := cv[ch]; !ok {
			missing = append(missing, ch)
		}
	}
	return missing
}

// Merge folds a payload for the given plane/time into the cache.
//
// If the payload would push the total over the budget, buckets for other
// plane/time keys are evicted (arbitrary order) until it fits; if it still
// does not fit, the current bucket is dropped and the count reset, accepting
// full cache loss rather than exceeding the budget. Existing channel values
// are never overwritten: a late or duplicate payload only adds values that
// are not yet recorded, so Merge is idempotent.
func (c *Cache) Merge(plane PlaneKey, p Payload) {
	if len(p.Pixels) == 0 {
		return
	}

	c.makeRoom(plane, p.Count)

	b, ok := c.buckets[plane]
	if !ok {
		// A payload that cannot fit even in an empty cache is not cached.
		if p.Count > c.limit {
			return
		}
		nb := &bucket{count: p.Count, pixels: make(map[PixelKey]ChannelValues, len(p.Pixels))}
		for px, cv := range p.Pixels {
			vals := make(ChannelValues, len(cv))
			for ch, v := range cv {
				vals[ch] = v
			}
			nb.pixels[px] = vals
		}
		c.buckets[plane] = nb
		c.total += p.Count
		return
	}

	for px, cv := range p.Pixels {
		existing, ok := b.pixels[px]
		if !ok {
			existing = make(ChannelValues, len(cv))
			b.pixels[px] = existing
		}
		for ch, v := range cv {
			if _, ok := existing[ch]; ok {
				continue
			}
			existing[ch] = v
			b.count++
			c.total++
		}
	}
}

// makeRoom evicts buckets until incoming values fit within the budget.
// Buckets other than the current plane go first; the current bucket is
// dropped only if evicting every foreign bucket was not enough.
func (c *Cache) makeRoom(plane PlaneKey, incoming int) {
	if c.total+incoming <= c.limit {
		return
	}
	for key, b := range c.buckets {
		if key == plane {
			continue
		}
		c.total -= b.count
		delete(c.buckets, key)
		if c.total+incoming <= c.limit {
			return
		}
	}
	if c.total+incoming > c.limit {
		delete(c.buckets, plane)
		c.total = 0
	}
}

// Total returns the number of channel values currently cached.
func (c *Cache) Total() int {
	return c.total
}

// Limit returns the cache budget in channel values.
func (c *Cache) Limit() int {
	return c.limit
}

// Planes returns the number of plane/time buckets currently held.
func (c *Cache) Planes() int {
	return len(c.buckets)
}
