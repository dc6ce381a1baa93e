// Package slidingwindow implements a time-bucketed rolling counter over a
// fixed list of window lengths, per spec.md §4.1.
package slidingwindow

import (
	"sync/atomic"
	"time"
)

// defaultBucketsPerWindow is N from spec.md §4.1's algorithm
// (resolution = W/N).
const defaultBucketsPerWindow = 60

// DefaultWindows are the sliding windows a Counter tracks when New is
// given none. Their order is the order Measurements() reports them in.
var DefaultWindows = []time.Duration{
	time.Minute,
	time.Hour,
	24 * time.Hour,
}

// Measurement is the reported aggregate for one window at read time.
type Measurement struct {
	Window       time.Duration
	WindowStart  time.Time
	SuccessCount int64
	FailureCount int64
}

// bucket holds one resolution-slice of a window's ring. epoch is the
// bucket index (t / resolution) the counts currently belong to; a read
// or write for a different epoch resets the bucket first.
type bucket struct {
	epoch   int64
	success int64
	failure int64
}

// ring is one configured window's fixed-size bucket array plus its
// resolution.
type ring struct {
	window     time.Duration
	resolution time.Duration
	buckets    []bucket
}

func newRing(window time.Duration, n int) *ring {
	if n <= 0 {
		n = defaultBucketsPerWindow
	}
	return &ring{
		window:     window,
		resolution: window / time.Duration(n),
		buckets:    make([]bucket, n),
	}
}

func (r *ring) epochAt(t time.Time) int64 {
	if r.resolution <= 0 {
		return 0
	}
	return t.UnixNano() / int64(r.resolution)
}

func (r *ring) indexAt(t time.Time) int {
	n := len(r.buckets)
	e := r.epochAt(t)
	idx := e % int64(n)
	if idx < 0 {
		idx += int64(n)
	}
	return int(idx)
}

// record resets the target bucket to empty if it belongs to a stale
// epoch, then increments it. Each bucket field is read and written with
// its own atomic operation; no lock is taken.
func (r *ring) record(t time.Time, success bool) {
	idx := r.indexAt(t)
	epoch := r.epochAt(t)
	b := &r.buckets[idx]
	if atomic.LoadInt64(&b.epoch) != epoch {
		atomic.StoreInt64(&b.epoch, epoch)
		atomic.StoreInt64(&b.success, 0)
		atomic.StoreInt64(&b.failure, 0)
	}
	if success {
		atomic.AddInt64(&b.success, 1)
	} else {
		atomic.AddInt64(&b.failure, 1)
	}
}

// sum iterates the buckets whose epoch falls within the window ending
// at t, pruning (by simply skipping) any bucket whose epoch is stale.
// Pruning is lazy: a bucket is only ever reset on the next write to it
// (record), never eagerly, which is what makes a long idle period still
// report correctly on read per spec.md §4.1.
func (r *ring) sum(t time.Time) (success, failure int64, windowStart time.Time) {
	nowEpoch := r.epochAt(t)
	n := int64(len(r.buckets))
	oldestRelevant := nowEpoch - n + 1
	for i := range r.buckets {
		b := &r.buckets[i]
		e := atomic.LoadInt64(&b.epoch)
		if e < oldestRelevant || e > nowEpoch {
			continue
		}
		success += atomic.LoadInt64(&b.success)
		failure += atomic.LoadInt64(&b.failure)
	}
	windowStart = t.Add(-r.window)
	return success, failure, windowStart
}

// Counter maintains per-window rolling counts for a single metric key.
// increment is non-blocking with respect to other Counters: each ring's
// hot path only touches its own buckets via atomics, so concurrent
// Counters for different keys never contend with one another.
type Counter struct {
	rings []*ring
}

// New creates a Counter over the given windows (spec.md defaults: 1m,
// 1h, 1d, via DefaultWindows). bucketsPerWindow lets callers trade
// resolution for memory; 0 uses the spec's suggested N=60.
func New(windows []time.Duration, bucketsPerWindow int) *Counter {
	if len(windows) == 0 {
		windows = DefaultWindows
	}
	rings := make([]*ring, len(windows))
	for i, w := range windows {
		rings[i] = newRing(w, bucketsPerWindow)
	}
	return &Counter{rings: rings}
}

// Increment advances every configured window's rolling counter for the
// given outcome at the current wall-clock time.
func (c *Counter) Increment(success bool) {
	c.IncrementAt(time.Now(), success)
}

// IncrementAt is Increment with an explicit timestamp, used by tests to
// simulate the passage of time without sleeping.
func (c *Counter) IncrementAt(t time.Time, success bool) {
	for _, r := range c.rings {
		r.record(t, success)
	}
}

// Counts reports the current (successCount, failureCount, windowStart)
// for the given window length. If the window isn't configured on this
// Counter, ok is false.
func (c *Counter) Counts(window time.Duration) (success, failure int64, windowStart time.Time, ok bool) {
	return c.CountsAt(time.Now(), window)
}

// CountsAt is Counts evaluated as of an explicit instant rather than
// time.Now(), so callers (and tests) can reason about the ring
// deterministically.
func (c *Counter) CountsAt(t time.Time, window time.Duration) (success, failure int64, windowStart time.Time, ok bool) {
	for _, r := range c.rings {
		if r.window == window {
			s, f, ws := r.sum(t)
			return s, f, ws, true
		}
	}
	return 0, 0, time.Time{}, false
}

// Measurements returns one Measurement per configured window, in
// configuration order.
func (c *Counter) Measurements() []Measurement {
	return c.MeasurementsAt(time.Now())
}

// MeasurementsAt is Measurements evaluated as of an explicit instant.
func (c *Counter) MeasurementsAt(t time.Time) []Measurement {
	out := make([]Measurement, len(c.rings))
	for i, r := range c.rings {
		s, f, ws := r.sum(t)
		out[i] = Measurement{Window: r.window, WindowStart: ws, SuccessCount: s, FailureCount: f}
	}
	return out
}

// ToMeasurement returns the single Measurement for the given window,
// mirroring spec.md §3's `toMeasurement(success)` accessor. The
// returned Measurement always carries both counts; callers interested
// in just one outcome read the matching field.
func (c *Counter) ToMeasurement(window time.Duration) (Measurement, bool) {
	s, f, ws, ok := c.Counts(window)
	if !ok {
		return Measurement{}, false
	}
	return Measurement{Window: window, WindowStart: ws, SuccessCount: s, FailureCount: f}, true
}
