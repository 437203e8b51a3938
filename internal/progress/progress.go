package progress

import "time"

// Tick is one progress sample reported by a transfer client.
type Tick struct {
	BytesRead     int64
	ContentLength int64
	Speed         int64 // bytes per second
	ETA           time.Duration
	Done          bool
}

// Percent returns the integer percentage of t, using fallbackSize when the
// transfer does not know its own length. ok is false when neither is known.
func (t Tick) Percent(fallbackSize int64) (pct int, ok bool) {
	total := t.ContentLength
	if total <= 0 {
		total = fallbackSize
	}

	if total <= 0 {
		return 0, false
	}

	p := t.BytesRead * 100 / total
	if p > 100 {
		p = 100
	}

	if p < 0 {
		p = 0
	}

	return int(p), true
}

type sample struct {
	t     time.Time
	bytes int64
}

// Meter derives speed and ETA from byte counts over a sliding window.
type Meter struct {
	window  time.Duration
	history []sample
}

// NewMeter returns a meter smoothing over window.
func NewMeter(window time.Duration) *Meter {
	return &Meter{window: window}
}

// Observe records that n of total bytes were done at now. A count lower than
// the previous one starts a fresh window.
func (m *Meter) Observe(now time.Time, n, total int64) (speedBPS int64, eta time.Duration) {
	if len(m.history) > 0 && n < m.history[len(m.history)-1].bytes {
		m.history = nil
	}

	m.history = append(m.history, sample{t: now, bytes: n})

	cutoff := now.Add(-m.window)
	for len(m.history) > 1 && m.history[0].t.Before(cutoff) {
		m.history = m.history[1:]
	}

	if len(m.history) >= 2 {
		oldest := m.history[0]

		elapsed := now.Sub(oldest.t).Seconds()
		if elapsed > 0 {
			speedBPS = int64(float64(n-oldest.bytes) / elapsed)
		}
	}

	if speedBPS > 0 && total > 0 {
		remaining := total - n
		if remaining > 0 {
			eta = time.Duration(float64(remaining) / float64(speedBPS) * float64(time.Second))
		}
	}

	return speedBPS, eta
}

// Throttle decides whether a progress value is worth reporting: on every
// percent change, or once the interval has passed since the last report.
type Throttle struct {
	interval    time.Duration
	last        time.Time
	lastPercent int
	reported    bool
}

// NewThrottle returns a throttle reporting at least once per interval.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval}
}

// Allow reports whether pct observed at now should be reported, and records
// it as reported if so.
func (t *Throttle) Allow(now time.Time, pct int) bool {
	if t.reported && pct == t.lastPercent && now.Sub(t.last) < t.interval {
		return false
	}

	t.reported = true
	t.last = now
	t.lastPercent = pct

	return true
}
