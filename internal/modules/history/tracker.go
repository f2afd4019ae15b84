// Package history maintains per-asset rolling windows of period returns.
package history

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// window is a fixed-capacity ring buffer of period returns.
type window struct {
	buf  []float64
	head int // index of the oldest element
	n    int // number of elements currently held
}

func newWindow(capacity int) *window {
	return &window{buf: make([]float64, capacity)}
}

func (w *window) push(v float64) {
	if w.n < len(w.buf) {
		w.buf[(w.head+w.n)%len(w.buf)] = v
		w.n++
		return
	}
	// Full: overwrite the oldest entry
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
}

// values returns the window contents oldest-first.
func (w *window) values() []float64 {
	out := make([]float64, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

// Tracker owns one rolling return window per asset. It is the only persistent
// mutable state of the allocation pipeline; the pipeline driver owns it
// exclusively and mutates it only between cycles. Asset add and remove are the
// only entry points that change the tracked universe.
type Tracker struct {
	lookback int
	windows  map[string]*window
	lastAt   map[string]time.Time
	log      zerolog.Logger
}

// NewTracker creates a tracker with a fixed lookback window length.
func NewTracker(lookback int, log zerolog.Logger) *Tracker {
	return &Tracker{
		lookback: lookback,
		windows:  make(map[string]*window),
		lastAt:   make(map[string]time.Time),
		log:      log.With().Str("component", "return_tracker").Logger(),
	}
}

// Lookback returns the configured window length L.
func (t *Tracker) Lookback() int {
	return t.lookback
}

// Add appends one period-return observation for an asset. Once the window
// holds the full lookback, the oldest entry is discarded. Assets not yet in
// the universe are created implicitly.
func (t *Tracker) Add(symbol string, at time.Time, periodReturn float64) {
	w, ok := t.windows[symbol]
	if !ok {
		w = newWindow(t.lookback)
		t.windows[symbol] = w
	}
	w.push(periodReturn)
	t.lastAt[symbol] = at
}

// Warmup seeds an asset's window from a historical batch of period returns,
// oldest-first. Only the most recent lookback entries are kept. Any prior
// state for the asset is replaced.
func (t *Tracker) Warmup(symbol string, returns []float64) {
	w := newWindow(t.lookback)
	start := 0
	if len(returns) > t.lookback {
		start = len(returns) - t.lookback
	}
	for _, r := range returns[start:] {
		w.push(r)
	}
	t.windows[symbol] = w

	t.log.Debug().
		Str("symbol", symbol).
		Int("seeded", w.n).
		Msg("Warmed up return window")
}

// Remove discards all tracker state for an asset leaving the universe.
func (t *Tracker) Remove(symbol string) {
	delete(t.windows, symbol)
	delete(t.lastAt, symbol)
}

// Has reports whether the asset is tracked at all.
func (t *Tracker) Has(symbol string) bool {
	_, ok := t.windows[symbol]
	return ok
}

// Ready reports whether the asset's window holds the full lookback.
func (t *Tracker) Ready(symbol string) bool {
	w, ok := t.windows[symbol]
	return ok && w.n == t.lookback
}

// Series returns the asset's current returns oldest-first. The result is a
// copy: re-querying yields the same values until the next Add.
func (t *Tracker) Series(symbol string) []float64 {
	w, ok := t.windows[symbol]
	if !ok {
		return nil
	}
	return w.values()
}

// LastObservedAt returns the time of the most recent live observation.
func (t *Tracker) LastObservedAt(symbol string) (time.Time, bool) {
	at, ok := t.lastAt[symbol]
	return at, ok
}

// Symbols returns the tracked asset identifiers in sorted order.
func (t *Tracker) Symbols() []string {
	symbols := make([]string, 0, len(t.windows))
	for s := range t.windows {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// ReadySymbols returns the sorted subset of assets with full windows.
func (t *Tracker) ReadySymbols() []string {
	symbols := make([]string, 0, len(t.windows))
	for s, w := range t.windows {
		if w.n == t.lookback {
			symbols = append(symbols, s)
		}
	}
	sort.Strings(symbols)
	return symbols
}
