package history

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// snapshot is the on-disk representation of tracker state.
type snapshot struct {
	Lookback int                  `msgpack:"lookback"`
	Series   map[string][]float64 `msgpack:"series"`
	LastAt   map[string]time.Time `msgpack:"last_at"`
	SavedAt  time.Time            `msgpack:"saved_at"`
}

// SaveSnapshot persists the tracker state so a restart does not lose the
// warmed lookback windows. The write is atomic (temp file + rename).
func (t *Tracker) SaveSnapshot(path string) error {
	snap := snapshot{
		Lookback: t.lookback,
		Series:   make(map[string][]float64, len(t.windows)),
		LastAt:   make(map[string]time.Time, len(t.lastAt)),
		SavedAt:  time.Now().UTC(),
	}
	for symbol, w := range t.windows {
		snap.Series[symbol] = w.values()
	}
	for symbol, at := range t.lastAt {
		snap.LastAt[symbol] = at
	}

	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("failed to encode tracker snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write tracker snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace tracker snapshot: %w", err)
	}

	t.log.Debug().
		Str("path", path).
		Int("symbols", len(snap.Series)).
		Msg("Saved tracker snapshot")

	return nil
}

// RestoreSnapshot loads previously saved tracker state. A snapshot written
// with a different lookback is ignored: the window semantics would not match.
// Returns the number of restored assets.
func (t *Tracker) RestoreSnapshot(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read tracker snapshot: %w", err)
	}

	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return 0, fmt.Errorf("failed to decode tracker snapshot: %w", err)
	}

	if snap.Lookback != t.lookback {
		t.log.Warn().
			Int("snapshot_lookback", snap.Lookback).
			Int("configured_lookback", t.lookback).
			Msg("Ignoring tracker snapshot with mismatched lookback")
		return 0, nil
	}

	for symbol, returns := range snap.Series {
		t.Warmup(symbol, returns)
		if at, ok := snap.LastAt[symbol]; ok {
			t.lastAt[symbol] = at
		}
	}

	t.log.Info().
		Str("path", path).
		Int("symbols", len(snap.Series)).
		Time("saved_at", snap.SavedAt).
		Msg("Restored tracker snapshot")

	return len(snap.Series), nil
}
