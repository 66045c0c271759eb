// Package snapshot reads periodic price snapshot files.
// Each file holds one JSON object keyed "0" mapping coin id to a
// positional quote array; file names sort as the time axis.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bytedance/sonic"

	"bsc-trade-engine/internal/domain"
)

// Snapshot is one decoded snapshot file.
type Snapshot struct {
	Cycle  string // file name
	Quotes map[string]domain.PriceQuote
}

// Quote returns the quote for a coin and whether it is present.
func (s *Snapshot) Quote(coinID string) (domain.PriceQuote, bool) {
	q, ok := s.Quotes[coinID]
	return q, ok
}

// Reader loads snapshots from a directory in filename-sort order.
type Reader struct {
	dir string
}

// NewReader creates a snapshot reader over dir.
func NewReader(dir string) *Reader {
	return &Reader{dir: dir}
}

// Cycles returns all snapshot file names, sorted ascending.
func (r *Reader) Cycles() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Load decodes a single snapshot file by cycle name.
func (r *Reader) Load(cycle string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, cycle))
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", cycle, err)
	}

	var doc map[string]map[string][]float64
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", cycle, err)
	}
	raw, ok := doc["0"]
	if !ok {
		return nil, fmt.Errorf("snapshot %s missing %q key", cycle, "0")
	}

	snap := &Snapshot{
		Cycle:  cycle,
		Quotes: make(map[string]domain.PriceQuote, len(raw)),
	}
	for coinID, arr := range raw {
		q, err := domain.DecodeQuoteArray(coinID, arr)
		if err != nil {
			// A single malformed entry does not poison the snapshot.
			continue
		}
		snap.Quotes[coinID] = q
	}
	return snap, nil
}

// Latest loads the most recent snapshot.
func (r *Reader) Latest() (*Snapshot, error) {
	return r.AtOffset(0)
}

// AtOffset loads the snapshot n cycles before the latest one.
// Offset 0 is the latest.
func (r *Reader) AtOffset(n int) (*Snapshot, error) {
	if n < 0 {
		return nil, fmt.Errorf("offset must be >= 0, got %d", n)
	}
	names, err := r.Cycles()
	if err != nil {
		return nil, err
	}
	if len(names) <= n {
		return nil, fmt.Errorf("need %d snapshots, have %d", n+1, len(names))
	}
	return r.Load(names[len(names)-1-n])
}
