// Package instrument persists the traded instrument referential. Instruments
// are keyed by security name; the close price is written back at the end of
// every session and seeds the next session's reference price.
package instrument

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"exchange/internal/orderbook"
)

// Instrument describes one tradable security.
type Instrument struct {
	Name       string
	ISIN       string
	Currency   string
	ProductID  uint32
	ClosePrice orderbook.Price
}

// Manager reads and writes the instrument database.
type Manager struct {
	db *pebble.DB
}

// Open opens or creates the instrument database at path.
func Open(path string) (*Manager, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open instrument db %s: %w", path, err)
	}
	return &Manager{db: db}, nil
}

func (m *Manager) Close() error { return m.db.Close() }

// Load iterates every stored instrument in key order. Iteration stops at
// the first callback error.
func (m *Manager) Load(fn func(Instrument) error) error {
	iter, err := m.db.NewIter(nil)
	if err != nil {
		return fmt.Errorf("instrument iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var inst Instrument
		if err := gob.NewDecoder(bytes.NewReader(iter.Value())).Decode(&inst); err != nil {
			return fmt.Errorf("decode instrument %q: %w", iter.Key(), err)
		}
		if err := fn(inst); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Get fetches one instrument by security name.
func (m *Manager) Get(name string) (Instrument, bool, error) {
	val, closer, err := m.db.Get([]byte(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return Instrument{}, false, nil
	}
	if err != nil {
		return Instrument{}, false, fmt.Errorf("get instrument %s: %w", name, err)
	}
	defer closer.Close()

	var inst Instrument
	if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&inst); err != nil {
		return Instrument{}, false, fmt.Errorf("decode instrument %s: %w", name, err)
	}
	return inst, true, nil
}

// Write stores inst under its name, fsyncing when sync is set.
func (m *Manager) Write(inst Instrument, sync bool) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(inst); err != nil {
		return fmt.Errorf("encode instrument %s: %w", inst.Name, err)
	}
	opts := pebble.NoSync
	if sync {
		opts = pebble.Sync
	}
	if err := m.db.Set([]byte(inst.Name), buf.Bytes(), opts); err != nil {
		return fmt.Errorf("write instrument %s: %w", inst.Name, err)
	}
	return nil
}
