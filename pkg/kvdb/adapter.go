// Copyright 2025 Certen Protocol
//
// KV Adapter for CometBFT Database Integration
// Wraps CometBFT's dbm.DB interface behind a minimal Get/Set surface so
// callers (the embedded Claim Store) don't depend on cometbft-db directly.

package kvdb

import (
	dbm "github.com/cometbft/cometbft-db"
)

// KVAdapter wraps a CometBFT dbm.DB and exposes a plain Get/Set interface.
type KVAdapter struct {
	db dbm.DB
}

// NewKVAdapter creates a new KVAdapter for the given underlying DB.
func NewKVAdapter(db dbm.DB) *KVAdapter {
	return &KVAdapter{db: db}
}

// Get returns the value for key, or nil if absent.
func (a *KVAdapter) Get(key []byte) ([]byte, error) {
	if a.db == nil {
		return nil, nil
	}

	if v, err := a.db.Get(key); err != nil {
		return nil, err
	} else {
		// v may be nil if key not found – callers treat nil as "not present".
		return v, nil
	}
}

// Set durably writes key/value.
func (a *KVAdapter) Set(key, value []byte) error {
	if a.db == nil {
		return nil
	}

	// SetSync for durable writes; the embedded store has no separate WAL.
	if err := a.db.SetSync(key, value); err != nil {
		return err
	}
	return nil
}

// Iterate calls fn for every key in [start, end) in ascending key order,
// stopping early if fn returns false. end == nil means "no upper bound".
func (a *KVAdapter) Iterate(start, end []byte, fn func(key, value []byte) bool) error {
	if a.db == nil {
		return nil
	}
	it, err := a.db.Iterator(start, end)
	if err != nil {
		return err
	}
	defer it.Close()

	for ; it.Valid(); it.Next() {
		if !fn(it.Key(), it.Value()) {
			break
		}
	}
	return it.Error()
}