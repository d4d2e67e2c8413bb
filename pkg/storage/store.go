// Package storage persists the exchange state snapshot and the chain event
// log in Pebble, so a restarted node recovers both its balances/orders and
// the historical log that client backfill reads from.
package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/dexhub/tokenex/pkg/chain"
	"github.com/dexhub/tokenex/pkg/exchange"
	"github.com/dexhub/tokenex/pkg/token"
)

func init() {
	// Concrete event payloads crossing the chain.Event interface must be
	// registered for gob.
	gob.Register(exchange.DepositEvent{})
	gob.Register(exchange.WithdrawEvent{})
	gob.Register(exchange.MakeOrderEvent{})
	gob.Register(exchange.CancelOrderEvent{})
	gob.Register(exchange.FillOrderEvent{})
	gob.Register(token.TransferEvent{})
	gob.Register(token.ApprovalEvent{})
	gob.Register(token.TokensDistributedEvent{})
}

// Store wraps a Pebble database. It is driven from the chain's serialized
// commit path and from startup recovery, so it carries no lock of its own.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the database at dbPath.
func Open(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(64 << 20),
		MemTableSize: 32 << 20,
		MaxOpenFiles: 1000,
		BytesPerSync: 512 << 10,
	}
	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveState persists the exchange aggregate snapshot.
func (s *Store) SaveState(state *exchange.State) error {
	data, err := encodeGob(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := s.db.Set([]byte(keyState), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// LoadState returns the persisted snapshot, or nil if none exists.
func (s *Store) LoadState() (*exchange.State, error) {
	data, closer, err := s.db.Get([]byte(keyState))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state: %w", err)
	}
	defer closer.Close()

	var state exchange.State
	if err := decodeGob(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return &state, nil
}

// AppendLogs writes committed logs as one atomic batch. Implements chain.Sink.
func (s *Store) AppendLogs(logs []chain.Log) error {
	if len(logs) == 0 {
		return nil
	}
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, l := range logs {
		data, err := encodeGob(&l)
		if err != nil {
			return fmt.Errorf("failed to encode log: %w", err)
		}
		key := logKey(l.Meta.BlockNumber, l.Meta.TxIndex, l.Meta.LogIndex)
		if err := batch.Set(key, data, nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

// LoadLogs returns every persisted log in canonical order.
func (s *Store) LoadLogs() ([]chain.Log, error) {
	prefix := logPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log iterator: %w", err)
	}
	defer iter.Close()

	var logs []chain.Log
	for iter.First(); iter.Valid(); iter.Next() {
		var l chain.Log
		if err := decodeGob(iter.Value(), &l); err != nil {
			return nil, fmt.Errorf("failed to decode log %q: %w", iter.Key(), err)
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
