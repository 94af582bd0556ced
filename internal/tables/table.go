// Package tables emulates a relational backend on top of a key-value store: each table is a
// JSON array persisted under one key and reloaded on every operation.
package tables

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/marinet/internal/kv"
	"github.com/MarcoPoloResearchLab/marinet/internal/metrics"
	"go.uber.org/zap"
)

var (
	// ErrMalformedData indicates a persisted table could not be decoded.
	ErrMalformedData = errors.New("tables: malformed stored data")
	// ErrMissingStore indicates a Storage was constructed without a key-value store.
	ErrMissingStore = errors.New("tables: key-value store required")
)

// Patch mutates a matched record in place. Fields it does not touch keep their values.
type Patch[T any] func(*T)

// Storage owns the key-value store and serializes read-modify-write cycles per key.
type Storage struct {
	store  kv.Store
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStorage wraps a key-value store.
func NewStorage(store kv.Store, logger *zap.Logger) (*Storage, error) {
	if store == nil {
		return nil, ErrMissingStore
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Storage{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Store exposes the underlying key-value store for non-table keys such as the session.
func (s *Storage) Store() kv.Store {
	return s.store
}

// Lock acquires the mutation lock for key and returns its release function.
func (s *Storage) Lock(key string) func() {
	s.mu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// Table is a named collection of records of type T.
type Table[T any] struct {
	storage *Storage
	name    string
}

// Bind returns the table persisted under name.
func Bind[T any](storage *Storage, name string) *Table[T] {
	return &Table[T]{storage: storage, name: strings.TrimSpace(name)}
}

// Name returns the storage key of the table.
func (t *Table[T]) Name() string {
	return t.name
}

// ReadAll decodes the whole table. A missing key is an empty table.
func (t *Table[T]) ReadAll(ctx context.Context) (records []T, err error) {
	done := metrics.TrackTable("read", t.name)
	defer func() { done(err) }()

	raw, found, err := t.storage.store.Get(ctx, t.name)
	if err != nil {
		return nil, fmt.Errorf("tables: read %s: %w", t.name, err)
	}
	if !found || strings.TrimSpace(raw) == "" {
		return []T{}, nil
	}
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		t.storage.logger.Error("table decode failed", zap.String("table", t.name), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedData, t.name, err)
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

// WriteAll replaces the table content with records.
func (t *Table[T]) WriteAll(ctx context.Context, records []T) (err error) {
	done := metrics.TrackTable("write", t.name)
	defer func() { done(err) }()

	if records == nil {
		records = []T{}
	}
	encoded, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("tables: encode %s: %w", t.name, err)
	}
	if err := t.storage.store.Set(ctx, t.name, string(encoded)); err != nil {
		return fmt.Errorf("tables: write %s: %w", t.name, err)
	}
	return nil
}

// Insert appends one record. Identifiers must be assigned by the caller.
func (t *Table[T]) Insert(ctx context.Context, record T) (T, error) {
	unlock := t.storage.Lock(t.name)
	defer unlock()

	records, err := t.ReadAll(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	records = append(records, record)
	if err := t.WriteAll(ctx, records); err != nil {
		var zero T
		return zero, err
	}
	return record, nil
}

// Update applies patch to every record matching filter and returns the updated matches.
func (t *Table[T]) Update(ctx context.Context, filter Filter[T], patch Patch[T]) ([]T, error) {
	return t.mutateMatches(ctx, filter, func(record *T) {
		if patch != nil {
			patch(record)
		}
	})
}

// Delete removes every record matching all conditions of filter and reports how many were removed.
// Remaining records keep their relative order.
func (t *Table[T]) Delete(ctx context.Context, filter Filter[T]) (int, error) {
	unlock := t.storage.Lock(t.name)
	defer unlock()

	records, err := t.ReadAll(ctx)
	if err != nil {
		return 0, err
	}
	kept := make([]T, 0, len(records))
	for _, record := range records {
		if !filter.Matches(record) {
			kept = append(kept, record)
		}
	}
	removed := len(records) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := t.WriteAll(ctx, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// Adjust adds delta to counter on every matching record, evaluated against the stored value
// while the table lock is held. Results are clamped at zero.
func (t *Table[T]) Adjust(ctx context.Context, filter Filter[T], counter Counter[T], delta int) ([]T, error) {
	return t.mutateMatches(ctx, filter, func(record *T) {
		counter.set(record, max(0, counter.current(*record)+delta))
	})
}

func (t *Table[T]) mutateMatches(ctx context.Context, filter Filter[T], mutate func(*T)) ([]T, error) {
	unlock := t.storage.Lock(t.name)
	defer unlock()

	records, err := t.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	for index := range records {
		if filter.Matches(records[index]) {
			mutate(&records[index])
		}
	}
	if err := t.WriteAll(ctx, records); err != nil {
		return nil, err
	}
	updated := make([]T, 0)
	for _, record := range records {
		if filter.Matches(record) {
			updated = append(updated, record)
		}
	}
	return updated, nil
}
