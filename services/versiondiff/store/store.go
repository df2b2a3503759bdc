// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists document versions in BadgerDB.
//
// Versions are kept per document in insertion order under keys
// "doc/<docID>/<seq>", seq being a big-endian uint64 starting at 1. A
// record holds the text-encoded update, so values read back can be handed
// straight to versiondiff.Differ.ComputeVersionDiffEncoded.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/trackchanges/pkg/logging"
	"github.com/AleutianAI/trackchanges/services/versiondiff/codec"
	"github.com/AleutianAI/trackchanges/services/versiondiff/telemetry"
)

var tracer = otel.Tracer("versiondiff.store")

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "versiondiff_store_operations_total",
		Help: "Total version store operations by operation and status",
	}, []string{"operation", "status"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "versiondiff_store_operation_duration_seconds",
		Help:    "Version store operation duration in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"operation"})

	storedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "versiondiff_store_update_bytes_total",
		Help: "Total bytes of updates written to the version store",
	})

	gcRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "versiondiff_store_gc_runs_total",
		Help: "Value log GC runs by result",
	}, []string{"result"})
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNotFound is returned when a document or version does not exist.
	ErrNotFound = errors.New("version not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")

	// ErrInvalidDocID is returned for an empty document id or one
	// containing '/'.
	ErrInvalidDocID = errors.New("invalid document id")
)

// Version is one stored document version.
type Version struct {
	DocID string `json:"doc_id"`
	Seq   uint64 `json:"seq"`
	// ID is a random UUID assigned at write time.
	ID string `json:"id"`
	// Update is the text-encoded update.
	Update    string    `json:"update"`
	CreatedAt time.Time `json:"created_at"`
}

// Bytes decodes Update.
func (v *Version) Bytes() ([]byte, error) {
	return codec.Decode(v.Update)
}

// Store is a BadgerDB-backed version store.
//
// Thread Safety: Safe for concurrent use. Writers are serialized so
// sequence numbers are dense.
type Store struct {
	db     *badger.DB
	gc     *gcRunner
	logger *slog.Logger
	now    func() time.Time

	writeMu sync.Mutex
	mu      sync.RWMutex
	closed  bool
}

// Open opens the store described by cfg and starts value log GC when
// configured for an on-disk database.
func Open(cfg Config) (*Store, error) {
	db, err := openBadger(cfg)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:     db,
		logger: logging.OrDefault(cfg.Logger),
		now:    time.Now,
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		runner, err := newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create GC runner: %w", err)
		}
		s.gc = runner
		runner.start()
	}
	return s, nil
}

// Close stops GC and closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// Put appends update as the next version of docID.
//
// Inputs:
//
//	ctx - Checked before the write.
//	docID - Non-empty, without '/'.
//	update - The binary update; stored text encoded.
//
// Outputs:
//
//	*Version - The stored record.
//	error - ErrInvalidDocID, ErrClosed, or a database error.
func (s *Store) Put(ctx context.Context, docID string, update []byte) (v *Version, err error) {
	ctx, span := s.start(ctx, "store.Store.Put", docID)
	defer span.End()
	defer observe("put", time.Now(), &err)

	if err := validateDocID(docID); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = s.withTxn(ctx, true, func(txn *badger.Txn) error {
		last, err := lastSeq(txn, docID)
		if err != nil {
			return err
		}
		v = &Version{
			DocID:     docID,
			Seq:       last + 1,
			ID:        uuid.NewString(),
			Update:    codec.Encode(update),
			CreatedAt: s.now().UTC(),
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal version: %w", err)
		}
		return txn.Set(versionKey(docID, v.Seq), data)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	storedBytes.Add(float64(len(update)))
	span.SetAttributes(attribute.Int64("store.seq", int64(v.Seq)))
	logging.WithTrace(ctx, s.logger).Debug("version stored",
		slog.String("doc_id", docID),
		slog.Uint64("seq", v.Seq),
		slog.String("version_id", v.ID),
	)
	return v, nil
}

// Get returns version seq of docID.
func (s *Store) Get(ctx context.Context, docID string, seq uint64) (v *Version, err error) {
	ctx, span := s.start(ctx, "store.Store.Get", docID)
	defer span.End()
	defer observe("get", time.Now(), &err)

	if err := validateDocID(docID); err != nil {
		return nil, err
	}
	err = s.withTxn(ctx, false, func(txn *badger.Txn) error {
		item, err := txn.Get(versionKey(docID, seq))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s@%d", ErrNotFound, docID, seq)
		}
		if err != nil {
			return err
		}
		v, err = decodeVersion(item)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Latest returns the newest version of docID.
func (s *Store) Latest(ctx context.Context, docID string) (v *Version, err error) {
	ctx, span := s.start(ctx, "store.Store.Latest", docID)
	defer span.End()
	defer observe("latest", time.Now(), &err)

	if err := validateDocID(docID); err != nil {
		return nil, err
	}
	err = s.withTxn(ctx, false, func(txn *badger.Txn) error {
		seq, err := lastSeq(txn, docID)
		if err != nil {
			return err
		}
		if seq == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, docID)
		}
		item, err := txn.Get(versionKey(docID, seq))
		if err != nil {
			return err
		}
		v, err = decodeVersion(item)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// List returns every version of docID, oldest first. A document without
// versions yields an empty slice.
func (s *Store) List(ctx context.Context, docID string) (out []*Version, err error) {
	ctx, span := s.start(ctx, "store.Store.List", docID)
	defer span.End()
	defer observe("list", time.Now(), &err)

	if err := validateDocID(docID); err != nil {
		return nil, err
	}
	out = []*Version{}
	err = s.withTxn(ctx, false, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = docPrefix(docID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			v, err := decodeVersion(it.Item())
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("store.versions", len(out)))
	return out, nil
}

// Documents returns the ids of all documents with at least one version,
// sorted.
func (s *Store) Documents(ctx context.Context) (ids []string, err error) {
	ctx, span := tracer.Start(ctx, "store.Store.Documents")
	defer span.End()
	defer observe("documents", time.Now(), &err)

	ids = []string{}
	err = s.withTxn(ctx, false, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			rest := strings.TrimPrefix(string(it.Item().Key()), keyPrefix)
			id, _, ok := strings.Cut(rest, "/")
			if !ok {
				continue
			}
			if len(ids) == 0 || ids[len(ids)-1] != id {
				ids = append(ids, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) start(ctx context.Context, name, docID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("store.doc_id", docID)))
}

func (s *Store) withTxn(ctx context.Context, update bool, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	txn := s.db.NewTransaction(update)
	defer txn.Discard()
	if err := fn(txn); err != nil {
		return err
	}
	if !update {
		return nil
	}
	return txn.Commit()
}

const keyPrefix = "doc/"

func docPrefix(docID string) []byte {
	return []byte(keyPrefix + docID + "/")
}

func versionKey(docID string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(docPrefix(docID), seq)
}

func lastSeq(txn *badger.Txn, docID string) (uint64, error) {
	prefix := docPrefix(docID)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = true
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Seek(append(bytes.Clone(prefix), bytes.Repeat([]byte{0xff}, 9)...))
	if !it.Valid() {
		return 0, nil
	}
	key := it.Item().Key()
	if len(key) != len(prefix)+8 {
		return 0, fmt.Errorf("unexpected key %q", key)
	}
	return binary.BigEndian.Uint64(key[len(prefix):]), nil
}

func decodeVersion(item *badger.Item) (*Version, error) {
	var v Version
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &v)
	})
	if err != nil {
		return nil, fmt.Errorf("decode version %q: %w", item.Key(), err)
	}
	return &v, nil
}

func validateDocID(docID string) error {
	if docID == "" || strings.Contains(docID, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidDocID, docID)
	}
	return nil
}

func observe(operation string, start time.Time, err *error) {
	status := "ok"
	switch {
	case *err == nil:
	case errors.Is(*err, ErrNotFound):
		status = "not_found"
	default:
		status = "error"
	}
	operationsTotal.WithLabelValues(operation, status).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
