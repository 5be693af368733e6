// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/docqueue/internal/jobs"
	"github.com/tomtom215/docqueue/internal/logging"
)

// Badger key prefixes.
var (
	badgerJobPrefix      = []byte("job/")
	badgerIndexPrefix    = []byte("idx/")
	badgerFinishedPrefix = []byte("fin/")
)

// maxTxnRetries bounds retries of a read-modify-write transaction that lost
// to a concurrent writer (badger.ErrConflict).
const maxTxnRetries = 16

// BadgerConfig configures the embedded store.
type BadgerConfig struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
}

// BadgerStore keeps jobs in an embedded BadgerDB. Serializable transactions
// give UpdateStatus its compare-and-swap semantics.
//
// Key layout:
//
//	job/<id>                     JSON job record
//	idx/<type>/<status>/<id>     empty; status index
//	fin/<unix ms, 20 digits>/<id> empty; finished-time index for the sweep
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

// OpenBadgerStore opens (or creates) the database described by cfg.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Badger job store opened")
	return &BadgerStore{db: db, now: time.Now}, nil
}

func badgerJobKey(id string) []byte {
	return append(append([]byte{}, badgerJobPrefix...), id...)
}

func badgerIndexKey(t jobs.Type, st jobs.Status, id string) []byte {
	return []byte(string(badgerIndexPrefix) + string(t) + "/" + string(st) + "/" + id)
}

func badgerFinishedKey(finished time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", badgerFinishedPrefix, finished.UnixMilli(), id))
}

// update runs fn in a read-write transaction, retrying lost races.
func (s *BadgerStore) update(op string, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxnRetries; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	return s.classify(op, err)
}

// classify separates domain errors from backend failures.
func (s *BadgerStore) classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, jobs.ErrConflict):
		return err
	default:
		return jobs.Unavailable(op, err)
	}
}

func readJob(txn *badger.Txn, id string) (*jobs.Job, error) {
	item, err := txn.Get(badgerJobKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, jobs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	var j jobs.Job
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &j)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &j, nil
}

// writeJob stores j and moves its index entries from prev (nil on insert).
func writeJob(txn *badger.Txn, prev, j *jobs.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", j.ID, err)
	}
	if prev != nil {
		if err := txn.Delete(badgerIndexKey(prev.Type, prev.Status, prev.ID)); err != nil {
			return err
		}
		if prev.FinishedAt != nil {
			if err := txn.Delete(badgerFinishedKey(*prev.FinishedAt, prev.ID)); err != nil {
				return err
			}
		}
	}
	if err := txn.Set(badgerJobKey(j.ID), data); err != nil {
		return err
	}
	if err := txn.Set(badgerIndexKey(j.Type, j.Status, j.ID), nil); err != nil {
		return err
	}
	if j.Status.Terminal() && j.FinishedAt != nil {
		return txn.Set(badgerFinishedKey(*j.FinishedAt, j.ID), nil)
	}
	return nil
}

func (s *BadgerStore) Put(ctx context.Context, job *jobs.Job) error {
	if err := validateNew(job); err != nil {
		return err
	}
	j := job.Clone()
	return s.update("put", func(txn *badger.Txn) error {
		prev, err := readJob(txn, j.ID)
		if err != nil && !errors.Is(err, jobs.ErrNotFound) {
			return err
		}
		return writeJob(txn, prev, j)
	})
}

func (s *BadgerStore) Create(ctx context.Context, job *jobs.Job) error {
	if err := validateNew(job); err != nil {
		return err
	}
	j := job.Clone()
	return s.update("create", func(txn *badger.Txn) error {
		_, err := readJob(txn, j.ID)
		switch {
		case err == nil:
			return fmt.Errorf("create %s: %w", j.ID, jobs.ErrExists)
		case !errors.Is(err, jobs.ErrNotFound):
			return err
		}
		return writeJob(txn, nil, j)
	})
}

func (s *BadgerStore) Get(ctx context.Context, id string) (*jobs.Job, error) {
	var out *jobs.Job
	err := s.db.View(func(txn *badger.Txn) error {
		j, err := readJob(txn, id)
		out = j
		return err
	})
	if err != nil {
		return nil, s.classify("get", err)
	}
	return out, nil
}

func (s *BadgerStore) UpdateStatus(ctx context.Context, id string, from, to jobs.Status, patch jobs.Patch) (*jobs.Job, error) {
	var out *jobs.Job
	err := s.update("update status", func(txn *badger.Txn) error {
		prev, err := readJob(txn, id)
		if err != nil {
			return err
		}
		if err := checkTransition(prev, from, patch); err != nil {
			return err
		}
		j := prev.Clone()
		patch.Apply(j, to, s.now().UTC())
		if err := writeJob(txn, prev, j); err != nil {
			return err
		}
		out = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) SetProgress(ctx context.Context, id string, attempt, percent int) error {
	return s.update("set progress", func(txn *badger.Txn) error {
		j, err := readJob(txn, id)
		if err != nil {
			return err
		}
		if err := checkProgress(j, attempt); err != nil {
			return err
		}
		p := jobs.ClampProgress(percent)
		if p <= j.Progress {
			return nil
		}
		j.Progress = p
		j.UpdatedAt = s.now().UTC()
		data, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("marshal job %s: %w", id, err)
		}
		return txn.Set(badgerJobKey(id), data)
	})
}

// scanIndex visits every index key under prefix.
func (s *BadgerStore) scanIndex(prefix []byte, fn func(t jobs.Type, st jobs.Status, id string)) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			rest := bytes.TrimPrefix(it.Item().Key(), badgerIndexPrefix)
			parts := strings.SplitN(string(rest), "/", 3)
			if len(parts) != 3 {
				continue
			}
			fn(jobs.Type(parts[0]), jobs.Status(parts[1]), parts[2])
		}
		return nil
	})
}

func (s *BadgerStore) CountByStatus(ctx context.Context, jobType jobs.Type) (jobs.Counts, error) {
	var c jobs.Counts
	prefix := badgerIndexPrefix
	if jobType != "" {
		prefix = []byte(string(badgerIndexPrefix) + string(jobType) + "/")
	}
	err := s.scanIndex(prefix, func(_ jobs.Type, st jobs.Status, _ string) {
		c.Add(st, 1)
	})
	if err != nil {
		return jobs.Counts{}, s.classify("count", err)
	}
	return c, nil
}

func (s *BadgerStore) ListByStatus(ctx context.Context, status jobs.Status, jobType jobs.Type, limit int) ([]*jobs.Job, error) {
	prefix := badgerIndexPrefix
	if jobType != "" {
		prefix = []byte(string(badgerIndexPrefix) + string(jobType) + "/" + string(status) + "/")
	}
	var ids []string
	err := s.scanIndex(prefix, func(_ jobs.Type, st jobs.Status, id string) {
		if st == status {
			ids = append(ids, id)
		}
	})
	if err != nil {
		return nil, s.classify("list", err)
	}

	out := make([]*jobs.Job, 0, len(ids))
	err = s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			j, err := readJob(txn, id)
			if errors.Is(err, jobs.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, j)
		}
		return nil
	})
	if err != nil {
		return nil, s.classify("list", err)
	}
	sortOldestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *BadgerStore) SweepExpired(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := s.now().Add(-retention)
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = badgerFinishedPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			rest := string(bytes.TrimPrefix(it.Item().Key(), badgerFinishedPrefix))
			ms, id, ok := strings.Cut(rest, "/")
			if !ok {
				continue
			}
			at, err := strconv.ParseInt(ms, 10, 64)
			if err != nil {
				continue
			}
			// Keys sort by finish time, so the first recent one ends the scan.
			if !time.UnixMilli(at).Before(cutoff) {
				break
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return 0, s.classify("sweep", err)
	}

	removed := 0
	for _, id := range ids {
		deleted := false
		err := s.update("sweep", func(txn *badger.Txn) error {
			deleted = false
			j, err := readJob(txn, id)
			if errors.Is(err, jobs.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if !sweepable(j, cutoff) {
				return nil
			}
			for _, k := range [][]byte{
				badgerJobKey(id),
				badgerIndexKey(j.Type, j.Status, id),
				badgerFinishedKey(*j.FinishedAt, id),
			} {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			deleted = true
			return nil
		})
		if err != nil {
			return removed, err
		}
		if deleted {
			removed++
		}
	}
	return removed, nil
}

func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return jobs.Unavailable("ping", badger.ErrDBClosed)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
