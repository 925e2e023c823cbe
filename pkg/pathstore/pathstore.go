// Copyright 2025 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pathstore persists extracted paths in badger, keyed by binary and
// sample sequence number.
package pathstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-kit/log"

	"github.com/parca-dev/propeller/pkg/branchpath"
)

type Store struct {
	db *badger.DB
}

// Open opens the store in dir. An empty dir keeps everything in memory.
func Open(logger log.Logger, dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(&badgerLogger{logger: log.With(logger, "component", "pathstore")})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func prefix(binaryID string) []byte {
	return []byte(binaryID + "/")
}

// Sequence numbers are fixed width so that keys sort numerically.
func makeKey(binaryID string, seq uint64) []byte {
	return []byte(binaryID + "/" + fmt.Sprintf("%016x", seq))
}

func parseKey(key []byte) (string, uint64, error) {
	k := string(key)
	i := strings.LastIndexByte(k, '/')
	if i < 0 {
		return "", 0, fmt.Errorf("malformed key %q", k)
	}
	seq, err := strconv.ParseUint(k[i+1:], 16, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed key %q: %w", k, err)
	}
	return k[:i], seq, nil
}

// Put stores the paths extracted from sample seq of a binary.
func (s *Store) Put(ctx context.Context, binaryID string, seq uint64, paths []branchpath.FlatBbHandleBranchPath) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(makeKey(binaryID, seq), branchpath.Encode(paths))
	})
}

// PutAll stores the results of consecutive samples starting at sequence
// number first in one batch.
func (s *Store) PutAll(ctx context.Context, binaryID string, first uint64, results [][]branchpath.FlatBbHandleBranchPath) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for i, paths := range results {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := wb.Set(makeKey(binaryID, first+uint64(i)), branchpath.Encode(paths)); err != nil {
			return fmt.Errorf("set sample %d: %w", first+uint64(i), err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush badger: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, binaryID string, seq uint64) ([]branchpath.FlatBbHandleBranchPath, bool, error) {
	var (
		found bool
		res   []branchpath.FlatBbHandleBranchPath
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(makeKey(binaryID, seq))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get badger: %w", err)
		}

		return item.Value(func(val []byte) error {
			res, err = branchpath.Decode(val)
			if err != nil {
				return fmt.Errorf("decode sample %d: %w", seq, err)
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("view badger: %w", err)
	}

	return res, found, nil
}

// Iterate calls fn for every stored sample of a binary in sequence order.
// Iteration stops at the first error returned by fn.
func (s *Store) Iterate(ctx context.Context, binaryID string, fn func(seq uint64, paths []branchpath.FlatBbHandleBranchPath) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := prefix(binaryID)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			_, seq, err := parseKey(item.Key())
			if err != nil {
				return err
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("badger value: %w", err)
			}
			paths, err := branchpath.Decode(val)
			if err != nil {
				return fmt.Errorf("decode sample %d: %w", seq, err)
			}
			if err := fn(seq, paths); err != nil {
				return err
			}
		}
		return nil
	})
}

// BinaryIDs lists the binaries that have stored samples.
func (s *Store) BinaryIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); {
			id, _, err := parseKey(it.Item().Key())
			if err != nil {
				return err
			}
			ids = append(ids, id)
			// Skip the remaining samples of this binary.
			it.Seek(append(prefix(id), 0xff))
		}
		return nil
	})
	return ids, err
}
