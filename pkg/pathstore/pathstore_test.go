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

package pathstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/parca-dev/propeller/pkg/bbhandle"
	"github.com/parca-dev/propeller/pkg/branchpath"
)

func openStore(t *testing.T, dir string) *Store {
	t.Helper()

	s, err := Open(log.NewNopLogger(), dir)
	require.NoError(t, err)
	return s
}

func samplePaths(pid int64) []branchpath.FlatBbHandleBranchPath {
	return []branchpath.FlatBbHandleBranchPath{{
		Pid:        pid,
		SampleTime: time.Unix(123456, 0),
		Branches: []branchpath.BranchEntry{
			{FromBb: &bbhandle.FlatBbHandle{FunctionIndex: 2, FlatBbIndex: 4}, ToBb: &bbhandle.FlatBbHandle{FunctionIndex: 2, FlatBbIndex: 4}},
			{FromBb: &bbhandle.FlatBbHandle{FunctionIndex: 2, FlatBbIndex: 5}},
		},
		ReturnsTo: &bbhandle.FlatBbHandle{FunctionIndex: 3, FlatBbIndex: 1},
	}}
}

func TestStorePutGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, "")
	defer s.Close()

	require.NoError(t, s.Put(ctx, "abc", 7, samplePaths(1)))

	got, found, err := s.Get(ctx, "abc", 7)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, samplePaths(1), got)

	_, found, err = s.Get(ctx, "abc", 8)
	require.NoError(t, err)
	require.False(t, found)
}

func TestStoreIterate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, "")
	defer s.Close()

	// Sequence numbers beyond one hex digit check the key ordering.
	require.NoError(t, s.PutAll(ctx, "abc", 9, [][]branchpath.FlatBbHandleBranchPath{
		samplePaths(9), samplePaths(10), nil, samplePaths(12),
	}))
	require.NoError(t, s.Put(ctx, "abd", 0, samplePaths(100)))

	var seqs []uint64
	err := s.Iterate(ctx, "abc", func(seq uint64, paths []branchpath.FlatBbHandleBranchPath) error {
		seqs = append(seqs, seq)
		if len(paths) > 0 {
			require.Equal(t, int64(seq), paths[0].Pid)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{9, 10, 11, 12}, seqs)

	ids, err := s.BinaryIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"abc", "abd"}, ids)

	stop := errors.New("stop")
	n := 0
	err = s.Iterate(ctx, "abc", func(uint64, []branchpath.FlatBbHandleBranchPath) error {
		n++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, n)
}

func TestStoreOnDisk(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	s := openStore(t, dir)
	require.NoError(t, s.Put(ctx, "abc", 1, samplePaths(1)))
	require.NoError(t, s.Close())

	s = openStore(t, dir)
	defer s.Close()
	got, found, err := s.Get(ctx, "abc", 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, samplePaths(1), got)
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	id, seq, err := parseKey(makeKey("build/id", 0x2a))
	require.NoError(t, err)
	require.Equal(t, "build/id", id)
	require.Equal(t, uint64(0x2a), seq)

	_, _, err = parseKey([]byte("nokey"))
	require.Error(t, err)
}
