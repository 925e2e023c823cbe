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

package mapper

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parca-dev/propeller/pkg/bbaddrmap"
	"github.com/parca-dev/propeller/pkg/bbhandle"
)

func TestHandlesFlatBbIndex(t *testing.T) {
	t.Parallel()

	m, _ := build(t, mfsSample(), DefaultOptions())
	require.Len(t, m.BBAddrMap()[1].Ranges, 1)
	require.Len(t, m.BBAddrMap()[1].Ranges[0].Entries, 3)
	require.Len(t, m.BBAddrMap()[2].Ranges, 2)
	require.Len(t, m.BBAddrMap()[2].Ranges[0].Entries, 2)
	require.Len(t, m.BBAddrMap()[2].Ranges[1].Entries, 4)

	flatTests := []struct {
		flat bbhandle.FlatBbHandle
		want bbhandle.BbHandle
		ok   bool
	}{
		{flat: bbhandle.FlatBbHandle{FunctionIndex: 2, FlatBbIndex: 1}, want: bbhandle.BbHandle{FunctionIndex: 2, RangeIndex: 0, BbIndex: 1}, ok: true},
		{flat: bbhandle.FlatBbHandle{FunctionIndex: 2, FlatBbIndex: 2}, want: bbhandle.BbHandle{FunctionIndex: 2, RangeIndex: 1, BbIndex: 0}, ok: true},
		{flat: bbhandle.FlatBbHandle{FunctionIndex: 2, FlatBbIndex: 5}, want: bbhandle.BbHandle{FunctionIndex: 2, RangeIndex: 1, BbIndex: 3}, ok: true},
		{flat: bbhandle.FlatBbHandle{FunctionIndex: 2, FlatBbIndex: 6}},
		{flat: bbhandle.FlatBbHandle{FunctionIndex: 1, FlatBbIndex: 2}, want: bbhandle.BbHandle{FunctionIndex: 1, RangeIndex: 0, BbIndex: 2}, ok: true},
		{flat: bbhandle.FlatBbHandle{FunctionIndex: 1, FlatBbIndex: 3}},
		{flat: bbhandle.FlatBbHandle{FunctionIndex: 1, FlatBbIndex: -1}},
		{flat: bbhandle.FlatBbHandle{FunctionIndex: 5, FlatBbIndex: 0}},
		{flat: bbhandle.FlatBbHandle{FunctionIndex: -1, FlatBbIndex: 0}},
	}
	for _, tt := range flatTests {
		got, ok := m.GetBbHandle(tt.flat)
		require.Equal(t, tt.ok, ok, tt.flat)
		require.Equal(t, tt.want, got, tt.flat)
	}

	nestedTests := []struct {
		h    bbhandle.BbHandle
		want bbhandle.FlatBbHandle
		ok   bool
	}{
		{h: bbhandle.BbHandle{FunctionIndex: 2, RangeIndex: 0, BbIndex: 1}, want: bbhandle.FlatBbHandle{FunctionIndex: 2, FlatBbIndex: 1}, ok: true},
		{h: bbhandle.BbHandle{FunctionIndex: 2, RangeIndex: 1, BbIndex: 0}, want: bbhandle.FlatBbHandle{FunctionIndex: 2, FlatBbIndex: 2}, ok: true},
		{h: bbhandle.BbHandle{FunctionIndex: 2, RangeIndex: 1, BbIndex: 4}},
		{h: bbhandle.BbHandle{FunctionIndex: 2, RangeIndex: 2, BbIndex: 0}},
		{h: bbhandle.BbHandle{FunctionIndex: 1, RangeIndex: 0, BbIndex: 2}, want: bbhandle.FlatBbHandle{FunctionIndex: 1, FlatBbIndex: 2}, ok: true},
		{h: bbhandle.BbHandle{FunctionIndex: 1, RangeIndex: 0, BbIndex: 3}},
		{h: bbhandle.BbHandle{FunctionIndex: 1, RangeIndex: -1, BbIndex: 0}},
		{h: bbhandle.BbHandle{FunctionIndex: 5, RangeIndex: 0, BbIndex: 0}},
	}
	for _, tt := range nestedTests {
		got, ok := m.GetFlatBbHandle(tt.h)
		require.Equal(t, tt.ok, ok, tt.h)
		require.Equal(t, tt.want, got, tt.h)
	}
}

func TestHandleConversionRoundTrips(t *testing.T) {
	t.Parallel()

	m, _ := build(t, mfsSample(), DefaultOptions())
	for fn, f := range m.BBAddrMap() {
		flat := 0
		for r, rng := range f.Ranges {
			for bb := range rng.Entries {
				h := bbhandle.BbHandle{FunctionIndex: fn, RangeIndex: r, BbIndex: bb}
				got, ok := m.GetFlatBbHandle(h)
				require.True(t, ok)
				require.Equal(t, bbhandle.FlatBbHandle{FunctionIndex: fn, FlatBbIndex: flat}, got)

				back, ok := m.GetBbHandle(got)
				require.True(t, ok)
				require.Equal(t, h, back)
				flat++
			}
		}
		require.Equal(t, flat, m.NumBlocks(fn))
	}
	require.Zero(t, m.NumBlocks(len(m.BBAddrMap())))
}

func TestHandlesEmptyRanges(t *testing.T) {
	t.Parallel()

	content := mfsSample()
	compute := &content.BBAddrMap[2]
	compute.Ranges = append(compute.Ranges[:1], append([]bbaddrmap.Range{{BaseAddress: 0x1800}}, compute.Ranges[1:]...)...)

	m, _ := build(t, content, DefaultOptions())
	h, ok := m.GetBbHandle(bbhandle.FlatBbHandle{FunctionIndex: 2, FlatBbIndex: 2})
	require.True(t, ok)
	require.Equal(t, bbhandle.BbHandle{FunctionIndex: 2, RangeIndex: 2, BbIndex: 0}, h)

	_, ok = m.GetFlatBbHandle(bbhandle.BbHandle{FunctionIndex: 2, RangeIndex: 1, BbIndex: 0})
	require.False(t, ok)
}

func TestBlockAddress(t *testing.T) {
	t.Parallel()

	m, _ := build(t, mfsSample(), DefaultOptions())
	addr, size, ok := m.BlockAddress(bbhandle.BbHandle{FunctionIndex: 2, RangeIndex: 1, BbIndex: 2})
	require.True(t, ok)
	require.Equal(t, uint64(0x18c8+0x15), addr)
	require.Equal(t, uint32(0x9), size)

	_, _, ok = m.BlockAddress(bbhandle.BbHandle{FunctionIndex: 2, RangeIndex: 1, BbIndex: 4})
	require.False(t, ok)
}

func TestHandlesOfDroppedFunctions(t *testing.T) {
	t.Parallel()

	content := mfsSample()
	content.Symbols[1].SectionName = ".init"
	content.BBAddrMap = append(content.BBAddrMap, content.BBAddrMap[3])

	m, stats := build(t, content, DefaultOptions())
	require.Equal(t, 1, stats.NonTextFunctions)
	require.Equal(t, 1, stats.DuplicateBBAddrMapEntries)

	for _, fn := range []int{1, 4} {
		_, ok := m.GetBbHandle(bbhandle.FlatBbHandle{FunctionIndex: fn, FlatBbIndex: 0})
		require.False(t, ok, fn)
		_, ok = m.GetFlatBbHandle(bbhandle.BbHandle{FunctionIndex: fn, RangeIndex: 0, BbIndex: 0})
		require.False(t, ok, fn)
		_, _, ok = m.BlockAddress(bbhandle.BbHandle{FunctionIndex: fn, RangeIndex: 0, BbIndex: 0})
		require.False(t, ok, fn)
		require.Zero(t, m.NumBlocks(fn), fn)
	}

	_, ok := m.GetFlatBbHandle(bbhandle.BbHandle{FunctionIndex: 3, RangeIndex: 0, BbIndex: 0})
	require.True(t, ok)
}
