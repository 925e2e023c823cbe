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

package extractor

import (
	"context"
	"debug/elf"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/parca-dev/propeller/pkg/bbaddrmap"
	"github.com/parca-dev/propeller/pkg/binarycontent"
	"github.com/parca-dev/propeller/pkg/branchpath"
	"github.com/parca-dev/propeller/pkg/mapper"
)

func symbol(name string, addr, size uint64) binarycontent.Symbol {
	return binarycontent.Symbol{
		Symbol: elf.Symbol{
			Name:    name,
			Info:    elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
			Section: 1,
			Value:   addr,
			Size:    size,
		},
		SectionName: ".text",
	}
}

func newMapper(t *testing.T) *mapper.BinaryAddressMapper {
	t.Helper()

	returns := bbaddrmap.Metadata{HasReturn: true}
	fallThrough := bbaddrmap.Metadata{CanFallThrough: true}
	content := &binarycontent.Content{
		Symbols: []binarycontent.Symbol{
			symbol("this_is_very_code", 0x1730, 0x5d),
			symbol("main", 0x17f0, 0xb4),
		},
		BBAddrMap: []bbaddrmap.Function{
			{Ranges: []bbaddrmap.Range{{BaseAddress: 0x1730, Entries: []bbaddrmap.BBEntry{
				{ID: 0, Offset: 0, Size: 0x5d, Metadata: returns},
			}}}},
			{Ranges: []bbaddrmap.Range{{BaseAddress: 0x17f0, Entries: []bbaddrmap.BBEntry{
				{ID: 0, Offset: 0, Size: 0x70, Metadata: fallThrough},
				{ID: 1, Offset: 0x70, Size: 0x3c, Metadata: fallThrough},
				{ID: 2, Offset: 0xac, Size: 0x8, Metadata: returns},
			}}}},
		},
	}
	m, _, err := mapper.Build(log.NewNopLogger(), content, mapper.DefaultOptions())
	require.NoError(t, err)
	return m
}

func samples(n int) []branchpath.BinaryAddressBranchPath {
	res := make([]branchpath.BinaryAddressBranchPath, n)
	for i := range res {
		res[i] = branchpath.BinaryAddressBranchPath{
			Pid: int64(i),
			Branches: []branchpath.BinaryAddressBranch{
				{From: 0x186a, To: 0x1730},
				{From: 0x1782, To: 0x186f},
				{From: 0x1897, To: 0xfffff0},
			},
		}
	}
	return res
}

func TestExtract(t *testing.T) {
	t.Parallel()

	m := newMapper(t)
	reg := prometheus.NewRegistry()
	e := New(log.NewNopLogger(), reg, m, 3)

	in := samples(50)
	res, err := e.Extract(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res, len(in))
	for i, paths := range res {
		require.Equal(t, m.ExtractIntraFunctionPaths(in[i]), paths)
		require.Equal(t, int64(i), paths[0].Pid)
	}

	require.Equal(t, float64(50), testutil.ToFloat64(e.samples))
	require.Equal(t, float64(150), testutil.ToFloat64(e.branches))
	require.Equal(t, float64(100), testutil.ToFloat64(e.paths))
	require.Equal(t, float64(0), testutil.ToFloat64(e.unresolved.WithLabelValues("from")))
	require.Equal(t, float64(50), testutil.ToFloat64(e.unresolved.WithLabelValues("to")))
}

func TestExtractEmpty(t *testing.T) {
	t.Parallel()

	e := New(log.NewNopLogger(), prometheus.NewRegistry(), newMapper(t), 0)
	res, err := e.Extract(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, res)
}

func TestExtractCanceled(t *testing.T) {
	t.Parallel()

	e := New(log.NewNopLogger(), prometheus.NewRegistry(), newMapper(t), 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Extract(ctx, samples(10))
	require.ErrorIs(t, err, context.Canceled)
}
