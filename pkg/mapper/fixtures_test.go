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
	"debug/elf"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/parca-dev/propeller/pkg/bbaddrmap"
	"github.com/parca-dev/propeller/pkg/binarycontent"
)

var (
	fallThrough = bbaddrmap.Metadata{CanFallThrough: true}
	returns     = bbaddrmap.Metadata{HasReturn: true}
)

type block struct {
	offset, size uint32
	md           bbaddrmap.Metadata
}

// function builds a single range map. Block ids follow declaration order.
func function(addr uint64, blocks ...block) bbaddrmap.Function {
	return bbaddrmap.Function{Ranges: []bbaddrmap.Range{rng(addr, 0, blocks...)}}
}

func rng(addr uint64, firstID uint32, blocks ...block) bbaddrmap.Range {
	r := bbaddrmap.Range{BaseAddress: addr}
	for i, b := range blocks {
		r.Entries = append(r.Entries, bbaddrmap.BBEntry{ID: firstID + uint32(i), Offset: b.offset, Size: b.size, Metadata: b.md})
	}
	return r
}

func funcSymbol(name string, addr, size uint64, section string) binarycontent.Symbol {
	return binarycontent.Symbol{
		Symbol: elf.Symbol{
			Name:    name,
			Info:    elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
			Section: 1,
			Value:   addr,
			Size:    size,
		},
		SectionName: section,
	}
}

// bimodalSample is laid out like a small program where main calls two
// helpers in a loop and is itself called back by caller.
//
//	0 this_is_very_code  0x1730  bb0 [0x1730,0x178d)
//	1 compute_flag       0x1790  bb0 [0x1790,0x17a9) bb1 [0x17a9,0x17b9) bb2 [0x17b9,0x17c1)
//	2 main               0x17f0  bb0 [0x17f0,0x1808) bb1 [0x1808,0x1830) bb2 [0x1830,0x184b)
//	                             bb3 [0x184b,0x1860) bb4 [0x1860,0x189c) bb5 [0x189c,0x18a4)
//	3 caller             0x18b0  bb0 [0x18b0,0x18c0) bb1 [0x18c0,0x18ce) bb2 [0x18ce,0x18e0)
func bimodalSample() *binarycontent.Content {
	return &binarycontent.Content{
		Path: "bimodal_sample.bin",
		Symbols: []binarycontent.Symbol{
			funcSymbol("this_is_very_code", 0x1730, 0x5d, ".text"),
			funcSymbol("compute_flag", 0x1790, 0x31, ".text"),
			funcSymbol("main", 0x17f0, 0xb4, ".text"),
			funcSymbol("caller", 0x18b0, 0x30, ".text"),
		},
		BBAddrMap: []bbaddrmap.Function{
			function(0x1730, block{0, 0x5d, returns}),
			function(0x1790,
				block{0, 0x19, fallThrough},
				block{0x19, 0x10, bbaddrmap.Metadata{}},
				block{0x29, 0x8, returns},
			),
			function(0x17f0,
				block{0, 0x18, fallThrough},
				block{0x18, 0x28, fallThrough},
				block{0x40, 0x1b, fallThrough},
				block{0x5b, 0x15, fallThrough},
				block{0x70, 0x3c, fallThrough},
				block{0xac, 0x8, returns},
			),
			function(0x18b0,
				block{0, 0x10, fallThrough},
				block{0x10, 0xe, fallThrough},
				block{0x1e, 0x12, returns},
			),
		},
	}
}

// coalescingSample has main calling both helpers from its only block.
func coalescingSample() *binarycontent.Content {
	return &binarycontent.Content{
		Path: "bimodal_sample.x.bin",
		Symbols: []binarycontent.Symbol{
			funcSymbol("this_is_very_code", 0x1770, 0x55, ".text"),
			funcSymbol("compute_flag", 0x17d0, 0x55, ".text"),
			funcSymbol("main", 0x1830, 0x20, ".text"),
		},
		BBAddrMap: []bbaddrmap.Function{
			function(0x1770, block{0, 0x55, returns}),
			function(0x17d0, block{0, 0x55, returns}),
			function(0x1830, block{0, 0x20, fallThrough}),
		},
	}
}

// mfsSample has compute split in two ranges by machine function splitting.
func mfsSample() *binarycontent.Content {
	return &binarycontent.Content{
		Path: "bimodal_sample_mfs.bin",
		Symbols: []binarycontent.Symbol{
			funcSymbol("sample1_func", 0x1730, 0x10, ".text"),
			funcSymbol("compute_flag", 0x1750, 0x31, ".text"),
			funcSymbol("compute", 0x1790, 0x5b, ".text"),
			funcSymbol("main", 0x1810, 0x40, ".text"),
		},
		BBAddrMap: []bbaddrmap.Function{
			function(0x1730, block{0, 0x10, returns}),
			function(0x1750,
				block{0, 0x19, fallThrough},
				block{0x19, 0x10, bbaddrmap.Metadata{}},
				block{0x29, 0x8, returns},
			),
			{Ranges: []bbaddrmap.Range{
				{BaseAddress: 0x1790, Entries: []bbaddrmap.BBEntry{
					{ID: 0, Offset: 0, Size: 0x1d, Metadata: fallThrough},
					{ID: 3, Offset: 0x20, Size: 0x3b, Metadata: returns},
				}},
				{BaseAddress: 0x18c8, Entries: []bbaddrmap.BBEntry{
					{ID: 1, Offset: 0, Size: 0xe, Metadata: fallThrough},
					{ID: 5, Offset: 0xe, Size: 0x7, Metadata: fallThrough},
					{ID: 2, Offset: 0x15, Size: 0x9},
					{ID: 4, Offset: 0x1e, Size: 0x33, Metadata: returns},
				}},
			}},
			function(0x1810, block{0, 0x40, returns}),
		},
	}
}

func build(t *testing.T, content *binarycontent.Content, opts Options) (*BinaryAddressMapper, Stats) {
	t.Helper()

	m, stats, err := Build(log.NewNopLogger(), content, opts)
	require.NoError(t, err)
	return m, stats
}

// functionsByName returns the map of every mapped alias.
func functionsByName(m *BinaryAddressMapper) map[string]bbaddrmap.Function {
	res := map[string]bbaddrmap.Function{}
	for i, info := range m.SymbolInfo() {
		for _, alias := range info.Aliases {
			res[alias] = m.BBAddrMap()[i]
		}
	}
	return res
}
