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

// Package mapper maps binary addresses to basic blocks and replays branch
// samples into per-function paths.
package mapper

import (
	"fmt"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/parca-dev/propeller/pkg/bbaddrmap"
	"github.com/parca-dev/propeller/pkg/binarycontent"
)

// FunctionSymbolInfo describes a mapped function.
type FunctionSymbolInfo struct {
	// Aliases are the function symbol names at the function address, best
	// name first.
	Aliases     []string
	SectionName string
}

// BinaryAddressMapper is immutable once built and safe for concurrent use.
type BinaryAddressMapper struct {
	// bbAddrMap is indexed by function index.
	bbAddrMap  []bbaddrmap.Function
	symbolInfo map[int]FunctionSymbolInfo

	// addressable functions are resolved by address lookups, selected ones
	// are also emitted in extracted paths.
	addressable []bool
	selected    []bool
	selectedIdx []int

	// prefixBlocks[f][r] is the number of blocks in the ranges of function
	// f before range r.
	prefixBlocks [][]int

	// ranges of addressable functions, sorted by start address.
	ranges []addrRange

	maxStackDepth int
}

type addrRange struct {
	start, end uint64
	function   int
	rangeIndex int
}

// Build maps the functions of the binary. Only an empty basic block address
// map is an error, anomalies of single functions are counted in Stats.
func Build(logger log.Logger, content *binarycontent.Content, opts Options) (*BinaryAddressMapper, Stats, error) {
	var stats Stats
	if len(content.BBAddrMap) == 0 {
		return nil, stats, fmt.Errorf("%s: %w", content.Path, binarycontent.ErrNoBBAddrMap)
	}
	logger = log.With(logger, "component", "mapper")

	resolved := resolveFunctions(logger, content.Symbols, &stats)

	n := len(content.BBAddrMap)
	m := &BinaryAddressMapper{
		bbAddrMap:     content.BBAddrMap,
		symbolInfo:    map[int]FunctionSymbolInfo{},
		addressable:   make([]bool, n),
		selected:      make([]bool, n),
		prefixBlocks:  make([][]int, n),
		maxStackDepth: opts.MaxStackDepth,
	}
	if m.maxStackDepth <= 0 {
		m.maxStackDepth = DefaultMaxStackDepth
	}

	var hot []uint64
	if opts.HotAddresses != nil {
		hot = make([]uint64, 0, len(opts.HotAddresses))
		for addr := range opts.HotAddresses {
			hot = append(hot, addr)
		}
		sort.Slice(hot, func(i, j int) bool { return hot[i] < hot[j] })
	}

	mapped := map[uint64]struct{}{}
	for i, f := range content.BBAddrMap {
		stats.BBAddrMapFunctions++

		prefix := make([]int, len(f.Ranges)+1)
		for r, rng := range f.Ranges {
			prefix[r+1] = prefix[r] + len(rng.Entries)
		}
		m.prefixBlocks[i] = prefix

		addr := f.Address()
		if _, ok := mapped[addr]; ok {
			stats.DuplicateBBAddrMapEntries++
			level.Debug(logger).Log("msg", "skipping duplicate bb address map entry", "function_index", i, "address", fmt.Sprintf("%#x", addr))
			continue
		}
		mapped[addr] = struct{}{}

		syms, ok := resolved[addr]
		if !ok {
			stats.FunctionsWithoutSymbol++
			level.Debug(logger).Log("msg", "no function symbol for bb address map entry", "function_index", i, "address", fmt.Sprintf("%#x", addr))
			continue
		}
		if syms.duplicate {
			continue
		}
		if opts.FilterNonTextFunctions && !isTextSection(syms.section) {
			stats.NonTextFunctions++
			level.Debug(logger).Log("msg", "dropping function outside of text", "function", syms.aliases[0], "section", syms.section)
			continue
		}

		m.symbolInfo[i] = FunctionSymbolInfo{Aliases: syms.aliases, SectionName: syms.section}
		m.addressable[i] = true

		if hot != nil && !overlapsAny(f, hot) {
			stats.ColdFunctions++
			continue
		}
		m.selected[i] = true
		m.selectedIdx = append(m.selectedIdx, i)
	}
	stats.SelectedFunctions = len(m.selectedIdx)

	for addr, syms := range resolved {
		if _, ok := mapped[addr]; !ok && !syms.duplicate {
			stats.SymbolsWithoutBBAddrMap++
		}
	}

	for i, f := range m.bbAddrMap {
		if !m.addressable[i] {
			continue
		}
		for r, rng := range f.Ranges {
			if len(rng.Entries) == 0 {
				continue
			}
			m.ranges = append(m.ranges, addrRange{start: rng.BaseAddress, end: rng.End(), function: i, rangeIndex: r})
		}
	}
	sort.SliceStable(m.ranges, func(i, j int) bool {
		return m.ranges[i].start < m.ranges[j].start
	})

	level.Info(logger).Log(
		"msg", "built binary address mapper",
		"binary", content.Path,
		"functions", stats.BBAddrMapFunctions,
		"selected", stats.SelectedFunctions,
		"duplicate_symbols", stats.DuplicateSymbols,
		"non_text", stats.NonTextFunctions,
		"without_symbol", stats.FunctionsWithoutSymbol,
		"cold", stats.ColdFunctions,
	)
	return m, stats, nil
}

// overlapsAny reports whether one of the sorted addresses falls into a
// range of f.
func overlapsAny(f bbaddrmap.Function, sorted []uint64) bool {
	for _, r := range f.Ranges {
		end := r.End()
		i := sort.Search(len(sorted), func(i int) bool { return sorted[i] >= r.BaseAddress })
		if i < len(sorted) && sorted[i] < end {
			return true
		}
	}
	return false
}

// BBAddrMap returns the basic block address map of all functions, indexed
// by function index. Entries of functions that were not mapped are kept so
// that indices match the binary.
func (m *BinaryAddressMapper) BBAddrMap() []bbaddrmap.Function {
	return m.bbAddrMap
}

// SymbolInfo returns the symbols of every mapped function.
func (m *BinaryAddressMapper) SymbolInfo() map[int]FunctionSymbolInfo {
	return m.symbolInfo
}

// SelectedFunctions returns the indices of the functions paths are
// extracted for, in ascending order.
func (m *BinaryAddressMapper) SelectedFunctions() []int {
	return m.selectedIdx
}

func (m *BinaryAddressMapper) IsSelected(functionIndex int) bool {
	return functionIndex >= 0 && functionIndex < len(m.selected) && m.selected[functionIndex]
}

// FunctionName returns the primary alias of the function.
func (m *BinaryAddressMapper) FunctionName(functionIndex int) (string, bool) {
	info, ok := m.symbolInfo[functionIndex]
	if !ok {
		return "", false
	}
	return info.Aliases[0], true
}
