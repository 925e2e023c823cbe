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
	"sort"

	"github.com/parca-dev/propeller/pkg/bbhandle"
)

// mapped reports whether function is in bounds and was not dropped while
// building the mapper.
func (m *BinaryAddressMapper) mapped(function int) bool {
	return function >= 0 && function < len(m.prefixBlocks) && m.addressable[function]
}

// GetBbHandle converts a flat handle into a nested one. It reports false
// when the function was dropped or the flat block index is out of bounds.
func (m *BinaryAddressMapper) GetBbHandle(h bbhandle.FlatBbHandle) (bbhandle.BbHandle, bool) {
	if !m.mapped(h.FunctionIndex) {
		return bbhandle.BbHandle{}, false
	}
	prefix := m.prefixBlocks[h.FunctionIndex]
	numRanges := len(prefix) - 1
	if h.FlatBbIndex < 0 || h.FlatBbIndex >= prefix[numRanges] {
		return bbhandle.BbHandle{}, false
	}
	// First range ending after the flat index. Empty ranges are skipped.
	r := sort.Search(numRanges, func(r int) bool { return prefix[r+1] > h.FlatBbIndex })
	return bbhandle.BbHandle{
		FunctionIndex: h.FunctionIndex,
		RangeIndex:    r,
		BbIndex:       h.FlatBbIndex - prefix[r],
	}, true
}

// GetFlatBbHandle converts a nested handle into a flat one. It reports false
// when the function was dropped or any component is out of bounds.
func (m *BinaryAddressMapper) GetFlatBbHandle(h bbhandle.BbHandle) (bbhandle.FlatBbHandle, bool) {
	if !m.mapped(h.FunctionIndex) {
		return bbhandle.FlatBbHandle{}, false
	}
	prefix := m.prefixBlocks[h.FunctionIndex]
	if h.RangeIndex < 0 || h.RangeIndex >= len(prefix)-1 {
		return bbhandle.FlatBbHandle{}, false
	}
	if h.BbIndex < 0 || h.BbIndex >= prefix[h.RangeIndex+1]-prefix[h.RangeIndex] {
		return bbhandle.FlatBbHandle{}, false
	}
	return bbhandle.FlatBbHandle{
		FunctionIndex: h.FunctionIndex,
		FlatBbIndex:   prefix[h.RangeIndex] + h.BbIndex,
	}, true
}

// NumBlocks returns the number of blocks of the function over all ranges,
// or zero for a dropped function.
func (m *BinaryAddressMapper) NumBlocks(functionIndex int) int {
	if !m.mapped(functionIndex) {
		return 0
	}
	prefix := m.prefixBlocks[functionIndex]
	return prefix[len(prefix)-1]
}

// BlockAddress returns the start address and size of the block.
func (m *BinaryAddressMapper) BlockAddress(h bbhandle.BbHandle) (uint64, uint32, bool) {
	if _, ok := m.GetFlatBbHandle(h); !ok {
		return 0, 0, false
	}
	r := m.bbAddrMap[h.FunctionIndex].Ranges[h.RangeIndex]
	return r.Address(h.BbIndex), r.Entries[h.BbIndex].Size, true
}
