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
	"fmt"
	"sort"

	"github.com/parca-dev/propeller/pkg/bbaddrmap"
	"github.com/parca-dev/propeller/pkg/bbhandle"
)

// BranchDirection tells how an address was observed in a branch record.
type BranchDirection int

const (
	// Target addresses were jumped to.
	Target BranchDirection = iota
	// Source addresses issued the branch, or follow the call instruction
	// when used as a return address.
	Source
)

func (d BranchDirection) String() string {
	switch d {
	case Target:
		return "target"
	case Source:
		return "source"
	default:
		return fmt.Sprintf("BranchDirection(%d)", int(d))
	}
}

// FindBbHandle returns the block of an addressable function containing
// addr.
//
// A target resolves to the first block, in declaration order, with
// start <= addr < end, or to a zero sized block starting at addr. A source
// at the end of a non-empty block resolves to that block, unless addr is
// the function entry, and otherwise prefers a non-empty block over a zero
// sized one.
func (m *BinaryAddressMapper) FindBbHandle(addr uint64, dir BranchDirection) (bbhandle.BbHandle, bool) {
	i := sort.Search(len(m.ranges), func(i int) bool { return m.ranges[i].start > addr })
	for j := i - 1; j >= 0 && m.ranges[j].end >= addr; j-- {
		r := m.ranges[j]
		f := m.bbAddrMap[r.function]
		if bb, ok := findInRange(f.Ranges[r.rangeIndex], addr, dir, addr == f.Address()); ok {
			return bbhandle.BbHandle{FunctionIndex: r.function, RangeIndex: r.rangeIndex, BbIndex: bb}, true
		}
	}
	return bbhandle.BbHandle{}, false
}

// FindFlatBbHandle is FindBbHandle returning the flat handle.
func (m *BinaryAddressMapper) FindFlatBbHandle(addr uint64, dir BranchDirection) (bbhandle.FlatBbHandle, bool) {
	h, ok := m.FindBbHandle(addr, dir)
	if !ok {
		return bbhandle.FlatBbHandle{}, false
	}
	return m.GetFlatBbHandle(h)
}

// findInRange relies on blocks being offset ordered and non-overlapping,
// which makes both block starts and ends non-decreasing.
func findInRange(r bbaddrmap.Range, addr uint64, dir BranchDirection, isEntry bool) (int, bool) {
	n := len(r.Entries)
	start := func(j int) uint64 { return r.BaseAddress + uint64(r.Entries[j].Offset) }
	end := func(j int) uint64 { return start(j) + uint64(r.Entries[j].Size) }

	if dir == Source && !isEntry {
		k := sort.Search(n, func(j int) bool { return end(j) >= addr })
		for j := k; j < n && end(j) == addr; j++ {
			if r.Entries[j].Size > 0 {
				return j, true
			}
		}
	}

	k := sort.Search(n, func(j int) bool { return end(j) > addr || start(j) >= addr })
	zeroSized := -1
	for j := k; j < n && start(j) <= addr; j++ {
		if addr < end(j) {
			return j, true
		}
		if r.Entries[j].Size == 0 && start(j) == addr {
			if dir == Target {
				return j, true
			}
			if zeroSized < 0 {
				zeroSized = j
			}
		}
	}
	if zeroSized >= 0 {
		return zeroSized, true
	}
	return 0, false
}
