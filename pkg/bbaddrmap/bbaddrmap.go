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

// Package bbaddrmap holds the per-function basic block layout emitted by
// LLVM into the SHT_LLVM_BB_ADDR_MAP section and a decoder for it.
package bbaddrmap

// Metadata are the control-flow flags recorded for a basic block.
type Metadata struct {
	HasReturn         bool
	HasTailCall       bool
	IsEHPad           bool
	CanFallThrough    bool
	HasIndirectBranch bool
}

const (
	mdHasReturn = 1 << iota
	mdHasTailCall
	mdIsEHPad
	mdCanFallThrough
	mdHasIndirectBranch
)

// DecodeMetadata unpacks the metadata bit field.
func DecodeMetadata(v uint64) Metadata {
	return Metadata{
		HasReturn:         v&mdHasReturn != 0,
		HasTailCall:       v&mdHasTailCall != 0,
		IsEHPad:           v&mdIsEHPad != 0,
		CanFallThrough:    v&mdCanFallThrough != 0,
		HasIndirectBranch: v&mdHasIndirectBranch != 0,
	}
}

// Encode packs the metadata back into its bit field.
func (m Metadata) Encode() uint64 {
	var v uint64
	if m.HasReturn {
		v |= mdHasReturn
	}
	if m.HasTailCall {
		v |= mdHasTailCall
	}
	if m.IsEHPad {
		v |= mdIsEHPad
	}
	if m.CanFallThrough {
		v |= mdCanFallThrough
	}
	if m.HasIndirectBranch {
		v |= mdHasIndirectBranch
	}
	return v
}

// BBEntry is one basic block. Offset is relative to the base address of
// the enclosing range.
type BBEntry struct {
	ID       uint32
	Offset   uint32
	Size     uint32
	Metadata Metadata
}

// Range is a contiguous run of basic blocks of a function. Functions split
// by basic block sections have more than one range.
type Range struct {
	BaseAddress uint64
	Entries     []BBEntry
}

// Address returns the address of the i-th block of the range.
func (r Range) Address(i int) uint64 {
	return r.BaseAddress + uint64(r.Entries[i].Offset)
}

// End returns the first address past the last block of the range.
func (r Range) End() uint64 {
	end := r.BaseAddress
	for _, e := range r.Entries {
		if blockEnd := r.BaseAddress + uint64(e.Offset) + uint64(e.Size); blockEnd > end {
			end = blockEnd
		}
	}
	return end
}

// Successor is an edge recorded by the branch probability feature.
type Successor struct {
	ID          uint32
	Probability uint32
}

// BlockPGO is the profile data recorded for one block, when present.
type BlockPGO struct {
	Frequency  uint64
	Successors []Successor
}

// Function is the decoded map of a single function.
type Function struct {
	Ranges []Range

	// Optional PGO analysis data. Blocks follow the flattened order of
	// Ranges.
	FuncEntryCount *uint64
	Blocks         []BlockPGO
}

// Address is the function entry address, the base of the first range.
func (f Function) Address() uint64 {
	if len(f.Ranges) == 0 {
		return 0
	}
	return f.Ranges[0].BaseAddress
}

// NumBlocks returns the number of blocks over all ranges.
func (f Function) NumBlocks() int {
	n := 0
	for _, r := range f.Ranges {
		n += len(r.Entries)
	}
	return n
}
