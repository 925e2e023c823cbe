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

// Package bbhandle contains the coordinates used to refer to a basic block
// of a mapped binary.
package bbhandle

import "fmt"

// BbHandle addresses a block by function, range within the function and
// block within the range.
type BbHandle struct {
	FunctionIndex int `json:"function_index"`
	RangeIndex    int `json:"range_index"`
	BbIndex       int `json:"bb_index"`
}

func (h BbHandle) String() string {
	return fmt.Sprintf("%d#%d.%d", h.FunctionIndex, h.RangeIndex, h.BbIndex)
}

// FlatBbHandle addresses a block by its index after concatenating all
// ranges of the function in order.
type FlatBbHandle struct {
	FunctionIndex int `json:"function_index"`
	FlatBbIndex   int `json:"flat_bb_index"`
}

func (h FlatBbHandle) String() string {
	return fmt.Sprintf("%d#%d", h.FunctionIndex, h.FlatBbIndex)
}

// Ptr returns a pointer to a copy of h. Handles are optional in paths.
func (h FlatBbHandle) Ptr() *FlatBbHandle {
	return &h
}

// Equal reports whether two optional handles refer to the same block.
func Equal(a, b *FlatBbHandle) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
