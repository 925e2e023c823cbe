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

// Package branchpath holds raw branch samples as recorded by the hardware
// and the per-function paths reconstructed from them.
package branchpath

import (
	"time"

	"github.com/parca-dev/propeller/pkg/bbhandle"
)

// BinaryAddressBranch is one taken branch in raw binary addresses.
type BinaryAddressBranch struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// BinaryAddressBranchPath is the branch record of one sampling event,
// oldest branch first.
type BinaryAddressBranchPath struct {
	Pid        int64                 `json:"pid"`
	SampleTime time.Time             `json:"sample_time"`
	Branches   []BinaryAddressBranch `json:"branches"`
}

// CallReturn is one call made between two intra-function branches. Callee
// is nil when the call went to unmapped code and ReturnBb is nil when the
// block the callee returned from is unknown.
type CallReturn struct {
	Callee   *int                   `json:"callee,omitempty"`
	ReturnBb *bbhandle.FlatBbHandle `json:"return_bb,omitempty"`
}

// BranchEntry is a branch between two blocks of the same function together
// with the calls made from FromBb before it.
type BranchEntry struct {
	FromBb   *bbhandle.FlatBbHandle `json:"from_bb,omitempty"`
	ToBb     *bbhandle.FlatBbHandle `json:"to_bb,omitempty"`
	CallRets []CallReturn           `json:"call_rets,omitempty"`
}

// FlatBbHandleBranchPath is the path of one function activation.
type FlatBbHandleBranchPath struct {
	Pid        int64         `json:"pid"`
	SampleTime time.Time     `json:"sample_time"`
	Branches   []BranchEntry `json:"branches"`

	// ReturnsTo is the caller block execution resumed in, when the
	// activation returned to a function without an open path.
	ReturnsTo *bbhandle.FlatBbHandle `json:"returns_to,omitempty"`
}

// Callee returns a pointer to a copy of the function index.
func Callee(functionIndex int) *int {
	return &functionIndex
}
