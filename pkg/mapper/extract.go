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
	"github.com/parca-dev/propeller/pkg/bbaddrmap"
	"github.com/parca-dev/propeller/pkg/bbhandle"
	"github.com/parca-dev/propeller/pkg/branchpath"
)

// endpoint is a branch address resolved to a block.
type endpoint struct {
	ok    bool
	h     bbhandle.FlatBbHandle
	md    bbaddrmap.Metadata
	entry bool
}

func (e endpoint) fn() int {
	return e.h.FunctionIndex
}

func (m *BinaryAddressMapper) resolve(addr uint64, dir BranchDirection) endpoint {
	h, ok := m.FindBbHandle(addr, dir)
	if !ok {
		return endpoint{}
	}
	flat, ok := m.GetFlatBbHandle(h)
	if !ok {
		return endpoint{}
	}
	f := m.bbAddrMap[h.FunctionIndex]
	return endpoint{
		ok:    true,
		h:     flat,
		md:    f.Ranges[h.RangeIndex].Entries[h.BbIndex].Metadata,
		entry: addr == f.Address(),
	}
}

// frame is an open function activation.
type frame struct {
	function int
	path     int

	// awaitingReturn is set after a call to a mapped function until the
	// call returns.
	awaitingReturn bool
	// pendingCall is the block that branched into unmapped code, until
	// control comes back.
	pendingCall *bbhandle.FlatBbHandle
}

type extraction struct {
	m      *BinaryAddressMapper
	sample *branchpath.BinaryAddressBranchPath

	paths     []branchpath.FlatBbHandleBranchPath
	functions []int
	stack     []frame
}

// ExtractIntraFunctionPaths replays the branches of one sample and returns
// a path per function activation, in the order the activations were
// entered. Unresolved addresses never fail the extraction, they split the
// affected paths instead. Paths of functions that are not selected are
// left out.
func (m *BinaryAddressMapper) ExtractIntraFunctionPaths(sample branchpath.BinaryAddressBranchPath) []branchpath.FlatBbHandleBranchPath {
	e := &extraction{m: m, sample: &sample}
	for _, b := range sample.Branches {
		e.branch(b)
	}
	e.drain()

	var res []branchpath.FlatBbHandleBranchPath
	for i, p := range e.paths {
		if len(p.Branches) == 0 || !m.IsSelected(e.functions[i]) {
			continue
		}
		res = append(res, p)
	}
	return res
}

func (e *extraction) branch(b branchpath.BinaryAddressBranch) {
	from := e.m.resolve(b.From, Source)
	to := e.m.resolve(b.To, Target)

	// A known source must continue the innermost activation. Anything else
	// means branches were lost.
	if from.ok {
		top := e.top()
		switch {
		case top == nil:
			e.push(from.fn())
		case top.function != from.fn() || top.pendingCall != nil:
			e.drain()
			e.push(from.fn())
		}
	}

	switch {
	case !to.ok:
		if !from.ok {
			return
		}
		if from.md.HasReturn {
			// Return to a caller in unmapped code.
			e.add(e.top(), branchpath.BranchEntry{FromBb: from.h.Ptr()})
			e.pop()
			if caller := e.top(); caller != nil {
				caller.awaitingReturn = false
			}
			return
		}
		e.top().pendingCall = from.h.Ptr()
	case to.entry:
		e.call(from, to)
	case from.ok && from.fn() == to.fn():
		if from.md.HasReturn && e.returnsToRecursiveCaller(from.fn()) {
			e.ret(from, to, b.To)
			return
		}
		top := e.top()
		top.awaitingReturn = false
		e.add(top, branchpath.BranchEntry{FromBb: from.h.Ptr(), ToBb: to.h.Ptr()})
	default:
		e.ret(from, to, b.To)
	}
}

func (e *extraction) call(from, to endpoint) {
	switch top := e.top(); {
	case from.ok:
		e.recordCall(top, from.h, branchpath.Callee(to.fn()))
		top.awaitingReturn = true
	case top != nil && top.pendingCall != nil:
		// Callback from unmapped code, the caller stays open.
	default:
		e.drain()
	}
	callee := e.push(to.fn())
	e.add(callee, branchpath.BranchEntry{ToBb: to.h.Ptr()})
}

// recordCall adds a call made from block from. Calls made from the block a
// previous call returned to share its entry.
func (e *extraction) recordCall(fr *frame, from bbhandle.FlatBbHandle, callee *int) {
	p := &e.paths[fr.path]
	if n := len(p.Branches); n > 0 {
		last := &p.Branches[n-1]
		if len(last.CallRets) > 0 && bbhandle.Equal(last.ToBb, &from) {
			last.ToBb = nil
			last.CallRets = append(last.CallRets, branchpath.CallReturn{Callee: callee})
			return
		}
	}
	p.Branches = append(p.Branches, branchpath.BranchEntry{
		FromBb:   from.Ptr(),
		CallRets: []branchpath.CallReturn{{Callee: callee}},
	})
}

func (e *extraction) returnsToRecursiveCaller(function int) bool {
	if len(e.stack) < 2 {
		return false
	}
	caller := e.stack[len(e.stack)-2]
	return caller.function == function && caller.awaitingReturn
}

// ret handles control landing in the middle of a function other than the
// one of the source block.
func (e *extraction) ret(from, to endpoint, toAddr uint64) {
	callSite := e.m.resolve(toAddr, Source)

	var returnBb *bbhandle.FlatBbHandle
	if from.ok {
		top := e.top()
		e.add(top, branchpath.BranchEntry{FromBb: from.h.Ptr()})
		e.setReturnsTo(top, callSite)
		e.pop()
		returnBb = from.h.Ptr()
	}

	k := e.find(to.fn())
	if k < 0 || (!e.stack[k].awaitingReturn && e.stack[k].pendingCall == nil) {
		e.drain()
		entry := branchpath.BranchEntry{ToBb: to.h.Ptr()}
		if from.ok {
			if callSite.ok && callSite.fn() == to.fn() && callSite.h != to.h {
				entry.FromBb = callSite.h.Ptr()
			}
			entry.CallRets = []branchpath.CallReturn{{ReturnBb: returnBb}}
		}
		e.add(e.push(to.fn()), entry)
		return
	}

	// Activations above the caller ended with it, e.g. after tail calls.
	for len(e.stack)-1 > k {
		top := e.top()
		p := &e.paths[top.path]
		switch {
		case top.awaitingReturn:
			if last := lastCall(p); last != nil {
				last.CallRets[len(last.CallRets)-1].ReturnBb = returnBb
				returnBb = last.FromBb
			}
		case top.pendingCall != nil:
			p.Branches = append(p.Branches, branchpath.BranchEntry{FromBb: top.pendingCall})
			returnBb = top.pendingCall.Ptr()
		}
		e.setReturnsTo(top, callSite)
		e.pop()
	}

	caller := e.top()
	p := &e.paths[caller.path]
	if caller.awaitingReturn {
		caller.awaitingReturn = false
		if last := lastCall(p); last != nil {
			last.CallRets[len(last.CallRets)-1].ReturnBb = returnBb
			last.ToBb = to.h.Ptr()
			return
		}
	}

	pending := caller.pendingCall
	caller.pendingCall = nil
	cr := branchpath.CallReturn{ReturnBb: returnBb}
	if n := len(p.Branches); n > 0 {
		last := &p.Branches[n-1]
		if len(last.CallRets) > 0 && bbhandle.Equal(last.ToBb, pending) {
			last.ToBb = to.h.Ptr()
			last.CallRets = append(last.CallRets, cr)
			return
		}
	}
	p.Branches = append(p.Branches, branchpath.BranchEntry{
		FromBb:   pending,
		ToBb:     to.h.Ptr(),
		CallRets: []branchpath.CallReturn{cr},
	})
}

// lastCall returns the last entry of p if it records a call.
func lastCall(p *branchpath.FlatBbHandleBranchPath) *branchpath.BranchEntry {
	n := len(p.Branches)
	if n == 0 || len(p.Branches[n-1].CallRets) == 0 {
		return nil
	}
	return &p.Branches[n-1]
}

func (e *extraction) setReturnsTo(fr *frame, callSite endpoint) {
	if callSite.ok {
		e.paths[fr.path].ReturnsTo = callSite.h.Ptr()
	}
}

func (e *extraction) top() *frame {
	if len(e.stack) == 0 {
		return nil
	}
	return &e.stack[len(e.stack)-1]
}

// find returns the position of the innermost frame of function, or -1.
func (e *extraction) find(function int) int {
	for i := len(e.stack) - 1; i >= 0; i-- {
		if e.stack[i].function == function {
			return i
		}
	}
	return -1
}

// push opens a new path for function. A full stack is drained first.
func (e *extraction) push(function int) *frame {
	if len(e.stack) >= e.m.maxStackDepth {
		e.drain()
	}
	e.paths = append(e.paths, branchpath.FlatBbHandleBranchPath{
		Pid:        e.sample.Pid,
		SampleTime: e.sample.SampleTime,
	})
	e.functions = append(e.functions, function)
	e.stack = append(e.stack, frame{function: function, path: len(e.paths) - 1})
	return e.top()
}

func (e *extraction) pop() {
	e.stack = e.stack[:len(e.stack)-1]
}

func (e *extraction) add(fr *frame, entry branchpath.BranchEntry) {
	p := &e.paths[fr.path]
	p.Branches = append(p.Branches, entry)
}

// drain closes every open activation. Calls into unmapped code that never
// came back end their path.
func (e *extraction) drain() {
	for i := range e.stack {
		if pending := e.stack[i].pendingCall; pending != nil {
			e.add(&e.stack[i], branchpath.BranchEntry{FromBb: pending})
		}
	}
	e.stack = e.stack[:0]
}
