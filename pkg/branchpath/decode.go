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

package branchpath

import (
	"errors"
	"fmt"
	"time"

	"github.com/dennwc/varint"

	"github.com/parca-dev/propeller/pkg/bbhandle"
)

var ErrCorrupt = errors.New("corrupt encoded branch paths")

type decoder struct {
	data   []byte
	offset int
}

// Decode reverses Encode.
func Decode(data []byte) ([]FlatBbHandleBranchPath, error) {
	d := &decoder{data: data}

	numberOfPaths, err := d.count()
	if err != nil {
		return nil, err
	}

	res := make([]FlatBbHandleBranchPath, 0, numberOfPaths)
	for i := 0; i < numberOfPaths; i++ {
		p, err := d.path()
		if err != nil {
			return nil, fmt.Errorf("path %d: %w", i, err)
		}
		res = append(res, p)
	}
	if d.offset != len(d.data) {
		return nil, fmt.Errorf("%d trailing bytes: %w", len(d.data)-d.offset, ErrCorrupt)
	}
	return res, nil
}

func (d *decoder) path() (FlatBbHandleBranchPath, error) {
	var p FlatBbHandleBranchPath

	flags, err := d.byte()
	if err != nil {
		return p, err
	}
	pid, err := d.uvarint()
	if err != nil {
		return p, err
	}
	p.Pid = int64(pid)

	if flags&pathHasSampleTime != 0 {
		ns, err := d.uvarint()
		if err != nil {
			return p, err
		}
		p.SampleTime = time.Unix(0, int64(ns))
	}
	if flags&pathHasReturnsTo != 0 {
		h, err := d.handle()
		if err != nil {
			return p, err
		}
		p.ReturnsTo = &h
	}

	numberOfBranches, err := d.count()
	if err != nil {
		return p, err
	}
	if numberOfBranches == 0 {
		return p, nil
	}
	p.Branches = make([]BranchEntry, 0, numberOfBranches)
	for i := 0; i < numberOfBranches; i++ {
		b, err := d.entry()
		if err != nil {
			return p, fmt.Errorf("branch %d: %w", i, err)
		}
		p.Branches = append(p.Branches, b)
	}
	return p, nil
}

func (d *decoder) entry() (BranchEntry, error) {
	var b BranchEntry

	flags, err := d.byte()
	if err != nil {
		return b, err
	}
	if flags&entryHasFrom != 0 {
		h, err := d.handle()
		if err != nil {
			return b, err
		}
		b.FromBb = &h
	}
	if flags&entryHasTo != 0 {
		h, err := d.handle()
		if err != nil {
			return b, err
		}
		b.ToBb = &h
	}

	numberOfCalls, err := d.count()
	if err != nil {
		return b, err
	}
	if numberOfCalls == 0 {
		return b, nil
	}
	b.CallRets = make([]CallReturn, 0, numberOfCalls)
	for i := 0; i < numberOfCalls; i++ {
		var cr CallReturn
		flags, err := d.byte()
		if err != nil {
			return b, err
		}
		if flags&callHasCallee != 0 {
			callee, err := d.uvarint()
			if err != nil {
				return b, err
			}
			cr.Callee = Callee(int(callee))
		}
		if flags&callHasReturnBb != 0 {
			h, err := d.handle()
			if err != nil {
				return b, err
			}
			cr.ReturnBb = &h
		}
		b.CallRets = append(b.CallRets, cr)
	}
	return b, nil
}

func (d *decoder) handle() (bbhandle.FlatBbHandle, error) {
	fn, err := d.uvarint()
	if err != nil {
		return bbhandle.FlatBbHandle{}, err
	}
	idx, err := d.uvarint()
	if err != nil {
		return bbhandle.FlatBbHandle{}, err
	}
	return bbhandle.FlatBbHandle{FunctionIndex: int(fn), FlatBbIndex: int(idx)}, nil
}

// count reads a length and rejects values that cannot fit in the rest of
// the buffer, each element taking at least one byte.
func (d *decoder) count() (int, error) {
	n, err := d.uvarint()
	if err != nil {
		return 0, err
	}
	if n > uint64(len(d.data)-d.offset) {
		return 0, fmt.Errorf("length %d exceeds remaining %d bytes: %w", n, len(d.data)-d.offset, ErrCorrupt)
	}
	return int(n), nil
}

func (d *decoder) byte() (byte, error) {
	if d.offset >= len(d.data) {
		return 0, fmt.Errorf("unexpected end of data: %w", ErrCorrupt)
	}
	b := d.data[d.offset]
	d.offset++
	return b, nil
}

func (d *decoder) uvarint() (uint64, error) {
	v, n := varint.Uvarint(d.data[d.offset:])
	if n <= 0 {
		return 0, fmt.Errorf("invalid varint at offset %d: %w", d.offset, ErrCorrupt)
	}
	d.offset += n
	return v, nil
}
