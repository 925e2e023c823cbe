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
	"encoding/binary"

	"github.com/dennwc/varint"

	"github.com/parca-dev/propeller/pkg/bbhandle"
)

const (
	pathHasSampleTime = 1 << iota
	pathHasReturnsTo
)

const (
	entryHasFrom = 1 << iota
	entryHasTo
)

const (
	callHasCallee = 1 << iota
	callHasReturnBb
)

// Encode serializes the paths extracted from one sample.
func Encode(paths []FlatBbHandleBranchPath) []byte {
	buf := make([]byte, encodedSize(paths))

	offset := writeUvarint(buf, 0, uint64(len(paths)))
	for _, p := range paths {
		var flags byte
		if !p.SampleTime.IsZero() {
			flags |= pathHasSampleTime
		}
		if p.ReturnsTo != nil {
			flags |= pathHasReturnsTo
		}
		buf[offset] = flags
		offset++

		offset = writeUvarint(buf, offset, uint64(p.Pid))
		if !p.SampleTime.IsZero() {
			offset = writeUvarint(buf, offset, uint64(p.SampleTime.UnixNano()))
		}
		if p.ReturnsTo != nil {
			offset = writeHandle(buf, offset, *p.ReturnsTo)
		}

		offset = writeUvarint(buf, offset, uint64(len(p.Branches)))
		for _, b := range p.Branches {
			offset = writeEntry(buf, offset, b)
		}
	}

	return buf
}

func writeEntry(buf []byte, offset int, b BranchEntry) int {
	var flags byte
	if b.FromBb != nil {
		flags |= entryHasFrom
	}
	if b.ToBb != nil {
		flags |= entryHasTo
	}
	buf[offset] = flags
	offset++

	if b.FromBb != nil {
		offset = writeHandle(buf, offset, *b.FromBb)
	}
	if b.ToBb != nil {
		offset = writeHandle(buf, offset, *b.ToBb)
	}

	offset = writeUvarint(buf, offset, uint64(len(b.CallRets)))
	for _, cr := range b.CallRets {
		var flags byte
		if cr.Callee != nil {
			flags |= callHasCallee
		}
		if cr.ReturnBb != nil {
			flags |= callHasReturnBb
		}
		buf[offset] = flags
		offset++

		if cr.Callee != nil {
			offset = writeUvarint(buf, offset, uint64(*cr.Callee))
		}
		if cr.ReturnBb != nil {
			offset = writeHandle(buf, offset, *cr.ReturnBb)
		}
	}
	return offset
}

func writeHandle(buf []byte, offset int, h bbhandle.FlatBbHandle) int {
	offset = writeUvarint(buf, offset, uint64(h.FunctionIndex))
	return writeUvarint(buf, offset, uint64(h.FlatBbIndex))
}

func writeUvarint(buf []byte, offset int, v uint64) int {
	return offset + binary.PutUvarint(buf[offset:], v)
}

func encodedSize(paths []FlatBbHandleBranchPath) int {
	size := varint.UvarintSize(uint64(len(paths)))
	for _, p := range paths {
		size++ // flags
		size += varint.UvarintSize(uint64(p.Pid))
		if !p.SampleTime.IsZero() {
			size += varint.UvarintSize(uint64(p.SampleTime.UnixNano()))
		}
		if p.ReturnsTo != nil {
			size += handleSize(*p.ReturnsTo)
		}

		size += varint.UvarintSize(uint64(len(p.Branches)))
		for _, b := range p.Branches {
			size++
			if b.FromBb != nil {
				size += handleSize(*b.FromBb)
			}
			if b.ToBb != nil {
				size += handleSize(*b.ToBb)
			}
			size += varint.UvarintSize(uint64(len(b.CallRets)))
			for _, cr := range b.CallRets {
				size++
				if cr.Callee != nil {
					size += varint.UvarintSize(uint64(*cr.Callee))
				}
				if cr.ReturnBb != nil {
					size += handleSize(*cr.ReturnBb)
				}
			}
		}
	}
	return size
}

func handleSize(h bbhandle.FlatBbHandle) int {
	return varint.UvarintSize(uint64(h.FunctionIndex)) + varint.UvarintSize(uint64(h.FlatBbIndex))
}
