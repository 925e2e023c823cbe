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

package bbaddrmap

import "encoding/binary"

// Encode produces a version 2 section holding the given functions. Blocks
// of a range must be offset ordered and must not overlap.
func Encode(functions []Function, addrSize int, byteOrder binary.AppendByteOrder) []byte {
	var buf []byte
	for _, f := range functions {
		var feat uint8
		if f.FuncEntryCount != nil {
			feat |= 1 << 0
		}
		if f.Blocks != nil {
			feat |= 1<<1 | 1<<2
		}
		if len(f.Ranges) != 1 {
			feat |= 1 << 3
		}
		buf = append(buf, 2, feat)
		if len(f.Ranges) != 1 {
			buf = binary.AppendUvarint(buf, uint64(len(f.Ranges)))
		}

		for _, r := range f.Ranges {
			if addrSize == 4 {
				buf = byteOrder.AppendUint32(buf, uint32(r.BaseAddress))
			} else {
				buf = byteOrder.AppendUint64(buf, r.BaseAddress)
			}
			buf = binary.AppendUvarint(buf, uint64(len(r.Entries)))
			var prevEnd uint32
			for _, e := range r.Entries {
				buf = binary.AppendUvarint(buf, uint64(e.ID))
				buf = binary.AppendUvarint(buf, uint64(e.Offset-prevEnd))
				buf = binary.AppendUvarint(buf, uint64(e.Size))
				buf = binary.AppendUvarint(buf, e.Metadata.Encode())
				prevEnd = e.Offset + e.Size
			}
		}

		if f.FuncEntryCount != nil {
			buf = binary.AppendUvarint(buf, *f.FuncEntryCount)
		}
		for _, b := range f.Blocks {
			buf = binary.AppendUvarint(buf, b.Frequency)
			buf = binary.AppendUvarint(buf, uint64(len(b.Successors)))
			for _, s := range b.Successors {
				buf = binary.AppendUvarint(buf, uint64(s.ID))
				buf = binary.AppendUvarint(buf, uint64(s.Probability))
			}
		}
	}
	return buf
}
