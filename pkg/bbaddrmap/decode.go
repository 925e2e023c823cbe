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

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dennwc/varint"
)

// SectionType is the ELF section type of the basic block address map.
const SectionType = 0x6fff4c0a

// MaxVersion is the newest encoding version understood by Decode.
const MaxVersion = 3

var (
	ErrUnsupportedVersion = errors.New("unsupported bb address map version")
	ErrTruncated          = errors.New("truncated bb address map")
)

// Features is the feature byte that follows the version.
type Features struct {
	FuncEntryCount  bool
	BBFreq          bool
	BrProb          bool
	MultiBBRange    bool
	OmitBBEntries   bool
	CallsiteOffsets bool
}

func decodeFeatures(b uint8) Features {
	return Features{
		FuncEntryCount:  b&(1<<0) != 0,
		BBFreq:          b&(1<<1) != 0,
		BrProb:          b&(1<<2) != 0,
		MultiBBRange:    b&(1<<3) != 0,
		OmitBBEntries:   b&(1<<4) != 0,
		CallsiteOffsets: b&(1<<5) != 0,
	}
}

func (f Features) hasPGO() bool {
	return f.FuncEntryCount || f.BBFreq || f.BrProb
}

type decoder struct {
	data      []byte
	offset    int
	addrSize  int
	byteOrder binary.ByteOrder
}

func (d *decoder) eof() bool {
	return d.offset >= len(d.data)
}

func (d *decoder) u8() (uint8, error) {
	if d.offset >= len(d.data) {
		return 0, fmt.Errorf("reading byte at offset %d: %w", d.offset, ErrTruncated)
	}
	b := d.data[d.offset]
	d.offset++
	return b, nil
}

func (d *decoder) uleb() (uint64, error) {
	v, n := varint.Uvarint(d.data[d.offset:])
	if n <= 0 {
		return 0, fmt.Errorf("reading ULEB128 at offset %d: %w", d.offset, ErrTruncated)
	}
	d.offset += n
	return v, nil
}

func (d *decoder) uleb32() (uint32, error) {
	v, err := d.uleb()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("value %d at offset %d overflows uint32", v, d.offset)
	}
	return uint32(v), nil
}

func (d *decoder) address() (uint64, error) {
	if d.offset+d.addrSize > len(d.data) {
		return 0, fmt.Errorf("reading address at offset %d: %w", d.offset, ErrTruncated)
	}
	b := d.data[d.offset : d.offset+d.addrSize]
	d.offset += d.addrSize
	if d.addrSize == 4 {
		return uint64(d.byteOrder.Uint32(b)), nil
	}
	return d.byteOrder.Uint64(b), nil
}

// Decode decodes all function records of one section. addrSize is 4 or 8
// bytes, following the ELF class.
func Decode(data []byte, addrSize int, byteOrder binary.ByteOrder) ([]Function, error) {
	if addrSize != 4 && addrSize != 8 {
		return nil, fmt.Errorf("invalid address size %d", addrSize)
	}
	d := &decoder{data: data, addrSize: addrSize, byteOrder: byteOrder}

	var functions []Function
	for !d.eof() {
		start := d.offset
		f, err := d.function()
		if err != nil {
			return nil, fmt.Errorf("decode function record %d at offset %d: %w", len(functions), start, err)
		}
		functions = append(functions, f)
	}
	return functions, nil
}

func (d *decoder) function() (Function, error) {
	version, err := d.u8()
	if err != nil {
		return Function{}, err
	}
	if version == 0 || version > MaxVersion {
		return Function{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	featByte, err := d.u8()
	if err != nil {
		return Function{}, err
	}
	feat := decodeFeatures(featByte)
	if feat.MultiBBRange && version < 2 {
		return Function{}, fmt.Errorf("multi range feature requires version 2, got %d", version)
	}
	if feat.CallsiteOffsets && version < 3 {
		return Function{}, fmt.Errorf("callsite offsets feature requires version 3, got %d", version)
	}

	numRanges := uint64(1)
	if feat.MultiBBRange {
		if numRanges, err = d.uleb(); err != nil {
			return Function{}, err
		}
	}

	var f Function
	numBlocks := 0
	for i := uint64(0); i < numRanges; i++ {
		base, err := d.address()
		if err != nil {
			return Function{}, err
		}
		n, err := d.uleb()
		if err != nil {
			return Function{}, err
		}
		r := Range{BaseAddress: base}
		if !feat.OmitBBEntries {
			if r.Entries, err = d.entries(int(n), feat); err != nil {
				return Function{}, fmt.Errorf("range %d: %w", i, err)
			}
		}
		numBlocks += int(n)
		f.Ranges = append(f.Ranges, r)
	}

	if feat.hasPGO() {
		if err := d.pgo(&f, numBlocks, feat); err != nil {
			return Function{}, fmt.Errorf("pgo analysis map: %w", err)
		}
	}
	return f, nil
}

func (d *decoder) entries(n int, feat Features) ([]BBEntry, error) {
	entries := make([]BBEntry, 0, n)
	var prevEnd uint32
	for i := 0; i < n; i++ {
		id, err := d.uleb32()
		if err != nil {
			return nil, err
		}
		offset, err := d.uleb32()
		if err != nil {
			return nil, err
		}
		offset += prevEnd

		// Call site end offsets are delta encoded from the block start and
		// the size from the last call site end.
		var lastCallsiteEnd uint32
		if feat.CallsiteOffsets {
			numCallsites, err := d.uleb()
			if err != nil {
				return nil, err
			}
			for j := uint64(0); j < numCallsites; j++ {
				delta, err := d.uleb32()
				if err != nil {
					return nil, err
				}
				lastCallsiteEnd += delta
			}
		}
		size, err := d.uleb32()
		if err != nil {
			return nil, err
		}
		size += lastCallsiteEnd
		md, err := d.uleb()
		if err != nil {
			return nil, err
		}
		entries = append(entries, BBEntry{
			ID:       id,
			Offset:   offset,
			Size:     size,
			Metadata: DecodeMetadata(md),
		})
		prevEnd = offset + size
	}
	return entries, nil
}

func (d *decoder) pgo(f *Function, numBlocks int, feat Features) error {
	if feat.FuncEntryCount {
		count, err := d.uleb()
		if err != nil {
			return err
		}
		f.FuncEntryCount = &count
	}
	if !feat.BBFreq && !feat.BrProb {
		return nil
	}
	f.Blocks = make([]BlockPGO, numBlocks)
	for i := range f.Blocks {
		if feat.BBFreq {
			freq, err := d.uleb()
			if err != nil {
				return err
			}
			f.Blocks[i].Frequency = freq
		}
		if feat.BrProb {
			n, err := d.uleb()
			if err != nil {
				return err
			}
			succs := make([]Successor, 0, n)
			for j := uint64(0); j < n; j++ {
				id, err := d.uleb32()
				if err != nil {
					return err
				}
				prob, err := d.uleb32()
				if err != nil {
					return err
				}
				succs = append(succs, Successor{ID: id, Probability: prob})
			}
			f.Blocks[i].Successors = succs
		}
	}
	return nil
}
