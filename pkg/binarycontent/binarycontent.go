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

// Package binarycontent loads the parts of an ELF binary needed to map
// addresses to basic blocks: function symbols and the basic block address
// map sections.
package binarycontent

import (
	"bytes"
	"debug/elf"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/zeebo/xxh3"

	"github.com/parca-dev/propeller/pkg/bbaddrmap"
)

var ErrNoBBAddrMap = errors.New("binary has no basic block address map")

// Symbol is an ELF symbol together with the name of the section it is
// defined in.
type Symbol struct {
	elf.Symbol
	SectionName string
}

// Content is the parsed binary.
type Content struct {
	Path       string
	FileHeader elf.FileHeader
	// Progs are the program headers, used to relate load addresses to
	// virtual addresses.
	Progs []elf.ProgHeader

	// BuildID is the hex encoded GNU build ID, empty when the binary has
	// none. Fingerprint is the xxh3 hash of the whole image.
	BuildID     string
	Fingerprint string

	Symbols []Symbol

	// BBAddrMap holds the decoded function records of all basic block
	// address map sections, in section order.
	BBAddrMap []bbaddrmap.Function
}

// ID identifies the binary, preferring the build ID.
func (c *Content) ID() string {
	if c.BuildID != "" {
		return c.BuildID
	}
	return c.Fingerprint
}

// Open reads and parses the binary at path.
func Open(path string) (*Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read binary: %w", err)
	}
	return NewContent(path, data)
}

// NewContent parses an in-memory ELF image.
func NewContent(path string, data []byte) (*Content, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open elf: %w", err)
	}
	defer f.Close()

	symbols, err := symtab(f)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch symbols from object file: %w", err)
	}

	bbAddrMap, err := readBBAddrMap(f)
	if err != nil {
		return nil, err
	}

	buildID, err := gnuBuildID(f)
	if err != nil {
		return nil, err
	}

	progs := make([]elf.ProgHeader, 0, len(f.Progs))
	for _, p := range f.Progs {
		progs = append(progs, p.ProgHeader)
	}

	return &Content{
		Path:        path,
		FileHeader:  f.FileHeader,
		Progs:       progs,
		BuildID:     buildID,
		Fingerprint: fmt.Sprintf("%016x", xxh3.Hash(data)),
		Symbols:     symbols,
		BBAddrMap:   bbAddrMap,
	}, nil
}

// symtab returns symbols from the symbol table and the dynamic symbol table
// sections, sorted by address. A missing table is read as empty.
func symtab(f *elf.File) ([]Symbol, error) {
	syms, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("failed to read symbol table: %w", err)
	}
	dynSyms, err := f.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("failed to read dynamic symbol table: %w", err)
	}

	syms = append(syms, dynSyms...)
	sort.SliceStable(syms, func(i, j int) bool {
		return syms[i].Value < syms[j].Value
	})

	res := make([]Symbol, 0, len(syms))
	for _, s := range syms {
		res = append(res, Symbol{Symbol: s, SectionName: sectionName(f, s.Section)})
	}
	return res, nil
}

func sectionName(f *elf.File, idx elf.SectionIndex) string {
	if idx == elf.SHN_UNDEF || idx >= elf.SHN_LORESERVE || int(idx) >= len(f.Sections) {
		return ""
	}
	return f.Sections[idx].Name
}

func readBBAddrMap(f *elf.File) ([]bbaddrmap.Function, error) {
	addrSize := 8
	if f.Class == elf.ELFCLASS32 {
		addrSize = 4
	}

	var res []bbaddrmap.Function
	for _, s := range f.Sections {
		if s.Type != elf.SectionType(bbaddrmap.SectionType) {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read section %s: %w", s.Name, err)
		}
		functions, err := bbaddrmap.Decode(data, addrSize, f.ByteOrder)
		if err != nil {
			return nil, fmt.Errorf("failed to decode section %s: %w", s.Name, err)
		}
		res = append(res, functions...)
	}
	return res, nil
}

const noteTypeGNUBuildID = 3

// gnuBuildID scans the note sections for NT_GNU_BUILD_ID.
func gnuBuildID(f *elf.File) (string, error) {
	for _, s := range f.Sections {
		if s.Type != elf.SHT_NOTE {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return "", fmt.Errorf("failed to read section %s: %w", s.Name, err)
		}
		for len(data) >= 12 {
			nameSize := uint64(f.ByteOrder.Uint32(data[0:4]))
			descSize := uint64(f.ByteOrder.Uint32(data[4:8]))
			noteType := f.ByteOrder.Uint32(data[8:12])
			data = data[12:]

			nameEnd := align4(nameSize)
			descEnd := nameEnd + align4(descSize)
			if descEnd > uint64(len(data)) {
				break
			}
			name := string(bytes.TrimRight(data[:nameSize], "\x00"))
			if noteType == noteTypeGNUBuildID && name == "GNU" {
				return hex.EncodeToString(data[nameEnd : nameEnd+descSize]), nil
			}
			data = data[descEnd:]
		}
	}
	return "", nil
}

func align4(n uint64) uint64 {
	return (n + 3) &^ 3
}
