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

// Package elftest writes small ELF64 little endian images for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// Section is a section to be written. Data of SHT_NOTE sections is written
// as is.
type Section struct {
	Name  string
	Type  elf.SectionType
	Flags elf.SectionFlag
	Addr  uint64
	Data  []byte
	// Link names the linked section.
	Link string
}

type Symbol struct {
	Name    string
	Type    elf.SymType
	Bind    elf.SymBind
	Section string
	Value   uint64
	Size    uint64
}

type File struct {
	Type     elf.Type
	Machine  elf.Machine
	Sections []Section
	Symbols  []Symbol
}

// TextSection is an executable PROGBITS section of the given size.
func TextSection(name string, addr, size uint64) Section {
	return Section{
		Name:  name,
		Type:  elf.SHT_PROGBITS,
		Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR,
		Addr:  addr,
		Data:  make([]byte, size),
	}
}

// BuildIDNote returns the content of a .note.gnu.build-id section.
func BuildIDNote(id []byte) []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, 4)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(id)))
	buf = binary.LittleEndian.AppendUint32(buf, 3)
	buf = append(buf, 'G', 'N', 'U', 0)
	buf = append(buf, id...)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

type strtab struct {
	data []byte
}

func (s *strtab) add(name string) uint32 {
	if name == "" {
		return 0
	}
	off := uint32(len(s.data))
	s.data = append(s.data, name...)
	s.data = append(s.data, 0)
	return off
}

const (
	ehdrSize = 64
	shdrSize = 64
	symSize  = 24
)

// Bytes lays out the file: header, section contents, then section headers.
// A .symtab and .strtab are appended when there are symbols, followed by
// .shstrtab.
func (f File) Bytes() []byte {
	sections := append([]Section{{}}, f.Sections...)
	index := map[string]int{}
	for i, s := range sections {
		if s.Name != "" {
			index[s.Name] = i
		}
	}

	if len(f.Symbols) > 0 {
		strs := &strtab{data: []byte{0}}
		syms := make([]byte, symSize)
		for _, s := range f.Symbols {
			var shndx uint16
			if s.Section != "" {
				shndx = uint16(index[s.Section])
			}
			syms = binary.LittleEndian.AppendUint32(syms, strs.add(s.Name))
			syms = append(syms, byte(s.Bind)<<4|byte(s.Type)&0xf, 0)
			syms = binary.LittleEndian.AppendUint16(syms, shndx)
			syms = binary.LittleEndian.AppendUint64(syms, s.Value)
			syms = binary.LittleEndian.AppendUint64(syms, s.Size)
		}
		sections = append(sections,
			Section{Name: ".symtab", Type: elf.SHT_SYMTAB, Data: syms, Link: ".strtab"},
			Section{Name: ".strtab", Type: elf.SHT_STRTAB, Data: strs.data},
		)
		index[".symtab"] = len(sections) - 2
		index[".strtab"] = len(sections) - 1
	}

	shstrs := &strtab{data: []byte{0}}
	names := make([]uint32, len(sections)+1)
	for i, s := range sections {
		names[i] = shstrs.add(s.Name)
	}
	names[len(sections)] = shstrs.add(".shstrtab")
	sections = append(sections, Section{Name: ".shstrtab", Type: elf.SHT_STRTAB, Data: shstrs.data})

	var body bytes.Buffer
	body.Write(make([]byte, ehdrSize))
	offsets := make([]uint64, len(sections))
	for i, s := range sections {
		for body.Len()%8 != 0 {
			body.WriteByte(0)
		}
		offsets[i] = uint64(body.Len())
		body.Write(s.Data)
	}
	for body.Len()%8 != 0 {
		body.WriteByte(0)
	}
	shoff := uint64(body.Len())

	for i, s := range sections {
		var sh []byte
		if i > 0 {
			var entsize uint64
			if s.Type == elf.SHT_SYMTAB {
				entsize = symSize
			}
			var link uint32
			if s.Link != "" {
				link = uint32(index[s.Link])
			}
			var info uint32
			if s.Type == elf.SHT_SYMTAB {
				info = 1
			}
			sh = binary.LittleEndian.AppendUint32(sh, names[i])
			sh = binary.LittleEndian.AppendUint32(sh, uint32(s.Type))
			sh = binary.LittleEndian.AppendUint64(sh, uint64(s.Flags))
			sh = binary.LittleEndian.AppendUint64(sh, s.Addr)
			sh = binary.LittleEndian.AppendUint64(sh, offsets[i])
			sh = binary.LittleEndian.AppendUint64(sh, uint64(len(s.Data)))
			sh = binary.LittleEndian.AppendUint32(sh, link)
			sh = binary.LittleEndian.AppendUint32(sh, info)
			sh = binary.LittleEndian.AppendUint64(sh, 1)
			sh = binary.LittleEndian.AppendUint64(sh, entsize)
		} else {
			sh = make([]byte, shdrSize)
		}
		body.Write(sh)
	}

	typ, machine := f.Type, f.Machine
	if typ == elf.ET_NONE {
		typ = elf.ET_EXEC
	}
	if machine == elf.EM_NONE {
		machine = elf.EM_X86_64
	}

	var hdr []byte
	hdr = append(hdr, 0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT))
	hdr = append(hdr, make([]byte, 9)...)
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(typ))
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(machine))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(elf.EV_CURRENT))
	hdr = binary.LittleEndian.AppendUint64(hdr, 0) // entry
	hdr = binary.LittleEndian.AppendUint64(hdr, 0) // phoff
	hdr = binary.LittleEndian.AppendUint64(hdr, shoff)
	hdr = binary.LittleEndian.AppendUint32(hdr, 0) // flags
	hdr = binary.LittleEndian.AppendUint16(hdr, ehdrSize)
	hdr = binary.LittleEndian.AppendUint16(hdr, 0) // phentsize
	hdr = binary.LittleEndian.AppendUint16(hdr, 0) // phnum
	hdr = binary.LittleEndian.AppendUint16(hdr, shdrSize)
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(len(sections)))
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(len(sections)-1))

	out := body.Bytes()
	copy(out, hdr)
	return out
}
