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

// Package hotaddr reads the set of hot addresses used to select the
// functions whose paths are extracted.
package hotaddr

import (
	"bufio"
	"debug/elf"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/pprof/profile"
)

// Set is a set of binary addresses. A nil Set selects every function.
type Set map[uint64]struct{}

// Binary describes the binary profile addresses are normalized against.
type Binary struct {
	// BuildID restricts the profile to mappings of this binary when set.
	BuildID string
	Type    elf.Type
	Progs   []elf.ProgHeader
}

// FromProfile returns the addresses of all locations that appear in a
// sample with a non-zero value. When the binary has a build ID, only
// locations of mappings with that build ID are kept. Addresses are
// translated to the virtual addresses of the binary.
func FromProfile(r io.Reader, bin Binary) (Set, error) {
	p, err := profile.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	set := Set{}
	for _, s := range p.Sample {
		if !sampled(s) {
			continue
		}
		for _, loc := range s.Location {
			if loc.Address == 0 {
				continue
			}
			m := loc.Mapping
			if bin.BuildID != "" && (m == nil || m.BuildID != bin.BuildID) {
				continue
			}
			set[bin.normalize(loc.Address, m)] = struct{}{}
		}
	}
	return set, nil
}

func sampled(s *profile.Sample) bool {
	for _, v := range s.Value {
		if v != 0 {
			return true
		}
	}
	return false
}

// normalize converts a process address into the binary's address space.
// Executables are loaded at their link addresses. Position independent
// binaries are relocated, so the address is turned into a file offset and
// then into a virtual address through the executable load segment holding
// it.
func (b Binary) normalize(addr uint64, m *profile.Mapping) uint64 {
	if b.Type == elf.ET_EXEC || m == nil || m.Start == 0 || addr < m.Start || addr >= m.Limit {
		return addr
	}
	off := addr - m.Start + m.Offset
	for _, p := range b.Progs {
		if p.Type != elf.PT_LOAD || p.Flags&elf.PF_X == 0 {
			continue
		}
		if off >= p.Off && off < p.Off+p.Filesz {
			return off - p.Off + p.Vaddr
		}
	}
	return off
}

// FromText reads one address per line, in hex with a 0x prefix or in
// decimal. Blank lines and lines starting with # are ignored.
func FromText(r io.Reader) (Set, error) {
	set := Set{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		addr, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid address %q: %w", line, s, err)
		}
		set[addr] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read addresses: %w", err)
	}
	return set, nil
}

// Merge adds the addresses of o to s and returns s.
func (s Set) Merge(o Set) Set {
	if s == nil {
		s = make(Set, len(o))
	}
	for a := range o {
		s[a] = struct{}{}
	}
	return s
}
