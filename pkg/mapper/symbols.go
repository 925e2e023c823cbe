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
	"debug/elf"
	"sort"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/parca-dev/propeller/pkg/binarycontent"
)

// functionSymbols are the function symbols found at one address.
type functionSymbols struct {
	// aliases are ordered best name first.
	aliases []string
	section string
	// duplicate is set when one of the aliases is also defined at another
	// address.
	duplicate bool
}

// resolveFunctions groups the function symbols by address.
func resolveFunctions(logger log.Logger, symbols []binarycontent.Symbol, stats *Stats) map[uint64]*functionSymbols {
	type key struct {
		name  string
		value uint64
	}
	seen := map[key]struct{}{}
	syms := make([]binarycontent.Symbol, 0, len(symbols))
	for _, s := range symbols {
		if !isFunction(s.Symbol) {
			continue
		}
		// .symtab and .dynsym repeat exported functions.
		k := key{name: s.Name, value: s.Value}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		syms = append(syms, s)
	}

	// slice stable sort to keep output consistent
	sort.SliceStable(syms, func(i, j int) bool {
		if syms[i].Value != syms[j].Value {
			return syms[i].Value < syms[j].Value
		}
		return chooseBestSymbol(syms[j].Symbol, syms[i].Symbol)
	})

	addrsByName := map[string][]uint64{}
	for _, s := range syms {
		addrsByName[s.Name] = append(addrsByName[s.Name], s.Value)
	}
	duplicates := map[string]struct{}{}
	for name, addrs := range addrsByName {
		if len(addrs) < 2 {
			continue
		}
		duplicates[name] = struct{}{}
		stats.DuplicateSymbols += len(addrs) - 1
		level.Debug(logger).Log("msg", "dropping functions with duplicate symbol name", "name", name, "count", len(addrs))
	}

	res := map[uint64]*functionSymbols{}
	for _, s := range syms {
		fs, ok := res[s.Value]
		if !ok {
			fs = &functionSymbols{section: s.SectionName}
			res[s.Value] = fs
		}
		fs.aliases = append(fs.aliases, s.Name)
		if _, ok := duplicates[s.Name]; ok {
			fs.duplicate = true
		}
	}
	return res
}

// isTextSection reports whether name is .text or one of its subsections.
func isTextSection(name string) bool {
	return name == ".text" || strings.HasPrefix(name, ".text.")
}

// copy from symbol-elf.c/elf_sym__is_function.
func isFunction(s elf.Symbol) bool {
	return elf.ST_TYPE(s.Info) == elf.STT_FUNC && s.Name != "" && s.Section != elf.SHN_UNDEF
}

// chooseBestSymbol reports whether symb is a better name than syma for the
// same address. Adapted from symbol.c/choose_best_symbol.
func chooseBestSymbol(syma, symb elf.Symbol) bool {
	// Prefer a symbol with non zero length.
	if symb.Size == 0 && syma.Size > 0 {
		return false
	} else if syma.Size == 0 && symb.Size > 0 {
		return true
	}

	// Prefer a non weak symbol over a weak one.
	a := elf.ST_BIND(syma.Info) == elf.STB_WEAK
	b := elf.ST_BIND(symb.Info) == elf.STB_WEAK
	if b && !a {
		return false
	}
	if a && !b {
		return true
	}

	// Prefer a global symbol over a non global one.
	a = elf.ST_BIND(syma.Info) == elf.STB_GLOBAL
	b = elf.ST_BIND(symb.Info) == elf.STB_GLOBAL
	if a && !b {
		return false
	}
	if b && !a {
		return true
	}

	// Prefer a symbol with less underscores.
	aCount := prefixUnderscoresCount(syma.Name)
	bCount := prefixUnderscoresCount(symb.Name)
	if bCount > aCount {
		return false
	} else if aCount > bCount {
		return true
	}

	// Choose the symbol with the longest name.
	na := len(syma.Name)
	nb := len(symb.Name)
	if na > nb {
		return false
	} else if na < nb {
		return true
	}

	// Finally sort by name to get consistent results.
	return syma.Name > symb.Name
}

func prefixUnderscoresCount(s string) int {
	return len(s) - len(strings.TrimLeft(s, "_"))
}
