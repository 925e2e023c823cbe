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

// Stats are the counters collected while building a mapper. They are
// returned by value so callers processing several binaries can merge them.
type Stats struct {
	// BBAddrMapFunctions is the number of function records in the basic
	// block address map.
	BBAddrMapFunctions int
	// DuplicateSymbols counts functions dropped because their name is used
	// at more than one address, one less than the size of each group.
	DuplicateSymbols int
	// DuplicateBBAddrMapEntries counts records sharing the address of an
	// earlier record.
	DuplicateBBAddrMapEntries int
	// FunctionsWithoutSymbol counts records without a function symbol at
	// their address.
	FunctionsWithoutSymbol int
	// SymbolsWithoutBBAddrMap counts function addresses with symbols but
	// no record.
	SymbolsWithoutBBAddrMap int
	// NonTextFunctions counts functions dropped by the section filter.
	NonTextFunctions int
	// ColdFunctions counts mapped functions left out by the hot address
	// filter.
	ColdFunctions int
	// SelectedFunctions is the number of functions paths are extracted for.
	SelectedFunctions int
}

// Add returns the sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		BBAddrMapFunctions:        s.BBAddrMapFunctions + o.BBAddrMapFunctions,
		DuplicateSymbols:          s.DuplicateSymbols + o.DuplicateSymbols,
		DuplicateBBAddrMapEntries: s.DuplicateBBAddrMapEntries + o.DuplicateBBAddrMapEntries,
		FunctionsWithoutSymbol:    s.FunctionsWithoutSymbol + o.FunctionsWithoutSymbol,
		SymbolsWithoutBBAddrMap:   s.SymbolsWithoutBBAddrMap + o.SymbolsWithoutBBAddrMap,
		NonTextFunctions:          s.NonTextFunctions + o.NonTextFunctions,
		ColdFunctions:             s.ColdFunctions + o.ColdFunctions,
		SelectedFunctions:         s.SelectedFunctions + o.SelectedFunctions,
	}
}
