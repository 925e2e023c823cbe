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

// DefaultMaxStackDepth bounds the number of open function activations
// tracked while extracting paths from one sample.
const DefaultMaxStackDepth = 1024

// Options control which functions are mapped.
type Options struct {
	// FilterNonTextFunctions drops functions outside .text and .text.*.
	FilterNonTextFunctions bool

	// HotAddresses restricts the selected functions to the ones with a
	// basic block range containing at least one of the addresses. A nil set
	// selects all functions.
	HotAddresses map[uint64]struct{}

	MaxStackDepth int
}

func DefaultOptions() Options {
	return Options{
		FilterNonTextFunctions: true,
		MaxStackDepth:          DefaultMaxStackDepth,
	}
}
