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

// Package demangle turns mangled C++ and Rust function names into their
// readable form for listings.
package demangle

import (
	"fmt"

	"github.com/ianlancetaylor/demangle"
)

// Demangler demangles GCC/LLVM C++ and Rust symbol names.
type Demangler struct {
	options []demangle.Option
}

var (
	// Options are the names accepted by NewDemangler.
	Options = []string{
		"no_params",
		"no_template_params",
		"no_clones",
		"no_rust",
		"verbose",
		"llvm_style",
	}
	optionMappings = map[string]demangle.Option{
		Options[0]: demangle.NoParams,
		Options[1]: demangle.NoTemplateParams,
		Options[2]: demangle.NoClones,
		Options[3]: demangle.NoRust,
		Options[4]: demangle.Verbose,
		Options[5]: demangle.LLVMStyle,
	}
)

func parseOptions(names []string) ([]demangle.Option, error) {
	res := make([]demangle.Option, 0, len(names))
	for _, name := range names {
		opt, ok := optionMappings[name]
		if !ok {
			return nil, fmt.Errorf("unknown demangle option %q", name)
		}
		res = append(res, opt)
	}
	return res, nil
}

// NewDefaultDemangler drops parameter and template lists, which keeps
// listings of large C++ binaries readable.
func NewDefaultDemangler() Demangler {
	return Demangler{options: []demangle.Option{demangle.NoParams, demangle.NoTemplateParams}}
}

// NewDemangler creates a Demangler from option names, see Options.
func NewDemangler(options ...string) (Demangler, error) {
	opts, err := parseOptions(options)
	if err != nil {
		return Demangler{}, err
	}
	return Demangler{options: opts}, nil
}

// Demangle returns the demangled name, or name itself when it is not
// mangled.
func (d Demangler) Demangle(name string) string {
	return demangle.Filter(name, d.options...)
}

// Names demangles every alias of a function. Aliases that demangle to the
// same name are reported once, in their original order.
func (d Demangler) Names(aliases []string) []string {
	seen := make(map[string]struct{}, len(aliases))
	res := make([]string, 0, len(aliases))
	for _, a := range aliases {
		n := d.Demangle(a)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		res = append(res, n)
	}
	return res
}

// IsMangled reports whether any alias uses the Itanium or Rust v0 scheme.
func IsMangled(aliases []string) bool {
	for _, a := range aliases {
		if _, err := demangle.ToString(a); err == nil {
			return true
		}
	}
	return false
}
