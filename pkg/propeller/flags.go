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

package propeller

// Flags are the command line flags of the propeller binary.
type Flags struct {
	LogLevel  string `default:"info" enum:"error,warn,info,debug" help:"Log level."`
	LogFormat string `default:"logfmt" enum:"logfmt,json" help:"Configure if structured logging as JSON or as logfmt."`
	Config    string `type:"existingfile" help:"Path to the YAML options file. Flags take precedence over its values."`

	Functions FunctionsFlags `cmd:"" help:"List the functions of a binary that paths are extracted for."`
	Extract   ExtractFlags   `cmd:"" help:"Extract intra-function paths from branch samples."`
	Dump      DumpFlags      `cmd:"" help:"Print paths kept in a path store."`
}

// BinaryFlags select the binary and the functions that are mapped.
type BinaryFlags struct {
	Binary               string `required:"" type:"existingfile" help:"ELF binary built with a basic block address map."`
	KeepNonTextFunctions bool   `help:"Map functions outside of .text sections too."`
	HotProfile           string `type:"existingfile" help:"pprof profile whose sampled addresses select the hot functions."`
	HotAddresses         string `type:"existingfile" help:"File with one hot address per line."`
}

type FunctionsFlags struct {
	BinaryFlags `embed:""`

	Demangle bool `help:"Demangle C++ and Rust names."`
}

type ExtractFlags struct {
	BinaryFlags `embed:""`

	Traces        string `required:"" type:"existingfile" help:"Branch samples as JSON lines, optionally gzip or zstd compressed."`
	Output        string `help:"Write the extracted paths as JSON lines to this file, - for stdout."`
	StoreDir      string `help:"Keep the extracted paths in a path store in this directory."`
	MetricsFile   string `help:"Write the extraction metrics in the Prometheus text format to this file."`
	Workers       int    `help:"Number of concurrent extractions. Defaults to the number of CPUs."`
	MaxStackDepth int    `help:"Maximum number of open function activations per sample."`
}

type DumpFlags struct {
	StoreDir string `required:"" type:"existingdir" help:"Path store directory."`
	BinaryID string `help:"Only print the paths of this binary."`
}
