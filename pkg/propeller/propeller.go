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

// Package propeller wires the mapper, the extractor and the path store into
// the propeller command.
package propeller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/parca-dev/propeller/pkg/binarycontent"
	"github.com/parca-dev/propeller/pkg/branchpath"
	"github.com/parca-dev/propeller/pkg/config"
	"github.com/parca-dev/propeller/pkg/demangle"
	"github.com/parca-dev/propeller/pkg/extractor"
	"github.com/parca-dev/propeller/pkg/hotaddr"
	"github.com/parca-dev/propeller/pkg/mapper"
	"github.com/parca-dev/propeller/pkg/pathstore"
)

// Run executes command, the subcommand selected on the command line.
// Results are written to out.
func Run(ctx context.Context, logger log.Logger, reg *prometheus.Registry, flags *Flags, command string, out io.Writer) error {
	cfg := &config.Config{}
	if flags.Config != "" {
		var err error
		if cfg, err = config.LoadFile(flags.Config); err != nil {
			return err
		}
	}

	switch command {
	case "functions":
		return runFunctions(logger, reg, cfg, &flags.Functions, out)
	case "extract":
		return runExtract(ctx, logger, reg, cfg, &flags.Extract, out)
	case "dump":
		return runDump(ctx, logger, &flags.Dump, out)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func loadMapper(logger log.Logger, reg prometheus.Registerer, cfg *config.Config, flags *BinaryFlags, maxStackDepth int) (*mapper.BinaryAddressMapper, *binarycontent.Content, error) {
	content, err := binarycontent.Open(flags.Binary)
	if err != nil {
		return nil, nil, err
	}

	opts, err := cfg.MapperOptions()
	if err != nil {
		return nil, nil, err
	}
	if flags.KeepNonTextFunctions {
		opts.FilterNonTextFunctions = false
	}
	if maxStackDepth > 0 {
		opts.MaxStackDepth = maxStackDepth
	}

	hot := hotaddr.Set(opts.HotAddresses)
	if flags.HotProfile != "" {
		set, err := readHotAddresses(flags.HotProfile, func(r io.Reader) (hotaddr.Set, error) {
			return hotaddr.FromProfile(r, hotaddr.Binary{
				BuildID: content.BuildID,
				Type:    content.FileHeader.Type,
				Progs:   content.Progs,
			})
		})
		if err != nil {
			return nil, nil, err
		}
		hot = hot.Merge(set)
	}
	if flags.HotAddresses != "" {
		set, err := readHotAddresses(flags.HotAddresses, hotaddr.FromText)
		if err != nil {
			return nil, nil, err
		}
		hot = hot.Merge(set)
	}
	opts.HotAddresses = hot

	m, stats, err := mapper.Build(logger, content, opts)
	if err != nil {
		return nil, nil, err
	}
	registerStats(reg, stats)
	return m, content, nil
}

func readHotAddresses(path string, read func(io.Reader) (hotaddr.Set, error)) (hotaddr.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	set, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("read hot addresses from %s: %w", path, err)
	}
	return set, nil
}

func runFunctions(logger log.Logger, reg prometheus.Registerer, cfg *config.Config, flags *FunctionsFlags, out io.Writer) error {
	m, _, err := loadMapper(logger, reg, cfg, &flags.BinaryFlags, 0)
	if err != nil {
		return err
	}

	var d *demangle.Demangler
	if flags.Demangle {
		dm := demangle.NewDefaultDemangler()
		if len(cfg.DemangleOptions) > 0 {
			if dm, err = demangle.NewDemangler(cfg.DemangleOptions...); err != nil {
				return err
			}
		}
		d = &dm
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Index", "Address", "Name", "Section", "Ranges", "Blocks"})
	table.SetAutoWrapText(false)
	infos := m.SymbolInfo()
	for _, i := range m.SelectedFunctions() {
		f := m.BBAddrMap()[i]
		info := infos[i]
		names := info.Aliases
		if d != nil {
			names = d.Names(names)
		}
		table.Append([]string{
			strconv.Itoa(i),
			fmt.Sprintf("0x%x", f.Address()),
			strings.Join(names, ", "),
			info.SectionName,
			strconv.Itoa(len(f.Ranges)),
			strconv.Itoa(f.NumBlocks()),
		})
	}
	table.Render()
	return nil
}

func runExtract(ctx context.Context, logger log.Logger, reg *prometheus.Registry, cfg *config.Config, flags *ExtractFlags, out io.Writer) error {
	maxStackDepth := flags.MaxStackDepth
	m, content, err := loadMapper(logger, reg, cfg, &flags.BinaryFlags, maxStackDepth)
	if err != nil {
		return err
	}

	workers := cfg.Workers
	if flags.Workers > 0 {
		workers = flags.Workers
	}
	e := extractor.New(logger, reg, m, workers)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Timeout))
		defer cancel()
	}

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	g.Add(
		func() error {
			return extract(ctx, logger, e, content.ID(), flags, out)
		},
		func(error) {
			cancel()
		},
	)
	if err := g.Run(); err != nil {
		return err
	}

	if flags.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(flags.MetricsFile, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func extract(ctx context.Context, logger log.Logger, e *extractor.Extractor, binaryID string, flags *ExtractFlags, out io.Writer) error {
	samples, err := readSamples(flags.Traces)
	if err != nil {
		return err
	}

	res, err := e.Extract(ctx, samples)
	if err != nil {
		return fmt.Errorf("extract paths: %w", err)
	}

	numPaths := 0
	for _, paths := range res {
		numPaths += len(paths)
	}
	level.Info(logger).Log("msg", "extracted paths", "binary", binaryID, "samples", len(samples), "paths", numPaths)

	if flags.Output != "" {
		if err := writePaths(flags.Output, res, out); err != nil {
			return err
		}
	}

	if flags.StoreDir != "" {
		s, err := pathstore.Open(logger, flags.StoreDir)
		if err != nil {
			return err
		}
		err = s.PutAll(ctx, binaryID, 0, res)
		if cerr := s.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("store paths: %w", err)
		}
	}
	return nil
}

func readSamples(path string) ([]branchpath.BinaryAddressBranchPath, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := branchpath.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	samples, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read samples from %s: %w", path, err)
	}
	return samples, nil
}

func writePaths(path string, res [][]branchpath.FlatBbHandleBranchPath, stdout io.Writer) (err error) {
	w := stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}

	pw := branchpath.NewWriter(w)
	for _, paths := range res {
		if err := pw.Write(paths...); err != nil {
			return err
		}
	}
	return nil
}

// storedSample is a dumped path store entry.
type storedSample struct {
	BinaryID string                              `json:"binary_id"`
	Seq      uint64                              `json:"seq"`
	Paths    []branchpath.FlatBbHandleBranchPath `json:"paths"`
}

func runDump(ctx context.Context, logger log.Logger, flags *DumpFlags, out io.Writer) error {
	s, err := pathstore.Open(logger, flags.StoreDir)
	if err != nil {
		return err
	}
	defer s.Close()

	ids := []string{flags.BinaryID}
	if flags.BinaryID == "" {
		if ids, err = s.BinaryIDs(ctx); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(out)
	found := false
	for _, id := range ids {
		err := s.Iterate(ctx, id, func(seq uint64, paths []branchpath.FlatBbHandleBranchPath) error {
			found = true
			return enc.Encode(storedSample{BinaryID: id, Seq: seq, Paths: paths})
		})
		if err != nil {
			return err
		}
	}
	if !found && flags.BinaryID != "" {
		return errors.New("no paths stored for binary " + flags.BinaryID)
	}
	return nil
}
