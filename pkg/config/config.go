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

// Package config loads the optional YAML options file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"

	"github.com/parca-dev/propeller/pkg/hotaddr"
	"github.com/parca-dev/propeller/pkg/mapper"
)

// Config is the top-level configuration of the options file. Zero values
// leave the defaults in place.
type Config struct {
	// FilterNonTextFunctions defaults to true.
	FilterNonTextFunctions *bool `yaml:"filter_non_text_functions,omitempty"`
	MaxStackDepth          int   `yaml:"max_stack_depth,omitempty"`
	// Workers bounds concurrent extractions, GOMAXPROCS when unset.
	Workers         int      `yaml:"workers,omitempty"`
	DemangleOptions []string `yaml:"demangle_options,omitempty"`
	// HotAddresses are hex (0x prefixed) or decimal addresses.
	HotAddresses []string `yaml:"hot_addresses,omitempty"`
	// Timeout bounds a whole extraction run.
	Timeout model.Duration `yaml:"timeout,omitempty"`
}

// Load parses the YAML input s into a Config. Unknown fields are an error.
func Load(s string) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(bytes.NewBufferString(s))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile parses the given YAML file into a Config.
func LoadFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(string(content))
	if err != nil {
		return nil, fmt.Errorf("parsing YAML file %s: %w", filename, err)
	}
	return cfg, nil
}

// HotAddressSet returns the configured hot addresses, nil when none are
// set.
func (c *Config) HotAddressSet() (hotaddr.Set, error) {
	if len(c.HotAddresses) == 0 {
		return nil, nil
	}
	set := make(hotaddr.Set, len(c.HotAddresses))
	for _, s := range c.HotAddresses {
		addr, err := parseAddress(s)
		if err != nil {
			return nil, err
		}
		set[addr] = struct{}{}
	}
	return set, nil
}

// MapperOptions applies the file values on top of mapper.DefaultOptions.
func (c *Config) MapperOptions() (mapper.Options, error) {
	opts := mapper.DefaultOptions()
	if c.FilterNonTextFunctions != nil {
		opts.FilterNonTextFunctions = *c.FilterNonTextFunctions
	}
	if c.MaxStackDepth > 0 {
		opts.MaxStackDepth = c.MaxStackDepth
	}
	hot, err := c.HotAddressSet()
	if err != nil {
		return mapper.Options{}, err
	}
	if hot != nil {
		opts.HotAddresses = hot
	}
	return opts, nil
}

func parseAddress(s string) (uint64, error) {
	addr, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return addr, nil
}
