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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/require"

	"github.com/parca-dev/propeller/pkg/hotaddr"
	"github.com/parca-dev/propeller/pkg/mapper"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	cfg, err := Load(`
filter_non_text_functions: false
max_stack_depth: 64
workers: 4
demangle_options: [no_params, no_template_params]
hot_addresses: ["0x17f0", "6256"]
timeout: 5m
`)
	require.NoError(t, err)

	filter := false
	require.Equal(t, &Config{
		FilterNonTextFunctions: &filter,
		MaxStackDepth:          64,
		Workers:                4,
		DemangleOptions:        []string{"no_params", "no_template_params"},
		HotAddresses:           []string{"0x17f0", "6256"},
		Timeout:                model.Duration(5 * time.Minute),
	}, cfg)

	opts, err := cfg.MapperOptions()
	require.NoError(t, err)
	require.Equal(t, mapper.Options{
		FilterNonTextFunctions: false,
		HotAddresses:           hotaddr.Set{0x17f0: {}, 0x1870: {}},
		MaxStackDepth:          64,
	}, opts)
}

func TestLoadEmpty(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	opts, err := cfg.MapperOptions()
	require.NoError(t, err)
	require.Equal(t, mapper.DefaultOptions(), opts)
}

func TestLoadInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		yaml     string
		contains string
	}{
		{
			name:     "unknown field",
			yaml:     "max_depth: 3",
			contains: "max_depth",
		},
		{
			name:     "negative depth",
			yaml:     "max_stack_depth: -1",
			contains: "MaxStackDepth",
		},
		{
			name:     "negative workers",
			yaml:     "workers: -2",
			contains: "Workers",
		},
		{
			name:     "unknown demangle option",
			yaml:     "demangle_options: [pretty]",
			contains: "DemangleOptions",
		},
		{
			name:     "bad address",
			yaml:     `hot_addresses: ["main"]`,
			contains: "HotAddresses",
		},
		{
			name:     "bad duration",
			yaml:     "timeout: soon",
			contains: "soon",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Load(tt.yaml)
			require.ErrorContains(t, err, tt.contains)
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "propeller.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 2\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Workers)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
