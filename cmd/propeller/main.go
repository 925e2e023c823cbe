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

package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/parca-dev/propeller/pkg/propeller"
)

func main() {
	ctx := context.Background()
	flags := &propeller.Flags{}
	kctx := kong.Parse(flags,
		kong.Name("propeller"),
		kong.Description("Map branch samples of a binary to intra-function basic block paths."),
	)

	logger := propeller.NewLogger(os.Stderr, flags.LogLevel, flags.LogFormat, "")

	registry := prometheus.NewRegistry()

	err := propeller.Run(ctx, logger, registry, flags, kctx.Command(), os.Stdout)
	if err != nil {
		level.Error(logger).Log("msg", "Program exited with error", "err", err)
		os.Exit(1)
	}
}
