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

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/parca-dev/propeller/pkg/mapper"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// registerStats exports the counters collected while building the mapper.
func registerStats(reg prometheus.Registerer, stats mapper.Stats) {
	g := promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
		Name: "propeller_mapper_functions",
		Help: "Number of functions seen while building the address mapper, partitioned by outcome.",
	}, []string{"outcome"})

	for outcome, v := range map[string]int{
		"bb_addr_map":           stats.BBAddrMapFunctions,
		"duplicate_symbol":      stats.DuplicateSymbols,
		"duplicate_bb_addr_map": stats.DuplicateBBAddrMapEntries,
		"missing_symbol":        stats.FunctionsWithoutSymbol,
		"missing_bb_addr_map":   stats.SymbolsWithoutBBAddrMap,
		"non_text":              stats.NonTextFunctions,
		"cold":                  stats.ColdFunctions,
		"selected":              stats.SelectedFunctions,
	} {
		g.WithLabelValues(outcome).Set(float64(v))
	}
}
