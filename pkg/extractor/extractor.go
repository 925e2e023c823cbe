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

// Package extractor runs path extraction over many samples in parallel.
package extractor

import (
	"context"
	"runtime"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/parca-dev/propeller/pkg/branchpath"
	"github.com/parca-dev/propeller/pkg/mapper"
)

type Extractor struct {
	logger  log.Logger
	mapper  *mapper.BinaryAddressMapper
	workers int

	// samples counts the samples whose paths were extracted.
	samples prometheus.Counter
	// branches counts the branches replayed over all samples.
	branches prometheus.Counter
	// paths counts the emitted paths.
	paths prometheus.Counter
	// unresolved counts branch endpoints not covered by any addressable
	// function, partitioned by endpoint.
	unresolved *prometheus.CounterVec
	// duration is observed once per Extract call.
	duration prometheus.Histogram
}

// New returns an Extractor running at most workers extractions at a time.
// A non-positive workers uses GOMAXPROCS.
func New(logger log.Logger, reg prometheus.Registerer, m *mapper.BinaryAddressMapper, workers int) *Extractor {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Extractor{
		logger:  log.With(logger, "component", "extractor"),
		mapper:  m,
		workers: workers,
		samples: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "propeller_extractor_samples_total",
			Help: "Total number of samples processed by the path extractor.",
		}),
		branches: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "propeller_extractor_branches_total",
			Help: "Total number of branches replayed by the path extractor.",
		}),
		paths: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "propeller_extractor_paths_total",
			Help: "Total number of intra-function paths emitted.",
		}),
		unresolved: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "propeller_extractor_unresolved_endpoints_total",
			Help: "Total number of branch endpoints that did not resolve to a basic block, partitioned by endpoint.",
		}, []string{"endpoint"}),
		duration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "propeller_extractor_duration_seconds",
			Help:    "How long it took in seconds to extract the paths of a batch of samples.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.3, 0.6, 1, 3, 6, 9, 20, 30, 60, 90, 120},
		}),
	}
}

// Extract returns the paths of every sample, in the order of samples.
// It stops early and returns the context error when ctx is canceled.
func (e *Extractor) Extract(ctx context.Context, samples []branchpath.BinaryAddressBranchPath) ([][]branchpath.FlatBbHandleBranchPath, error) {
	begin := time.Now()
	res := make([][]branchpath.FlatBbHandleBranchPath, len(samples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range samples {
		i := i
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res[i] = e.extract(samples[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// The loop may have stopped before any goroutine saw the cancellation.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.duration.Observe(time.Since(begin).Seconds())
	level.Debug(e.logger).Log("msg", "extracted paths", "samples", len(samples), "duration", time.Since(begin))
	return res, nil
}

func (e *Extractor) extract(sample branchpath.BinaryAddressBranchPath) []branchpath.FlatBbHandleBranchPath {
	var unresolvedFrom, unresolvedTo int
	for _, b := range sample.Branches {
		if _, ok := e.mapper.FindBbHandle(b.From, mapper.Source); !ok {
			unresolvedFrom++
		}
		if _, ok := e.mapper.FindBbHandle(b.To, mapper.Target); !ok {
			unresolvedTo++
		}
	}

	paths := e.mapper.ExtractIntraFunctionPaths(sample)

	e.samples.Inc()
	e.branches.Add(float64(len(sample.Branches)))
	e.paths.Add(float64(len(paths)))
	e.unresolved.WithLabelValues("from").Add(float64(unresolvedFrom))
	e.unresolved.WithLabelValues("to").Add(float64(unresolvedTo))
	return paths
}
