// Copyright 2025 Sandlot Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sandbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// buildsTotal tracks builds by outcome and failing phase.
	buildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandlot_builds_total",
			Help: "Total builds by outcome and failing phase (phase is empty on success)",
		},
		[]string{"outcome", "phase"},
	)

	// buildDuration observes wall time of complete builds.
	buildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sandlot_build_duration_seconds",
			Help:    "Build duration across all pipeline stages",
			Buckets: prometheus.DefBuckets,
		},
	)

	// installsTotal tracks installs by types outcome and cache source.
	installsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandlot_installs_total",
			Help: "Total package installs by types outcome and cache source",
		},
		[]string{"types", "source"},
	)

	// typechecksTotal tracks direct typecheck calls by outcome.
	typechecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandlot_typechecks_total",
			Help: "Total typecheck runs by outcome",
		},
		[]string{"outcome"},
	)
)

func recordBuild(result *BuildResult) {
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	buildsTotal.WithLabelValues(outcome, string(result.Phase)).Inc()
	buildDuration.Observe(result.Duration.Seconds())
}

func recordInstall(typesOK, fromCache bool) {
	types := "installed"
	if !typesOK {
		types = "missing"
	}
	source := "network"
	if fromCache {
		source = "cache"
	}
	installsTotal.WithLabelValues(types, source).Inc()
}

func recordTypecheck(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	typechecksTotal.WithLabelValues(outcome).Inc()
}
