/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exports the counters spec §7 requires of every
// component ("export counters *_requests, *_complete, *_error,
// *_duration_seconds"), grounded on the teacher's
// pkg/batcher/metrics.go use of prometheus.*Vec registered against one
// process-wide registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "kriger"

// Registry is the atomic metrics surface for one component (design note
// §9: "Process-wide global (metrics registry...) recast as an AppRuntime
// value ... each component receives only the slice it needs").
type Registry struct {
	Requests *prometheus.CounterVec
	Complete *prometheus.CounterVec
	Errors   *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewRegistry registers this component's counters against the default
// Prometheus registerer. Labels are deliberately few (exploit, team) so
// cardinality stays bounded across a competition's lifetime.
func NewRegistry(component string) *Registry {
	labels := []string{"exploit", "team"}
	r := &Registry{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: component,
			Name:      "requests_total",
			Help:      "Total units of work observed by this component.",
		}, labels),
		Complete: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: component,
			Name:      "complete_total",
			Help:      "Total units of work completed successfully.",
		}, labels),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: component,
			Name:      "errors_total",
			Help:      "Total units of work that errored.",
		}, append(append([]string{}, labels...), "kind")),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: component,
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of one unit of work.",
			Buckets:   prometheus.DefBuckets,
		}, labels),
	}
	prometheus.MustRegister(r.Requests, r.Complete, r.Errors, r.Duration)
	return r
}
