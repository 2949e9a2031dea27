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

// Package metricsserver exposes the default Prometheus registerer (the
// one pkg/metrics.NewRegistry registers every component's counters
// against) over HTTP, the same bare net/http-plus-promhttp wiring every
// cmd/* binary in the teacher's pack uses for its metrics endpoint.
package metricsserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Serve blocks, serving /metrics on port until ctx is cancelled. Errors
// other than the server's own shutdown are logged, not fatal: a metrics
// endpoint failing to bind should never take the component down with it.
func Serve(ctx context.Context, log logr.Logger, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error(err, "metrics server exited")
	}
}
