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

// Package operator builds the AppRuntime every kriger binary starts from:
// a structured logger, the messaging substrate connection, the metrics
// registry, and a cancellation context tied to SIGINT/SIGTERM. This
// replaces the teacher's process-wide globals (pkg/operator/operator.go's
// Operator struct wrapping provider singletons) with one value threaded
// explicitly into each service constructor (design note §9: "AppRuntime
// value explicitly passed into each component's entry").
package operator

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	natsmessaging "github.com/kriger-ctf/kriger/pkg/messaging/nats"
	"github.com/kriger-ctf/kriger/pkg/metrics"
	"github.com/kriger-ctf/kriger/pkg/operator/options"

	"github.com/kriger-ctf/kriger/pkg/messaging"
)

// AppRuntime is the slice of shared infrastructure every service needs.
// It is built once in each cmd/* main and passed by value/reference into
// the component constructors that need it.
type AppRuntime struct {
	Log       logr.Logger
	Messaging messaging.Messaging
	Metrics   *metrics.Registry

	zapLogger *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewAppRuntime wires up logging, the NATS connection, and a cancellation
// context observed by every component loop at its next suspension point
// (spec §5 "Cancellation / shutdown").
func NewAppRuntime(component string, opts *options.Options) (*AppRuntime, error) {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("operator: build logger: %w", err)
	}
	log := zapr.NewLogger(zapLogger).WithName(component)

	m, err := natsmessaging.Connect(natsmessaging.Config{URL: opts.NatsURL, Name: component})
	if err != nil {
		return nil, fmt.Errorf("operator: connect messaging: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	return &AppRuntime{
		Log:       log,
		Messaging: m,
		Metrics:   metrics.NewRegistry(component),
		zapLogger: zapLogger,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Context returns the cancellation context; components select on
// ctx.Done() at their suspension points.
func (a *AppRuntime) Context() context.Context { return a.ctx }

// Shutdown cancels the context and closes the messaging connection and
// the underlying zap logger, joining whatever errors either produces
// rather than only reporting the first (teacher's go.mod carries
// go.uber.org/multierr for exactly this "close several independent
// resources on shutdown" shape).
func (a *AppRuntime) Shutdown() {
	err := multierr.Combine(
		a.Messaging.Close(),
		a.zapLogger.Sync(),
	)
	a.cancel()
	if err != nil {
		a.Log.Error(err, "error during shutdown")
	}
}
