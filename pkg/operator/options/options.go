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

// Package options holds the flags/env every kriger binary shares, parsed
// the way the teacher's cmd/controller/main.go parses opts: flag.*Var with
// an env-var default, then a fatal Validate() before anything starts.
package options

import (
	"flag"
	"fmt"

	"github.com/kriger-ctf/kriger/pkg/env"
	"github.com/kriger-ctf/kriger/pkg/models"
)

// Options are the settings common to every kriger service binary.
type Options struct {
	NatsURL         string
	MetricsPort     int
	HealthProbePort int
	ConfigPath      string
}

// Parse registers the common flags on fs and returns the parsed Options.
// Each cmd/* main additionally registers its own component-specific flags
// on the same fs before calling fs.Parse.
func Parse(fs *flag.FlagSet) *Options {
	o := &Options{}
	fs.StringVar(&o.NatsURL, "nats-url", env.WithDefaultString("NATS_URL", "nats://127.0.0.1:4222"), "URL of the NATS server backing the messaging substrate")
	fs.IntVar(&o.MetricsPort, "metrics-port", env.WithDefaultInt("METRICS_PORT", 8080), "port the Prometheus metrics endpoint binds to")
	fs.IntVar(&o.HealthProbePort, "health-probe-port", env.WithDefaultInt("HEALTH_PROBE_PORT", 8081), "port the health probe endpoint binds to")
	fs.StringVar(&o.ConfigPath, "config", env.WithDefaultString("KRIGER_CONFIG", "/etc/kriger/config.toml"), "path to the server TOML config file")
	return o
}

// Validate enforces that required settings are present (spec §7:
// "Configuration ... missing or invalid at startup: fatal").
func (o *Options) Validate() error {
	if o.NatsURL == "" {
		return fmt.Errorf("%w: nats-url must not be empty", models.ErrConfiguration)
	}
	if o.MetricsPort <= 0 || o.MetricsPort > 65535 {
		return fmt.Errorf("%w: metrics-port out of range: %d", models.ErrConfiguration, o.MetricsPort)
	}
	return nil
}
