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

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kriger-ctf/kriger/pkg/apis/config"
	"github.com/kriger-ctf/kriger/pkg/apis/team"
	"github.com/kriger-ctf/kriger/pkg/configfile"
	"github.com/kriger-ctf/kriger/pkg/fetcher"
	"github.com/kriger-ctf/kriger/pkg/fetcher/adapters"
	"github.com/kriger-ctf/kriger/pkg/messaging/catalog"
	"github.com/kriger-ctf/kriger/pkg/messaging/data"
	"github.com/kriger-ctf/kriger/pkg/metricsserver"
	"github.com/kriger-ctf/kriger/pkg/operator"
	"github.com/kriger-ctf/kriger/pkg/operator/options"
)

const component = "fetcher"

func buildAdapter(cfg configfile.FetcherConfig) (fetcher.Adapter, error) {
	switch cfg.Adapter {
	case "", "enowars":
		return adapters.NewENOWars(cfg.Endpoint, cfg.IPsEndpoint), nil
	case "faust":
		return adapters.NewFaust(cfg.Endpoint, cfg.Scoreboard, cfg.IPFormat), nil
	default:
		return nil, fmt.Errorf("fetcher: unknown adapter %q", cfg.Adapter)
	}
}

func main() {
	fs := flag.NewFlagSet(component, flag.ExitOnError)
	opts := options.Parse(fs)
	fs.Parse(os.Args[1:])

	if err := opts.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: invalid options: %s\n", component, err)
		os.Exit(1)
	}

	rt, err := operator.NewAppRuntime(component, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", component, err)
		os.Exit(1)
	}
	defer rt.Shutdown()
	ctx := rt.Context()

	fetchCfg, err := configfile.LoadFetcher(opts.ConfigPath)
	if err != nil {
		rt.Log.Error(err, "load fetcher config failed")
		os.Exit(1)
	}
	adapter, err := buildAdapter(fetchCfg)
	if err != nil {
		rt.Log.Error(err, "build adapter failed")
		os.Exit(1)
	}
	interval, err := configfile.ParseDuration("fetcher.interval", fetchCfg.Interval, 30*time.Second)
	if err != nil {
		rt.Log.Error(err, "invalid fetcher config")
		os.Exit(1)
	}

	competitionBucket, err := catalog.Open[config.Competition](ctx, rt.Messaging, catalog.BucketConfig)
	if err != nil {
		rt.Log.Error(err, "open config bucket failed")
		os.Exit(1)
	}
	comp, ok, err := competitionBucket.Get(ctx, catalog.ConfigKey)
	if err != nil || !ok {
		rt.Log.Error(err, "competition config not yet available")
		os.Exit(1)
	}

	teamsBucket, err := catalog.Open[team.Team](ctx, rt.Messaging, catalog.BucketTeams)
	if err != nil {
		rt.Log.Error(err, "open teams bucket failed")
		os.Exit(1)
	}
	dataSvc, err := data.Open(ctx, rt.Messaging, comp.TickDurationSeconds())
	if err != nil {
		rt.Log.Error(err, "open data service failed")
		os.Exit(1)
	}

	f := fetcher.New(rt.Log, adapter, teamsBucket, dataSvc, rt.Metrics, interval)

	go metricsserver.Serve(ctx, rt.Log, opts.MetricsPort)

	if err := f.Run(ctx); err != nil {
		rt.Log.Error(err, "fetcher exited")
		os.Exit(1)
	}
}
