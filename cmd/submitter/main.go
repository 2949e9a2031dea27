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
	"github.com/kriger-ctf/kriger/pkg/configfile"
	"github.com/kriger-ctf/kriger/pkg/messaging/catalog"
	"github.com/kriger-ctf/kriger/pkg/messaging/flags"
	"github.com/kriger-ctf/kriger/pkg/metricsserver"
	"github.com/kriger-ctf/kriger/pkg/operator"
	"github.com/kriger-ctf/kriger/pkg/operator/options"
	"github.com/kriger-ctf/kriger/pkg/submitter"
	"github.com/kriger-ctf/kriger/pkg/submitter/adapters"
)

const component = "submitter"

func buildAdapter(cfg configfile.SubmitterConfig) (submitter.Adapter, error) {
	switch cfg.Adapter {
	case "", "enowars":
		return adapters.NewENOWars(cfg.Host), nil
	case "faust":
		return adapters.NewFaust(cfg.Host), nil
	default:
		return nil, fmt.Errorf("submitter: unknown adapter %q", cfg.Adapter)
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

	subCfg, err := configfile.LoadSubmitter(opts.ConfigPath)
	if err != nil {
		rt.Log.Error(err, "load submitter config failed")
		os.Exit(1)
	}
	adapter, err := buildAdapter(subCfg)
	if err != nil {
		rt.Log.Error(err, "build adapter failed")
		os.Exit(1)
	}
	interval, err := configfile.ParseDuration("submitter.interval", subCfg.Interval, 5*time.Second)
	if err != nil {
		rt.Log.Error(err, "invalid submitter config")
		os.Exit(1)
	}
	batchSize := subCfg.Batch
	if batchSize <= 0 {
		batchSize = 100
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

	flagSvc, err := flags.Open(ctx, rt.Messaging, comp.TickDurationSeconds()*time.Duration(comp.FlagValidity))
	if err != nil {
		rt.Log.Error(err, "open flags service failed")
		os.Exit(1)
	}

	sub := submitter.New(rt.Log, flagSvc, adapter, rt.Metrics, interval, batchSize)

	go metricsserver.Serve(ctx, rt.Log, opts.MetricsPort)

	if err := sub.Run(ctx); err != nil {
		rt.Log.Error(err, "submitter exited")
		os.Exit(1)
	}
}
