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
	"regexp"
	"time"

	"github.com/kriger-ctf/kriger/pkg/configfile"
	"github.com/kriger-ctf/kriger/pkg/env"
	"github.com/kriger-ctf/kriger/pkg/messaging/flags"
	"github.com/kriger-ctf/kriger/pkg/metricsserver"
	"github.com/kriger-ctf/kriger/pkg/operator"
	"github.com/kriger-ctf/kriger/pkg/operator/options"
	"github.com/kriger-ctf/kriger/pkg/runner"

	"github.com/kriger-ctf/kriger/pkg/apis/config"
	"github.com/kriger-ctf/kriger/pkg/messaging/catalog"
	"github.com/kriger-ctf/kriger/pkg/messaging/executions"
)

const component = "runner"

func main() {
	fs := flag.NewFlagSet(component, flag.ExitOnError)
	opts := options.Parse(fs)
	exploitName := fs.String("exploit-name", env.WithDefaultString("EXPLOIT", ""), "name of the exploit this runner executes, set by the controller")
	serviceName := fs.String("service", env.WithDefaultString("SERVICE", ""), "service this exploit targets, set by the controller")
	workers := fs.Int("workers", env.WithDefaultInt("WORKERS", 1), "concurrent exploit processes to run, set by the controller")
	fs.Parse(os.Args[1:])

	if err := opts.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: invalid options: %s\n", component, err)
		os.Exit(1)
	}
	if *exploitName == "" || *serviceName == "" {
		fmt.Fprintf(os.Stderr, "%s: exploit-name and service are required\n", component)
		os.Exit(1)
	}

	rt, err := operator.NewAppRuntime(component, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", component, err)
		os.Exit(1)
	}
	defer rt.Shutdown()
	ctx := rt.Context()

	runnerCfg, err := configfile.LoadRunner(opts.ConfigPath)
	if err != nil {
		rt.Log.Error(err, "load runner config failed")
		os.Exit(1)
	}
	timeout, err := configfile.ParseDuration("runner.timeout", runnerCfg.Timeout, 30*time.Second)
	if err != nil {
		rt.Log.Error(err, "invalid runner config")
		os.Exit(1)
	}
	flagFormat := runnerCfg.FlagPattern
	flagPattern := regexp.MustCompile(runnerCfg.FlagPattern)
	if runnerCfg.FlagPattern == "" {
		comp, lerr := configfile.LoadCompetition(opts.ConfigPath)
		if lerr != nil {
			rt.Log.Error(lerr, "load competition config failed")
			os.Exit(1)
		}
		flagFormat = comp.FlagFormat
		flagPattern, err = regexp.Compile(comp.FlagFormat)
		if err != nil {
			rt.Log.Error(err, "invalid flag_format in competition config")
			os.Exit(1)
		}
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

	execSvc, err := executions.Open(ctx, rt.Messaging, comp.TickDurationSeconds())
	if err != nil {
		rt.Log.Error(err, "open executions service failed")
		os.Exit(1)
	}
	flagSvc, err := flags.Open(ctx, rt.Messaging, comp.TickDurationSeconds()*time.Duration(comp.FlagValidity))
	if err != nil {
		rt.Log.Error(err, "open flags service failed")
		os.Exit(1)
	}

	cfg := runner.Config{
		ExploitName:     *exploitName,
		Service:         *serviceName,
		Command:         runnerCfg.Command,
		Args:            runnerCfg.Args,
		Workers:         *workers,
		Timeout:         timeout,
		FlagPattern:     flagPattern,
		FlagFormat:      flagFormat,
		NatsURL:         opts.NatsURL,
		OtelEndpoint:    env.WithDefaultString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OtelServiceName: env.WithDefaultString("OTEL_SERVICE_NAME", ""),
	}
	run := runner.New(rt.Log, cfg, execSvc, flagSvc, rt.Metrics)

	go metricsserver.Serve(ctx, rt.Log, opts.MetricsPort)

	if err := run.Run(ctx); err != nil {
		rt.Log.Error(err, "runner exited")
		os.Exit(1)
	}
}
