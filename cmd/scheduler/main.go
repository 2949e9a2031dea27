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

	"github.com/kriger-ctf/kriger/pkg/apis/config"
	"github.com/kriger-ctf/kriger/pkg/apis/exploit"
	"github.com/kriger-ctf/kriger/pkg/apis/service"
	"github.com/kriger-ctf/kriger/pkg/apis/team"
	"github.com/kriger-ctf/kriger/pkg/configfile"
	"github.com/kriger-ctf/kriger/pkg/messaging/catalog"
	"github.com/kriger-ctf/kriger/pkg/messaging/data"
	"github.com/kriger-ctf/kriger/pkg/messaging/executions"
	"github.com/kriger-ctf/kriger/pkg/messaging/scheduling"
	"github.com/kriger-ctf/kriger/pkg/metricsserver"
	"github.com/kriger-ctf/kriger/pkg/operator"
	"github.com/kriger-ctf/kriger/pkg/operator/options"
	"github.com/kriger-ctf/kriger/pkg/scheduler"
)

const component = "scheduler"

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

	comp, err := configfile.LoadCompetition(opts.ConfigPath)
	if err != nil {
		rt.Log.Error(err, "load competition config failed")
		os.Exit(1)
	}

	competitionBucket, err := catalog.Open[config.Competition](ctx, rt.Messaging, catalog.BucketConfig)
	if err != nil {
		rt.Log.Error(err, "open config bucket failed")
		os.Exit(1)
	}
	if err := competitionBucket.Put(ctx, catalog.ConfigKey, comp); err != nil {
		rt.Log.Error(err, "seed competition config failed")
		os.Exit(1)
	}

	exploitsBucket, err := catalog.Open[exploit.Exploit](ctx, rt.Messaging, catalog.BucketExploits)
	if err != nil {
		rt.Log.Error(err, "open exploits bucket failed")
		os.Exit(1)
	}
	servicesBucket, err := catalog.Open[service.Service](ctx, rt.Messaging, catalog.BucketServices)
	if err != nil {
		rt.Log.Error(err, "open services bucket failed")
		os.Exit(1)
	}
	teamsBucket, err := catalog.Open[team.Team](ctx, rt.Messaging, catalog.BucketTeams)
	if err != nil {
		rt.Log.Error(err, "open teams bucket failed")
		os.Exit(1)
	}

	tickDuration := comp.TickDurationSeconds()

	execSvc, err := executions.Open(ctx, rt.Messaging, tickDuration)
	if err != nil {
		rt.Log.Error(err, "open executions service failed")
		os.Exit(1)
	}
	schedSvc, err := scheduling.Open(ctx, rt.Messaging)
	if err != nil {
		rt.Log.Error(err, "open scheduling service failed")
		os.Exit(1)
	}
	dataSvc, err := data.Open(ctx, rt.Messaging, tickDuration)
	if err != nil {
		rt.Log.Error(err, "open data service failed")
		os.Exit(1)
	}

	sched := scheduler.New(rt.Log, competitionBucket, exploitsBucket, servicesBucket, teamsBucket, execSvc, schedSvc, dataSvc, rt.Metrics)

	go metricsserver.Serve(ctx, rt.Log, opts.MetricsPort)

	if err := sched.Run(ctx); err != nil {
		rt.Log.Error(err, "scheduler exited")
		os.Exit(1)
	}
}
