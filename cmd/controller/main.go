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

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrlruntime "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/kriger-ctf/kriger/pkg/apis/exploit"
	"github.com/kriger-ctf/kriger/pkg/configfile"
	"github.com/kriger-ctf/kriger/pkg/controller"
	"github.com/kriger-ctf/kriger/pkg/env"
	"github.com/kriger-ctf/kriger/pkg/messaging/catalog"
	"github.com/kriger-ctf/kriger/pkg/metricsserver"
	"github.com/kriger-ctf/kriger/pkg/operator"
	"github.com/kriger-ctf/kriger/pkg/operator/options"
)

const component = "controller"

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(appsv1.AddToScheme(scheme))
	utilruntime.Must(corev1.AddToScheme(scheme))
}

func main() {
	fs := flag.NewFlagSet(component, flag.ExitOnError)
	opts := options.Parse(fs)
	namespace := fs.String("namespace", env.WithDefaultString("KRIGER_NAMESPACE", "kriger"), "namespace the controller reconciles exploit Deployments into")
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

	cfg := ctrlruntime.GetConfigOrDie()
	c, err := client.New(cfg, client.Options{Scheme: scheme})
	if err != nil {
		rt.Log.Error(err, "build kubernetes client failed")
		os.Exit(1)
	}

	exploitsBucket, err := catalog.Open[exploit.Exploit](ctx, rt.Messaging, catalog.BucketExploits)
	if err != nil {
		rt.Log.Error(err, "open exploits bucket failed")
		os.Exit(1)
	}

	comp, err := configfile.LoadCompetition(opts.ConfigPath)
	if err != nil {
		rt.Log.Error(err, "load competition config failed")
		os.Exit(1)
	}
	podEnv := controller.PodEnvDefaults{
		NatsURL:         opts.NatsURL,
		FlagFormat:      comp.FlagFormat,
		OtelEndpoint:    env.WithDefaultString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OtelServiceName: env.WithDefaultString("OTEL_SERVICE_NAME", ""),
	}
	ctl := controller.New(rt.Log, c, *namespace, exploitsBucket, rt.Metrics, podEnv)

	go metricsserver.Serve(ctx, rt.Log, opts.MetricsPort)

	if err := ctl.Run(ctx); err != nil {
		rt.Log.Error(err, "controller exited")
		os.Exit(1)
	}
}
