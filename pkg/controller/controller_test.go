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

package controller

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/kriger-ctf/kriger/pkg/apis/exploit"
	"github.com/kriger-ctf/kriger/pkg/metrics"
)

// newExploitName generates a unique per-test exploit name so parallel test
// cases never collide on the same Deployment object name, the same
// motivation as the teacher's uuid.New().String()-suffixed resource names
// in its integration tests.
func newExploitName(t *testing.T) string {
	t.Helper()
	return "recon-" + uuid.New().String()
}

func newTestController(t *testing.T, objs ...client.Object) *Controller {
	t.Helper()
	sch := runtime.NewScheme()
	if err := appsv1.AddToScheme(sch); err != nil {
		t.Fatalf("AddToScheme: %v", err)
	}
	c := fake.NewClientBuilder().WithScheme(sch).WithObjects(objs...).Build()
	podEnv := PodEnvDefaults{NatsURL: "nats://127.0.0.1:4222", FlagFormat: `FLAG\{[A-Za-z0-9_-]+\}`}
	return New(logr.Discard(), c, "kriger", nil, metrics.NewRegistry("controller_test_"+uuid.New().String()), podEnv)
}

func TestApplyCreatesDeployment(t *testing.T) {
	name := newExploitName(t)
	ctrl := newTestController(t)
	e := exploit.Exploit{Name: name, Service: "vault", Image: "registry.local/recon:latest", Replicas: 2, Enabled: true, Timeout: 30}

	if err := ctrl.apply(context.Background(), e); err != nil {
		t.Fatalf("apply: %v", err)
	}

	var dep appsv1.Deployment
	err := ctrl.client.Get(context.Background(), client.ObjectKey{Namespace: "kriger", Name: deploymentName(name)}, &dep)
	if err != nil {
		t.Fatalf("Get deployment: %v", err)
	}
	if got := *dep.Spec.Replicas; got != 2 {
		t.Errorf("replicas = %d, want 2", got)
	}
	if dep.Labels[exploitNameLabel] != name {
		t.Errorf("label %s = %q, want %q", exploitNameLabel, dep.Labels[exploitNameLabel], name)
	}

	env := make(map[string]string, len(dep.Spec.Template.Spec.Containers[0].Env))
	for _, v := range dep.Spec.Template.Spec.Containers[0].Env {
		env[v.Name] = v.Value
	}
	for _, want := range []string{"EXPLOIT", "SERVICE", "FLAG_FORMAT", "NATS_URL", "TIMEOUT", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SERVICE_NAME", "WORKERS"} {
		if _, ok := env[want]; !ok {
			t.Errorf("container env missing %s", want)
		}
	}
	if env["NATS_URL"] != "nats://127.0.0.1:4222" {
		t.Errorf("NATS_URL = %q, want nats://127.0.0.1:4222", env["NATS_URL"])
	}

	podSpec := dep.Spec.Template.Spec
	if podSpec.AutomountServiceAccountToken == nil || *podSpec.AutomountServiceAccountToken {
		t.Error("AutomountServiceAccountToken must be explicitly false")
	}
	if podSpec.EnableServiceLinks == nil || *podSpec.EnableServiceLinks {
		t.Error("EnableServiceLinks must be explicitly false")
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	name := newExploitName(t)
	ctrl := newTestController(t)
	e := exploit.Exploit{Name: name, Service: "vault", Image: "registry.local/recon:latest", Replicas: 1, Enabled: true, Timeout: 30}

	if err := ctrl.apply(context.Background(), e); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	e.Replicas = 3
	if err := ctrl.apply(context.Background(), e); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	var dep appsv1.Deployment
	if err := ctrl.client.Get(context.Background(), client.ObjectKey{Namespace: "kriger", Name: deploymentName(name)}, &dep); err != nil {
		t.Fatalf("Get deployment: %v", err)
	}
	if got := *dep.Spec.Replicas; got != 3 {
		t.Errorf("replicas after reapply = %d, want 3", got)
	}
}

func TestTeardownDeletesDeployment(t *testing.T) {
	name := newExploitName(t)
	existing := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: deploymentName(name), Namespace: "kriger"},
	}
	ctrl := newTestController(t, existing)

	if err := ctrl.teardown(context.Background(), name); err != nil {
		t.Fatalf("teardown: %v", err)
	}

	var dep appsv1.Deployment
	err := ctrl.client.Get(context.Background(), client.ObjectKey{Namespace: "kriger", Name: deploymentName(name)}, &dep)
	if !apierrors.IsNotFound(err) {
		t.Errorf("expected NotFound after teardown, got %v", err)
	}
}

func TestTeardownOfMissingDeploymentIsNotAnError(t *testing.T) {
	ctrl := newTestController(t)
	if err := ctrl.teardown(context.Background(), newExploitName(t)); err != nil {
		t.Errorf("teardown of absent deployment returned error: %v", err)
	}
}
