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

// Package controller reconciles the `exploits` KV bucket into running
// Kubernetes workloads (spec §4.3): one Deployment per enabled exploit,
// applied with server-side apply under a fixed field manager so the
// controller never clobbers fields another actor owns, torn down when
// the exploit is disabled or removed. Grounded on the teacher's
// client.Client-holding reconciler shape (controllers/scalepolicy_controller.go)
// generalized from a CRD watch to a KV watch, since this system has no
// CRDs of its own to reconcile against.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/samber/lo"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/kriger-ctf/kriger/pkg/apis/exploit"
	"github.com/kriger-ctf/kriger/pkg/messaging"
	"github.com/kriger-ctf/kriger/pkg/messaging/catalog"
	"github.com/kriger-ctf/kriger/pkg/metrics"
)

// FieldManager is the server-side-apply owner identity for every object
// this controller applies (spec §4.3: "field manager: kriger-controller").
const FieldManager = "kriger-controller"

// nakDelay is the redelivery backoff applied to a failed reconcile
// (spec §4.3: "On failure: nak(2s)").
const nakDelay = 2 * time.Second

// managedLabel marks every Deployment owned by this controller, so a
// deletion reconcile can find it without tracking identity separately.
const managedLabel = "kriger.io/managed-by"
const exploitNameLabel = "kriger.io/exploit"

// PodEnvDefaults are the competition-wide values stamped onto every
// reconciled Deployment's container alongside the per-exploit ones, so
// the Runner pod it starts can reach the substrate and load its config
// without a mounted config file (spec §4.3 / §6: env =
// {EXPLOIT, SERVICE, FLAG_FORMAT, NATS_URL, TIMEOUT, OTEL_*, WORKERS}).
type PodEnvDefaults struct {
	NatsURL         string
	FlagFormat      string
	OtelEndpoint    string
	OtelServiceName string
}

// Controller reconciles exploit catalog entries into Deployments in a
// single namespace.
type Controller struct {
	log       logr.Logger
	client    client.Client
	namespace string
	bucket    *catalog.Bucket[exploit.Exploit]
	metrics   *metrics.Registry
	podEnv    PodEnvDefaults

	// wg tracks in-flight scheduleRetry goroutines so Run can wait for
	// them to finish before returning.
	wg sync.WaitGroup
}

// New constructs a Controller over an already-opened exploits bucket and
// a controller-runtime client for the target namespace.
func New(log logr.Logger, c client.Client, namespace string, bucket *catalog.Bucket[exploit.Exploit], reg *metrics.Registry, podEnv PodEnvDefaults) *Controller {
	return &Controller{log: log, client: c, namespace: namespace, bucket: bucket, metrics: reg, podEnv: podEnv}
}

// Run watches the exploits bucket and reconciles every change until ctx
// is cancelled. Each update is acked on success and nak'd with a short
// delay on failure (spec §4.3: "On success: ack(). On failure: nak(2s)").
func (c *Controller) Run(ctx context.Context) error {
	updates, err := c.bucket.Watch(ctx, messaging.DeliverLastPerSubject)
	if err != nil {
		return fmt.Errorf("controller: watch exploits: %w", err)
	}
	defer c.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			c.reconcile(ctx, u)
		}
	}
}

func (c *Controller) reconcile(ctx context.Context, u catalog.Update[exploit.Exploit]) {
	log := c.log.WithValues("exploit", u.Key)
	if u.Err != nil {
		log.Error(u.Err, "malformed exploit catalog entry, skipping")
		_ = u.Nak(ctx, nakDelay)
		return
	}

	if err := c.reconcileOnce(ctx, u.Key, u.Value, u.Deleted); err != nil {
		log.Error(err, "reconcile failed, retrying")
		c.metrics.Errors.WithLabelValues(u.Key, "", "reconcile").Inc()
		// u.Nak is a no-op on a bare KV watch (kvMsg has no backing
		// JetStream consumer to redeliver from), so the Controller has to
		// re-drive itself to honor spec §4.3's "will be re-delivered".
		_ = u.Nak(ctx, nakDelay)
		c.scheduleRetry(ctx, u.Key, nakDelay)
		return
	}
	c.metrics.Complete.WithLabelValues(u.Key, "").Inc()
	_ = u.Ack(ctx)
}

// reconcileOnce applies or tears down one exploit's Deployment from an
// already-known value, shared by the live watch path and scheduleRetry's
// re-drive path.
func (c *Controller) reconcileOnce(ctx context.Context, key string, value exploit.Exploit, deleted bool) error {
	if deleted || !value.Enabled {
		return c.teardown(ctx, key)
	}
	return c.apply(ctx, value)
}

// scheduleRetry re-fetches key from the exploits bucket after delay and
// reconciles it again, re-scheduling itself on repeated failure. This is
// the Controller's own redelivery since KV watches have none.
func (c *Controller) scheduleRetry(ctx context.Context, key string, delay time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		value, ok, err := c.bucket.Get(ctx, key)
		if err != nil {
			c.log.Error(err, "retry: refetch exploit failed", "exploit", key)
			return
		}
		if err := c.reconcileOnce(ctx, key, value, !ok); err != nil {
			c.log.Error(err, "retry: reconcile failed again", "exploit", key)
			c.metrics.Errors.WithLabelValues(key, "", "reconcile").Inc()
			c.scheduleRetry(ctx, key, delay)
			return
		}
		c.metrics.Complete.WithLabelValues(key, "").Inc()
	}()
}

func (c *Controller) apply(ctx context.Context, e exploit.Exploit) error {
	dep := c.desiredDeployment(e)
	dep.TypeMeta = metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"}
	return c.client.Patch(ctx, dep, client.Apply, client.FieldOwner(FieldManager), client.ForceOwnership)
}

func (c *Controller) teardown(ctx context.Context, exploitName string) error {
	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: deploymentName(exploitName), Namespace: c.namespace},
	}
	err := c.client.Delete(ctx, dep)
	if client.IgnoreNotFound(err) != nil {
		return fmt.Errorf("controller: delete deployment %s: %w", dep.Name, err)
	}
	return nil
}

func deploymentName(exploitName string) string {
	return "kriger-exploit-" + exploitName
}

// desiredDeployment builds the Deployment this controller owns for one
// enabled exploit: one hardened container per spec §6, replica count and
// resources taken straight from the catalog entry.
func (c *Controller) desiredDeployment(e exploit.Exploit) *appsv1.Deployment {
	labels := map[string]string{
		managedLabel:     "kriger-controller",
		exploitNameLabel: e.Name,
	}
	workers := e.EffectiveWorkers(1)

	container := corev1.Container{
		Name:  "exploit",
		Image: e.Image,
		Env: []corev1.EnvVar{
			{Name: "EXPLOIT", Value: e.Name},
			{Name: "SERVICE", Value: e.Service},
			{Name: "FLAG_FORMAT", Value: c.podEnv.FlagFormat},
			{Name: "NATS_URL", Value: c.podEnv.NatsURL},
			{Name: "TIMEOUT", Value: fmt.Sprintf("%d", e.Timeout)},
			{Name: "OTEL_EXPORTER_OTLP_ENDPOINT", Value: c.podEnv.OtelEndpoint},
			{Name: "OTEL_SERVICE_NAME", Value: c.podEnv.OtelServiceName},
			{Name: "WORKERS", Value: fmt.Sprintf("%d", workers)},
		},
		Resources:       resourceRequirements(e.Resources),
		SecurityContext: hardenedSecurityContext(),
	}

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      deploymentName(e.Name),
			Namespace: c.namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: lo.ToPtr(int32(e.Replicas)),
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{exploitNameLabel: e.Name}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{exploitNameLabel: e.Name}},
				Spec: corev1.PodSpec{
					RestartPolicy:                corev1.RestartPolicyAlways,
					Containers:                   []corev1.Container{container},
					AutomountServiceAccountToken: lo.ToPtr(false),
					EnableServiceLinks:           lo.ToPtr(false),
					SecurityContext: &corev1.PodSecurityContext{
						RunAsNonRoot: lo.ToPtr(true),
					},
				},
			},
		},
	}
}

// hardenedSecurityContext matches spec §6's required container posture:
// no privilege escalation, all capabilities dropped, read-only rootfs.
func hardenedSecurityContext() *corev1.SecurityContext {
	return &corev1.SecurityContext{
		AllowPrivilegeEscalation: lo.ToPtr(false),
		ReadOnlyRootFilesystem:   lo.ToPtr(true),
		RunAsNonRoot:             lo.ToPtr(true),
		Capabilities: &corev1.Capabilities{
			Drop: []corev1.Capability{"ALL"},
		},
	}
}

func resourceRequirements(r exploit.Resources) corev1.ResourceRequirements {
	reqs := corev1.ResourceRequirements{Requests: corev1.ResourceList{}, Limits: corev1.ResourceList{}}
	setQuantity(reqs.Requests, corev1.ResourceCPU, r.CPURequest)
	setQuantity(reqs.Requests, corev1.ResourceMemory, r.MemRequest)
	setQuantity(reqs.Limits, corev1.ResourceCPU, r.CPULimit)
	setQuantity(reqs.Limits, corev1.ResourceMemory, r.MemLimit)
	return reqs
}

func setQuantity(list corev1.ResourceList, name corev1.ResourceName, value string) {
	if value == "" {
		return
	}
	q, err := resource.ParseQuantity(value)
	if err != nil {
		return
	}
	list[name] = q
}
