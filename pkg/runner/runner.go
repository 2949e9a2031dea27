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

// Package runner executes one exploit's ExecutionRequests against a
// bounded worker pool (spec §4.4): pull a request, spawn the exploit
// process with its parameters as env vars, scan stdout for flags
// matching the competition's flag_format, and forward each to the flags
// stream. Grounded on the teacher's goroutine-per-unit-of-work fan-out
// (kwok/main.go's sync.WaitGroup Go fan-out) generalized into a
// semaphore-bounded pool, since the teacher's own bounded-concurrency
// primitive (pkg/batcher) batches request/response pairs rather than
// running external processes.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"

	"github.com/kriger-ctf/kriger/pkg/messaging"
	"github.com/kriger-ctf/kriger/pkg/messaging/executions"
	"github.com/kriger-ctf/kriger/pkg/messaging/flags"
	"github.com/kriger-ctf/kriger/pkg/metrics"
	"github.com/kriger-ctf/kriger/pkg/models"
)

// errExecutionTimeout marks a runExploit failure caused by the wall-clock
// timeout rather than a spawn/IO error, so handle can ack (the request is
// stale within one tick, per spec §4.4 step 4) instead of nak'ing it for
// redelivery.
var errExecutionTimeout = errors.New("runner: execution timed out")

// progressInterval resets the consumer's ack-wait deadline while a long
// exploit run is still in progress (spec §4.4: "Progress every N seconds
// while process runs").
const progressInterval = 15 * time.Second

// Config is everything one Runner process needs to know about the
// exploit it runs, assembled at startup by cmd/runner from its flags,
// environment, and the [runner] table of the config file.
type Config struct {
	ExploitName string
	Service     string
	Command     string
	Args        []string
	Workers     int
	Timeout     time.Duration
	FlagPattern *regexp.Regexp

	// FlagFormat, NatsURL, OtelEndpoint, and OtelServiceName are forwarded
	// verbatim into the exploit process's environment (spec §6: "Exploit
	// process environment (set by Runner): EXPLOIT, IP, HINT, FLAG_FORMAT,
	// NATS_URL, TIMEOUT, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_SERVICE_NAME,
	// WORKERS").
	FlagFormat      string
	NatsURL         string
	OtelEndpoint    string
	OtelServiceName string
}

// Runner pulls ExecutionRequests for one exploit and fans them out across
// a bounded pool of concurrent process runs.
type Runner struct {
	log     logr.Logger
	cfg     Config
	exec    *executions.Service
	flagSvc *flags.Service
	metrics *metrics.Registry
}

// New constructs a Runner for one exploit.
func New(log logr.Logger, cfg Config, exec *executions.Service, flagSvc *flags.Service, reg *metrics.Registry) *Runner {
	return &Runner{log: log, cfg: cfg, exec: exec, flagSvc: flagSvc, metrics: reg}
}

// Run pulls batches of ExecutionRequests and dispatches them across
// cfg.Workers concurrent slots until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	consumer, err := r.exec.Subscribe(ctx, r.cfg.ExploitName, r.cfg.Timeout+progressInterval)
	if err != nil {
		return fmt.Errorf("runner: subscribe: %w", err)
	}

	sem := make(chan struct{}, r.cfg.Workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := consumer.Fetch(ctx, r.cfg.Workers, 2*time.Second)
		if err != nil {
			r.log.Error(err, "fetch execution requests failed")
			continue
		}
		for _, msg := range msgs {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			wg.Add(1)
			go func(msg messaging.Msg) {
				defer wg.Done()
				defer func() { <-sem }()
				r.handle(ctx, msg)
			}(msg)
		}
	}
}

func (r *Runner) handle(ctx context.Context, msg messaging.Msg) {
	start := time.Now()
	req, err := executions.DecodeRequest(msg.Payload())
	if err != nil {
		r.log.Error(err, "malformed execution request")
		r.metrics.Errors.WithLabelValues(r.cfg.ExploitName, "", "format").Inc()
		_ = msg.Term(ctx)
		return
	}
	team := ""
	if req.TeamID != nil {
		team = *req.TeamID
	}
	r.metrics.Requests.WithLabelValues(r.cfg.ExploitName, team).Inc()

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	flagsFound, runErr := r.runExploit(runCtx, msg, req)
	r.metrics.Duration.WithLabelValues(r.cfg.ExploitName, team).Observe(time.Since(start).Seconds())

	for _, f := range flagsFound {
		sub := models.FlagSubmission{Flag: f, TeamID: req.TeamID, Service: r.cfg.Service, Exploit: r.cfg.ExploitName}
		if err := r.flagSvc.SubmitFlag(ctx, sub); err != nil {
			r.log.Error(err, "publish flag submission failed", "team", team)
		}
	}

	if runErr != nil {
		if errors.Is(runErr, errExecutionTimeout) {
			r.log.Error(runErr, "exploit run timed out, not retrying this tick", "team", team)
			r.metrics.Errors.WithLabelValues(r.cfg.ExploitName, team, "timeout").Inc()
			_ = msg.Ack(ctx)
			return
		}
		r.log.Error(runErr, "exploit run failed", "team", team)
		r.metrics.Errors.WithLabelValues(r.cfg.ExploitName, team, "transient").Inc()
		_ = msg.Nak(ctx, 0)
		return
	}
	r.metrics.Complete.WithLabelValues(r.cfg.ExploitName, team).Inc()
	_ = msg.Ack(ctx)
}

// runExploit spawns the exploit process with the request parameters as
// env vars, scans its stdout line by line for flag_format matches, keeps
// the consumer's ack-wait deadline alive for the duration of the run, and
// kills the run once cfg.Timeout elapses (spec §4.4 steps 2-4).
func (r *Runner) runExploit(ctx context.Context, msg messaging.Msg, req models.ExecutionRequest) ([]string, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.Command(r.cfg.Command, r.cfg.Args...)
	cmd.Env = append(cmd.Env,
		"EXPLOIT="+r.cfg.ExploitName,
		"IP="+req.IP,
		"FLAG_FORMAT="+r.cfg.FlagFormat,
		"NATS_URL="+r.cfg.NatsURL,
		fmt.Sprintf("TIMEOUT=%d", int64(r.cfg.Timeout.Seconds())),
		"OTEL_EXPORTER_OTLP_ENDPOINT="+r.cfg.OtelEndpoint,
		"OTEL_SERVICE_NAME="+r.cfg.OtelServiceName,
		fmt.Sprintf("WORKERS=%d", r.cfg.Workers),
	)
	if len(req.Hint) > 0 {
		cmd.Env = append(cmd.Env, "HINT="+string(req.Hint))
	}

	// Run the exploit in its own process group so a timeout can kill the
	// whole tree it spawns, not just the direct child (spec §4.4 step 4:
	// "On timeout: kill the process group").
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("runner: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("runner: start: %w", err)
	}

	done := make(chan struct{})
	defer close(done)

	// Kill the whole process group on ctx's deadline instead of relying
	// on exec.CommandContext, which only signals the direct child and
	// would leak anything that child spawned.
	go func() {
		select {
		case <-ctx.Done():
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		case <-done:
		}
	}()

	progress := time.NewTicker(progressInterval)
	defer progress.Stop()
	go func() {
		for {
			select {
			case <-done:
				return
			case <-progress.C:
				_ = msg.Progress(ctx)
			}
		}
	}()

	var found []string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if r.cfg.FlagPattern != nil {
			found = append(found, r.cfg.FlagPattern.FindAllString(line, -1)...)
		}
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return found, fmt.Errorf("%w: exploit %s: %w", errExecutionTimeout, r.cfg.ExploitName, ctx.Err())
	}
	if waitErr != nil {
		return found, fmt.Errorf("runner: exploit %s exited: %w", r.cfg.ExploitName, waitErr)
	}
	return found, nil
}
