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

// Package scheduler drives the tick clock and fans out ExecutionRequests
// (spec §4.2). The source repo's own scheduler crate (original_source
// crates/kriger_scheduler/src/lib.rs) is a stub beyond the tick-math
// helpers now in pkg/schedulerutil, so the fan-out algorithm below is
// built directly from spec.md §4.2, in the teacher's reconcile-loop idiom
// (pkg/operator + pkg/controllers' watch-then-snapshot-then-act shape).
package scheduler

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	gocache "github.com/patrickmn/go-cache"

	"github.com/kriger-ctf/kriger/pkg/apis/config"
	"github.com/kriger-ctf/kriger/pkg/apis/exploit"
	"github.com/kriger-ctf/kriger/pkg/apis/service"
	"github.com/kriger-ctf/kriger/pkg/apis/team"
	"github.com/kriger-ctf/kriger/pkg/messaging/catalog"
	"github.com/kriger-ctf/kriger/pkg/messaging/data"
	"github.com/kriger-ctf/kriger/pkg/messaging/executions"
	"github.com/kriger-ctf/kriger/pkg/messaging/scheduling"
	"github.com/kriger-ctf/kriger/pkg/metrics"
	"github.com/kriger-ctf/kriger/pkg/models"
	"github.com/kriger-ctf/kriger/pkg/schedulerutil"
)

// hintCacheTTL bounds how long a hint is considered current once observed;
// it is refreshed continuously by the hint watcher, so this mostly guards
// against a hint from a team/service pair that stopped being published.
const hintCacheTTL = 10 * time.Minute

// Scheduler fires on tick boundaries and publishes ExecutionRequests.
type Scheduler struct {
	log logr.Logger

	competitionBucket *catalog.Bucket[config.Competition]
	exploitsBucket    *catalog.Bucket[exploit.Exploit]
	servicesBucket    *catalog.Bucket[service.Service]
	teamsBucket       *catalog.Bucket[team.Team]

	executions *executions.Service
	scheduling *scheduling.Service
	data       *data.Service

	metrics *metrics.Registry

	hints *gocache.Cache
}

// New constructs a Scheduler from already-open substrate handles; see
// cmd/scheduler/main.go for how they're wired from an AppRuntime.
func New(
	log logr.Logger,
	competitionBucket *catalog.Bucket[config.Competition],
	exploitsBucket *catalog.Bucket[exploit.Exploit],
	servicesBucket *catalog.Bucket[service.Service],
	teamsBucket *catalog.Bucket[team.Team],
	execSvc *executions.Service,
	schedSvc *scheduling.Service,
	dataSvc *data.Service,
	reg *metrics.Registry,
) *Scheduler {
	return &Scheduler{
		log:               log,
		competitionBucket: competitionBucket,
		exploitsBucket:    exploitsBucket,
		servicesBucket:    servicesBucket,
		teamsBucket:       teamsBucket,
		executions:        execSvc,
		scheduling:        schedSvc,
		data:              dataSvc,
		metrics:           reg,
		hints:             gocache.New(hintCacheTTL, hintCacheTTL/2),
	}
}

// Run blocks, sleeping until each tick boundary and firing, until ctx is
// cancelled (spec §5: "Scheduler sleep until next tick boundary" is the
// suspension point observed for shutdown).
func (s *Scheduler) Run(ctx context.Context) error {
	go s.watchHints(ctx)

	comp, ok, err := s.competitionBucket.Get(ctx, catalog.ConfigKey)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrConfiguration
	}

	tickDuration := comp.TickDurationSeconds()
	tick := schedulerutil.CurrentNonOffsettingTick(comp.Start, time.Now().UTC(), tickDuration)

	for {
		next := schedulerutil.NextBoundary(comp.Start, tick, tickDuration)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		tick++
		if tick < comp.TickStart {
			continue
		}
		if err := s.fireTick(ctx, comp, tick); err != nil {
			s.log.Error(err, "tick failed", "tick", tick)
		}
	}
}

// fireTick implements spec §4.2's five numbered steps.
func (s *Scheduler) fireTick(ctx context.Context, comp config.Competition, tick int64) error {
	if err := s.scheduling.PublishTick(ctx, models.SchedulingTick{
		Tick:        tick,
		TimestampMs: time.Now().UnixMilli(),
	}); err != nil {
		return err
	}

	exploits, err := s.exploitsBucket.List(ctx)
	if err != nil {
		return err
	}
	teams, err := s.teamsBucket.List(ctx)
	if err != nil {
		return err
	}
	services, err := s.servicesBucket.List(ctx)
	if err != nil {
		return err
	}

	for _, e := range exploits {
		if !e.Enabled {
			continue
		}
		svc, hasSvc := services[e.Service]
		for teamID, t := range teams {
			if comp.IsExcluded(teamID) {
				continue
			}
			ip := t.ResolveIP(e.Service)
			if ip == "" {
				continue
			}

			var hintPayload []byte
			if hasSvc && svc.HasHint {
				hint, found := s.latestHint(e.Service, teamID)
				if !found {
					// skip-only-when-required: a hint-bearing service
					// with no hint yet published gates this (exploit,
					// team) for this tick (Open Question resolution,
					// SPEC_FULL.md).
					continue
				}
				hintPayload = hint
			}

			req := models.ExecutionRequest{IP: ip, Hint: hintPayload, TeamID: &teamID}
			if err := s.executions.PublishRequest(ctx, e.Name, tick, teamID, req); err != nil {
				s.log.Error(err, "publish execution request failed", "exploit", e.Name, "team", teamID, "tick", tick)
				s.metrics.Errors.WithLabelValues(e.Name, teamID, "publish").Inc()
				continue
			}
			s.metrics.Requests.WithLabelValues(e.Name, teamID).Inc()
		}
	}
	return nil
}

type hintEntry struct {
	round       *int64
	publishedAt time.Time
	payload     []byte
}

func (s *Scheduler) latestHint(service, teamID string) ([]byte, bool) {
	v, ok := s.hints.Get(service + "|" + teamID)
	if !ok {
		return nil, false
	}
	return v.(hintEntry).payload, true
}

// watchHints keeps the latest-hint cache warm by consuming the data
// stream's durable consumer continuously (spec §4.2 step 4: "most recent
// (by round, then publish time)").
func (s *Scheduler) watchHints(ctx context.Context) {
	consumer, err := s.data.Subscribe(ctx, "scheduler-hints")
	if err != nil {
		s.log.Error(err, "failed to subscribe to flag hints")
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msgs, err := consumer.Fetch(ctx, 64, 2*time.Second)
		if err != nil {
			s.log.Error(err, "fetch flag hints failed")
			continue
		}
		for _, msg := range msgs {
			hint, err := data.DecodeHint(msg.Payload())
			if err != nil {
				s.log.Error(err, "decode flag hint failed")
				_ = msg.Term(ctx)
				continue
			}
			key := hint.Service + "|" + hint.TeamID
			entry := hintEntry{round: hint.Round, publishedAt: msg.Published(), payload: hint.Hint}
			if existing, ok := s.hints.Get(key); !ok || isNewer(entry, existing.(hintEntry)) {
				s.hints.Set(key, entry, hintCacheTTL)
			}
			_ = msg.Ack(ctx)
		}
	}
}

func isNewer(candidate, existing hintEntry) bool {
	if candidate.round != nil && existing.round != nil {
		if *candidate.round != *existing.round {
			return *candidate.round > *existing.round
		}
		return candidate.publishedAt.After(existing.publishedAt)
	}
	if candidate.round != nil {
		return true
	}
	if existing.round != nil {
		return false
	}
	return candidate.publishedAt.After(existing.publishedAt)
}
