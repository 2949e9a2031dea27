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

// Package fetcher polls a gameserver-specific endpoint for team IPs and
// per-service flag hints ("flag ids" in ctf-gameserver parlance) and
// publishes them into the messaging substrate (spec §4.6), grounded on
// original_source crates/kriger_fetcher/src/fetcher/{enowars,faust}.rs's
// Fetcher trait (services()/ips()) collapsed into one Adapter.Fetch call.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/kriger-ctf/kriger/pkg/apis/team"
	"github.com/kriger-ctf/kriger/pkg/messaging/catalog"
	"github.com/kriger-ctf/kriger/pkg/messaging/data"
	"github.com/kriger-ctf/kriger/pkg/metrics"
	"github.com/kriger-ctf/kriger/pkg/models"
)

// Result is one poll's worth of discovered state: the competing teams'
// IPs and, per service, the hint payload for each team that has one this
// tick. Adapters fill in whatever their gameserver exposes; an adapter
// with no per-service hints (a CTF with no flag ids) returns an empty
// Hints map.
type Result struct {
	// IPs maps a stable team identifier (ctf-gameserver team number,
	// or the IP itself when the gameserver has no separate numbering)
	// to that team's IP address.
	IPs map[string]string
	// Hints maps service name -> team identifier -> this tick's hint
	// payload. A gameserver that only ever has one live hint per team
	// per tick still uses this shape; kriger_fetcher's ServiceMap in
	// original_source carries the same nesting.
	Hints map[string]map[string]json.RawMessage
}

// Adapter is the low-level, gameserver-specific polling operation.
type Adapter interface {
	Fetch(ctx context.Context) (Result, error)
}

// Fetcher polls an Adapter on an interval, keeps the teams catalog's IPs
// current, and republishes hints onto the data stream for the Scheduler
// to join in.
type Fetcher struct {
	log     logr.Logger
	adapter Adapter
	teams   *catalog.Bucket[team.Team]
	data    *data.Service
	metrics *metrics.Registry

	interval time.Duration
	round    int64
}

// New constructs a Fetcher bound to one adapter.
func New(log logr.Logger, adapter Adapter, teams *catalog.Bucket[team.Team], dataSvc *data.Service, reg *metrics.Registry, interval time.Duration) *Fetcher {
	return &Fetcher{log: log, adapter: adapter, teams: teams, data: dataSvc, metrics: reg, interval: interval}
}

// Run polls on an interval until ctx is cancelled, with the first poll
// firing immediately rather than waiting a full interval.
func (f *Fetcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	if err := f.poll(ctx); err != nil {
		f.log.Error(err, "initial fetch failed")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := f.poll(ctx); err != nil {
			f.log.Error(err, "fetch failed")
			f.metrics.Errors.WithLabelValues("", "", "transient").Inc()
		}
	}
}

func (f *Fetcher) poll(ctx context.Context) error {
	start := time.Now()
	result, err := f.adapter.Fetch(ctx)
	f.metrics.Duration.WithLabelValues("", "").Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("fetcher: poll: %w", err)
	}
	f.round++

	for teamID, ip := range result.IPs {
		if err := f.upsertTeamIP(ctx, teamID, ip); err != nil {
			f.log.Error(err, "update team IP failed", "team", teamID)
		}
	}

	round := f.round
	for service, byTeam := range result.Hints {
		for teamID, hint := range byTeam {
			h := models.FlagHint{TeamID: teamID, Service: service, Round: &round, Hint: hint}
			if err := f.data.PublishFlagHint(ctx, h); err != nil {
				f.log.Error(err, "publish flag hint failed", "service", service, "team", teamID)
				continue
			}
			f.metrics.Complete.WithLabelValues(service, teamID).Inc()
		}
	}
	return nil
}

// upsertTeamIP keeps the teams catalog's default IP current without
// disturbing any per-service override an operator configured by hand
// (spec §3: "Resolved IP per service = overrides[service] else default").
func (f *Fetcher) upsertTeamIP(ctx context.Context, teamID, ip string) error {
	existing, ok, err := f.teams.Get(ctx, teamID)
	if err != nil {
		return err
	}
	if !ok {
		existing = team.Team{ID: teamID}
	}
	if existing.IP == ip {
		return nil
	}
	existing.IP = ip
	return f.teams.Put(ctx, teamID, existing)
}
