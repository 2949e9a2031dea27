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

package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/kriger-ctf/kriger/pkg/fetcher"
)

// faustTeamsResponse mirrors original_source's AttackInfo for the Faust
// protocol: a flat team-number list plus, per service, a map of team
// number (as a string key) to whatever flag-id shape that gameserver
// round uses.
type faustTeamsResponse struct {
	Teams   []int                      `json:"teams"`
	FlagIDs map[string]map[string]any `json:"flag_ids"`
}

type faustScoreboard struct {
	Tick int `json:"tick"`
}

// Faust fetches from a Faust-style ctf-gameserver deployment's /teams and
// /scoreboard endpoints, formatting team numbers into IPs via ipFormat
// (e.g. "10.1.{x}.1", matching the {x} placeholder convention used by
// ctf-gameserver and original_source's FaustFetcher).
type Faust struct {
	client        *http.Client
	teamsURL      string
	scoreboardURL string
	ipFormat      string
}

func NewFaust(teamsURL, scoreboardURL, ipFormat string) *Faust {
	return &Faust{client: &http.Client{}, teamsURL: teamsURL, scoreboardURL: scoreboardURL, ipFormat: ipFormat}
}

func (f *Faust) Fetch(ctx context.Context) (fetcher.Result, error) {
	var out fetcher.Result

	if _, err := f.fetchScoreboard(ctx); err != nil {
		return out, err
	}

	teams, err := f.fetchTeams(ctx)
	if err != nil {
		return out, err
	}

	out.IPs = make(map[string]string, len(teams.Teams))
	for _, n := range teams.Teams {
		out.IPs[strconv.Itoa(n)] = f.formatIP(n)
	}

	out.Hints = make(map[string]map[string]json.RawMessage, len(teams.FlagIDs))
	for service, byTeamNumber := range teams.FlagIDs {
		byTeam := make(map[string]json.RawMessage, len(byTeamNumber))
		for teamNumberStr, flagIDs := range byTeamNumber {
			n, err := strconv.Atoi(teamNumberStr)
			if err != nil {
				continue
			}
			payload, err := json.Marshal(flagIDs)
			if err != nil {
				continue
			}
			byTeam[strconv.Itoa(n)] = payload
		}
		out.Hints[service] = byTeam
	}

	return out, nil
}

func (f *Faust) formatIP(teamNumber int) string {
	return strings.ReplaceAll(f.ipFormat, "{x}", strconv.Itoa(teamNumber))
}

// fetchScoreboard reads the gameserver's tick number (original_source's
// FaustFetcher polls the same endpoint before each teams fetch). Fetch
// calls it before each teams fetch but discards the number: the round on
// published hints is the Fetcher's own poll counter, not this tick.
func (f *Faust) fetchScoreboard(ctx context.Context) (faustScoreboard, error) {
	var resp faustScoreboard
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.scoreboardURL, nil)
	if err != nil {
		return resp, fmt.Errorf("faust: build scoreboard request: %w", err)
	}
	httpResp, err := f.client.Do(req)
	if err != nil {
		return resp, fmt.Errorf("faust: fetch scoreboard: %w", err)
	}
	defer httpResp.Body.Close()
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return resp, fmt.Errorf("faust: decode scoreboard: %w", err)
	}
	return resp, nil
}

func (f *Faust) fetchTeams(ctx context.Context) (faustTeamsResponse, error) {
	var resp faustTeamsResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.teamsURL, nil)
	if err != nil {
		return resp, fmt.Errorf("faust: build teams request: %w", err)
	}
	httpResp, err := f.client.Do(req)
	if err != nil {
		return resp, fmt.Errorf("faust: fetch teams: %w", err)
	}
	defer httpResp.Body.Close()
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return resp, fmt.Errorf("faust: decode teams: %w", err)
	}
	return resp, nil
}
