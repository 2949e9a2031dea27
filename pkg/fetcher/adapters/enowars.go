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

// Package adapters holds the gameserver-specific implementations of
// fetcher.Adapter, grounded on original_source's
// crates/kriger_fetcher/src/fetcher/{enowars,faust}.rs. The HTTP client
// here is the standard library: neither the teacher nor any other
// retrieval-pack repo imports a third-party HTTP client, and this is a
// direct, unauthenticated GET-and-decode against a fixed JSON shape with
// no need for retries, connection pooling tuning, or middleware that
// would justify reaching for one.
package adapters

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kriger-ctf/kriger/pkg/fetcher"
)

// enowarsAttackInfo is the shape of the ENOWars "attack info" endpoint,
// documented at https://github.com/enowars/attack-proto (field names
// mirror original_source's AttackInfo, decoded camelCase -> snake_case).
type enowarsAttackInfo struct {
	AvailableTeams []string                                `json:"availableTeams"`
	Services       map[string]map[string]map[string][]any `json:"services"`
}

// ENOWars fetches from the ENOWars attack-info endpoint, optionally
// paired with a plain-text newline-delimited team-IP endpoint.
type ENOWars struct {
	client      *http.Client
	endpoint    string
	ipsEndpoint string
}

func NewENOWars(endpoint, ipsEndpoint string) *ENOWars {
	return &ENOWars{client: &http.Client{}, endpoint: endpoint, ipsEndpoint: ipsEndpoint}
}

func (e *ENOWars) Fetch(ctx context.Context) (fetcher.Result, error) {
	var out fetcher.Result
	attackInfo, err := e.fetchAttackInfo(ctx)
	if err != nil {
		return out, err
	}

	out.Hints = make(map[string]map[string]json.RawMessage, len(attackInfo.Services))
	for service, teams := range attackInfo.Services {
		byTeam := make(map[string]json.RawMessage, len(teams))
		for teamIP, ticks := range teams {
			for _, flagIDs := range ticks {
				payload, err := json.Marshal(flagIDs)
				if err != nil {
					continue
				}
				byTeam[teamIP] = payload
			}
		}
		out.Hints[service] = byTeam
	}

	if e.ipsEndpoint == "" {
		out.IPs = make(map[string]string, len(attackInfo.AvailableTeams))
		for _, ip := range attackInfo.AvailableTeams {
			out.IPs[ip] = ip
		}
		return out, nil
	}

	ips, err := e.fetchIPs(ctx)
	if err != nil {
		return out, err
	}
	out.IPs = ips
	return out, nil
}

func (e *ENOWars) fetchAttackInfo(ctx context.Context) (enowarsAttackInfo, error) {
	var info enowarsAttackInfo
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint, nil)
	if err != nil {
		return info, fmt.Errorf("enowars: build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return info, fmt.Errorf("enowars: fetch attack info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return info, fmt.Errorf("enowars: attack info returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return info, fmt.Errorf("enowars: decode attack info: %w", err)
	}
	return info, nil
}

func (e *ENOWars) fetchIPs(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.ipsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("enowars: build ips request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enowars: fetch ips: %w", err)
	}
	defer resp.Body.Close()

	ips := make(map[string]string)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		ip := strings.TrimSpace(scanner.Text())
		if ip == "" {
			continue
		}
		ips[ip] = ip
	}
	return ips, nil
}
