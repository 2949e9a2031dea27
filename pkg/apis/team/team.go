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

// Package team holds the Team entity (spec §3): the catalog of
// competing teams, keyed by id in the `teams` KV bucket.
package team

// Team is one competing team.
type Team struct {
	ID          string            `json:"id" toml:"id"`
	DisplayName string            `json:"display_name,omitempty" toml:"display_name,omitempty"`
	IP          string            `json:"ip,omitempty" toml:"ip,omitempty"`
	ServiceIPs  map[string]string `json:"service_ips,omitempty" toml:"service_ips,omitempty"`
}

// ResolveIP returns the team's IP for a given service: a per-service
// override if present, else the team's default IP. Returns "" when
// neither is set (spec §3: "Resolved IP per service = overrides[service]
// else default").
func (t Team) ResolveIP(service string) string {
	if ip, ok := t.ServiceIPs[service]; ok && ip != "" {
		return ip
	}
	return t.IP
}
