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

// Package models holds the wire types shared by every kriger service. They
// are deliberately plain structs with json tags: every one of them crosses
// the messaging substrate as a KV value or stream payload, never held as
// in-process shared state (see spec §3 Ownership).
package models

import (
	"encoding/json"
	"time"
)

// FlagHint is per-(service, team, round) opaque data published by the
// Fetcher and joined in by the Scheduler.
type FlagHint struct {
	TeamID  string          `json:"team_id"`
	Service string          `json:"service"`
	Round   *int64          `json:"round,omitempty"`
	Hint    json.RawMessage `json:"hint"`

	// PublishedAt is stamped by the substrate (message metadata), not by
	// the Fetcher; it breaks ties between hints with an equal round.
	PublishedAt time.Time `json:"-"`
}

// ExecutionRequest is one scheduled (exploit, tick, team) unit of work.
type ExecutionRequest struct {
	IP     string          `json:"ip"`
	Hint   json.RawMessage `json:"hint,omitempty"`
	TeamID *string         `json:"team_id,omitempty"`
}

// FlagSubmission is a single flag extracted from an exploit's stdout,
// awaiting submission to the gameserver.
type FlagSubmission struct {
	Flag    string  `json:"flag"`
	TeamID  *string `json:"team_id,omitempty"`
	Service string  `json:"service"`
	Exploit string  `json:"exploit"`
}

// FlagSubmissionResult is written exactly once per flag, after the
// Submitter has classified the gameserver's response.
type FlagSubmissionResult struct {
	Flag    string               `json:"flag"`
	TeamID  *string              `json:"team_id,omitempty"`
	Service string               `json:"service"`
	Exploit string               `json:"exploit"`
	Status  FlagSubmissionStatus `json:"status"`
	Points  *float64             `json:"points,omitempty"`
	Msg     *string              `json:"msg,omitempty"`
}

// SchedulingTick is emitted once per tick boundary on scheduling.tick.
type SchedulingTick struct {
	Tick          int64 `json:"tick"`
	TimestampMs   int64 `json:"timestamp"`
}
