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

package models

import (
	"encoding/json"
	"fmt"
)

// FlagSubmissionStatus is the outcome of submitting one flag to the
// gameserver. The integer encoding is part of the wire contract between
// the Submitter and anything reading the flags stream (REST/UI), so the
// values must not be renumbered.
type FlagSubmissionStatus int

const (
	StatusOk        FlagSubmissionStatus = 1
	StatusDuplicate FlagSubmissionStatus = 2
	StatusOwn       FlagSubmissionStatus = 3
	StatusNop       FlagSubmissionStatus = 4
	StatusOld       FlagSubmissionStatus = 5
	StatusInvalid   FlagSubmissionStatus = 6
	StatusResubmit  FlagSubmissionStatus = 7
	StatusError     FlagSubmissionStatus = 8
	StatusStale     FlagSubmissionStatus = 9
	StatusUnknown   FlagSubmissionStatus = 200
)

var statusNames = map[FlagSubmissionStatus]string{
	StatusOk:        "ok",
	StatusDuplicate: "duplicate",
	StatusOwn:       "own",
	StatusNop:       "nop",
	StatusOld:       "old",
	StatusInvalid:   "invalid",
	StatusResubmit:  "resubmit",
	StatusError:     "error",
	StatusStale:     "stale",
	StatusUnknown:   "unknown",
}

func (s FlagSubmissionStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s FlagSubmissionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(s))
}

func (s *FlagSubmissionStatus) UnmarshalJSON(data []byte) error {
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = FlagSubmissionStatus(v)
	return nil
}

// ShouldRetry reports whether a submission result with this status should
// be nak'd for a future retry rather than ack'd as terminal.
func (s FlagSubmissionStatus) ShouldRetry() bool {
	switch s {
	case StatusResubmit, StatusError, StatusUnknown:
		return true
	default:
		return false
	}
}

// Terminal reports whether this status represents a final disposition for
// the flag (§8 invariant 2's terminal set).
func (s FlagSubmissionStatus) Terminal() bool {
	switch s {
	case StatusOk, StatusDuplicate, StatusOwn, StatusNop, StatusOld, StatusInvalid, StatusStale:
		return true
	default:
		return false
	}
}
