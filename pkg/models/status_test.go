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
	"testing"
)

func TestFlagSubmissionStatusString(t *testing.T) {
	tests := []struct {
		status FlagSubmissionStatus
		want   string
	}{
		{StatusOk, "ok"},
		{StatusDuplicate, "duplicate"},
		{StatusUnknown, "unknown"},
		{FlagSubmissionStatus(42), "status(42)"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestFlagSubmissionStatusJSONRoundTrip(t *testing.T) {
	for _, s := range []FlagSubmissionStatus{StatusOk, StatusError, StatusStale, StatusUnknown} {
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", s, err)
		}
		var got FlagSubmissionStatus
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		if got != s {
			t.Errorf("round trip %v -> %s -> %v", s, data, got)
		}
	}
}

func TestFlagSubmissionStatusShouldRetry(t *testing.T) {
	tests := []struct {
		status FlagSubmissionStatus
		want   bool
	}{
		{StatusOk, false},
		{StatusDuplicate, false},
		{StatusOwn, false},
		{StatusNop, false},
		{StatusOld, false},
		{StatusInvalid, false},
		{StatusStale, false},
		{StatusResubmit, true},
		{StatusError, true},
		{StatusUnknown, true},
	}
	for _, tt := range tests {
		if got := tt.status.ShouldRetry(); got != tt.want {
			t.Errorf("%s.ShouldRetry() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestFlagSubmissionStatusTerminalExcludesRetryable(t *testing.T) {
	for _, s := range []FlagSubmissionStatus{StatusResubmit, StatusError, StatusUnknown} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false (retryable statuses must not be terminal)", s)
		}
	}
	for _, s := range []FlagSubmissionStatus{StatusOk, StatusDuplicate, StatusOwn, StatusNop, StatusOld, StatusInvalid, StatusStale} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
}
