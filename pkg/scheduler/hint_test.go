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

package scheduler

import (
	"testing"
	"time"
)

func ptr(v int64) *int64 { return &v }

func TestIsNewer(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	tests := []struct {
		name      string
		candidate hintEntry
		existing  hintEntry
		want      bool
	}{
		{
			name:      "higher round wins",
			candidate: hintEntry{round: ptr(5), publishedAt: t0},
			existing:  hintEntry{round: ptr(4), publishedAt: t1},
			want:      true,
		},
		{
			name:      "lower round loses even if published later",
			candidate: hintEntry{round: ptr(3), publishedAt: t1},
			existing:  hintEntry{round: ptr(4), publishedAt: t0},
			want:      false,
		},
		{
			name:      "same round falls back to publish time",
			candidate: hintEntry{round: ptr(4), publishedAt: t1},
			existing:  hintEntry{round: ptr(4), publishedAt: t0},
			want:      true,
		},
		{
			name:      "candidate with a round beats one without",
			candidate: hintEntry{round: ptr(1), publishedAt: t0},
			existing:  hintEntry{round: nil, publishedAt: t1},
			want:      true,
		},
		{
			name:      "existing with a round beats candidate without",
			candidate: hintEntry{round: nil, publishedAt: t1},
			existing:  hintEntry{round: ptr(1), publishedAt: t0},
			want:      false,
		},
		{
			name:      "neither has a round, publish time decides",
			candidate: hintEntry{round: nil, publishedAt: t1},
			existing:  hintEntry{round: nil, publishedAt: t0},
			want:      true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNewer(tt.candidate, tt.existing); got != tt.want {
				t.Errorf("isNewer() = %v, want %v", got, tt.want)
			}
		})
	}
}
