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

// Package schedulerutil holds the pure tick-math helpers shared by the
// Scheduler and its tests, kept separate from pkg/scheduler so they can be
// table-tested without standing up the messaging substrate.
package schedulerutil

import (
	"math"
	"time"
)

// CurrentNonOffsettingTick computes floor((now-start)/tickDuration), the
// tick math from spec §4.2. Round down: at start-1ms, tick = -1.
func CurrentNonOffsettingTick(start, now time.Time, tickDuration time.Duration) int64 {
	sinceStart := now.Sub(start)
	ticksAfterStart := sinceStart.Seconds() / tickDuration.Seconds()
	return int64(math.Floor(ticksAfterStart))
}

// NextBoundary returns the absolute instant at which tick+1 fires, for the
// Scheduler to sleep until.
func NextBoundary(start time.Time, tick int64, tickDuration time.Duration) time.Time {
	return start.Add(time.Duration(tick+1) * tickDuration)
}
