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

// Package scheduling is a typed helper over the `scheduling` stream
// (spec §4.1 table): scheduling.tick, read by ordered consumers only.
package scheduling

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kriger-ctf/kriger/pkg/messaging"
	"github.com/kriger-ctf/kriger/pkg/models"
)

const tickSubject = "scheduling.tick"

type Service struct {
	m      messaging.Messaging
	stream messaging.Stream
}

// Open declares the `scheduling` stream with limits retention. No message
// count or age limit is set on it, so every published tick is retained.
func Open(ctx context.Context, m messaging.Messaging) (*Service, error) {
	s, err := m.Stream(ctx, messaging.StreamConfig{
		Name:      "scheduling",
		Subjects:  []string{tickSubject},
		Retention: messaging.RetentionLimits,
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling: open stream: %w", err)
	}
	return &Service{m: m, stream: s}, nil
}

// PublishTick publishes one SchedulingTick at a tick boundary
// (spec §4.2 step 1).
func (s *Service) PublishTick(ctx context.Context, tick models.SchedulingTick) error {
	payload, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("scheduling: marshal tick: %w", err)
	}
	return s.m.Publish(ctx, tickSubject, payload)
}

// SubscribeTicksOrdered returns an ordered, no-ack replay consumer over
// scheduling.tick (used by the UI/REST layer; out of scope here beyond
// exposing the primitive).
func (s *Service) SubscribeTicksOrdered(ctx context.Context, deliverPolicy messaging.DeliverPolicy) (messaging.Consumer, error) {
	return s.stream.OrderedConsume(ctx, tickSubject, deliverPolicy)
}

// DecodeTick unmarshals one Msg payload as a SchedulingTick.
func DecodeTick(payload []byte) (models.SchedulingTick, error) {
	var v models.SchedulingTick
	if err := json.Unmarshal(payload, &v); err != nil {
		return models.SchedulingTick{}, fmt.Errorf("scheduling: decode tick: %w", err)
	}
	return v, nil
}
