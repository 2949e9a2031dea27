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

// Package data is a typed helper over the `data` stream (spec §4.1 table):
// data.flag_hints.{service}.{team} subjects, carrying FlagHint, published
// by the Fetcher and joined in by the Scheduler.
package data

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kriger-ctf/kriger/pkg/messaging"
	"github.com/kriger-ctf/kriger/pkg/models"
)

const subjectPrefix = "data.flag_hints."

func subjectFor(service, teamID string) string {
	if service == "" {
		service = "*"
	}
	if teamID == "" {
		teamID = "*"
	}
	return fmt.Sprintf("%s%s.%s", subjectPrefix, service, teamID)
}

type Service struct {
	m      messaging.Messaging
	stream messaging.Stream
}

// Open declares the `data` stream with retention bounded to roughly one
// tick (spec §4.1: "maxAge ≈ tick").
func Open(ctx context.Context, m messaging.Messaging, tickDuration time.Duration) (*Service, error) {
	s, err := m.Stream(ctx, messaging.StreamConfig{
		Name:        "data",
		Subjects:    []string{subjectPrefix + ">"},
		Retention:   messaging.RetentionLimits,
		MaxAge:      tickDuration,
		DedupWindow: tickDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("data: open stream: %w", err)
	}
	return &Service{m: m, stream: s}, nil
}

// PublishFlagHint publishes one FlagHint, deduplicated by
// "{service}.{team}.{base64(hint)}" (spec §3).
func (s *Service) PublishFlagHint(ctx context.Context, hint models.FlagHint) error {
	payload, err := json.Marshal(hint)
	if err != nil {
		return fmt.Errorf("data: marshal hint: %w", err)
	}
	id := fmt.Sprintf("%s.%s.%s", hint.Service, hint.TeamID, base64.StdEncoding.EncodeToString(hint.Hint))
	return s.m.PublishWithID(ctx, subjectFor(hint.Service, hint.TeamID), id, payload)
}

// Subscribe attaches the Scheduler's durable consumer over every hint
// subject (spec §4.1: ack_wait=60s, explicit ack, deliver New).
func (s *Service) Subscribe(ctx context.Context, durableName string) (messaging.Consumer, error) {
	return s.stream.Subscribe(ctx, messaging.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: subjectFor("", ""),
		AckPolicy:     messaging.AckExplicit,
		AckWait:       60 * time.Second,
		DeliverPolicy: messaging.DeliverNew,
	})
}

// DecodeHint unmarshals one Msg payload as a FlagHint.
func DecodeHint(payload []byte) (models.FlagHint, error) {
	var v models.FlagHint
	if err := json.Unmarshal(payload, &v); err != nil {
		return models.FlagHint{}, fmt.Errorf("data: decode hint: %w", err)
	}
	return v, nil
}
