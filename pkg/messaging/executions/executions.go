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

// Package executions is a typed helper over the `executions` work-queue
// stream (spec §4.1 table), one subject per exploit:
// executions.{exploit}.request.
package executions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kriger-ctf/kriger/pkg/messaging"
	"github.com/kriger-ctf/kriger/pkg/models"
)

const subjectPrefix = "executions."
const requestSuffix = "request"

func RequestSubject(exploitName string) string {
	if exploitName == "" {
		exploitName = "*"
	}
	return fmt.Sprintf("%s%s.%s", subjectPrefix, exploitName, requestSuffix)
}

// Service wraps the executions stream declaration and publish/subscribe
// helpers used by the Scheduler (publisher) and Runner (subscriber).
type Service struct {
	m      messaging.Messaging
	stream messaging.Stream
}

// Open declares the `executions` work-queue stream with retention bounded
// to roughly one tick (spec §4.1: "maxAge ≈ tick").
func Open(ctx context.Context, m messaging.Messaging, tickDuration time.Duration) (*Service, error) {
	s, err := m.Stream(ctx, messaging.StreamConfig{
		Name:        "executions",
		Subjects:    []string{subjectPrefix + ">"},
		Retention:   messaging.RetentionWorkQueue,
		MaxAge:      tickDuration,
		DedupWindow: tickDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("executions: open stream: %w", err)
	}
	return &Service{m: m, stream: s}, nil
}

// PublishRequest publishes one ExecutionRequest with dedup id "tick:team_id"
// (spec §3, §4.2 step 5).
func (s *Service) PublishRequest(ctx context.Context, exploitName string, tick int64, teamID string, req models.ExecutionRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("executions: marshal request: %w", err)
	}
	id := fmt.Sprintf("%d:%s", tick, teamID)
	return s.m.PublishWithID(ctx, RequestSubject(exploitName), id, payload)
}

// Subscribe attaches a durable pull consumer filtered to one exploit's
// requests (spec §4.4: "durable pull consumer for executions.{name}.request").
func (s *Service) Subscribe(ctx context.Context, exploitName string, ackWait time.Duration) (messaging.Consumer, error) {
	return s.stream.Subscribe(ctx, messaging.ConsumerConfig{
		Durable:       "runner-" + exploitName,
		FilterSubject: RequestSubject(exploitName),
		AckPolicy:     messaging.AckExplicit,
		AckWait:       ackWait,
		DeliverPolicy: messaging.DeliverNew,
	})
}

// DecodeRequest unmarshals one Msg payload.
func DecodeRequest(payload []byte) (models.ExecutionRequest, error) {
	var req models.ExecutionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return models.ExecutionRequest{}, fmt.Errorf("executions: decode request: %w", err)
	}
	return req, nil
}
