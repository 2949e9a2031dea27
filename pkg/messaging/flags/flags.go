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

// Package flags is a typed helper over the `flags` stream (spec §4.1
// table): {flag_b64}.submit and {flag_b64}.result subjects, carrying
// FlagSubmission and FlagSubmissionResult respectively.
package flags

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kriger-ctf/kriger/pkg/messaging"
	"github.com/kriger-ctf/kriger/pkg/models"
)

const (
	submitSuffix = "submit"
	resultSuffix = "result"
)

// subjectID returns the base64 form of the flag used as both the subject
// prefix and the dedup id, matching spec §3 ("Dedup key = flag text") and
// the stream's subject shape "{flag_b64}.submit" / "{flag_b64}.result".
func subjectID(flag string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(flag))
}

func submitSubjectFor(flag string) string { return subjectID(flag) + "." + submitSuffix }
func resultSubjectFor(flag string) string { return subjectID(flag) + "." + resultSuffix }

type Service struct {
	m      messaging.Messaging
	stream messaging.Stream
}

// Open declares the `flags` stream with retention bounded to
// flag_validity ticks (spec §4.1: "maxAge ≈ flag_validity·tick").
func Open(ctx context.Context, m messaging.Messaging, maxAge time.Duration) (*Service, error) {
	s, err := m.Stream(ctx, messaging.StreamConfig{
		Name:        "flags",
		Subjects:    []string{"*." + submitSuffix, "*." + resultSuffix},
		Retention:   messaging.RetentionLimits,
		MaxAge:      maxAge,
		DedupWindow: maxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("flags: open stream: %w", err)
	}
	return &Service{m: m, stream: s}, nil
}

// SubmitFlag publishes a FlagSubmission, deduplicated by flag text.
func (s *Service) SubmitFlag(ctx context.Context, sub models.FlagSubmission) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("flags: marshal submission: %w", err)
	}
	return s.m.PublishWithID(ctx, submitSubjectFor(sub.Flag), subjectID(sub.Flag), payload)
}

// SubmitResult publishes the terminal (or retryable) disposition of a flag.
// Its dedup id is distinct from the submission's: the `flags` stream's
// DedupWindow spans the same flag_validity window as MaxAge, and NATS
// JetStream dedups by Nats-Msg-Id stream-wide, across subjects — reusing
// subjectID(flag) here would collide with the earlier SubmitFlag call and
// the result would be silently dropped as a duplicate.
func (s *Service) SubmitResult(ctx context.Context, result models.FlagSubmissionResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("flags: marshal result: %w", err)
	}
	return s.m.PublishWithID(ctx, resultSubjectFor(result.Flag), subjectID(result.Flag)+"."+resultSuffix, payload)
}

// SubscribeSubmissions attaches the Submitter's durable consumer
// (spec §4.5 step 1: ackWait=60s, explicit ack, deliver New, durable
// "submitter", filter *.submit).
func (s *Service) SubscribeSubmissions(ctx context.Context) (messaging.Consumer, error) {
	return s.stream.Subscribe(ctx, messaging.ConsumerConfig{
		Durable:       "submitter",
		FilterSubject: "*.submit",
		AckPolicy:     messaging.AckExplicit,
		AckWait:       60 * time.Second,
		DeliverPolicy: messaging.DeliverNew,
	})
}

// DecodeSubmission unmarshals one Msg payload as a FlagSubmission.
func DecodeSubmission(payload []byte) (models.FlagSubmission, error) {
	var v models.FlagSubmission
	if err := json.Unmarshal(payload, &v); err != nil {
		return models.FlagSubmission{}, fmt.Errorf("flags: decode submission: %w", err)
	}
	return v, nil
}
