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

// Package submitter batches pending flag submissions on an interval and
// hands them to a pluggable gameserver adapter (spec §4.5), grounded
// directly on original_source crates/kriger_submitter/src/lib.rs's
// interval-driven poll/progress/submit/ack-or-nak loop, translated from
// tokio::time::interval + futures::join_all into a time.Ticker, with the
// messages of each batch handled one after another.
package submitter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/kriger-ctf/kriger/pkg/messaging"
	"github.com/kriger-ctf/kriger/pkg/messaging/flags"
	"github.com/kriger-ctf/kriger/pkg/metrics"
	"github.com/kriger-ctf/kriger/pkg/models"
)

// Adapter is the low-level, gameserver-specific operation of submitting a
// batch of flags and getting back a status per flag (spec §4.5:
// "adapter.submit(flags) -> [(flag, status)]").
type Adapter interface {
	Submit(ctx context.Context, flagTexts []string) (map[string]models.FlagSubmissionStatus, error)
}

// nakDelay is applied whenever a submission must be retried (spec §4.5:
// "On adapter error: nak every message in the batch with delay=2s").
const nakDelay = 2 * time.Second

// Submitter drains pending flag submissions on a fixed interval and
// forwards them to Adapter.
type Submitter struct {
	log     logr.Logger
	flags   *flags.Service
	adapter Adapter
	metrics *metrics.Registry

	interval  time.Duration
	batchSize int
}

// New constructs a Submitter bound to one adapter.
func New(log logr.Logger, flagSvc *flags.Service, adapter Adapter, reg *metrics.Registry, interval time.Duration, batchSize int) *Submitter {
	return &Submitter{log: log, flags: flagSvc, adapter: adapter, metrics: reg, interval: interval, batchSize: batchSize}
}

// Run ticks every interval, polling whatever submissions are immediately
// ready (spec §4.5's PollPending semantics — never block waiting for more
// than what is already buffered) and submitting them as one batch.
func (s *Submitter) Run(ctx context.Context) error {
	consumer, err := s.flags.SubscribeSubmissions(ctx)
	if err != nil {
		return fmt.Errorf("submitter: subscribe: %w", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		msgs, err := consumer.FetchReady(ctx, s.batchSize)
		if err != nil {
			s.log.Error(err, "fetch pending submissions failed")
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		s.submitBatch(ctx, msgs)
	}
}

func (s *Submitter) submitBatch(ctx context.Context, msgs []messaging.Msg) {
	type pending struct {
		msg messaging.Msg
		sub models.FlagSubmission
	}
	batch := make([]pending, 0, len(msgs))
	for _, msg := range msgs {
		sub, err := flags.DecodeSubmission(msg.Payload())
		if err != nil {
			s.log.Error(err, "malformed flag submission")
			_ = msg.Term(ctx)
			continue
		}
		_ = msg.Progress(ctx)
		batch = append(batch, pending{msg: msg, sub: sub})
	}
	if len(batch) == 0 {
		return
	}

	flagTexts := make([]string, len(batch))
	for i, p := range batch {
		flagTexts[i] = p.sub.Flag
	}

	results, err := s.adapter.Submit(ctx, flagTexts)
	if err != nil {
		s.log.Error(err, "adapter submit failed", "batch_size", len(batch))
		for _, p := range batch {
			_ = p.msg.Nak(ctx, nakDelay)
		}
		return
	}

	for _, p := range batch {
		s.handleResult(ctx, p.msg, p.sub, results)
	}
}

func (s *Submitter) handleResult(ctx context.Context, msg messaging.Msg, sub models.FlagSubmission, results map[string]models.FlagSubmissionStatus) {
	status, ok := results[sub.Flag]
	if !ok {
		s.log.Info("submitted flag received no response", "flag", sub.Flag)
		_ = msg.Nak(ctx, nakDelay)
		return
	}

	result := models.FlagSubmissionResult{
		Flag:    sub.Flag,
		TeamID:  sub.TeamID,
		Service: sub.Service,
		Exploit: sub.Exploit,
		Status:  status,
	}
	if err := s.flags.SubmitResult(ctx, result); err != nil {
		s.log.Error(err, "publish flag submission result failed", "flag", sub.Flag)
		_ = msg.Nak(ctx, nakDelay)
		return
	}

	team := ""
	if sub.TeamID != nil {
		team = *sub.TeamID
	}
	if status.ShouldRetry() {
		s.metrics.Errors.WithLabelValues(sub.Exploit, team, "retry").Inc()
		_ = msg.Nak(ctx, nakDelay)
		return
	}
	s.metrics.Complete.WithLabelValues(sub.Exploit, team).Inc()
	_ = msg.Ack(ctx)
}
