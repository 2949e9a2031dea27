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

package nats

import (
	"context"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/kriger-ctf/kriger/pkg/messaging"
)

type stream struct {
	js   natsgo.JetStreamContext
	name string
}

func deliverPolicyFor(dp messaging.DeliverPolicy, from time.Time) (natsgo.DeliverPolicy, time.Time) {
	switch dp {
	case messaging.DeliverLast:
		return natsgo.DeliverLastPolicy, time.Time{}
	case messaging.DeliverLastPerSubject:
		return natsgo.DeliverLastPerSubjectPolicy, time.Time{}
	case messaging.DeliverNew:
		return natsgo.DeliverNewPolicy, time.Time{}
	case messaging.DeliverFromTime:
		return natsgo.DeliverByStartTimePolicy, from
	default:
		return natsgo.DeliverAllPolicy, time.Time{}
	}
}

func (s *stream) Subscribe(ctx context.Context, cfg messaging.ConsumerConfig) (messaging.Consumer, error) {
	dp, from := deliverPolicyFor(cfg.DeliverPolicy, cfg.DeliverFrom)
	opts := []natsgo.SubOpt{
		natsgo.ManualAck(),
		natsgo.AckExplicit(),
		natsgo.DeliverPolicy(dp),
		natsgo.BindStream(s.name),
	}
	if cfg.AckWait > 0 {
		opts = append(opts, natsgo.AckWait(cfg.AckWait))
	}
	if !from.IsZero() {
		opts = append(opts, natsgo.StartTime(from))
	}
	if cfg.MaxDeliver > 0 {
		opts = append(opts, natsgo.MaxDeliver(cfg.MaxDeliver))
	}
	if len(cfg.BackoffSchedule) > 0 {
		opts = append(opts, natsgo.BackOff(cfg.BackoffSchedule))
	}

	filter := cfg.FilterSubject
	if filter == "" {
		filter = ">"
	}
	sub, err := s.js.PullSubscribe(filter, cfg.Durable, opts...)
	if err != nil {
		return nil, fmt.Errorf("messaging: pull subscribe %s/%s: %w", s.name, cfg.Durable, err)
	}
	return &consumer{sub: sub}, nil
}

// OrderedConsume returns a gap-free replay consumer with no ack (spec §4.1).
func (s *stream) OrderedConsume(ctx context.Context, filterSubject string, deliverPolicy messaging.DeliverPolicy) (messaging.Consumer, error) {
	dp, _ := deliverPolicyFor(deliverPolicy, time.Time{})
	filter := filterSubject
	if filter == "" {
		filter = ">"
	}
	sub, err := s.js.PullSubscribe(filter, "", natsgo.OrderedConsumer(), natsgo.DeliverPolicy(dp), natsgo.BindStream(s.name))
	if err != nil {
		return nil, fmt.Errorf("messaging: ordered consume %s: %w", s.name, err)
	}
	return &consumer{sub: sub, ordered: true}, nil
}

type consumer struct {
	sub     *natsgo.Subscription
	ordered bool
}

func (c *consumer) Fetch(ctx context.Context, batch int, maxWait time.Duration) ([]messaging.Msg, error) {
	msgs, err := c.sub.Fetch(batch, natsgo.MaxWait(maxWait), natsgo.Context(ctx))
	if err != nil {
		if err == natsgo.ErrTimeout {
			return nil, nil
		}
		return nil, fmt.Errorf("messaging: fetch: %w", err)
	}
	out := make([]messaging.Msg, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, &jsMsg{m: m})
	}
	return out, nil
}

// FetchReady drains whatever is immediately buffered without blocking for
// more, the poll-all-ready primitive the Submitter needs (spec §4.5, §5).
func (c *consumer) FetchReady(ctx context.Context, max int) ([]messaging.Msg, error) {
	msgs, err := c.sub.Fetch(max, natsgo.MaxWait(1*time.Millisecond), natsgo.Context(ctx))
	if err != nil {
		if err == natsgo.ErrTimeout {
			return nil, nil
		}
		return nil, fmt.Errorf("messaging: fetch-ready: %w", err)
	}
	out := make([]messaging.Msg, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, &jsMsg{m: m})
	}
	return out, nil
}
