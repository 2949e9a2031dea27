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

// Package messaging defines the narrow substrate contract from spec §4.1:
// streams, KV buckets, and consumers with explicit ack/nak/progress/term
// semantics. pkg/messaging/nats is the one production implementation,
// backed by github.com/nats-io/nats.go's JetStream API; every other kriger
// package depends only on the interfaces declared here so it can be tested
// against an in-memory fake without a running NATS server.
package messaging

import (
	"context"
	"time"
)

// DeliverPolicy selects where a Consumer resumes from (spec §4.1).
type DeliverPolicy int

const (
	DeliverAll DeliverPolicy = iota
	DeliverLast
	DeliverLastPerSubject
	DeliverNew
	DeliverFromTime
)

// AckPolicy selects whether consumed messages require an explicit ack.
type AckPolicy int

const (
	AckExplicit AckPolicy = iota
	AckNone
)

// ConsumerConfig configures a durable pull consumer.
type ConsumerConfig struct {
	Durable        string
	FilterSubject  string
	AckPolicy      AckPolicy
	AckWait        time.Duration
	DeliverPolicy  DeliverPolicy
	DeliverFrom    time.Time
	BackoffSchedule []time.Duration
	MaxDeliver     int
}

// Msg wraps one delivered message with its ack/nak/progress/term controls,
// mirroring kriger_common::messaging::Message from original_source.
type Msg interface {
	// Subject the message was published to.
	Subject() string
	// Payload is the raw message body.
	Payload() []byte
	// Published is the server-assigned publish timestamp.
	Published() time.Time
	// Ack acknowledges successful processing.
	Ack(ctx context.Context) error
	// Nak requests redelivery, optionally after delay (0 = immediate,
	// subject to the consumer's backoff schedule).
	Nak(ctx context.Context, delay time.Duration) error
	// Progress resets the ack-wait deadline for a message still being
	// processed.
	Progress(ctx context.Context) error
	// Term discards the message permanently, no further redelivery.
	Term(ctx context.Context) error
	// Deleted reports whether this event is a KV deletion/purge rather
	// than a value write. Always false for stream messages; only a KV
	// Watch can produce a deletion event.
	Deleted() bool
}

// Consumer pulls batches of messages from a stream. Either method may
// return an empty batch with a nil error when nothing arrived in time.
type Consumer interface {
	// Fetch blocks for up to maxWait for up to batch messages.
	Fetch(ctx context.Context, batch int, maxWait time.Duration) ([]Msg, error)
	// FetchReady returns whatever is immediately buffered, zero or more,
	// without blocking for more — the Submitter's poll-all-ready
	// primitive from spec §4.5.
	FetchReady(ctx context.Context, max int) ([]Msg, error)
}

// RetentionPolicy selects a stream's retention semantics.
type RetentionPolicy int

const (
	RetentionLimits RetentionPolicy = iota
	RetentionWorkQueue
	RetentionInterest
)

// StreamConfig declares a durable stream (spec §4.1 stream()).
type StreamConfig struct {
	Name         string
	Subjects     []string
	Retention    RetentionPolicy
	MaxAge       time.Duration
	DedupWindow  time.Duration
}

// Stream is a declared, named durable stream that consumers can be
// attached to and that publishers can target.
type Stream interface {
	// Subscribe creates (or attaches to) a durable pull consumer.
	Subscribe(ctx context.Context, cfg ConsumerConfig) (Consumer, error)
	// OrderedConsume returns a gap-free replay consumer with no ack
	// (spec §4.1: "ordered consumers provide gap-free replay with no ack").
	OrderedConsume(ctx context.Context, filterSubject string, deliverPolicy DeliverPolicy) (Consumer, error)
}

// KV is a typed key/value bucket whose history is itself watchable.
type KV interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	// Watch returns a channel of change events; deliverPolicy controls
	// replay of existing keys before live updates (spec §4.1).
	Watch(ctx context.Context, pattern string, deliverPolicy DeliverPolicy) (<-chan Msg, error)
}

// Messaging is the root handle each service is constructed with: it opens
// streams and buckets and publishes messages, with per-message-id dedup
// participating in the stream's configured DedupWindow.
type Messaging interface {
	Stream(ctx context.Context, cfg StreamConfig) (Stream, error)
	KVBucket(ctx context.Context, name string) (KV, error)

	Publish(ctx context.Context, subject string, payload []byte) error
	PublishWithID(ctx context.Context, subject, id string, payload []byte) error

	Close() error
}
