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

// Package catalog provides the typed KV access shared by the `exploits`,
// `services`, `teams`, and `config` buckets from spec §4.1 ("one key per
// exploit/service/team", "key competition"): read, write, list, and watch,
// generic over the decoded payload type.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kriger-ctf/kriger/pkg/messaging"
)

const (
	BucketExploits = "exploits"
	BucketServices = "services"
	BucketTeams    = "teams"
	BucketConfig   = "config"

	ConfigKey = "competition"
)

// Bucket wraps one KV bucket with typed get/list/put/watch for payload T.
type Bucket[T any] struct {
	kv messaging.KV
}

// Open attaches to (creating if absent) the named KV bucket.
func Open[T any](ctx context.Context, m messaging.Messaging, name string) (*Bucket[T], error) {
	kv, err := m.KVBucket(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("catalog: open bucket %s: %w", name, err)
	}
	return &Bucket[T]{kv: kv}, nil
}

func (b *Bucket[T]) Put(ctx context.Context, key string, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("catalog: marshal %s: %w", key, err)
	}
	return b.kv.Put(ctx, key, payload)
}

func (b *Bucket[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	payload, ok, err := b.kv.Get(ctx, key)
	if err != nil || !ok {
		return zero, ok, err
	}
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return zero, false, fmt.Errorf("catalog: decode %s: %w", key, err)
	}
	return v, true, nil
}

// List returns every decodable entry in the bucket, keyed by KV key.
// Malformed entries are skipped rather than failing the whole snapshot,
// since a Scheduler tick must still fire for every other exploit/team.
func (b *Bucket[T]) List(ctx context.Context) (map[string]T, error) {
	raw, err := b.kv.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	out := make(map[string]T, len(raw))
	for k, payload := range raw {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// Watch decodes every change event into T. An entry that fails to decode
// is delivered as an Update with Err set, for the caller to log (per
// spec §7).
func (b *Bucket[T]) Watch(ctx context.Context, deliverPolicy messaging.DeliverPolicy) (<-chan Update[T], error) {
	raw, err := b.kv.Watch(ctx, "", deliverPolicy)
	if err != nil {
		return nil, fmt.Errorf("catalog: watch: %w", err)
	}
	out := make(chan Update[T], 16)
	go func() {
		defer close(out)
		for msg := range raw {
			if msg.Deleted() {
				out <- Update[T]{Key: msg.Subject(), Deleted: true, msg: msg}
				continue
			}
			var v T
			if err := json.Unmarshal(msg.Payload(), &v); err != nil {
				out <- Update[T]{Key: msg.Subject(), Err: fmt.Errorf("catalog: decode update: %w", err), msg: msg}
				continue
			}
			out <- Update[T]{Key: msg.Subject(), Value: v, msg: msg}
		}
	}()
	return out, nil
}

// Update is one decoded KV change event, carrying the underlying Msg so
// the Controller can ack/nak it per spec §4.3. A Deleted update carries
// the zero Value; callers that reconcile against the bucket (the
// Controller tearing down a removed exploit's Deployment) branch on
// Deleted rather than trying to interpret the zero value as real state.
type Update[T any] struct {
	Key     string
	Value   T
	Deleted bool
	Err     error
	msg     messaging.Msg
}

func (u Update[T]) Ack(ctx context.Context) error                     { return u.msg.Ack(ctx) }
func (u Update[T]) Nak(ctx context.Context, delay time.Duration) error { return u.msg.Nak(ctx, delay) }
