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

type kvBucket struct {
	kv natsgo.KeyValue
}

func (b *kvBucket) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.kv.Put(key, value)
	if err != nil {
		return fmt.Errorf("messaging: kv put %s: %w", key, err)
	}
	return nil
}

func (b *kvBucket) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := b.kv.Get(key)
	if err != nil {
		if err == natsgo.ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("messaging: kv get %s: %w", key, err)
	}
	return entry.Value(), true, nil
}

func (b *kvBucket) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	keys, err := b.kv.Keys()
	if err != nil {
		if err == natsgo.ErrNoKeysFound {
			return map[string][]byte{}, nil
		}
		return nil, fmt.Errorf("messaging: kv keys: %w", err)
	}
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if prefix != "" && !hasPrefix(k, prefix) {
			continue
		}
		entry, err := b.kv.Get(k)
		if err != nil {
			continue
		}
		out[k] = entry.Value()
	}
	return out, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Watch wraps the friendly KeyValue.WatchAll API, which has no ack
// semantics of its own (KV reads aren't a JetStream consumer). Its
// ack/nak/progress/term methods are no-ops — see kvMsg below — so a
// caller that needs a failed reconcile retried (the Controller, per
// spec §4.3's "On failure: nak(2s) ... will be re-delivered") must
// re-drive it itself rather than rely on redelivery from this layer.
func (b *kvBucket) Watch(ctx context.Context, pattern string, deliverPolicy messaging.DeliverPolicy) (<-chan messaging.Msg, error) {
	out := make(chan messaging.Msg, 64)
	sub, err := b.kv.WatchAll(watchOptsFor(deliverPolicy)...)
	if err != nil {
		close(out)
		return nil, fmt.Errorf("messaging: kv watch: %w", err)
	}
	go func() {
		defer close(out)
		defer sub.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-sub.Updates():
				if !ok {
					return
				}
				if entry == nil {
					// nil marks "caught up on initial values" in nats.go's
					// Watch API; not a real update, skip it.
					continue
				}
				if pattern != "" && !hasPrefix(entry.Key(), pattern) {
					continue
				}
				out <- &kvMsg{entry: entry}
			}
		}
	}()
	return out, nil
}

func watchOptsFor(dp messaging.DeliverPolicy) []natsgo.WatchOpt {
	switch dp {
	case messaging.DeliverNew:
		return []natsgo.WatchOpt{natsgo.UpdatesOnly()}
	default:
		// DeliverLastPerSubject / DeliverAll / DeliverLast all replay the
		// current value of every key first, which is what the bare
		// WatchAll default does.
		return nil
	}
}

// kvMsg adapts a nats.KeyValueEntry change to messaging.Msg. KV watches
// have no redelivery concept, so ack/nak/progress/term are no-ops: the
// Controller still calls them uniformly (spec §4.3 "On success: ack()...
// On failure: nak(2s)"), but failure recovery for a KV watch is up to the
// caller (the Controller re-fetches and reconciles the key itself via
// scheduleRetry), not NATS redelivery.
type kvMsg struct {
	entry natsgo.KeyValueEntry
}

func (w *kvMsg) Subject() string      { return w.entry.Key() }
func (w *kvMsg) Payload() []byte      { return w.entry.Value() }
func (w *kvMsg) Published() time.Time { return w.entry.Created() }
func (w *kvMsg) Ack(ctx context.Context) error                     { return nil }
func (w *kvMsg) Nak(ctx context.Context, delay time.Duration) error { return nil }
func (w *kvMsg) Progress(ctx context.Context) error                 { return nil }
func (w *kvMsg) Term(ctx context.Context) error                     { return nil }

func (w *kvMsg) Deleted() bool {
	op := w.entry.Operation()
	return op == natsgo.KeyValueDelete || op == natsgo.KeyValuePurge
}
