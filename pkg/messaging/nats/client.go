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

// Package nats implements pkg/messaging on top of github.com/nats-io/nats.go's
// JetStream API, the same client used in the retrieval pack's clustered
// EventBus examples (quadgatefoundation-fluxor, PerplexedSphex-binrun).
package nats

import (
	"context"
	"fmt"

	natsgo "github.com/nats-io/nats.go"

	"github.com/kriger-ctf/kriger/pkg/messaging"
)

// Config configures the connection to the NATS server backing the
// messaging substrate.
type Config struct {
	URL  string
	Name string
}

// Client implements messaging.Messaging over one NATS connection and its
// JetStream context.
type Client struct {
	nc *natsgo.Conn
	js natsgo.JetStreamContext
}

// Connect dials the NATS server and opens a JetStream context.
func Connect(cfg Config) (*Client, error) {
	url := cfg.URL
	if url == "" {
		url = natsgo.DefaultURL
	}
	nc, err := natsgo.Connect(url, natsgo.Name(cfg.Name), natsgo.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("messaging: connect to %s: %w", url, err)
	}
	js, err := nc.JetStream(natsgo.PublishAsyncMaxPending(256))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("messaging: open jetstream context: %w", err)
	}
	return &Client{nc: nc, js: js}, nil
}

func (c *Client) Close() error {
	c.nc.Close()
	return nil
}

func (c *Client) Publish(ctx context.Context, subject string, payload []byte) error {
	_, err := c.js.Publish(subject, payload, natsgo.Context(ctx))
	if err != nil {
		return fmt.Errorf("messaging: publish %s: %w", subject, err)
	}
	return nil
}

func (c *Client) PublishWithID(ctx context.Context, subject, id string, payload []byte) error {
	_, err := c.js.Publish(subject, payload, natsgo.MsgId(id), natsgo.Context(ctx))
	if err != nil {
		return fmt.Errorf("messaging: publish %s (id=%s): %w", subject, id, err)
	}
	return nil
}

func retentionPolicy(r messaging.RetentionPolicy) natsgo.RetentionPolicy {
	switch r {
	case messaging.RetentionWorkQueue:
		return natsgo.WorkQueuePolicy
	case messaging.RetentionInterest:
		return natsgo.InterestPolicy
	default:
		return natsgo.LimitsPolicy
	}
}

// Stream declares (or attaches to) a durable stream, idempotently.
func (c *Client) Stream(ctx context.Context, cfg messaging.StreamConfig) (messaging.Stream, error) {
	scfg := &natsgo.StreamConfig{
		Name:       cfg.Name,
		Subjects:   cfg.Subjects,
		Retention:  retentionPolicy(cfg.Retention),
		MaxAge:     cfg.MaxAge,
		Duplicates: cfg.DedupWindow,
	}
	if _, err := c.js.StreamInfo(cfg.Name, natsgo.Context(ctx)); err != nil {
		if _, err := c.js.AddStream(scfg, natsgo.Context(ctx)); err != nil {
			return nil, fmt.Errorf("messaging: declare stream %s: %w", cfg.Name, err)
		}
	} else if _, err := c.js.UpdateStream(scfg, natsgo.Context(ctx)); err != nil {
		return nil, fmt.Errorf("messaging: update stream %s: %w", cfg.Name, err)
	}
	return &stream{js: c.js, name: cfg.Name}, nil
}

// KVBucket declares (or attaches to) a KV bucket.
func (c *Client) KVBucket(ctx context.Context, name string) (messaging.KV, error) {
	kv, err := c.js.KeyValue(name)
	if err != nil {
		kv, err = c.js.CreateKeyValue(&natsgo.KeyValueConfig{Bucket: name})
		if err != nil {
			return nil, fmt.Errorf("messaging: declare kv bucket %s: %w", name, err)
		}
	}
	return &kvBucket{kv: kv}, nil
}
