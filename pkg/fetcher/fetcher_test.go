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

package fetcher

import (
	"context"
	"sync"
	"testing"

	"github.com/kriger-ctf/kriger/pkg/apis/team"
	"github.com/kriger-ctf/kriger/pkg/messaging"
	"github.com/kriger-ctf/kriger/pkg/messaging/catalog"
)

// memKV is a minimal in-process messaging.KV backing a catalog.Bucket in
// tests, grounded on the teacher's fake.EC2API "record state in a map"
// style rather than standing up a real NATS server.
type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
	puts int
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.data[key] = append([]byte{}, value...)
	return nil
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) List(_ context.Context, _ string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

func (m *memKV) Watch(context.Context, string, messaging.DeliverPolicy) (<-chan messaging.Msg, error) {
	ch := make(chan messaging.Msg)
	close(ch)
	return ch, nil
}

func newTeamsBucket(t *testing.T) (*catalog.Bucket[team.Team], *memKV) {
	t.Helper()
	kv := newMemKV()
	b, err := catalog.Open[team.Team](context.Background(), kvOnlyMessaging{kv}, catalog.BucketTeams)
	if err != nil {
		t.Fatalf("open teams bucket: %v", err)
	}
	return b, kv
}

// kvOnlyMessaging satisfies messaging.Messaging for catalog.Open, which
// only ever calls KVBucket; the other methods are never reached by this
// test since upsertTeamIP only touches the teams bucket.
type kvOnlyMessaging struct {
	kv messaging.KV
}

func (k kvOnlyMessaging) Stream(context.Context, messaging.StreamConfig) (messaging.Stream, error) {
	return nil, nil
}
func (k kvOnlyMessaging) KVBucket(context.Context, string) (messaging.KV, error) { return k.kv, nil }
func (k kvOnlyMessaging) Publish(context.Context, string, []byte) error          { return nil }
func (k kvOnlyMessaging) PublishWithID(context.Context, string, string, []byte) error {
	return nil
}
func (k kvOnlyMessaging) Close() error { return nil }

func TestUpsertTeamIPSetsDefaultIP(t *testing.T) {
	teams, _ := newTeamsBucket(t)
	f := &Fetcher{teams: teams}

	if err := f.upsertTeamIP(context.Background(), "team1", "10.0.1.1"); err != nil {
		t.Fatalf("upsertTeamIP: %v", err)
	}

	got, ok, err := teams.Get(context.Background(), "team1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.IP != "10.0.1.1" {
		t.Errorf("IP = %q, want 10.0.1.1", got.IP)
	}
}

func TestUpsertTeamIPPreservesServiceOverrides(t *testing.T) {
	teams, _ := newTeamsBucket(t)
	ctx := context.Background()
	if err := teams.Put(ctx, "team1", team.Team{
		ID:         "team1",
		IP:         "10.0.1.1",
		ServiceIPs: map[string]string{"vault": "10.0.1.2"},
	}); err != nil {
		t.Fatalf("seed Put: %v", err)
	}

	f := &Fetcher{teams: teams}
	if err := f.upsertTeamIP(ctx, "team1", "10.0.1.99"); err != nil {
		t.Fatalf("upsertTeamIP: %v", err)
	}

	got, ok, err := teams.Get(ctx, "team1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.IP != "10.0.1.99" {
		t.Errorf("default IP = %q, want 10.0.1.99 (refreshed)", got.IP)
	}
	if got.ResolveIP("vault") != "10.0.1.2" {
		t.Errorf("ResolveIP(vault) = %q, want preserved override 10.0.1.2", got.ResolveIP("vault"))
	}
}

func TestUpsertTeamIPSkipsWriteWhenUnchanged(t *testing.T) {
	teams, kv := newTeamsBucket(t)
	ctx := context.Background()
	if err := teams.Put(ctx, "team1", team.Team{ID: "team1", IP: "10.0.1.1"}); err != nil {
		t.Fatalf("seed Put: %v", err)
	}

	kv.mu.Lock()
	before := kv.puts
	kv.mu.Unlock()

	f := &Fetcher{teams: teams}
	if err := f.upsertTeamIP(ctx, "team1", "10.0.1.1"); err != nil {
		t.Fatalf("upsertTeamIP: %v", err)
	}

	kv.mu.Lock()
	after := kv.puts
	kv.mu.Unlock()
	if before != after {
		t.Errorf("expected no Put for an unchanged IP, puts before=%d after=%d", before, after)
	}
}
