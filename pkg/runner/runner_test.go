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

package runner

import (
	"context"
	"errors"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kriger-ctf/kriger/pkg/models"
)

// fakeMsg is a no-op messaging.Msg, just enough to satisfy runExploit's
// Progress calls during a real subprocess run; grounded on the teacher's
// fake.EC2API "record the call" style, simplified since runExploit only
// ever calls Progress on this type.
type fakeMsg struct {
	progressCalls atomic.Int64
}

func (m *fakeMsg) Subject() string             { return "test" }
func (m *fakeMsg) Payload() []byte             { return nil }
func (m *fakeMsg) Published() time.Time        { return time.Time{} }
func (m *fakeMsg) Deleted() bool                { return false }
func (m *fakeMsg) Ack(context.Context) error    { return nil }
func (m *fakeMsg) Nak(context.Context, time.Duration) error { return nil }
func (m *fakeMsg) Progress(context.Context) error {
	m.progressCalls.Add(1)
	return nil
}
func (m *fakeMsg) Term(context.Context) error { return nil }

func TestRunExploitCollectsFlagsFromStdout(t *testing.T) {
	r := &Runner{cfg: Config{
		ExploitName: "recon",
		Command:     "sh",
		Args:        []string{"-c", "echo FLAG{abc123}; echo not-a-flag; echo FLAG{def456}"},
		Timeout:     5 * time.Second,
		FlagPattern: regexp.MustCompile(`FLAG\{[A-Za-z0-9_-]+\}`),
	}}

	found, err := r.runExploit(context.Background(), &fakeMsg{}, models.ExecutionRequest{IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("runExploit: %v", err)
	}
	if len(found) != 2 || found[0] != "FLAG{abc123}" || found[1] != "FLAG{def456}" {
		t.Errorf("found = %v, want [FLAG{abc123} FLAG{def456}]", found)
	}
}

func TestRunExploitReturnsErrorOnNonZeroExit(t *testing.T) {
	r := &Runner{cfg: Config{
		ExploitName: "recon",
		Command:     "sh",
		Args:        []string{"-c", "exit 3"},
		Timeout:     5 * time.Second,
	}}

	_, err := r.runExploit(context.Background(), &fakeMsg{}, models.ExecutionRequest{IP: "10.0.0.1"})
	if err == nil {
		t.Fatal("expected error on nonzero exit, got nil")
	}
}

func TestRunExploitTimesOut(t *testing.T) {
	r := &Runner{cfg: Config{
		ExploitName: "recon",
		Command:     "sh",
		Args:        []string{"-c", "sleep 5"},
		Timeout:     50 * time.Millisecond,
	}}

	start := time.Now()
	_, err := r.runExploit(context.Background(), &fakeMsg{}, models.ExecutionRequest{IP: "10.0.0.1"})
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !errors.Is(err, errExecutionTimeout) {
		t.Errorf("error = %v, want one wrapping errExecutionTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("runExploit took %v, expected to be cut short by the timeout", elapsed)
	}
}

func TestRunExploitPassesRequestParamsAsEnv(t *testing.T) {
	// The guard clause fails (no output, nonzero exit) unless every
	// spec-required env var reached the process under its spec'd name;
	// the flag itself only carries IP/HINT so FLAG_FORMAT's own braces
	// can't corrupt the match.
	script := `test -n "$EXPLOIT" && test -n "$FLAG_FORMAT" && test -n "$NATS_URL" && ` +
		`test -n "$OTEL_EXPORTER_OTLP_ENDPOINT" && test -n "$OTEL_SERVICE_NAME" && ` +
		`test "$TIMEOUT" = "5" && test "$WORKERS" = "3" && echo "FLAG{$IP-$HINT}"`
	r := &Runner{cfg: Config{
		ExploitName:     "recon",
		Service:         "vault",
		Command:         "sh",
		Args:            []string{"-c", script},
		Timeout:         5 * time.Second,
		FlagPattern:     regexp.MustCompile(`FLAG\{[^}]+\}`),
		FlagFormat:      `FLAG\{[^}]+\}`,
		NatsURL:         "nats://127.0.0.1:4222",
		Workers:         3,
		OtelEndpoint:    "http://otel:4318",
		OtelServiceName: "kriger-runner",
	}}

	found, err := r.runExploit(context.Background(), &fakeMsg{}, models.ExecutionRequest{IP: "10.1.2.3", Hint: []byte(`"abc"`)})
	if err != nil {
		t.Fatalf("runExploit: %v", err)
	}
	want := `FLAG{10.1.2.3-"abc"}`
	if len(found) != 1 || found[0] != want {
		t.Errorf("found = %v, want [%s]", found, want)
	}
}
