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

package submitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kriger-ctf/kriger/pkg/messaging"
	"github.com/kriger-ctf/kriger/pkg/messaging/flags"
	"github.com/kriger-ctf/kriger/pkg/metrics"
	"github.com/kriger-ctf/kriger/pkg/models"
)

// registryCounter keeps every test-local metrics.Registry subsystem name
// unique, since NewRegistry registers against the default (global)
// Prometheus registerer and a repeat name would panic on MustRegister.
var registryCounter atomic.Int64

func TestSubmitter(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Submitter")
}

// fakeMsg is a minimal in-memory messaging.Msg recording which of its
// terminal methods was last called, grounded on the teacher's
// fake.EC2API "record the call, let the test assert on it" style.
type fakeMsg struct {
	mu       sync.Mutex
	subject  string
	payload  []byte
	acked    bool
	nakked   bool
	termed   bool
	progress int
}

func (m *fakeMsg) Subject() string         { return m.subject }
func (m *fakeMsg) Payload() []byte         { return m.payload }
func (m *fakeMsg) Published() time.Time    { return time.Time{} }
func (m *fakeMsg) Deleted() bool           { return false }
func (m *fakeMsg) Ack(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = true
	return nil
}
func (m *fakeMsg) Nak(context.Context, time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nakked = true
	return nil
}
func (m *fakeMsg) Progress(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress++
	return nil
}
func (m *fakeMsg) Term(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.termed = true
	return nil
}

func newFakeMsg(sub models.FlagSubmission) *fakeMsg {
	payload, err := json.Marshal(sub)
	if err != nil {
		panic(err)
	}
	return &fakeMsg{subject: sub.Flag + ".submit", payload: payload}
}

// fakeMessaging is a bare-bones messaging.Messaging that only supports
// publishing (what flags.Service.SubmitResult needs); Stream/KVBucket are
// never exercised by this suite.
type fakeMessaging struct {
	mu        sync.Mutex
	published []struct {
		subject string
		payload []byte
	}
}

func (f *fakeMessaging) Stream(context.Context, messaging.StreamConfig) (messaging.Stream, error) {
	return fakeFlagsStream{}, nil
}
func (f *fakeMessaging) KVBucket(context.Context, string) (messaging.KV, error) {
	return nil, errors.New("fakeMessaging: KVBucket not supported")
}
func (f *fakeMessaging) Publish(ctx context.Context, subject string, payload []byte) error {
	return f.PublishWithID(ctx, subject, "", payload)
}
func (f *fakeMessaging) PublishWithID(_ context.Context, subject, _ string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, struct {
		subject string
		payload []byte
	}{subject, payload})
	return nil
}
func (f *fakeMessaging) Close() error { return nil }

// fakeFlagsStream is a no-op messaging.Stream; flags.Open only needs one
// to exist, it is never subscribed to in this suite (submitBatch is
// called directly rather than through Run's consumer loop).
type fakeFlagsStream struct{}

func (fakeFlagsStream) Subscribe(context.Context, messaging.ConsumerConfig) (messaging.Consumer, error) {
	return nil, errors.New("fakeFlagsStream: Subscribe not supported")
}
func (fakeFlagsStream) OrderedConsume(context.Context, string, messaging.DeliverPolicy) (messaging.Consumer, error) {
	return nil, errors.New("fakeFlagsStream: OrderedConsume not supported")
}

type fakeAdapter struct {
	mu        sync.Mutex
	calls     [][]string
	results   map[string]models.FlagSubmissionStatus
	returnErr error
}

func (a *fakeAdapter) Submit(_ context.Context, flagTexts []string) (map[string]models.FlagSubmissionStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, append([]string{}, flagTexts...))
	if a.returnErr != nil {
		return nil, a.returnErr
	}
	return a.results, nil
}

var _ = Describe("Submitter batching", func() {
	var adapter *fakeAdapter
	var flagSvc *flags.Service
	var fm *fakeMessaging
	var sub *Submitter

	BeforeEach(func() {
		adapter = &fakeAdapter{}
		fm = &fakeMessaging{}
		var err error
		flagSvc, err = flags.Open(context.Background(), fm, time.Minute)
		Expect(err).NotTo(HaveOccurred())
		sub = New(logr.Discard(), flagSvc, adapter, metrics.NewRegistry(fmt.Sprintf("submitter_test_%d", registryCounter.Add(1))), time.Second, 10)
	})

	It("acks every message on a terminal status and publishes its result", func() {
		msg := newFakeMsg(models.FlagSubmission{Flag: "FLAG{one}", Service: "vault", Exploit: "recon"})
		adapter.results = map[string]models.FlagSubmissionStatus{"FLAG{one}": models.StatusOk}

		sub.submitBatch(context.Background(), []messaging.Msg{msg})

		Expect(msg.acked).To(BeTrue())
		Expect(msg.nakked).To(BeFalse())
		Expect(fm.published).To(HaveLen(1))
	})

	It("naks every message in the batch when the adapter errors", func() {
		msgA := newFakeMsg(models.FlagSubmission{Flag: "FLAG{a}", Service: "vault", Exploit: "recon"})
		msgB := newFakeMsg(models.FlagSubmission{Flag: "FLAG{b}", Service: "vault", Exploit: "recon"})
		adapter.returnErr = errors.New("connection reset")

		sub.submitBatch(context.Background(), []messaging.Msg{msgA, msgB})

		Expect(msgA.nakked).To(BeTrue())
		Expect(msgB.nakked).To(BeTrue())
		Expect(fm.published).To(BeEmpty())
	})

	It("naks a retryable status instead of treating it as terminal", func() {
		msg := newFakeMsg(models.FlagSubmission{Flag: "FLAG{retry}", Service: "vault", Exploit: "recon"})
		adapter.results = map[string]models.FlagSubmissionStatus{"FLAG{retry}": models.StatusError}

		sub.submitBatch(context.Background(), []messaging.Msg{msg})

		Expect(msg.nakked).To(BeTrue())
		Expect(msg.acked).To(BeFalse())
	})

	It("terms malformed submissions without calling the adapter", func() {
		bad := &fakeMsg{subject: "bad.submit", payload: []byte("not json")}

		sub.submitBatch(context.Background(), []messaging.Msg{bad})

		Expect(bad.termed).To(BeTrue())
		Expect(adapter.calls).To(BeEmpty())
	})
})
