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
	"time"

	natsgo "github.com/nats-io/nats.go"
)

// jsMsg adapts a *nats.Msg delivered by JetStream to messaging.Msg.
type jsMsg struct {
	m *natsgo.Msg
}

func (w *jsMsg) Subject() string { return w.m.Subject }
func (w *jsMsg) Payload() []byte { return w.m.Data }

func (w *jsMsg) Published() time.Time {
	meta, err := w.m.Metadata()
	if err != nil {
		return time.Time{}
	}
	return meta.Timestamp
}

func (w *jsMsg) Ack(ctx context.Context) error {
	return w.m.Ack(natsgo.Context(ctx))
}

func (w *jsMsg) Nak(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return w.m.Nak(natsgo.Context(ctx))
	}
	return w.m.NakWithDelay(delay, natsgo.Context(ctx))
}

func (w *jsMsg) Progress(ctx context.Context) error {
	return w.m.InProgress(natsgo.Context(ctx))
}

func (w *jsMsg) Term(ctx context.Context) error {
	return w.m.Term(natsgo.Context(ctx))
}

func (w *jsMsg) Deleted() bool { return false }
