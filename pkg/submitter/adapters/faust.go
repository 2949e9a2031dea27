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

package adapters

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	retry "github.com/avast/retry-go"

	"github.com/kriger-ctf/kriger/pkg/models"
)

// Faust speaks the ctf-gameserver Faust protocol (original_source
// submitter/faust.rs): same welcome-banner handshake as ENOWars, but one
// flag is written and its response read before the next flag is sent,
// and the response carries an optional trailing message field that this
// adapter ignores, per spec §4.5.
type Faust struct {
	host string

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

func NewFaust(host string) *Faust {
	return &Faust{host: host}
}

func (f *Faust) Submit(ctx context.Context, flagTexts []string) (map[string]models.FlagSubmissionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		if err := f.connect(ctx); err != nil {
			return nil, err
		}
	}

	results := make(map[string]models.FlagSubmissionStatus, len(flagTexts))
	for _, flag := range flagTexts {
		status, err := f.submitOne(flag)
		if err != nil {
			f.conn.Close()
			f.conn = nil
			return results, fmt.Errorf("faust: submit %s: %w", flag, err)
		}
		results[flag] = status
	}
	return results, nil
}

func (f *Faust) connect(ctx context.Context) error {
	d := net.Dialer{}
	if deadline, ok := ctx.Deadline(); ok {
		d.Deadline = deadline
	}

	var conn net.Conn
	err := retry.Do(
		func() error {
			c, dialErr := d.DialContext(ctx, "tcp", f.host)
			if dialErr != nil {
				return dialErr
			}
			conn = c
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.Context(ctx),
	)
	if err != nil {
		return fmt.Errorf("faust: connect: %w", err)
	}
	reader := bufio.NewReader(conn)

	var tail string
	for !strings.HasSuffix(tail, "\n\n") {
		line, err := reader.ReadString('\n')
		if err != nil {
			conn.Close()
			return fmt.Errorf("faust: read welcome banner: %w", err)
		}
		if line == "\n" {
			tail += line
		} else {
			tail = line
		}
	}

	f.conn = conn
	f.reader = reader
	return nil
}

func (f *Faust) submitOne(flag string) (models.FlagSubmissionStatus, error) {
	if _, err := fmt.Fprintf(f.conn, "%s\n", flag); err != nil {
		return 0, fmt.Errorf("write flag: %w", err)
	}
	f.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	line, err := f.reader.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	fields := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(fields) < 2 {
		return 0, fmt.Errorf("malformed response %q", line)
	}
	switch fields[1] {
	case "OK":
		return models.StatusOk, nil
	case "DUP":
		return models.StatusDuplicate, nil
	case "OWN":
		return models.StatusOwn, nil
	case "OLD":
		return models.StatusOld, nil
	case "INV":
		return models.StatusInvalid, nil
	case "ERR":
		return models.StatusError, nil
	default:
		return models.StatusUnknown, nil
	}
}
