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

// Package adapters holds the gameserver-protocol implementations of
// submitter.Adapter, each grounded on the matching protocol crate in
// original_source/crates/kriger_submitter/src/submitter/.
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

// ENOWars speaks the ctf-gameserver line protocol: connect, read lines
// until a blank line ends the welcome banner, then write one flag per
// line and read one status line back per flag, in submission order
// (original_source submitter/enowars.rs). The connection is kept open
// across calls and lazily recreated after an error.
type ENOWars struct {
	host string
	dial func(network, address string) (net.Conn, error)

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewENOWars constructs an adapter dialing host ("ip:port") on demand.
func NewENOWars(host string) *ENOWars {
	return &ENOWars{host: host, dial: net.Dial}
}

func (e *ENOWars) Submit(ctx context.Context, flagTexts []string) (map[string]models.FlagSubmissionStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn == nil {
		if err := e.connect(ctx); err != nil {
			return nil, err
		}
	}

	results, err := e.submitLocked(flagTexts)
	if err != nil {
		e.conn.Close()
		e.conn = nil
		return nil, err
	}
	return results, nil
}

// connect dials the gameserver, retrying transient connection failures a
// few times with backoff (spec §4.5: submission errors are transient and
// retried) rather than failing the whole batch on one dropped connection.
func (e *ENOWars) connect(ctx context.Context) error {
	var conn net.Conn
	err := retry.Do(
		func() error {
			c, dialErr := e.dialWithDeadline(ctx)
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
		return fmt.Errorf("enowars: connect: %w", err)
	}
	reader := bufio.NewReader(conn)

	// The server indicates the welcome sequence has finished by sending
	// two subsequent newlines.
	var tail string
	for !strings.HasSuffix(tail, "\n\n") {
		line, err := reader.ReadString('\n')
		if err != nil {
			conn.Close()
			return fmt.Errorf("enowars: read welcome banner: %w", err)
		}
		if line == "\n" {
			tail += line
		} else {
			tail = line
		}
	}

	e.conn = conn
	e.reader = reader
	return nil
}

func (e *ENOWars) dialWithDeadline(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{}
	if deadline, ok := ctx.Deadline(); ok {
		d.Deadline = deadline
	}
	return d.DialContext(ctx, "tcp", e.host)
}

func (e *ENOWars) submitLocked(flagTexts []string) (map[string]models.FlagSubmissionStatus, error) {
	for _, flag := range flagTexts {
		if _, err := fmt.Fprintf(e.conn, "%s\n", flag); err != nil {
			return nil, fmt.Errorf("enowars: write flag: %w", err)
		}
	}

	results := make(map[string]models.FlagSubmissionStatus, len(flagTexts))
	for range flagTexts {
		e.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		line, err := e.reader.ReadString('\n')
		if err != nil {
			return results, fmt.Errorf("enowars: read response: %w", err)
		}
		flag, status := parseResponse(line, flagTexts[len(results)])
		results[flag] = status
	}
	return results, nil
}

// parseResponse parses one "{flag} {CODE}" response line (spec §4.5:
// "server response = flag + whitespace + code"). A line the server sends
// that doesn't fit that shape (empty line, garbage, no code) is itself a
// per-flag failure, not a protocol error that should abort the batch
// (spec §8 scenario 3: an empty line maps to Error) — fall back to the
// flag this response was read for so the caller still gets one result per
// flag sent.
func parseResponse(line string, wantFlag string) (string, models.FlagSubmissionStatus) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return wantFlag, models.StatusError
	}
	return fields[0], mapStatusCode(fields[1])
}

func mapStatusCode(code string) models.FlagSubmissionStatus {
	switch code {
	case "OK":
		return models.StatusOk
	case "DUP":
		return models.StatusDuplicate
	case "OWN":
		return models.StatusOwn
	case "OLD":
		return models.StatusOld
	case "INV":
		return models.StatusInvalid
	case "ERR":
		return models.StatusError
	default:
		// Any other code the gameserver might send ("XYZZY" in spec §8
		// scenario 3) is an error for that flag, not a protocol-level
		// unknown: the batch keeps going, only this flag is marked failed.
		return models.StatusError
	}
}
