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
	"testing"

	"github.com/kriger-ctf/kriger/pkg/models"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name         string
		line         string
		wantFlag     string
		wantFallback string
		wantStatus   models.FlagSubmissionStatus
	}{
		{
			name:       "ok",
			line:       "ENO736a6b6473616a6b647361736a6b64736b646a736b6b6b6b OK\n",
			wantFlag:   "ENO736a6b6473616a6b647361736a6b64736b646a736b6b6b6b",
			wantStatus: models.StatusOk,
		},
		{
			name:       "duplicate",
			line:       "ENO727577716b726a6c776b6a6c6b66736a61666b6c73616b6b DUP\n",
			wantFlag:   "ENO727577716b726a6c776b6a6c6b66736a61666b6c73616b6b",
			wantStatus: models.StatusDuplicate,
		},
		{
			name:       "own",
			line:       "ENO6e6576657220676f6e6e61206769766520796f752075702d OWN\n",
			wantFlag:   "ENO6e6576657220676f6e6e61206769766520796f752075702d",
			wantStatus: models.StatusOwn,
		},
		{
			name:       "invalid",
			line:       "ENO746869736973686578636f64655f666f7274657374696e67 INV\n",
			wantFlag:   "ENO746869736973686578636f64655f666f7274657374696e67",
			wantStatus: models.StatusInvalid,
		},
		{
			// spec §8 scenario 3: an unparseable response is a per-flag
			// Error, not a protocol failure that aborts the batch.
			name:         "no spaces",
			line:         "XYZZY\n",
			wantFallback: "the-flag-this-was-read-for",
			wantStatus:   models.StatusError,
		},
		{
			name:         "only newline",
			line:         "\n",
			wantFallback: "the-flag-this-was-read-for",
			wantStatus:   models.StatusError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag, status := parseResponse(tt.line, "the-flag-this-was-read-for")
			wantFlag := tt.wantFlag
			if wantFlag == "" {
				wantFlag = tt.wantFallback
			}
			if flag != wantFlag {
				t.Errorf("flag = %q, want %q", flag, wantFlag)
			}
			if status != tt.wantStatus {
				t.Errorf("status = %v, want %v", status, tt.wantStatus)
			}
		})
	}
}

func TestMapStatusCodeUnrecognizedMapsToError(t *testing.T) {
	if got := mapStatusCode("WAT"); got != models.StatusError {
		t.Errorf("mapStatusCode(WAT) = %v, want StatusError", got)
	}
	if got := mapStatusCode("ERR"); got != models.StatusError {
		t.Errorf("mapStatusCode(ERR) = %v, want StatusError", got)
	}
}
