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

package exploit

import (
	"errors"
	"testing"

	"github.com/kriger-ctf/kriger/pkg/models"
)

func validExploit() Exploit {
	return Exploit{
		Name:     "recon-leak",
		Service:  "vault",
		Image:    "registry.local/recon-leak:latest",
		Replicas: 1,
		Enabled:  true,
		Timeout:  30,
	}
}

func TestExploitValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(e Exploit) Exploit
		wantErr bool
	}{
		{"valid", func(e Exploit) Exploit { return e }, false},
		{"empty name", func(e Exploit) Exploit { e.Name = ""; return e }, true},
		{"empty service", func(e Exploit) Exploit { e.Service = ""; return e }, true},
		{"negative replicas", func(e Exploit) Exploit { e.Replicas = -1; return e }, true},
		{"negative workers", func(e Exploit) Exploit { e.Workers = -1; return e }, true},
		{"zero timeout", func(e Exploit) Exploit { e.Timeout = 0; return e }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mutate(validExploit()).Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, models.ErrConfiguration) {
				t.Errorf("Validate() error does not wrap ErrConfiguration: %v", err)
			}
		})
	}
}

func TestExploitEffectiveWorkers(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		cpus    int
		want    int
	}{
		{"explicit workers wins", 4, 8, 4},
		{"default is 2x cpus", 0, 4, 8},
		{"zero cpus floors to 1", 0, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validExploit()
			e.Workers = tt.workers
			if got := e.EffectiveWorkers(tt.cpus); got != tt.want {
				t.Errorf("EffectiveWorkers(%d) = %d, want %d", tt.cpus, got, tt.want)
			}
		})
	}
}
