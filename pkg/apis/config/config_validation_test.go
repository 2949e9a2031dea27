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

package config

import (
	"errors"
	"testing"
	"time"

	"github.com/kriger-ctf/kriger/pkg/models"
)

func validCompetition() Competition {
	return Competition{
		Start:        time.Now(),
		TickDuration: 120,
		FlagValidity: 5,
		FlagFormat:   `FLAG\{[A-Za-z0-9_-]+\}`,
	}
}

func TestCompetitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c Competition) Competition
		wantErr bool
	}{
		{"valid", func(c Competition) Competition { return c }, false},
		{"zero tick duration", func(c Competition) Competition { c.TickDuration = 0; return c }, true},
		{"negative tick duration", func(c Competition) Competition { c.TickDuration = -1; return c }, true},
		{"zero flag validity", func(c Competition) Competition { c.FlagValidity = 0; return c }, true},
		{"empty flag format", func(c Competition) Competition { c.FlagFormat = ""; return c }, true},
		{"invalid flag format regex", func(c Competition) Competition { c.FlagFormat = "("; return c }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mutate(validCompetition()).Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, models.ErrConfiguration) {
				t.Errorf("Validate() error does not wrap ErrConfiguration: %v", err)
			}
		})
	}
}
