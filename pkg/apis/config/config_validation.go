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
	"fmt"
	"regexp"

	"github.com/kriger-ctf/kriger/pkg/models"
)

// Validate enforces the invariants from spec §3: tick > 0, flag_validity >= 1,
// and a compilable flag_format regex.
func (c Competition) Validate() error {
	if c.TickDuration <= 0 {
		return fmt.Errorf("%w: tick_duration must be > 0, got %d", models.ErrConfiguration, c.TickDuration)
	}
	if c.FlagValidity < 1 {
		return fmt.Errorf("%w: flag_validity must be >= 1, got %d", models.ErrConfiguration, c.FlagValidity)
	}
	if c.FlagFormat == "" {
		return fmt.Errorf("%w: flag_format must not be empty", models.ErrConfiguration)
	}
	if _, err := regexp.Compile(c.FlagFormat); err != nil {
		return fmt.Errorf("%w: flag_format is not a valid regex: %w", models.ErrConfiguration, err)
	}
	return nil
}
