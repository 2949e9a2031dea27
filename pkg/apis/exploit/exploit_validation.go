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
	"fmt"

	"github.com/kriger-ctf/kriger/pkg/models"
)

// Validate enforces spec §3: name is the unique key, replicas >= 0,
// workers >= 1 when set.
func (e Exploit) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("%w: exploit name must not be empty", models.ErrConfiguration)
	}
	if e.Service == "" {
		return fmt.Errorf("%w: exploit %q: service must not be empty", models.ErrConfiguration, e.Name)
	}
	if e.Replicas < 0 {
		return fmt.Errorf("%w: exploit %q: replicas must be >= 0, got %d", models.ErrConfiguration, e.Name, e.Replicas)
	}
	if e.Workers < 0 {
		return fmt.Errorf("%w: exploit %q: workers must be >= 1 when set, got %d", models.ErrConfiguration, e.Name, e.Workers)
	}
	if e.Timeout <= 0 {
		return fmt.Errorf("%w: exploit %q: timeout must be > 0", models.ErrConfiguration, e.Name)
	}
	return nil
}
