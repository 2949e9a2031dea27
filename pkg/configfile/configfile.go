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

// Package configfile loads the one TOML file every kriger binary is
// pointed at via -config (spec §6: "Configuration file (server): TOML"),
// decoded with github.com/pelletier/go-toml/v2 per the teacher's go.mod.
// Each binary only reads the table it needs; the competition table is
// shared by all of them.
package configfile

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/kriger-ctf/kriger/pkg/apis/config"
)

// root mirrors the full on-disk shape; every cmd/* binary decodes into
// it and picks out the table(s) it cares about.
type root struct {
	Competition config.Competition `toml:"competition"`
	Submitter   SubmitterConfig    `toml:"submitter"`
	Fetcher     FetcherConfig      `toml:"fetcher"`
	Runner      RunnerConfig       `toml:"runner"`
}

// SubmitterConfig selects and configures one submitter adapter; the
// implementation is selected by the `adapter` key.
type SubmitterConfig struct {
	Adapter  string `toml:"adapter"`
	Host     string `toml:"host"`
	Interval string `toml:"interval"`
	Batch    int    `toml:"batch_size"`
}

// FetcherConfig selects and configures one fetcher adapter.
type FetcherConfig struct {
	Adapter     string `toml:"adapter"`
	Endpoint    string `toml:"endpoint"`
	IPsEndpoint string `toml:"ips_endpoint"`
	Scoreboard  string `toml:"scoreboard_endpoint"`
	IPFormat    string `toml:"ip_format"`
	Interval    string `toml:"interval"`
}

// RunnerConfig supplies the process-invocation details the Runner needs
// beyond what the controller already passes through env (exploit name,
// service, worker count): these are baked into the exploit's image at
// build time, since they describe how to invoke that specific exploit.
type RunnerConfig struct {
	Command     string   `toml:"command"`
	Args        []string `toml:"args"`
	Timeout     string   `toml:"timeout"`
	FlagPattern string   `toml:"flag_pattern"`
}

func load(path string) (root, error) {
	var r root
	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("configfile: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("configfile: parse %s: %w", path, err)
	}
	return r, nil
}

// LoadCompetition reads and validates the [competition] table.
func LoadCompetition(path string) (config.Competition, error) {
	r, err := load(path)
	if err != nil {
		return config.Competition{}, err
	}
	if err := r.Competition.Validate(); err != nil {
		return config.Competition{}, fmt.Errorf("configfile: %s: %w", path, err)
	}
	return r.Competition, nil
}

// LoadSubmitter reads the [submitter] table.
func LoadSubmitter(path string) (SubmitterConfig, error) {
	r, err := load(path)
	if err != nil {
		return SubmitterConfig{}, err
	}
	return r.Submitter, nil
}

// LoadFetcher reads the [fetcher] table.
func LoadFetcher(path string) (FetcherConfig, error) {
	r, err := load(path)
	if err != nil {
		return FetcherConfig{}, err
	}
	return r.Fetcher, nil
}

// LoadRunner reads the [runner] table.
func LoadRunner(path string) (RunnerConfig, error) {
	r, err := load(path)
	if err != nil {
		return RunnerConfig{}, err
	}
	return r.Runner, nil
}

// ParseDuration wraps time.ParseDuration with a configfile-scoped error,
// since every *Config above stores durations as TOML strings rather than
// introducing a custom TOML duration type.
func ParseDuration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("configfile: %s: invalid duration %q: %w", field, value, err)
	}
	return d, nil
}
