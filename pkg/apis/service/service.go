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

// Package service holds the Service entity (spec §3): the catalog of
// target services, keyed by name in the `services` KV bucket.
package service

// Service is one target service in the competition.
type Service struct {
	Name    string `json:"name" toml:"name"`
	HasHint bool   `json:"has_hint" toml:"has_hint"`
}
