// Copyright 2024-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package strategy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/spf13/cast"
)

var ErrNotSerializable = errors.New("value is not serializable")

// Globals is the strategy's persistent key/value state, the `g` object. Only
// JSON-serializable values are accepted; in live mode the bag is written to
// disk after each callback and restored on startup.
type Globals struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

func NewGlobals() *Globals {
	return &Globals{values: make(map[string]interface{})}
}

// Set stores a value, rejecting anything JSON cannot round-trip
func (g *Globals) Set(key string, value interface{}) error {
	if _, err := json.Marshal(value); err != nil {
		return fmt.Errorf("%w: %s", ErrNotSerializable, key)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[key] = value
	return nil
}

// Get returns the raw value and whether it exists
func (g *Globals) Get(key string) (interface{}, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.values[key]
	return v, ok
}

// GetString returns the value cast to string, or "" when absent
func (g *Globals) GetString(key string) string {
	v, _ := g.Get(key)
	return cast.ToString(v)
}

// GetFloat returns the value cast to float64, or 0 when absent
func (g *Globals) GetFloat(key string) float64 {
	v, _ := g.Get(key)
	return cast.ToFloat64(v)
}

// GetInt returns the value cast to int, or 0 when absent
func (g *Globals) GetInt(key string) int {
	v, _ := g.Get(key)
	return cast.ToInt(v)
}

// Delete removes a key
func (g *Globals) Delete(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.values, key)
}

// Len returns the number of stored keys
func (g *Globals) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.values)
}

// Save writes the bag to path atomically via a temp file and rename
func (g *Globals) Save(path string) error {
	g.mu.RLock()
	raw, err := json.MarshalIndent(g.values, "", "  ")
	g.mu.RUnlock()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".g-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load replaces the bag with the contents of path. A missing file leaves the
// bag empty and is not an error.
func (g *Globals) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	values := make(map[string]interface{})
	if err := json.Unmarshal(raw, &values); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.values = values
	return nil
}
