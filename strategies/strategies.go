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

// Package strategies is the registry of built-in strategies runnable from the
// command line. Each strategy lives in its own sub-package and is constructed
// from a JSON argument bag.
package strategies

import (
	"errors"
	"fmt"
	"sort"

	"github.com/goccy/go-json"

	"github.com/lotus-quant/lq-engine/strategies/buyhold"
	"github.com/lotus-quant/lq-engine/strategies/dma"
	"github.com/lotus-quant/lq-engine/strategies/momentum"
	"github.com/lotus-quant/lq-engine/strategy"
)

var ErrUnknownStrategy = errors.New("unknown strategy shortcode")

// Factory builds a strategy from its JSON arguments
type Factory func(args map[string]json.RawMessage) (strategy.Strategy, error)

// Info describes one registered strategy
type Info struct {
	Name        string
	Shortcode   string
	Description string
	Factory     Factory
}

var strategyMap = map[string]*Info{}

func init() {
	Register(&Info{
		Name:        "Buy and Hold",
		Shortcode:   "bah",
		Description: "buy a single security on the first day and hold it",
		Factory:     buyhold.New,
	})
	Register(&Info{
		Name:        "Dual Moving Average",
		Shortcode:   "dma",
		Description: "hold a security while its short moving average is above the long one",
		Factory:     dma.New,
	})
	Register(&Info{
		Name:        "Index Momentum Rotation",
		Shortcode:   "mom",
		Description: "monthly rotation into the strongest index constituents",
		Factory:     momentum.New,
	})
}

// Register adds a strategy to the map; later registrations win
func Register(info *Info) {
	strategyMap[info.Shortcode] = info
}

// New builds the named strategy from a JSON argument string. An empty args
// string uses the strategy defaults.
func New(shortcode string, args string) (strategy.Strategy, error) {
	info, ok := strategyMap[shortcode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, shortcode)
	}

	argMap := map[string]json.RawMessage{}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &argMap); err != nil {
			return nil, fmt.Errorf("could not parse strategy arguments: %w", err)
		}
	}
	return info.Factory(argMap)
}

// List returns all registered strategies ordered by shortcode
func List() []*Info {
	out := make([]*Info, 0, len(strategyMap))
	for _, info := range strategyMap {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Shortcode < out[j].Shortcode })
	return out
}
