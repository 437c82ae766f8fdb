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

// Package buyhold invests the full account in one security and holds it
package buyhold

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/lotus-quant/lq-engine/market"
	"github.com/lotus-quant/lq-engine/strategy"
)

const defaultSecurity = "510300.XSHG"

type BuyHold struct {
	strategy.Base

	security market.Security
	invested bool
}

func New(args map[string]json.RawMessage) (strategy.Strategy, error) {
	sid := defaultSecurity
	if raw, ok := args["security"]; ok {
		if err := json.Unmarshal(raw, &sid); err != nil {
			return nil, err
		}
	}

	security, err := market.ParseSecurity(sid)
	if err != nil {
		return nil, err
	}
	return &BuyHold{security: security}, nil
}

func (b *BuyHold) Initialize(_ context.Context, sc *strategy.Context) error {
	sc.SetBenchmark(b.security)
	return nil
}

func (b *BuyHold) HandleData(ctx context.Context, sc *strategy.Context, _ strategy.Data) error {
	if b.invested {
		return nil
	}

	port := sc.Portfolio()
	if _, err := sc.OrderValue(ctx, b.security, port.Cash); err != nil {
		return err
	}
	b.invested = true
	return nil
}
