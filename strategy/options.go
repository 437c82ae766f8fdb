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
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

// Options are the recognized runtime tunables a strategy may set through
// SetOption. Unknown keys are logged and ignored.
type Options struct {
	// UseRealPrice matches orders at unadjusted prices
	UseRealPrice bool
	// OrderVolumeRatio caps an order at this share of the bar's volume
	OrderVolumeRatio float64
	// OrderMaxVolume splits larger orders into children of this size
	OrderMaxVolume int64
	// TradeMaxWaitTime is how many seconds the live engine polls an order
	// toward a terminal status; 0 fires and forgets
	TradeMaxWaitTime int
}

func DefaultOptions() Options {
	return Options{
		UseRealPrice:     true,
		OrderVolumeRatio: 0.25,
	}
}

// Set applies one option by key. Values arrive untyped from strategy code
// and are cast leniently.
func (o *Options) Set(key string, value interface{}) {
	switch key {
	case "use_real_price":
		o.UseRealPrice = cast.ToBool(value)
	case "order_volume_ratio":
		o.OrderVolumeRatio = cast.ToFloat64(value)
	case "order_max_volume":
		o.OrderMaxVolume = cast.ToInt64(value)
	case "trade_max_wait_time":
		o.TradeMaxWaitTime = cast.ToInt(value)
	default:
		log.Warn().Str("Key", key).Interface("Value", value).Msg("unknown option ignored")
	}
}
