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

// Package data retrieves market data from postgres or the tushare HTTP API
// and caches it for the drivers.
package data

import (
	"context"
	"errors"
	"time"

	"github.com/lotus-quant/lq-engine/dataframe"
	"github.com/lotus-quant/lq-engine/market"
)

var (
	ErrNoData         = errors.New("no data available for request")
	ErrNotSupported   = errors.New("operation not supported by this provider")
	ErrUnknownMetric  = errors.New("unknown metric")
)

// Fq selects price adjustment for GetPrice: FqNone returns prices as traded,
// FqPre back-adjusts the series against the window's last trade day.
type Fq string

const (
	FqNone Fq = "none"
	FqPre  Fq = "pre"
)

// AdjFactor is the cumulative price adjustment factor on one trade day
type AdjFactor struct {
	Date   time.Time
	Factor float64
}

// Provider is the source of market data. Implementations must be safe for
// concurrent use.
type Provider interface {
	Name() string

	// GetPrice returns one metric for many securities as a date-indexed
	// dataframe with one column per security
	GetPrice(ctx context.Context, securities []market.Security, begin, end time.Time, metric string) (*dataframe.DataFrame, error)

	// GetAdjFactors returns cumulative price adjustment factors for one
	// security sorted ascending; providers without factor data return
	// ErrNotSupported
	GetAdjFactors(ctx context.Context, security market.Security, begin, end time.Time) ([]AdjFactor, error)

	// GetBars returns full bars for one security over a date range
	GetBars(ctx context.Context, security market.Security, begin, end time.Time) ([]*Bar, error)

	// GetTradeDays returns exchange trading days in the range, sorted ascending
	GetTradeDays(ctx context.Context, begin, end time.Time) ([]time.Time, error)

	// GetAllSecurities returns all instruments listed on the given date
	GetAllSecurities(ctx context.Context, on time.Time) ([]*SecurityInfo, error)

	// GetIndexStocks returns the index constituents on the given date
	GetIndexStocks(ctx context.Context, index market.Security, on time.Time) ([]market.Security, error)

	// GetSplitDividend returns corporate actions with the given ex date
	GetSplitDividend(ctx context.Context, on time.Time) ([]*CorporateAction, error)

	// GetLiveCurrent returns live snapshots for the requested securities
	GetLiveCurrent(ctx context.Context, securities []market.Security) ([]*Quote, error)
}
