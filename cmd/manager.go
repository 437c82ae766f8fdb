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

package cmd

import (
	"context"
	"errors"

	"github.com/spf13/viper"

	"github.com/lotus-quant/lq-engine/data"
	"github.com/lotus-quant/lq-engine/database"
	"github.com/lotus-quant/lq-engine/risk"
)

var errNoDataSource = errors.New("no data source configured; set database.url or tushare.token")

// newDataManager builds the data manager from whichever source is
// configured. The database wins when both are present.
func newDataManager(ctx context.Context) (*data.Manager, error) {
	if viper.GetString("database.url") != "" {
		if err := database.Connect(ctx); err != nil {
			return nil, err
		}
		provider, err := data.NewPgDBFromPool()
		if err != nil {
			return nil, err
		}
		return data.NewManager(provider), nil
	}

	if token := viper.GetString("tushare.token"); token != "" {
		return data.NewManager(data.NewTushare(token)), nil
	}

	return nil, errNoDataSource
}

// riskConfig reads risk limits from settings; a zero value disables a check
func riskConfig() *risk.Config {
	cfg := &risk.Config{
		MaxOrderValue:      viper.GetFloat64("risk.max_order_value"),
		MaxDailyTradeValue: viper.GetFloat64("risk.max_daily_trade_value"),
		MaxDailyTrades:     viper.GetInt("risk.max_daily_trades"),
		MaxStockCount:      viper.GetInt("risk.max_stock_count"),
		MaxPositionRatio:   viper.GetFloat64("risk.max_position_ratio"),
		StopLossRatio:      viper.GetFloat64("risk.stop_loss_ratio"),
	}
	if *cfg == (risk.Config{}) {
		return nil
	}
	return cfg
}
