// Copyright 2024-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package live

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"

	"github.com/lotus-quant/lq-engine/common"
	"github.com/lotus-quant/lq-engine/middleware"
	"github.com/lotus-quant/lq-engine/observability/opentelemetry"
)

type healthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

type positionResponse struct {
	Security      string  `json:"security"`
	TotalAmount   int64   `json:"total_amount"`
	ClosableStock int64   `json:"closeable_amount"`
	AvgCost       float64 `json:"avg_cost"`
	LastPrice     float64 `json:"last_price"`
	Value         float64 `json:"value"`
}

type portfolioResponse struct {
	Cash           float64            `json:"cash"`
	PositionsValue float64            `json:"positions_value"`
	TotalValue     float64            `json:"total_value"`
	Positions      []positionResponse `json:"positions"`
}

type orderResponse struct {
	OrderID      string  `json:"order_id"`
	Security     string  `json:"security"`
	Side         string  `json:"side"`
	Status       string  `json:"status"`
	Amount       int64   `json:"amount"`
	FilledAmount int64   `json:"filled_amount"`
	AvgFillPrice float64 `json:"avg_fill_price"`
}

// newAPI builds the status server exposed while the live driver runs. It is
// read-only; trading happens through the strategy, never through HTTP.
func (d *Driver) newAPI() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "lq-engine",
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})
	app.Use(middleware.NewLogger())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(healthResponse{
			Status: "ok",
			Time:   time.Now().In(common.GetTimezone()).Format(time.RFC3339),
		})
	})

	app.Get("/portfolio", func(c *fiber.Ctx) error {
		_, span := otel.Tracer(opentelemetry.Name).Start(c.UserContext(), "api.Portfolio")
		defer span.End()
		span.SetAttributes(opentelemetry.SpanAttributesFromFiber(c)...)

		resp := portfolioResponse{
			Cash:           d.port.Cash,
			PositionsValue: d.port.PositionsValue(),
			TotalValue:     d.port.TotalValue(),
			Positions:      make([]positionResponse, 0, d.port.PositionCount()),
		}
		for _, pos := range d.port.Positions() {
			resp.Positions = append(resp.Positions, positionResponse{
				Security:      pos.Security.String(),
				TotalAmount:   pos.TotalAmount,
				ClosableStock: pos.CloseableAmount,
				AvgCost:       pos.AvgCost,
				LastPrice:     pos.LastPrice,
				Value:         pos.Value(),
			})
		}
		return c.JSON(resp)
	})

	app.Get("/orders", func(c *fiber.Ctx) error {
		_, span := otel.Tracer(opentelemetry.Name).Start(c.UserContext(), "api.Orders")
		defer span.End()
		span.SetAttributes(opentelemetry.SpanAttributesFromFiber(c)...)

		orders := d.Orders()
		resp := make([]orderResponse, 0, len(orders))
		for _, ord := range orders {
			resp = append(resp, orderResponse{
				OrderID:      ord.ID,
				Security:     ord.Security.String(),
				Side:         ord.Side.String(),
				Status:       string(ord.Status),
				Amount:       ord.Amount,
				FilledAmount: ord.FilledAmount,
				AvgFillPrice: ord.AvgFillPrice,
			})
		}
		return c.JSON(resp)
	})

	return app
}
