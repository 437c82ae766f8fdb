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

package portfolio

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"

	"github.com/lotus-quant/lq-engine/market"
)

// Side of an order
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// StyleKind selects market versus limit pricing
type StyleKind int

const (
	StyleMarket StyleKind = iota
	StyleLimit
)

// Style describes how an order prices itself. Market orders carry an
// optional protect percent; limit orders carry a price.
type Style struct {
	Kind StyleKind
	// Price is the limit price; only meaningful for StyleLimit
	Price float64
	// ProtectPercent bounds how far a market order chases the reference
	// price; 0 uses the engine default
	ProtectPercent float64
}

// MarketStyle builds a market order style with the given protect percent
func MarketStyle(protectPercent float64) Style {
	return Style{Kind: StyleMarket, ProtectPercent: protectPercent}
}

// LimitStyle builds a limit order style
func LimitStyle(price float64) Style {
	return Style{Kind: StyleLimit, Price: price}
}

// Status of an order. Orders are never mutated after reaching a terminal
// status.
type Status string

const (
	StatusNew       Status = "new"
	StatusSubmitted Status = "submitted"
	StatusFilled    Status = "filled"
	StatusPartial   Status = "partial"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether the status can no longer change
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Order is one instruction to trade. FilledAmount never exceeds Amount; a
// positive FilledAmount implies a positive AvgFillPrice.
type Order struct {
	ID           string
	Security     market.Security
	Side         Side
	Style        Style
	Amount       int64
	SubmittedAt  time.Time
	Status       Status
	FilledAmount int64
	AvgFillPrice float64
	Commission   float64
	Tax          float64
}

func NewOrder(security market.Security, side Side, style Style, amount int64, at time.Time) *Order {
	return &Order{
		ID:          uuid.New().String(),
		Security:    security,
		Side:        side,
		Style:       style,
		Amount:      amount,
		SubmittedAt: at,
		Status:      StatusNew,
	}
}

// Trade is one fill against an order
type Trade struct {
	SourceID   string
	OrderID    string
	Security   market.Security
	Side       Side
	Time       time.Time
	Amount     int64
	Price      float64
	Commission float64
	Tax        float64
}

// Value is the traded notional excluding fees
func (t *Trade) Value() float64 {
	return float64(t.Amount) * t.Price
}

// computeTradeSourceID derives a stable content hash so re-imported trades
// deduplicate.
func computeTradeSourceID(t *Trade) error {
	h := blake3.New()

	d, err := t.Time.UTC().MarshalText()
	if err != nil {
		return err
	}
	if _, err := h.Write(d); err != nil {
		return err
	}
	if _, err := h.Write([]byte(t.Security.String())); err != nil {
		return err
	}
	if _, err := h.Write([]byte(t.Side.String())); err != nil {
		return err
	}
	if _, err := h.Write([]byte(fmt.Sprintf("%d@%.4f", t.Amount, t.Price))); err != nil {
		return err
	}

	digest := h.Digest()
	buf := make([]byte, 16)
	if _, err := digest.Read(buf); err != nil {
		return err
	}
	t.SourceID = fmt.Sprintf("%x", buf)
	return nil
}

func newTrade(order *Order, at time.Time, amount int64, price, commission, tax float64) *Trade {
	t := &Trade{
		OrderID:    order.ID,
		Security:   order.Security,
		Side:       order.Side,
		Time:       at,
		Amount:     amount,
		Price:      price,
		Commission: commission,
		Tax:        tax,
	}
	if err := computeTradeSourceID(t); err != nil {
		log.Warn().Err(err).Str("OrderID", order.ID).Msg("couldn't compute SourceID for trade")
	}
	return t
}
