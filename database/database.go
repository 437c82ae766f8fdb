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

// Package database owns the postgres connection pool shared by the market
// data providers.
package database

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var ErrNotConnected = errors.New("database pool is not connected")

var pool *pgxpool.Pool

// logPgError attaches the SQLSTATE when the server reported one, which is
// what distinguishes bad credentials from an unreachable host.
func logPgError(err error, msg string) {
	ev := log.Error().Err(err)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		ev = ev.Str("sqlstate", pgErr.Code)
	}
	ev.Msg(msg)
}

// Connect establishes the pool from the database.url setting and verifies
// it with a ping.
func Connect(ctx context.Context) error {
	url := viper.GetString("database.url")
	var err error
	pool, err = pgxpool.Connect(ctx, url)
	if err != nil {
		logPgError(err, "could not connect to database")
		return err
	}
	if err = pool.Ping(ctx); err != nil {
		logPgError(err, "database ping failed")
		return err
	}
	log.Info().Msg("database connected")
	return nil
}

// Close tears down the pool; safe to call when never connected
func Close() {
	if pool != nil {
		pool.Close()
		pool = nil
	}
}

// Pool returns the shared pool for read-only queries
func Pool() (*pgxpool.Pool, error) {
	if pool == nil {
		return nil, ErrNotConnected
	}
	return pool, nil
}

// Trx begins a transaction on the shared pool
func Trx(ctx context.Context) (pgx.Tx, error) {
	if pool == nil {
		return nil, ErrNotConnected
	}
	return pool.Begin(ctx)
}
