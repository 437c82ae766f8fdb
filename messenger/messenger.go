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

// Package messenger delivers strategy notifications. When a NATS server is
// configured messages are published there; otherwise they are only logged, so
// strategies can call send_msg unconditionally.
package messenger

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const defaultSubject = "lq.notify"

// Notification is the payload published for each message
type Notification struct {
	Time    string `json:"time"`
	Message string `json:"message"`
}

type Messenger struct {
	conn    *nats.Conn
	subject string
}

// New connects to the NATS server named by the `nats.server` setting. A
// missing setting is not an error; Send degrades to logging only.
func New() *Messenger {
	m := &Messenger{
		subject: viper.GetString("nats.subject"),
	}
	if m.subject == "" {
		m.subject = defaultSubject
	}

	url := viper.GetString("nats.server")
	if url == "" {
		log.Debug().Msg("no NATS server configured; notifications are log only")
		return m
	}

	opts := []nats.Option{nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1)}
	if creds := viper.GetString("nats.credentials"); creds != "" {
		opts = append(opts, nats.UserCredentials(creds))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		log.Error().Err(err).Str("NATSServer", url).Msg("could not connect to NATS server")
		return m
	}

	log.Info().Str("NATSServer", url).Str("Subject", m.subject).Msg("connected to NATS server")
	m.conn = conn
	return m
}

// Send publishes msg to the notification subject. Messages are always logged;
// publish failures are reported but never abort the caller.
func (m *Messenger) Send(_ context.Context, msg string) error {
	log.Info().Str("Message", msg).Msg("strategy notification")
	if m.conn == nil {
		return nil
	}

	payload, err := json.Marshal(Notification{
		Time:    time.Now().Format(time.RFC3339),
		Message: msg,
	})
	if err != nil {
		return err
	}

	if err := m.conn.Publish(m.subject, payload); err != nil {
		log.Error().Err(err).Str("Subject", m.subject).Msg("could not publish notification")
		return err
	}
	return nil
}

// Close drains the NATS connection if one was established
func (m *Messenger) Close() {
	if m.conn != nil {
		if err := m.conn.Drain(); err != nil {
			log.Warn().Err(err).Msg("error draining NATS connection")
		}
	}
}
