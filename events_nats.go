/**
 * Video-conferencing signaling core for the Carbonio workstream
 * collaboration platform.
 * Copyright (C) 2026 Zextras
 *
 * @license GNU AGPL version 3 or any later version
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */
package videoserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	initialConnectInterval = time.Second
	maxConnectInterval     = 8 * time.Second

	eventsSubjectPrefix = "collaboration.user"
)

// The NATS client doesn't work if a subject contains spaces. As user ids can
// have an arbitrary format, the variable part of the subject is encoded.
func GetEncodedSubject(prefix string, suffix string) string {
	return prefix + "." + base64.StdEncoding.EncodeToString([]byte(suffix))
}

type natsEventEnvelope struct {
	Type string      `json:"type"`
	Data DomainEvent `json:"data"`
}

// NatsEventDispatcher publishes domain events to one NATS subject per
// addressed user.
type NatsEventDispatcher struct {
	logger Logger

	conn *nats.Conn
}

func NewNatsEventDispatcher(logger Logger, url string) (*NatsEventDispatcher, error) {
	backoff, err := NewExponentialBackoff(initialConnectInterval, maxConnectInterval)
	if err != nil {
		return nil, err
	}

	d := &NatsEventDispatcher{
		logger: logger,
	}

	conn, err := nats.Connect(url,
		nats.ClosedHandler(d.onClosed),
		nats.DisconnectErrHandler(d.onDisconnected),
		nats.ReconnectHandler(d.onReconnected))

	// The initial connect must succeed, so we retry in the case of an error.
	ctx := context.Background()
	for err != nil {
		logger.Printf("Could not create NATS connection (%s), will retry in %s", err, backoff.NextWait())
		backoff.Wait(ctx)

		conn, err = nats.Connect(url)
	}
	logger.Printf("Connection established to %s (%s)", conn.ConnectedUrl(), conn.ConnectedServerId())

	d.conn = conn
	return d, nil
}

func (d *NatsEventDispatcher) onClosed(conn *nats.Conn) {
	d.logger.Println("NATS client closed", conn.LastError())
}

func (d *NatsEventDispatcher) onDisconnected(conn *nats.Conn, err error) {
	d.logger.Println("NATS client disconnected", err)
}

func (d *NatsEventDispatcher) onReconnected(conn *nats.Conn) {
	d.logger.Printf("NATS client reconnected to %s (%s)", conn.ConnectedUrl(), conn.ConnectedServerId())
}

func (d *NatsEventDispatcher) Dispatch(ctx context.Context, userIds []string, event DomainEvent) {
	data, err := json.Marshal(natsEventEnvelope{
		Type: event.EventType(),
		Data: event,
	})
	if err != nil {
		d.logger.Printf("Could not marshal event %+v: %s", event, err)
		return
	}

	for _, userId := range userIds {
		subject := GetEncodedSubject(eventsSubjectPrefix, userId)
		if err := d.conn.Publish(subject, data); err != nil {
			d.logger.Printf("Could not publish %s event to %s: %s", event.EventType(), subject, err)
		}
	}
}

func (d *NatsEventDispatcher) Close() {
	d.conn.Close()
}
