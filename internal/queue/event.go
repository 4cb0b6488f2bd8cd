// Package queue mirrors seat events to RabbitMQ and runs the audit
// consumer that writes them to logs/seat-events.log.
package queue

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/cinema-seat-access/internal/broadcast"
)

// ExchangeKind is the exchange type used for the event stream.  The
// routing key of every message is its event type.
const ExchangeKind = "topic"

// encodeEvent serializes an event for the broker.
func encodeEvent(ev broadcast.Event) ([]byte, error) {
	return json.Marshal(ev)
}

// decodeEvent parses a message body published by Publisher.
func decodeEvent(body []byte) (broadcast.Event, error) {
	var ev broadcast.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, err
	}
	if ev.Type == "" {
		return ev, fmt.Errorf("event without type")
	}
	return ev, nil
}

// auditLine renders one event as a single human-friendly log line.
// Access code values are left out of the audit trail.
func auditLine(ev broadcast.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | id=%s", ev.Timestamp.UTC().Format(time.RFC3339), ev.Type, ev.ID)
	if ev.SeatID != "" {
		fmt.Fprintf(&b, " | seat=%s", ev.SeatID)
	}
	if ev.Status != "" {
		fmt.Fprintf(&b, " | status=%s", ev.Status)
	}
	if ev.PhysicalStatus != "" {
		fmt.Fprintf(&b, " | physical=%s", ev.PhysicalStatus)
	}
	if ev.ExpiresAt != nil {
		fmt.Fprintf(&b, " | expires_at=%s", ev.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if ev.Confirmed != nil {
		fmt.Fprintf(&b, " | confirmed=%t", *ev.Confirmed)
	}
	if len(ev.Data) > 0 {
		keys := make([]string, 0, len(ev.Data))
		for k := range ev.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " | %s=%v", k, ev.Data[k])
		}
	}
	b.WriteByte('\n')
	return b.String()
}
