// Package publisher emits vehicle telemetry on NATS and receives inbound push messages.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcloughlin/geohash"
	"github.com/nats-io/nats.go"

	"schoolbus/internal/domain"
)

// GeohashPrecision is roughly a 150 m cell, enough to bucket a bus by street block.
const GeohashPrecision = 7

type NATSPublisher struct {
	nc      *nats.Conn
	prefix  string
	logger  *slog.Logger
	metrics PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// NewNATSPublisher connects to url. Position subjects are "<prefix>.<vehicle>".
func NewNATSPublisher(url, prefix string, logger *slog.Logger, m PublisherMetrics) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("schoolbus"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

type PositionMessage struct {
	VehicleID string    `json:"vehicleId"`
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Geohash   string    `json:"geohash"`
}

// NewPositionMessage builds a telemetry message for pos at ts.
func NewPositionMessage(vehicleID string, pos domain.Coordinate, ts time.Time) PositionMessage {
	return PositionMessage{
		VehicleID: vehicleID,
		Timestamp: ts,
		Lat:       pos.Lat,
		Lng:       pos.Lng,
		Geohash:   geohash.EncodeWithPrecision(pos.Lat, pos.Lng, GeohashPrecision),
	}
}

// PositionSubject returns the subject a vehicle's positions are published on.
func (p *NATSPublisher) PositionSubject(vehicleID string) string {
	return positionSubject(p.prefix, vehicleID)
}

func positionSubject(prefix, vehicleID string) string {
	if prefix == "" {
		return subjectToken(vehicleID)
	}
	return fmt.Sprintf("%s.%s", prefix, subjectToken(vehicleID))
}

// PublishPosition publishes a vehicle position. The context is unused by the
// NATS client but keeps the signature aligned with other sinks.
func (p *NATSPublisher) PublishPosition(_ context.Context, vehicleID string, pos domain.Coordinate) error {
	msg := NewPositionMessage(vehicleID, pos, time.Now().UTC())
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	start := time.Now()
	err = p.nc.Publish(p.PositionSubject(vehicleID), b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// PushMessage is an inbound push notification addressed to a guardian or driver.
type PushMessage struct {
	Recipient string `json:"recipient"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

// SubscribePush delivers every decodable message on subject to handler.
// Malformed payloads are logged and dropped.
func (p *NATSPublisher) SubscribePush(subject string, handler func(PushMessage)) (*nats.Subscription, error) {
	return p.nc.Subscribe(subject, func(m *nats.Msg) {
		msg, err := DecodePush(m.Data)
		if err != nil {
			p.logger.Warn("dropping push message", slog.String("subject", m.Subject), slog.String("error", err.Error()))
			return
		}
		handler(msg)
	})
}

// DecodePush parses a push payload; title or body must be present.
func DecodePush(data []byte) (PushMessage, error) {
	var msg PushMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return PushMessage{}, err
	}
	if msg.Title == "" && msg.Body == "" {
		return PushMessage{}, fmt.Errorf("empty push message")
	}
	return msg, nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
