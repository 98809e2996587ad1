package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/signalsfoundry/flightplan-simulator/model"
)

const defaultTopic = "flightsim.telemetry"

// KafkaConfig selects the brokers and topic for the telemetry mirror.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether any broker is configured.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// KafkaConfigFromEnv reads KAFKA_BROKERS (comma separated) and KAFKA_TOPIC.
func KafkaConfigFromEnv() KafkaConfig {
	var cfg KafkaConfig
	for _, b := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.Brokers = append(cfg.Brokers, b)
		}
	}
	cfg.Topic = strings.TrimSpace(os.Getenv("KAFKA_TOPIC"))
	if cfg.Topic == "" {
		cfg.Topic = defaultTopic
	}
	return cfg
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the JSON value of every mirrored message.
type Envelope struct {
	Kind    string          `json:"kind"`
	SentAt  time.Time       `json:"sentAt"`
	Payload json.RawMessage `json:"payload"`
}

// KafkaSink mirrors telemetry to a Kafka topic, keyed by drone id so each
// drone's events stay ordered within a partition.
type KafkaSink struct {
	w   messageWriter
	now func() time.Time
}

// NewKafkaSink builds a sink writing to cfg.Topic.
func NewKafkaSink(cfg KafkaConfig) *KafkaSink {
	return newKafkaSink(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	})
}

func newKafkaSink(w messageWriter) *KafkaSink {
	return &KafkaSink{w: w, now: time.Now}
}

func (k *KafkaSink) ReportLocation(ctx context.Context, u model.LocationUpdate) error {
	return k.write(ctx, KindLocation, u.DroneID, u)
}

func (k *KafkaSink) ReportViolation(ctx context.Context, v model.Violation) error {
	return k.write(ctx, KindViolation, v.DroneID, v)
}

func (k *KafkaSink) LogRoute(ctx context.Context, r model.RouteLog) error {
	return k.write(ctx, KindRouteLog, r.DroneID, r)
}

// Close flushes pending messages.
func (k *KafkaSink) Close() error { return k.w.Close() }

func (k *KafkaSink) write(ctx context.Context, kind, droneID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", kind, err)
	}
	value, err := json.Marshal(Envelope{Kind: kind, SentAt: k.now().UTC(), Payload: raw})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", kind, err)
	}
	if err := k.w.WriteMessages(ctx, kafka.Message{Key: []byte(droneID), Value: value}); err != nil {
		return fmt.Errorf("kafka write %s: %w", kind, err)
	}
	return nil
}
