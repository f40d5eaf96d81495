package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	streamName    = "STAR_LEDGER_EVENTS"
	subjectPrefix = "star.ledger.events"
)

// NATSSink publishes envelopes to NATS JetStream under
// star.ledger.events.{topic}. Failures are logged and dropped; downstream
// consumers reconcile against the durable store.
type NATSSink struct {
	js  jetstream.JetStream
	log zerolog.Logger
}

func NewNATSSink(js jetstream.JetStream, log zerolog.Logger) *NATSSink {
	return &NATSSink{js: js, log: log}
}

func (s *NATSSink) Publish(ctx context.Context, topic string, payload interface{}) {
	env := Envelope{
		ID:        uuid.New(),
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	data, err := json.Marshal(env)
	if err != nil {
		s.log.Error().Err(err).Str("topic", topic).Msg("event marshal failed")
		return
	}

	subject := fmt.Sprintf("%s.%s", subjectPrefix, topic)
	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		s.log.Warn().Err(err).Str("subject", subject).Msg("event publish failed")
	}
}

// EnsureStream creates the outbound events stream if it does not exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", streamName, err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
