// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package eventprocessor

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/accessguard/internal/alerting"
	"github.com/tomtom215/accessguard/internal/logging"
	"github.com/tomtom215/accessguard/internal/metrics"
	"github.com/tomtom215/accessguard/internal/models"
	"github.com/tomtom215/accessguard/internal/validation"
)

// Ingest outcomes, also used as metric labels.
const (
	ResultProcessed = "processed"
	ResultDuplicate = "duplicate"
	ResultInvalid   = "invalid"
	ResultFailed    = "failed"
)

// Recorder records and scores one access event.
type Recorder interface {
	RecordAccessAndDetect(ctx context.Context, event *models.AccessEvent, cfg models.AlertConfig) (*alerting.RecordResult, error)
}

// Ingester consumes JSON access events from a topic and feeds them to the
// dispatcher. Malformed and invalid messages are acked and dropped since
// redelivery cannot fix them. A redelivered event that is already in the
// access log is acked. A message is nacked only when the event could
// neither be stored nor spooled.
type Ingester struct {
	subscriber message.Subscriber
	topic      string
	recorder   Recorder
	policy     models.AlertConfig
}

// NewIngester creates an ingester.
func NewIngester(sub message.Subscriber, topic string, recorder Recorder, policy models.AlertConfig) *Ingester {
	return &Ingester{
		subscriber: sub,
		topic:      topic,
		recorder:   recorder,
		policy:     policy,
	}
}

// Serve implements suture.Service.
func (i *Ingester) Serve(ctx context.Context) error {
	messages, err := i.subscriber.Subscribe(ctx, i.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", i.topic, err)
	}
	logging.Info().Str("topic", i.topic).Msg("Access event ingest started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("subscription to %s closed", i.topic)
			}
			if i.Handle(ctx, msg) == ResultFailed {
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}
}

// String implements fmt.Stringer for suture logs.
func (i *Ingester) String() string {
	return "nats-ingest"
}

// Handle processes one message and returns its outcome. It does not ack.
func (i *Ingester) Handle(ctx context.Context, msg *message.Message) string {
	result := i.handle(ctx, msg)
	metrics.RecordIngest(result)
	return result
}

func (i *Ingester) handle(ctx context.Context, msg *message.Message) string {
	var event models.AccessEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping malformed access event")
		return ResultInvalid
	}

	// A redelivered message maps to the same event id.
	if event.ID == "" {
		event.ID = msg.UUID
	}

	res, err := i.recorder.RecordAccessAndDetect(ctx, &event, i.policy)
	if err != nil {
		var verr *validation.Errors
		if errors.As(err, &verr) {
			logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping invalid access event")
			return ResultInvalid
		}
		logging.Error().Err(err).Str("message_uuid", msg.UUID).Msg("Failed to record access event")
		return ResultFailed
	}

	if res.Duplicate {
		logging.Debug().Str("event_id", res.EventID).Str("message_uuid", msg.UUID).Msg("Access event already recorded")
		return ResultDuplicate
	}

	evt := logging.Debug().
		Str("event_id", res.EventID).
		Int("alerts", res.AlertsCreated).
		Bool("spooled", res.Spooled)
	if res.Result != nil {
		evt = evt.Int("score", res.Result.AnomalyScore)
	}
	evt.Msg("Access event ingested")
	return ResultProcessed
}
