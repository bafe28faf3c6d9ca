// Package publisher implements the best-effort Event Publisher from spec
// §4.5: after a successful commit, the Coordinator/Ledger hand it a compact
// event record; it attempts delivery to the external bus and discards any
// failure after logging it with the event's correlation id. The external
// bus is modeled as AWS EventBridge's PutEvents, since spec §6's
// put_events([{bus_name, source, detail_type, detail}]) shape is
// EventBridge's wire shape verbatim.
package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/fieldshare/surplus/internal/eventbus"
)

// EventBridgeAPI is the subset of the EventBridge client the publisher
// calls, narrowed for testability.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, opts ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher is a best-effort forwarder from in-process domain events to an
// external bus.
type Publisher struct {
	client  EventBridgeAPI
	busName string
	source  string
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// Config names the EventBridge bus and event source used on every PutEvents
// call.
type Config struct {
	BusName string
	Source  string
}

// New wraps client with a circuit breaker so a degraded bus trips open after
// a run of failures instead of adding per-call latency to every commit
// (SPEC_FULL.md §4.5). The breaker's open-state short-circuit is itself
// treated as "failure, logged and discarded" — it never changes the
// best-effort contract, only the cost of discovering the bus is down.
func New(client EventBridgeAPI, cfg Config, log *zap.Logger) *Publisher {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "eventbus-publisher",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Publisher{client: client, busName: cfg.BusName, source: cfg.Source, breaker: breaker, log: log}
}

// Publish attempts to place event on the external bus. Any failure — build
// error, transport error, partial rejection, or an open breaker — is
// logged with the event's correlation id and discarded; it is never
// returned to the caller, matching spec §4.5's "the API response is
// unaffected".
func (p *Publisher) Publish(ctx context.Context, event eventbus.Event) {
	detail, err := json.Marshal(event)
	if err != nil {
		p.log.Warn("publisher: failed to marshal event",
			zap.String("correlation_id", event.CorrelationID), zap.Error(err))
		return
	}

	_, err = p.breaker.Execute(func() (any, error) {
		out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
			Entries: []types.PutEventsRequestEntry{
				{
					EventBusName: aws.String(p.busName),
					Source:       aws.String(p.source),
					DetailType:   aws.String(string(event.Type)),
					Detail:       aws.String(string(detail)),
				},
			},
		})
		if err != nil {
			return nil, err
		}
		if out.FailedEntryCount > 0 {
			return nil, errPartialRejection
		}
		return nil, nil
	})
	if err != nil {
		p.log.Warn("publisher: event delivery failed, discarding",
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

var errPartialRejection = partialRejectionError{}

type partialRejectionError struct{}

func (partialRejectionError) Error() string { return "eventbridge: partial rejection" }
