package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

// Connection-level failures clear up once the client reconnects.
var transientNATSErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
	nats.ErrStaleConnection,
	nats.ErrSlowConsumer,
}

// These mean the event itself is unpublishable, so the breaker ignores them.
var rejectedEventErrors = []error{
	nats.ErrMaxPayload,
	nats.ErrBadSubject,
	nats.ErrInvalidMsg,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isAnyOf(err, transientNATSErrors):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case isAnyOf(err, rejectedEventErrors):
		return resilience.ErrorClassification{}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func isAnyOf(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
