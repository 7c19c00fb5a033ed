package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/infrastructure/resilience"
)

// Connection-level failures: the event may go through once the client has
// reconnected, and they count against the breaker.
var transientPublishErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrReconnectBufExceeded,
	nats.ErrConnectionReconnecting,
}

// Errors caused by the event itself. Retrying cannot help and the server is
// healthy, so the breaker ignores them.
var rejectedEventErrors = []error{
	nats.ErrBadSubject,
	nats.ErrMaxPayload,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isAny(err, transientPublishErrors):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case isAny(err, rejectedEventErrors):
		return resilience.ErrorClassification{}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// publishError marks broker outages as DependencyUnavailable so lifecycle
// callers can tell them apart from a malformed event. A lost event never
// fails the transition that produced it; callers only log it.
func publishError(subject string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrDependencyUnavailable) {
		return err
	}
	if classifyNATSError(err).Retryable {
		return domain.WrapError(domain.ErrDependencyUnavailable, "nats publish "+subject, err)
	}
	return err
}
