// backend/src/services/settlement_poller.go
package services

import (
	"context"
	"time"
)

// Clock abstracts timer creation so polling loops can be driven
// deterministically in tests.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// PollOutcome is the terminal result of a polling run.
type PollOutcome string

const (
	PollOutcomeSucceeded   PollOutcome = "succeeded"
	PollOutcomeFailed      PollOutcome = "failed"
	PollOutcomeTimeout     PollOutcome = "timeout"
	PollOutcomeUnreachable PollOutcome = "unreachable"
	PollOutcomeCancelled   PollOutcome = "cancelled"
)

type PollResult struct {
	Outcome  PollOutcome
	Status   *TransactionStatus
	Message  string
	Attempts int
}

// SettlementPoller checks a submitted transaction at a fixed interval until it
// reaches a terminal status, the attempt ceiling is hit, or the first transport
// error occurs.
type SettlementPoller struct {
	gateway     SettlementGateway
	interval    time.Duration
	maxAttempts int
	clock       Clock
}

func NewSettlementPoller(gateway SettlementGateway, interval time.Duration, maxAttempts int, clock Clock) *SettlementPoller {
	if clock == nil {
		clock = realClock{}
	}
	return &SettlementPoller{
		gateway:     gateway,
		interval:    interval,
		maxAttempts: maxAttempts,
		clock:       clock,
	}
}

// Poll blocks until a terminal result. onAttempt, if non-nil, is invoked with
// the attempt number before each status check.
func (p *SettlementPoller) Poll(ctx context.Context, transactionRef string, onAttempt func(attempt int)) PollResult {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return PollResult{Outcome: PollOutcomeCancelled, Attempts: attempt - 1}
		case <-p.clock.After(p.interval):
		}

		if onAttempt != nil {
			onAttempt(attempt)
		}

		status, err := p.gateway.GetTransactionStatus(ctx, transactionRef)
		if err != nil {
			if ctx.Err() != nil {
				return PollResult{Outcome: PollOutcomeCancelled, Attempts: attempt}
			}
			return PollResult{
				Outcome:  PollOutcomeUnreachable,
				Message:  err.Error(),
				Attempts: attempt,
			}
		}

		switch status.Status {
		case GatewayStatusSucceeded:
			return PollResult{Outcome: PollOutcomeSucceeded, Status: status, Attempts: attempt}
		case GatewayStatusFailed:
			msg := status.Error
			if msg == "" {
				msg = "payment failed"
			}
			return PollResult{Outcome: PollOutcomeFailed, Status: status, Message: msg, Attempts: attempt}
		}
	}

	return PollResult{
		Outcome:  PollOutcomeTimeout,
		Message:  "settlement status check attempts exhausted",
		Attempts: p.maxAttempts,
	}
}
