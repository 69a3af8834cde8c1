package payments

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"
)

// AmountThreshold is the largest amount accepted on the first processing
// attempt. Larger amounts fail and become retry candidates.
var AmountThreshold = decimal.NewFromInt(1000)

// ProcessingResult is the outcome of a single processing attempt.
type ProcessingResult struct {
	Success bool
	Message string
}

// SimulatedProcessor stands in for a payment gateway. First attempts succeed
// up to AmountThreshold; retries succeed with a configured probability.
type SimulatedProcessor struct {
	retrySuccessProbability float64
	randFloat               func() float64
}

// NewSimulatedProcessor constructs a simulated processor. A nil randFloat
// defaults to math/rand; tests inject a deterministic source.
func NewSimulatedProcessor(retrySuccessProbability float64, randFloat func() float64) *SimulatedProcessor {
	if randFloat == nil {
		randFloat = rand.Float64
	}
	return &SimulatedProcessor{
		retrySuccessProbability: retrySuccessProbability,
		randFloat:               randFloat,
	}
}

// Process simulates the initial processing attempt. The error is always nil;
// the signature leaves room for gateway-backed implementations.
func (p *SimulatedProcessor) Process(ctx context.Context, paymentID string, amount decimal.Decimal) (ProcessingResult, error) {
	if amount.LessThanOrEqual(AmountThreshold) {
		return ProcessingResult{
			Success: true,
			Message: "Payment processed successfully",
		}, nil
	}
	return ProcessingResult{
		Success: false,
		Message: fmt.Sprintf("Payment failed: amount %s exceeds threshold %s", amount, AmountThreshold),
	}, nil
}

// ProcessRetry simulates a retry attempt, succeeding with the configured
// probability.
func (p *SimulatedProcessor) ProcessRetry(ctx context.Context, paymentID string, amount decimal.Decimal) (ProcessingResult, error) {
	if p.randFloat() < p.retrySuccessProbability {
		return ProcessingResult{
			Success: true,
			Message: "Payment retry processed successfully",
		}, nil
	}
	return ProcessingResult{
		Success: false,
		Message: "Payment retry failed: simulated temporary failure",
	}, nil
}
