// Package broadcaster defines the orchestrator's downstream external
// collaborator: the transaction submitter, out of scope per spec.md §1.
// Only the interface the orchestrator drives is specified here.
package broadcaster

import (
	"context"

	"ordermatch-pipeline/common"
	"ordermatch-pipeline/log"
	"ordermatch-pipeline/packer"
)

// Outcome is the asynchronous result of a submitted bundle, grouped by the
// match ids it was packed from.
type Outcome struct {
	MatchIDs []common.MatchID
	Reverted bool
	Err      error
}

// Broadcaster submits packed transaction requests and reports outcomes
// asynchronously on the channel returned by Outcomes.
type Broadcaster interface {
	Submit(ctx context.Context, req packer.TransactionRequest) error
	Outcomes() <-chan Outcome
}

// Logging is a Broadcaster that never actually submits: it logs the
// request and immediately reports success, for use in tests and local
// runs where no real submitter is wired up.
type Logging struct {
	outcomes chan Outcome
}

// NewLogging builds a Logging broadcaster.
func NewLogging() *Logging {
	return &Logging{outcomes: make(chan Outcome, 64)}
}

// Submit logs the request and enqueues an immediate success outcome.
func (l *Logging) Submit(ctx context.Context, req packer.TransactionRequest) error {
	log.Infow("broadcaster: submit (logging stub)", "to", req.To, "gasLimit", req.GasLimit,
		"chainId", req.ChainID, "matchIds", req.MatchIDs)
	l.outcomes <- Outcome{MatchIDs: req.MatchIDs}
	return nil
}

// Outcomes returns the channel Submit enqueues onto.
func (l *Logging) Outcomes() <-chan Outcome {
	return l.outcomes
}
