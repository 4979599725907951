// Package orchestrator implements the Transaction Orchestrator (C6): it
// hosts a per-chain encoder, maintains a keyed work queue of pending
// matches, and drives each match id through
// Discovered -> Building -> Verifying -> AssetChecking -> Packing -> Submitted
// -> {Completed|Reverted}, with a Rejected branch at every gate. The
// Deferred state is declared, but no transition enters it.
package orchestrator

import (
	"context"
	"time"

	"ordermatch-pipeline/broadcaster"
	"ordermatch-pipeline/builder"
	"ordermatch-pipeline/common"
	"ordermatch-pipeline/log"
	"ordermatch-pipeline/matchsource"
	"ordermatch-pipeline/metric"
	"ordermatch-pipeline/packer"
	"ordermatch-pipeline/validator"
	"ordermatch-pipeline/verifier"
)

// State is a match id's position in the per-id state machine.
type State int

const (
	Discovered State = iota
	Building
	Verifying
	AssetChecking
	Packing
	Submitted
	Completed
	Reverted
	Rejected
	Deferred
)

func (s State) String() string {
	switch s {
	case Discovered:
		return "Discovered"
	case Building:
		return "Building"
	case Verifying:
		return "Verifying"
	case AssetChecking:
		return "AssetChecking"
	case Packing:
		return "Packing"
	case Submitted:
		return "Submitted"
	case Completed:
		return "Completed"
	case Reverted:
		return "Reverted"
	case Rejected:
		return "Rejected"
	case Deferred:
		return "Deferred"
	default:
		return "Unknown"
	}
}

// workItem is the per-match-id bookkeeping the orchestrator's queue holds.
type workItem struct {
	matchID common.MatchID
	match   *common.Match
	state   State
	removed bool
}

// Writer is the subset of matchsource's write-backs the orchestrator
// drives.
type Writer interface {
	OnCompleted(id common.MatchID) error
	OnReverted(id common.MatchID) error
	OnInvalidated(id common.MatchID, code, message string) error
	OnProgress(id common.MatchID, code, message string) error
}

// Config wires one chain's orchestrator together. Every field is a
// previously-built component; Orchestrator composes them, it does not
// construct them.
type Config struct {
	ChainConfig  common.ChainConfig
	Source       <-chan matchsource.Event
	Writer       Writer
	Builder      *builder.Builder
	Verifier     *verifier.Verifier
	Validator    *validator.Validator
	Packer       *packer.Packer
	Broadcaster  broadcaster.Broadcaster
	MinBundleSize int
	// TickInterval is the fixed-tick batching watermark: items drained
	// from the queue are batched together at least this often.
	TickInterval time.Duration
}

// Orchestrator runs C6 for a single chain. Its run loop is
// single-threaded-cooperative: all state-machine transitions for a given
// match id are serialized by construction, since only the run goroutine
// ever mutates the work queue.
type Orchestrator struct {
	cfg   Config
	queue map[common.MatchID]*workItem
}

// New builds an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 2 * time.Second
	}
	return &Orchestrator{cfg: cfg, queue: map[common.MatchID]*workItem{}}
}

// Run drains Source events into the work queue and processes batches on
// cfg.TickInterval until ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.cfg.Source:
			if !ok {
				return
			}
			o.handleEvent(ev)
		case <-ticker.C:
			o.drainBatch(ctx)
		}
	}
}

func (o *Orchestrator) handleEvent(ev matchsource.Event) {
	switch ev.Type {
	case matchsource.Removed:
		if w, ok := o.queue[ev.Match.ID]; ok {
			w.removed = true
		}
		metric.InFlight.WithLabelValues(o.chainLabel()).Set(float64(len(o.queue)))
		return
	default:
		w, ok := o.queue[ev.Match.ID]
		if !ok {
			w = &workItem{matchID: ev.Match.ID, state: Discovered}
			o.queue[ev.Match.ID] = w
		}
		w.match = ev.Match
		w.removed = false
		metric.InFlight.WithLabelValues(o.chainLabel()).Set(float64(len(o.queue)))
	}
}

// drainBatch snapshots every pending, non-removed work item and runs the
// full C2->C3->C4->C5 pipeline over the batch, the way spec.md §4.6
// describes "batches drained items on a fixed tick or watermark".
func (o *Orchestrator) drainBatch(ctx context.Context) {
	var batch []*workItem
	for id, w := range o.queue {
		if w.removed {
			delete(o.queue, id)
			continue
		}
		if w.state == Submitted {
			// already handed to the broadcaster; waits for HandleOutcome
			continue
		}
		batch = append(batch, w)
	}
	if len(batch) == 0 {
		return
	}

	built := o.build(batch)
	verified := o.verify(ctx, built)
	validated := o.validate(ctx, verified)
	o.pack(ctx, validated)
}

func (o *Orchestrator) build(batch []*workItem) []common.BundleItem {
	var items []common.BundleItem
	for _, w := range batch {
		w.state = Building
		item, err := o.cfg.Builder.Build(w.matchID, w.match)
		if err != nil {
			metric.ItemsBuilt.WithLabelValues("failed").Inc()
			o.reject(w, "OrderInvalid", err.Error())
			continue
		}
		metric.ItemsBuilt.WithLabelValues("success").Inc()
		items = append(items, *item)
	}
	return items
}

func (o *Orchestrator) verify(ctx context.Context, items []common.BundleItem) []common.BundleItemWithCurrentPrice {
	for i := range items {
		o.setState(items[i].ID, Verifying)
	}
	valid, invalid := o.cfg.Verifier.VerifyBatch(ctx, items)
	for _, rej := range invalid {
		metric.VerifyOutcomes.WithLabelValues(rej.Code).Inc()
		o.rejectByID(rej.Item.ID, rej.Code, rej.Message)
	}
	metric.VerifyOutcomes.WithLabelValues("valid").Add(float64(len(valid)))
	return valid
}

func (o *Orchestrator) validate(ctx context.Context, items []common.BundleItemWithCurrentPrice) []common.BundleItemWithCurrentPrice {
	for i := range items {
		o.setState(items[i].ID, AssetChecking)
	}
	valid, invalid := o.cfg.Validator.ValidateBatch(ctx, items)
	for _, rej := range invalid {
		metric.ValidateOutcomes.WithLabelValues(rej.Code).Inc()
		o.rejectByID(rej.Item.ID, rej.Code, rej.Message)
	}
	metric.ValidateOutcomes.WithLabelValues("valid").Add(float64(len(valid)))
	return valid
}

func (o *Orchestrator) pack(ctx context.Context, items []common.BundleItemWithCurrentPrice) {
	for i := range items {
		o.setState(items[i].ID, Packing)
	}
	requests, rejections := o.cfg.Packer.Pack(ctx, items, o.cfg.MinBundleSize)
	for _, rej := range rejections {
		o.rejectByID(rej.Item.ID, rej.Code, rej.Message)
	}
	for _, req := range requests {
		metric.BundlesPacked.Inc()
		metric.BundleGasEstimate.Observe(float64(req.GasLimit))
		metric.BundleSize.Observe(float64(len(req.MatchIDs)))
		for _, id := range req.MatchIDs {
			o.setState(id, Submitted)
		}
		if err := o.cfg.Broadcaster.Submit(ctx, req); err != nil {
			log.Errorw("orchestrator: broadcaster submit failed", "err", err, "matchIds", req.MatchIDs)
			for _, id := range req.MatchIDs {
				o.rejectByID(id, "UnknownError", err.Error())
			}
		}
	}
}

// HandleOutcome applies a broadcaster result to every match id in the
// originating bundle, completing the Submitted -> {Completed|Reverted}
// transition.
func (o *Orchestrator) HandleOutcome(outcome broadcaster.Outcome) {
	for _, id := range outcome.MatchIDs {
		if outcome.Reverted {
			o.setState(id, Reverted)
			if err := o.cfg.Writer.OnReverted(id); err != nil {
				log.Errorw("orchestrator: onReverted write failed", "matchId", id, "err", err)
			}
			continue
		}
		o.setState(id, Completed)
		if err := o.cfg.Writer.OnCompleted(id); err != nil {
			log.Errorw("orchestrator: onCompleted write failed", "matchId", id, "err", err)
		}
	}
	for _, id := range outcome.MatchIDs {
		delete(o.queue, id)
	}
}

func (o *Orchestrator) setState(id common.MatchID, s State) {
	if w, ok := o.queue[id]; ok {
		w.state = s
	}
	if err := o.cfg.Writer.OnProgress(id, s.String(), ""); err != nil {
		log.Warnw("orchestrator: onProgress write failed", "matchId", id, "state", s, "err", err)
	}
}

func (o *Orchestrator) reject(w *workItem, code, message string) {
	w.state = Rejected
	log.Infow("orchestrator: rejecting match", "matchId", w.matchID, "code", code, "message", message)
	if err := o.cfg.Writer.OnInvalidated(w.matchID, code, message); err != nil {
		log.Errorw("orchestrator: onInvalidated write failed", "matchId", w.matchID, "err", err)
	}
	delete(o.queue, w.matchID)
}

func (o *Orchestrator) rejectByID(id common.MatchID, code, message string) {
	w, ok := o.queue[id]
	if !ok {
		w = &workItem{matchID: id}
	}
	o.reject(w, code, message)
}

func (o *Orchestrator) chainLabel() string {
	if o.cfg.ChainConfig.ChainID == nil {
		return "unknown"
	}
	return o.cfg.ChainConfig.ChainID.String()
}
