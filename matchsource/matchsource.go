// Package matchsource is the Match Source (C1): it turns matchstore
// changes filtered by status=Active into added/modified/removed events, and
// exposes the four write-back operations the orchestrator uses to report
// outcomes. It retries transport errors indefinitely with exponential
// backoff and never drops an event silently.
package matchsource

import (
	"context"
	"time"

	"ordermatch-pipeline/common"
	"ordermatch-pipeline/log"
	"ordermatch-pipeline/matchstore"
)

// EventType distinguishes the three change kinds a subscription emits.
type EventType int

const (
	Added EventType = iota
	Modified
	Removed
)

// Event is one change to an active match document.
type Event struct {
	Type  EventType
	Match *common.Match
}

// Store is the subset of matchstore.Store the source depends on, narrowed
// for testability.
type Store interface {
	ListActive() ([]*common.Match, error)
	Get(id common.MatchID) (*common.Match, error)
	SetState(id common.MatchID, state common.MatchState) error
}

// Listener is the subset of matchstore's change-notification transport the
// source consumes.
type Listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *matchstore.Notification
	Close() error
}

// Source implements C1 over a Store and a change Listener.
type Source struct {
	store    Store
	listener Listener

	events chan Event
	ready  chan struct{}

	backoffBase time.Duration
	backoffMax  time.Duration
}

// New builds a Source. backoffBase/backoffMax bound the exponential
// backoff applied to listener reconnects and re-subscribe attempts.
func New(store Store, listener Listener, backoffBase, backoffMax time.Duration) *Source {
	if backoffBase <= 0 {
		backoffBase = 500 * time.Millisecond
	}
	if backoffMax <= 0 {
		backoffMax = 30 * time.Second
	}
	return &Source{
		store:       store,
		listener:    listener,
		events:      make(chan Event, 256),
		ready:       make(chan struct{}),
		backoffBase: backoffBase,
		backoffMax:  backoffMax,
	}
}

// Events returns the channel added/modified/removed events are delivered
// on. It is closed when ctx is canceled and the run loop has drained.
func (s *Source) Events() <-chan Event {
	return s.events
}

// Start opens the durable subscription and resolves once the first
// snapshot (possibly empty) has been delivered, per spec.md §4.1. It then
// runs the change-listening loop until ctx is canceled.
func (s *Source) Start(ctx context.Context) <-chan struct{} {
	go s.run(ctx)
	return s.ready
}

func (s *Source) run(ctx context.Context) {
	defer close(s.events)

	s.subscribeWithRetry(ctx)
	s.emitSnapshotWithRetry(ctx)
	close(s.ready)

	backoff := s.backoffBase
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-s.listener.NotificationChannel():
			if !ok {
				log.Warnw("matchsource: listener channel closed, resubscribing")
				if !sleepCtx(ctx, backoff) {
					return
				}
				backoff = nextBackoff(backoff, s.backoffMax)
				s.subscribeWithRetry(ctx)
				continue
			}
			backoff = s.backoffBase
			s.handleNotification(ctx, n)
		}
	}
}

func (s *Source) subscribeWithRetry(ctx context.Context) {
	backoff := s.backoffBase
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.listener.Listen(matchstore.NotifyChannel()); err != nil {
			log.Warnw("matchsource: subscribe failed, retrying", "err", err, "backoff", backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, s.backoffMax)
			continue
		}
		return
	}
}

func (s *Source) emitSnapshotWithRetry(ctx context.Context) {
	backoff := s.backoffBase
	for {
		if ctx.Err() != nil {
			return
		}
		matches, err := s.store.ListActive()
		if err != nil {
			log.Warnw("matchsource: snapshot failed, retrying", "err", err, "backoff", backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, s.backoffMax)
			continue
		}
		for _, m := range matches {
			s.events <- Event{Type: Added, Match: m}
		}
		return
	}
}

func (s *Source) handleNotification(ctx context.Context, n *matchstore.Notification) {
	id := common.MatchID(n.Extra)
	if id == "" {
		return
	}
	m, err := s.store.Get(id)
	if err != nil {
		log.Warnw("matchsource: failed to load notified match, will be retried on next change",
			"matchId", id, "err", err)
		return
	}
	if m.State.Status != common.MatchActive {
		s.events <- Event{Type: Removed, Match: m}
		return
	}
	s.events <- Event{Type: Modified, Match: m}
}

// onCompleted marks a match fulfilled; matchstore keeps the terminal
// document (deletion is left to the upstream matcher/outbox, not this
// pipeline, so the status transition alone satisfies "core responsibility
// for that id terminates").
func (s *Source) OnCompleted(id common.MatchID) error {
	return s.setTerminal(id, common.MatchMatched, "", "")
}

// OnReverted clears status back out of Active so the upstream matcher can
// re-derive the match if it's still valid.
func (s *Source) OnReverted(id common.MatchID) error {
	return s.setTerminal(id, common.MatchInactive, "Reverted", "transaction reverted on-chain")
}

// OnInvalidated records a typed rejection against the match document.
func (s *Source) OnInvalidated(id common.MatchID, code, message string) error {
	return s.setTerminal(id, common.MatchError, code, message)
}

// OnProgress merges a non-terminal status update (e.g. "Building",
// "Packing") without changing MatchStatus, for observability only.
func (s *Source) OnProgress(id common.MatchID, code, message string) error {
	return common.Wrap(s.store.SetState(id, common.MatchState{
		Status:  common.MatchActive,
		Code:    code,
		Message: message,
	}))
}

func (s *Source) setTerminal(id common.MatchID, status common.MatchStatus, code, message string) error {
	return common.Wrap(s.store.SetState(id, common.MatchState{
		Status:  status,
		Code:    code,
		Message: message,
	}))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
