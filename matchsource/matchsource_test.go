package matchsource

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordermatch-pipeline/common"
	"ordermatch-pipeline/matchstore"
)

type fakeStore struct {
	mu      sync.Mutex
	active  []*common.Match
	byID    map[common.MatchID]*common.Match
	listErr error
	getErr  error
	states  map[common.MatchID]common.MatchState
}

func newFakeStore(matches ...*common.Match) *fakeStore {
	byID := map[common.MatchID]*common.Match{}
	for _, m := range matches {
		byID[m.ID] = m
	}
	return &fakeStore{active: matches, byID: byID, states: map[common.MatchID]common.MatchState{}}
}

func (f *fakeStore) ListActive() ([]*common.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		err := f.listErr
		f.listErr = nil
		return nil, err
	}
	return f.active, nil
}

func (f *fakeStore) Get(id common.MatchID) (*common.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		err := f.getErr
		f.getErr = nil
		return nil, err
	}
	m, ok := f.byID[id]
	if !ok {
		return nil, common.Wrap(common.ErrOrderMissing)
	}
	return m, nil
}

func (f *fakeStore) SetState(id common.MatchID, state common.MatchState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = state
	return nil
}

type fakeListener struct {
	out       chan *matchstore.Notification
	listenErr error
}

func newFakeListener() *fakeListener {
	return &fakeListener{out: make(chan *matchstore.Notification, 16)}
}

func (f *fakeListener) Listen(channel string) error              { return f.listenErr }
func (f *fakeListener) NotificationChannel() <-chan *matchstore.Notification { return f.out }
func (f *fakeListener) Close() error                              { return nil }

func TestStartDeliversInitialSnapshot(t *testing.T) {
	m := &common.Match{ID: "m1", State: common.MatchState{Status: common.MatchActive}}
	store := newFakeStore(m)
	listener := newFakeListener()
	src := New(store, listener, time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := src.Start(ctx)

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ready")
	}

	select {
	case ev := <-src.Events():
		assert.Equal(t, Added, ev.Type)
		assert.Equal(t, common.MatchID("m1"), ev.Match.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot event")
	}
}

func TestHandleNotificationEmitsModifiedForActiveMatch(t *testing.T) {
	m := &common.Match{ID: "m1", State: common.MatchState{Status: common.MatchActive}}
	store := newFakeStore()
	store.byID["m1"] = m
	listener := newFakeListener()
	src := New(store, listener, time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	<-src.Start(ctx)

	listener.out <- &matchstore.Notification{Extra: "m1"}
	select {
	case ev := <-src.Events():
		assert.Equal(t, Modified, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for modified event")
	}
}

func TestHandleNotificationEmitsRemovedForInactiveMatch(t *testing.T) {
	m := &common.Match{ID: "m1", State: common.MatchState{Status: common.MatchMatched}}
	store := newFakeStore()
	store.byID["m1"] = m
	listener := newFakeListener()
	src := New(store, listener, time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	<-src.Start(ctx)

	listener.out <- &matchstore.Notification{Extra: "m1"}
	select {
	case ev := <-src.Events():
		assert.Equal(t, Removed, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for removed event")
	}
}

func TestOnCompletedOnRevertedOnInvalidatedSetState(t *testing.T) {
	store := newFakeStore()
	listener := newFakeListener()
	src := New(store, listener, time.Millisecond, 10*time.Millisecond)

	require.NoError(t, src.OnCompleted("m1"))
	assert.Equal(t, common.MatchMatched, store.states["m1"].Status)

	require.NoError(t, src.OnReverted("m2"))
	assert.Equal(t, common.MatchInactive, store.states["m2"].Status)

	require.NoError(t, src.OnInvalidated("m3", "OrderInvalid", "boom"))
	assert.Equal(t, common.MatchError, store.states["m3"].Status)
	assert.Equal(t, "OrderInvalid", store.states["m3"].Code)
}

func TestOnCompletedIsIdempotent(t *testing.T) {
	store := newFakeStore()
	listener := newFakeListener()
	src := New(store, listener, time.Millisecond, 10*time.Millisecond)

	require.NoError(t, src.OnCompleted("m1"))
	require.NoError(t, src.OnCompleted("m1"))
	assert.Equal(t, common.MatchMatched, store.states["m1"].Status)
}
