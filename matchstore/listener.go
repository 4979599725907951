package matchstore

import (
	"time"

	"github.com/lib/pq"

	"ordermatch-pipeline/common"
	"ordermatch-pipeline/log"
)

// pqListener adapts *pq.Listener to the Listener interface.
type pqListener struct {
	inner *pq.Listener
	out   chan *Notification
}

// NewPQListener dials a dedicated LISTEN/NOTIFY connection to dbURL,
// reconnecting between minReconnectInterval and maxReconnectInterval on
// transport errors, the way the teacher's synchronizer retries its own
// connection loop.
func NewPQListener(dbURL string, minReconnectInterval, maxReconnectInterval time.Duration) *pqListener {
	out := make(chan *Notification, 64)
	eventCB := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warnw("matchstore: listener event", "event", ev, "err", err)
		}
	}
	inner := pq.NewListener(dbURL, minReconnectInterval, maxReconnectInterval, eventCB)
	l := &pqListener{inner: inner, out: out}
	go l.pump()
	return l
}

func (l *pqListener) pump() {
	for n := range l.inner.Notify {
		if n == nil {
			continue
		}
		l.out <- &Notification{Channel: n.Channel, Extra: n.Extra}
	}
	close(l.out)
}

func (l *pqListener) Listen(channel string) error {
	return common.Wrap(l.inner.Listen(channel))
}

func (l *pqListener) NotificationChannel() <-chan *Notification {
	return l.out
}

func (l *pqListener) Close() error {
	return common.Wrap(l.inner.Close())
}
