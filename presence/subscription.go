package presence

import (
	"github.com/srg/venuesense/internal/ringchan"
)

// Subscription is a latest-value stream of presence snapshots.
// A slow reader only ever sees the newest snapshot.
type Subscription struct {
	engine *Engine
	ch     *ringchan.RingChannel[Presence]
}

// C returns the snapshot channel; it is closed by Close
func (s *Subscription) C() <-chan Presence {
	return s.ch.C()
}

// Close detaches the subscription from the engine. Safe to call more than once.
func (s *Subscription) Close() {
	s.engine.unsubscribe(s)
	s.ch.Close()
}

// Subscribe returns a subscription that immediately holds the current snapshot
func (e *Engine) Subscribe() *Subscription {
	sub := &Subscription{engine: e, ch: ringchan.New[Presence](1)}

	e.snapMu.Lock()
	defer e.snapMu.Unlock()

	sub.ch.Send(e.snapshot.clone())
	e.subs[sub] = struct{}{}
	return sub
}

func (e *Engine) unsubscribe(s *Subscription) {
	e.snapMu.Lock()
	delete(e.subs, s)
	e.snapMu.Unlock()
}

// publish replaces the readable snapshot and notifies subscribers.
// Called only by the state owner.
func (e *Engine) publish() {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()

	e.snapshot = e.state.clone()
	for sub := range e.subs {
		sub.ch.Send(e.snapshot.clone())
	}
}

// Current returns the latest snapshot
func (e *Engine) Current() Presence {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snapshot.clone()
}
