package session

import (
	"time"

	"github.com/benbjohnson/clock"
)

type timerKind int

const (
	timerMatchmaking timerKind = iota // matchmaking status ticker
	timerChatPoll                     // chat room ticker
	timerReconnect                    // one-shot backoff retry
)

func (k timerKind) String() string {
	switch k {
	case timerMatchmaking:
		return "matchmaking"
	case timerChatPoll:
		return "chat_poll"
	case timerReconnect:
		return "reconnect"
	}
	return "unknown"
}

type activeTimer struct {
	id      uint64
	oneShot bool
	stop    func()
}

// timerSet holds at most one running timer per kind. Starting a kind stops
// the previous timer of that kind first. It is owned by the manager loop and
// is not safe for concurrent use; fire callbacks run on timer goroutines and
// must only hand work back to the loop, then confirm with claim.
type timerSet struct {
	clock  clock.Clock
	nextID uint64
	active map[timerKind]activeTimer
}

func newTimerSet(clk clock.Clock) *timerSet {
	return &timerSet{clock: clk, active: make(map[timerKind]activeTimer)}
}

// every starts a repeating timer of kind that calls fire with its id.
func (ts *timerSet) every(kind timerKind, d time.Duration, fire func(id uint64)) uint64 {
	ts.stop(kind)
	id := ts.allocID()

	t := ts.clock.Ticker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-t.C:
				fire(id)
			}
		}
	}()

	ts.active[kind] = activeTimer{id: id, stop: func() {
		t.Stop()
		close(done)
	}}
	return id
}

// after starts a one-shot timer of kind that calls fire with its id.
func (ts *timerSet) after(kind timerKind, d time.Duration, fire func(id uint64)) uint64 {
	ts.stop(kind)
	id := ts.allocID()

	t := ts.clock.AfterFunc(d, func() { fire(id) })
	ts.active[kind] = activeTimer{id: id, oneShot: true, stop: func() { t.Stop() }}
	return id
}

// claim reports whether id is still the live timer of kind. A claimed
// one-shot timer is removed from the set.
func (ts *timerSet) claim(kind timerKind, id uint64) bool {
	at, ok := ts.active[kind]
	if !ok || at.id != id {
		return false
	}
	if at.oneShot {
		delete(ts.active, kind)
	}
	return true
}

func (ts *timerSet) running(kind timerKind) bool {
	_, ok := ts.active[kind]
	return ok
}

func (ts *timerSet) len() int {
	return len(ts.active)
}

func (ts *timerSet) stop(kind timerKind) {
	if at, ok := ts.active[kind]; ok {
		at.stop()
		delete(ts.active, kind)
	}
}

func (ts *timerSet) stopAll() {
	for kind := range ts.active {
		ts.stop(kind)
	}
}

func (ts *timerSet) allocID() uint64 {
	ts.nextID++
	return ts.nextID
}
