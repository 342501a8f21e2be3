package postgres

import (
	"context"

	"github.com/samebrave/StepScape/internal/domain"
)

// watcher holds a single subscriber's snapshot channel. The channel is
// buffered by one; a stale undelivered snapshot is replaced rather than
// blocking the mutating call.
type watcher struct {
	userID string
	ch     chan []domain.StepRecord
}

// Watch subscribes to snapshots of the user's full log set. The current
// set is delivered after every successful mutation, newest record first.
// The returned cancel func releases the subscription and closes the
// channel.
func (r *Repository) Watch(userID string) (<-chan []domain.StepRecord, func()) {
	w := &watcher{
		userID: userID,
		ch:     make(chan []domain.StepRecord, 1),
	}

	r.mu.Lock()
	r.watchers[userID] = append(r.watchers[userID], w)
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		subs := r.watchers[userID]
		for i, sub := range subs {
			if sub == w {
				r.watchers[userID] = append(subs[:i], subs[i+1:]...)
				close(w.ch)
				break
			}
		}
		if len(r.watchers[userID]) == 0 {
			delete(r.watchers, userID)
		}
	}
	return w.ch, cancel
}

// notify re-queries the user's log set and fans the snapshot out to every
// subscriber. Failures are logged; a missed snapshot is corrected by the
// next mutation.
func (r *Repository) notify(ctx context.Context, userID string) {
	r.mu.Lock()
	active := len(r.watchers[userID]) > 0
	r.mu.Unlock()

	if !active {
		return
	}

	snapshot, err := r.AllLogs(ctx, userID)
	if err != nil {
		r.logger.Printf("watch snapshot failed (user=%s): %v", userID, err)
		return
	}

	// Channels are closed under the same lock, so sends here can never hit
	// a closed channel.
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.watchers[userID] {
		select {
		case w.ch <- snapshot:
		default:
			// Drop the stale snapshot and deliver the fresh one.
			select {
			case <-w.ch:
			default:
			}
			select {
			case w.ch <- snapshot:
			default:
			}
		}
	}
}
