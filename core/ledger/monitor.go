package ledger

import (
	"context"
	"time"

	"github.com/pyropy/rnfs/core/model"
)

// Run drives timer-based lifecycle transitions: retry release after
// backoff, timeout expiry of unanswered Pending entries, grace-period
// removal of settled entries and demand bookkeeping decay.
func (l *Ledger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.tick(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

func (l *Ledger) tick(now time.Time) {
	l.mu.Lock()

	var out []Event

	for k, e := range l.entries {
		switch e.State {
		case model.StatePending:
			if e.awaitingRetry {
				if !now.Before(e.nextAttempt) {
					e.awaitingRetry = false
					e.RequestedAt = now
					out = append(out, Event{
						Type:     EventRetry,
						Identity: e.Identity,
						Kind:     e.Kind,
						Peers:    peersSnapshot(e),
						Attempt:  e.Attempts,
					})
					l.metrics.Retries.Inc()
				}
				continue
			}

			if now.Sub(e.RequestedAt) > l.cfg.Timeout {
				l.metrics.Timeouts.Inc()
				if ev, emit := l.failLocked(e, ErrTimeout); emit {
					out = append(out, ev)
				}
			}

		case model.StateResolved, model.StateFailed:
			if now.Sub(e.settledAt) > l.cfg.GracePeriod {
				delete(l.entries, k)
			}
		}
	}

	for id, d := range l.demand {
		if now.Sub(d.Last) > l.cfg.DemandTTL {
			delete(l.demand, id)
		}
	}

	l.mu.Unlock()

	for _, ev := range out {
		l.emit(ev)
	}
}
