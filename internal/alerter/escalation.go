package alerter

import (
	"context"
	"time"

	"github.com/mikromon/mikromon/internal/types"
)

// RunEscalation drives repeated re-notification for alerts that stay
// unresolved. A single ticker scans the open set, so escalation ticks are
// totally ordered among themselves; sharing the engine mutex with poll-driven
// resolution makes escalate-vs-resolve atomic per alert.
func (e *Engine) RunEscalation(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info().Dur("interval", interval).Msg("escalation ticker started")
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.EscalateDue(now)
		}
	}
}

// EscalateDue bumps every open critical alert whose last escalation (or
// creation, if never escalated) is older than the configured interval.
// Escalation is monotonic; it halts only on resolution, or is suppressed
// while an alert is acknowledged.
func (e *Engine) EscalateDue(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	interval := e.cfg.Global.EscalationInterval
	escalated := 0

	for _, a := range e.open {
		if a.Acknowledged || a.Severity != types.SeverityCritical {
			continue
		}
		last := a.CreatedAt
		if a.LastEscalatedAt != nil {
			last = *a.LastEscalatedAt
		}
		if now.Sub(last) < interval {
			continue
		}

		a.EscalationLevel++
		ts := now
		a.LastEscalatedAt = &ts
		escalated++

		downtime := now.Sub(a.CreatedAt)
		if st, ok := e.entities[a.EntityID]; ok && !st.sinceDown.IsZero() {
			downtime = now.Sub(st.sinceDown)
		}

		e.logger.Warn().
			Str("alert_id", a.ID).
			Str("entity", a.EntityID).
			Int("level", a.EscalationLevel).
			Dur("downtime", downtime).
			Msg("alert escalated")

		e.emit(types.Event{
			Kind:      types.EventAlertEscalated,
			EntityID:  a.EntityID,
			Alert:     copyAlert(a),
			Level:     a.EscalationLevel,
			Downtime:  downtime,
			Timestamp: now,
		})
	}
	return escalated
}

// RunSweep periodically reconciles alerts that are still open although their
// entity is Up. The sweep is a correctness safety net, not a transition, and
// running it twice changes nothing the second time.
func (e *Engine) RunSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.SweepOrphans(); n > 0 {
				e.logger.Info().Int("resolved", n).Msg("orphan sweep reconciled alerts")
			}
		}
	}
}

// SweepOrphans resolves open liveness alerts whose entity currently reports
// Up. Returns the number of alerts it closed.
func (e *Engine) SweepOrphans() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	swept := 0
	for key, a := range e.open {
		st, ok := e.entities[key.EntityID]
		if !ok || st.state != types.StateUp {
			continue
		}
		// Only the entity's own liveness alert type is orphanable here;
		// interface_down and threshold alerts legitimately stay open on
		// an Up entity.
		if a.Type != downAlertType(st.entity.Kind) {
			continue
		}
		e.resolveLocked(key, now)
		swept++
	}
	return swept
}
