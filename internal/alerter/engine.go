package alerter

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mikromon/mikromon/internal/config"
	"github.com/mikromon/mikromon/internal/registry"
	"github.com/mikromon/mikromon/internal/types"
)

const eventBuffer = 256

// alertKey addresses alerts structurally by entity and condition type. At
// most one unresolved alert exists per key.
type alertKey struct {
	EntityID string
	Type     types.AlertType
}

// entityStatus is the engine's mutable view of one entity.
type entityStatus struct {
	entity    registry.Entity
	state     types.EntityState
	sinceUp   time.Time
	sinceDown time.Time
	lastCheck time.Time
	latencyMs int64

	prevUptime     *int64
	prevIfaces     map[string]types.InterfaceMetrics
	prevIfacesAt   time.Time
	prevPppoe      map[string]struct{}
	downInterfaces map[string]struct{}
}

// Engine runs the per-entity state machine and owns the alert lifecycle. All
// mutation paths (poll results, the escalation ticker, external acknowledge
// and resolve actions, the orphan sweep) serialize on one mutex, which makes
// resolve-vs-escalate a single atomic decision per alert.
type Engine struct {
	cfg    *config.Config
	logger zerolog.Logger

	mu       sync.Mutex
	entities map[string]*entityStatus
	open     map[alertKey]*types.Alert
	byID     map[string]*types.Alert
	history  []*types.Alert

	events chan types.Event
}

// NewEngine creates an alert engine.
func NewEngine(cfg *config.Config, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		logger:   logger.With().Str("component", "alerter").Logger(),
		entities: make(map[string]*entityStatus),
		open:     make(map[alertKey]*types.Alert),
		byID:     make(map[string]*types.Alert),
		events:   make(chan types.Event, eventBuffer),
	}
}

// Events is the engine's outbound lifecycle stream, consumed by the
// notification dispatcher and the live event broadcaster.
func (e *Engine) Events() <-chan types.Event {
	return e.events
}

// downAlertType maps an entity kind to its liveness alert type.
func downAlertType(kind registry.Kind) types.AlertType {
	switch kind {
	case registry.KindNetwatch:
		return types.AlertNetwatchDown
	case registry.KindPppoe:
		return types.AlertPppoeDisconnect
	default:
		return types.AlertStatusChange
	}
}

// HandlePoll feeds one poll result through the state machine. The most
// recent poll result decides the state; a single failed probe flips the
// entity to Down immediately.
func (e *Engine) HandlePoll(entity registry.Entity, res types.PollResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.ensureEntity(entity)
	st.lastCheck = res.Timestamp
	now := res.Timestamp

	if res.Success {
		e.handleUp(st, res, now)
	} else {
		e.handleDown(st, res, now)
	}

	e.emit(types.Event{
		Kind:      types.EventPollResult,
		EntityID:  entity.ID,
		State:     st.state,
		Poll:      &res,
		Timestamp: now,
	})
}

func (e *Engine) handleUp(st *entityStatus, res types.PollResult, now time.Time) {
	wasDown := st.state == types.StateDown
	if st.state != types.StateUp {
		st.state = types.StateUp
		st.sinceUp = now
		st.sinceDown = time.Time{}
		e.logger.Info().
			Str("entity", st.entity.ID).
			Bool("recovered", wasDown).
			Msg("entity up")
		e.emit(types.Event{Kind: types.EventEntityState, EntityID: st.entity.ID, State: types.StateUp, Timestamp: now})
	}
	st.latencyMs = res.LatencyMs

	// Recovery resolves the liveness alert; the dispatcher sends an
	// info-severity recovery notification when the alert had escalated.
	e.resolveLocked(alertKey{st.entity.ID, downAlertType(st.entity.Kind)}, now)

	if res.Resources != nil {
		e.checkThresholds(st, res.Resources, now)
		e.checkReboot(st, res.Resources, now)
	}
	if res.Interfaces != nil {
		e.checkInterfaces(st, res.Interfaces, now)
	}
	if res.Pppoe != nil {
		e.checkPppoeSessions(st, res.Pppoe, now)
	}
}

func (e *Engine) handleDown(st *entityStatus, res types.PollResult, now time.Time) {
	if st.state != types.StateDown {
		st.state = types.StateDown
		st.sinceDown = now
		st.sinceUp = time.Time{}
		e.logger.Warn().
			Str("entity", st.entity.ID).
			Str("error", res.Err).
			Msg("entity down")
		e.emit(types.Event{Kind: types.EventEntityState, EntityID: st.entity.ID, State: types.StateDown, Timestamp: now})
	}
	st.latencyMs = types.LatencyInvalid

	typ := downAlertType(st.entity.Kind)
	title := fmt.Sprintf("%s is down", st.entity.Name)
	msg := res.Err
	if msg == "" {
		msg = "no response"
	}
	e.createOrReuseLocked(st.entity, typ, types.SeverityCritical, title, msg, now)
}

// createOrReuseLocked opens an alert unless an unresolved one already exists
// for the same (entity, type) key. Requires e.mu.
func (e *Engine) createOrReuseLocked(entity registry.Entity, typ types.AlertType, sev types.Severity, title, msg string, now time.Time) *types.Alert {
	key := alertKey{entity.ID, typ}
	if existing, ok := e.open[key]; ok {
		// Re-detection of the same condition never duplicates.
		return existing
	}

	a := &types.Alert{
		ID:         uuid.NewString(),
		EntityID:   entity.ID,
		EntityName: entity.Name,
		Type:       typ,
		Severity:   sev,
		Title:      title,
		Message:    msg,
		CreatedAt:  now,
	}
	e.open[key] = a
	e.byID[a.ID] = a
	e.history = append(e.history, a)

	e.logger.Info().
		Str("alert_id", a.ID).
		Str("entity", entity.ID).
		Str("type", string(typ)).
		Str("severity", string(sev)).
		Msg("alert created")

	e.emit(types.Event{Kind: types.EventAlertCreated, EntityID: entity.ID, Alert: copyAlert(a), Timestamp: now})
	return a
}

// resolveLocked closes the alert under key if one is open. Resolving an
// already-resolved alert is a no-op. Requires e.mu.
func (e *Engine) resolveLocked(key alertKey, now time.Time) {
	a, ok := e.open[key]
	if !ok {
		return
	}
	delete(e.open, key)
	a.Resolved = true
	a.ResolvedAt = &now

	e.logger.Info().
		Str("alert_id", a.ID).
		Str("entity", key.EntityID).
		Str("type", string(key.Type)).
		Dur("duration", now.Sub(a.CreatedAt)).
		Msg("alert resolved")

	e.emit(types.Event{
		Kind:      types.EventAlertResolved,
		EntityID:  key.EntityID,
		Alert:     copyAlert(a),
		Downtime:  now.Sub(a.CreatedAt),
		Timestamp: now,
	})
}

// eventAlert records an instantaneous condition (reboot, PPPoE churn): the
// alert enters history already resolved so the audit trail keeps it without
// ever violating the one-unresolved-per-key invariant.
func (e *Engine) eventAlert(entity registry.Entity, typ types.AlertType, title, msg string, now time.Time) {
	a := &types.Alert{
		ID:         uuid.NewString(),
		EntityID:   entity.ID,
		EntityName: entity.Name,
		Type:       typ,
		Severity:   types.SeverityInfo,
		Title:      title,
		Message:    msg,
		CreatedAt:  now,
		Resolved:   true,
		ResolvedAt: &now,
	}
	e.byID[a.ID] = a
	e.history = append(e.history, a)

	e.logger.Info().
		Str("entity", entity.ID).
		Str("type", string(typ)).
		Str("title", title).
		Msg("event alert")

	e.emit(types.Event{Kind: types.EventAlertCreated, EntityID: entity.ID, Alert: copyAlert(a), Timestamp: now})
}

// Acknowledge marks an alert seen by an operator. Acknowledgement suppresses
// further escalation but does not resolve the alert.
func (e *Engine) Acknowledge(id, by string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.byID[id]
	if !ok {
		return fmt.Errorf("alert %s not found", id)
	}
	if a.Acknowledged {
		return nil
	}
	now := time.Now()
	a.Acknowledged = true
	a.AckBy = by
	a.AckAt = &now

	e.logger.Info().Str("alert_id", id).Str("by", by).Msg("alert acknowledged")
	e.emit(types.Event{Kind: types.EventAlertAck, EntityID: a.EntityID, Alert: copyAlert(a), Timestamp: now})
	return nil
}

// Resolve closes an alert on operator request. Idempotent.
func (e *Engine) Resolve(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.byID[id]
	if !ok {
		return fmt.Errorf("alert %s not found", id)
	}
	if a.Resolved {
		return nil
	}
	e.resolveLocked(alertKey{a.EntityID, a.Type}, time.Now())
	return nil
}

// ActiveAlerts returns copies of all unresolved alerts.
func (e *Engine) ActiveAlerts() []types.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.Alert, 0, len(e.open))
	for _, a := range e.open {
		out = append(out, *a)
	}
	return out
}

// History returns copies of every alert ever raised, oldest first.
func (e *Engine) History() []types.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.Alert, 0, len(e.history))
	for _, a := range e.history {
		out = append(out, *a)
	}
	return out
}

// EntityStates reports the last-known state per entity for the API surface.
func (e *Engine) EntityStates() map[string]types.EntityState {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]types.EntityState, len(e.entities))
	for id, st := range e.entities {
		out[id] = st.state
	}
	return out
}

func (e *Engine) ensureEntity(entity registry.Entity) *entityStatus {
	st, ok := e.entities[entity.ID]
	if !ok {
		st = &entityStatus{entity: entity, state: types.StateUnknown}
		e.entities[entity.ID] = st
	} else {
		st.entity = entity
	}
	return st
}

// emit hands an event to the consumers without ever blocking the state
// machine; a full buffer drops the event (delivery is best-effort, the
// monitoring state itself is authoritative).
func (e *Engine) emit(ev types.Event) {
	select {
	case e.events <- ev:
	default:
		e.logger.Warn().Str("kind", string(ev.Kind)).Msg("event buffer full, dropping")
	}
}

func copyAlert(a *types.Alert) *types.Alert {
	c := *a
	return &c
}
