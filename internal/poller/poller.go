package poller

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mikromon/mikromon/internal/alerter"
	"github.com/mikromon/mikromon/internal/config"
	"github.com/mikromon/mikromon/internal/registry"
	"github.com/mikromon/mikromon/internal/routeros"
	"github.com/mikromon/mikromon/internal/sampler"
	"github.com/mikromon/mikromon/internal/types"
)

// Session is the slice of the protocol client one poll cycle consumes.
// Satisfied by *routeros.Client.
type Session interface {
	Run(ctx context.Context, words ...string) ([]routeros.Sentence, error)
	Close() error
}

// Dialer opens a fresh authenticated session. Injectable for tests.
type Dialer func(ctx context.Context, addr string, creds routeros.Credentials) (Session, error)

func defaultDialer(logger zerolog.Logger) Dialer {
	return func(ctx context.Context, addr string, creds routeros.Credentials) (Session, error) {
		return routeros.Dial(ctx, addr, creds, logger)
	}
}

// Poller schedules poll cycles: one goroutine per entity ticking at that
// entity's interval, with a shared semaphore bounding how many cycles touch
// the network at once. Every cycle opens its own session and closes it before
// reporting, so a wedged device never poisons the next cycle.
type Poller struct {
	cfg    *config.Config
	prov   registry.Provider
	engine *alerter.Engine
	dial   Dialer
	logger zerolog.Logger

	sem chan struct{}

	mu    sync.Mutex
	loops map[string]*entityLoop
	wg    sync.WaitGroup
}

// entityLoop tracks one running poll loop together with the entity definition
// it was started with, so reconciliation can detect reconfiguration.
type entityLoop struct {
	entity registry.Entity
	cancel context.CancelFunc
}

// New creates a poller over the given entity provider and alert engine.
func New(cfg *config.Config, prov registry.Provider, engine *alerter.Engine, logger zerolog.Logger) *Poller {
	scoped := logger.With().Str("component", "poller").Logger()
	return &Poller{
		cfg:    cfg,
		prov:   prov,
		engine: engine,
		dial:   defaultDialer(scoped),
		logger: scoped,
		sem:    make(chan struct{}, cfg.Global.WorkerLimit),
		loops:  make(map[string]*entityLoop),
	}
}

// Run reconciles entity loops against the provider until ctx is cancelled,
// then waits for in-flight cycles to drain.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info().
		Int("workers", cap(p.sem)).
		Dur("refresh", p.cfg.Global.RegistryRefresh).
		Msg("poller started")

	p.reconcile(ctx)

	ticker := time.NewTicker(p.cfg.Global.RegistryRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			for _, l := range p.loops {
				l.cancel()
			}
			p.mu.Unlock()
			p.wg.Wait()
			p.logger.Info().Msg("poller stopped")
			return
		case <-ticker.C:
			p.reconcile(ctx)
		}
	}
}

// reconcile starts loops for entities new to the snapshot, restarts loops
// whose entity definition changed (address, interval, group, via), and
// cancels loops whose entity disappeared.
func (p *Poller) reconcile(ctx context.Context) {
	snapshot := p.prov.Snapshot()
	seen := make(map[string]struct{}, len(snapshot))

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ent := range snapshot {
		seen[ent.ID] = struct{}{}
		if running, ok := p.loops[ent.ID]; ok {
			if running.entity == ent {
				continue
			}
			running.cancel()
			p.logger.Info().Str("entity", ent.ID).Msg("entity reconfigured, restarting loop")
		}
		loopCtx, cancel := context.WithCancel(ctx)
		p.loops[ent.ID] = &entityLoop{entity: ent, cancel: cancel}
		p.wg.Add(1)
		go p.loop(loopCtx, ent)
	}

	for id, l := range p.loops {
		if _, ok := seen[id]; !ok {
			l.cancel()
			delete(p.loops, id)
			p.logger.Info().Str("entity", id).Msg("entity removed from schedule")
		}
	}
}

// loop polls one entity at its configured interval. The first cycle runs
// immediately so a fresh process reaches a known state fast.
func (p *Poller) loop(ctx context.Context, ent registry.Entity) {
	defer p.wg.Done()

	interval := ent.Interval
	if interval <= 0 {
		interval = p.cfg.Global.PollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.pollGated(ctx, ent)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollGated(ctx, ent)
		}
	}
}

// pollGated waits for a worker slot, then runs one cycle under the hard cycle
// timeout.
func (p *Poller) pollGated(ctx context.Context, ent registry.Entity) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-p.sem }()

	cctx, cancel := context.WithTimeout(ctx, p.cfg.Global.CycleTimeout)
	defer cancel()

	res := p.pollOnce(cctx, ent)
	p.engine.HandlePoll(ent, res)
}

// pollOnce runs one cycle for one entity and always returns a result; every
// failure path becomes Success=false with the error recorded.
func (p *Poller) pollOnce(ctx context.Context, ent registry.Entity) types.PollResult {
	res := types.PollResult{
		EntityID:  ent.ID,
		Timestamp: time.Now(),
		LatencyMs: types.LatencyInvalid,
	}

	dev, ok := ent.Device(p.cfg)
	if !ok {
		res.Err = fmt.Sprintf("no device config for via %q", ent.Via)
		return res
	}

	start := time.Now()
	sess, err := p.dial(ctx, deviceAddr(dev), routeros.Credentials{
		Username: dev.Username,
		Password: dev.Password(),
	})
	if err != nil {
		res.Err = err.Error()
		return res
	}
	defer sess.Close()

	// A cycle that blows its deadline must not leave a read hanging past it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			sess.Close()
		case <-done:
		}
	}()

	switch ent.Kind {
	case registry.KindNetwatch:
		p.pollNetwatch(ctx, sess, ent, &res)
	case registry.KindPppoe:
		p.pollPppoe(ctx, sess, ent, &res)
	default:
		p.pollRouter(ctx, sess, ent, start, &res)
	}
	return res
}

// pollRouter treats a completed connect+login handshake as liveness and its
// elapsed time as the latency reading, then samples whatever the device will
// give. A failed metric sample degrades the result, it does not flip the
// router down.
func (p *Poller) pollRouter(ctx context.Context, sess Session, ent registry.Entity, start time.Time, res *types.PollResult) {
	res.Success = true
	res.LatencyMs = time.Since(start).Milliseconds()

	resources, err := sampler.SampleResources(ctx, sess)
	if err != nil {
		p.logger.Warn().Str("entity", ent.ID).Err(err).Msg("resource sample failed")
	} else {
		res.Resources = resources
	}

	ifaces, err := sampler.SampleInterfaces(ctx, sess)
	if err != nil {
		p.logger.Warn().Str("entity", ent.ID).Err(err).Msg("interface sample failed")
	} else {
		prev, prevAt := p.engine.PrevInterfaces(ent.ID)
		res.Interfaces = sampler.ComputeRates(prev, prevAt, ifaces, res.Timestamp)
	}

	sessions, err := sampler.SamplePppoeSessions(ctx, sess)
	if err != nil {
		p.logger.Warn().Str("entity", ent.ID).Err(err).Msg("pppoe sample failed")
	} else {
		res.Pppoe = sessions
	}
}

// pollNetwatch pings the target through the via router's session.
func (p *Poller) pollNetwatch(ctx context.Context, sess Session, ent registry.Entity, res *types.PollResult) {
	lat, err := sampler.MeasureLatency(ctx, sess, ent.Address, p.cfg.Global.PingCount)
	if err != nil {
		res.Err = err.Error()
		return
	}
	if !lat.Reachable {
		res.Err = "host unreachable"
		return
	}
	res.Success = true
	res.LatencyMs = lat.Ms
	res.LossPct = lat.LossPct
}

// pollPppoe checks that the client's session appears in the via router's
// active list. Presence is not a latency measurement, so LatencyMs keeps the
// invalid sentinel.
func (p *Poller) pollPppoe(ctx context.Context, sess Session, ent registry.Entity, res *types.PollResult) {
	sessions, err := sampler.SamplePppoeSessions(ctx, sess)
	if err != nil {
		res.Err = err.Error()
		return
	}
	if !alerter.IsSessionActive(sessions, ent.PppoeUsername) {
		res.Err = fmt.Sprintf("session %s not active", ent.PppoeUsername)
		return
	}
	res.Success = true
}

func deviceAddr(dev config.DeviceConfig) string {
	return dev.Address + ":" + strconv.Itoa(dev.Port)
}
