package alerter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mikromon/mikromon/internal/types"
)

// Threshold alerts open above the configured limit and close only once the
// value drops below limit minus the hysteresis margin, so a reading hovering
// at the exact boundary cannot flap the alert.
type thresholdCheck struct {
	typ   types.AlertType
	label string
	value float64
	limit float64
}

func (e *Engine) checkThresholds(st *entityStatus, res *types.ResourceMetrics, now time.Time) {
	t := e.cfg.Thresholds

	checks := make([]thresholdCheck, 0, 3)
	if res.CPULoad != nil {
		checks = append(checks, thresholdCheck{types.AlertHighCPU, "CPU load", float64(*res.CPULoad), t.CPU})
	}
	if v := res.MemoryUsedPercent(); v >= 0 {
		checks = append(checks, thresholdCheck{types.AlertHighMemory, "memory usage", v, t.Memory})
	}
	if v := res.DiskUsedPercent(); v >= 0 {
		checks = append(checks, thresholdCheck{types.AlertHighDisk, "disk usage", v, t.Disk})
	}

	for _, c := range checks {
		key := alertKey{st.entity.ID, c.typ}
		_, isOpen := e.open[key]

		switch {
		case !isOpen && c.value > c.limit:
			title := fmt.Sprintf("High %s on %s", c.label, st.entity.Name)
			msg := fmt.Sprintf("%s at %.1f%% (threshold %.1f%%)", c.label, c.value, c.limit)
			e.createOrReuseLocked(st.entity, c.typ, types.SeverityWarning, title, msg, now)
		case isOpen && c.value < c.limit-t.Margin:
			e.resolveLocked(key, now)
		}
	}
}

// checkReboot detects an uptime counter that moved backwards.
func (e *Engine) checkReboot(st *entityStatus, res *types.ResourceMetrics, now time.Time) {
	if res.UptimeSeconds == nil {
		return
	}
	if st.prevUptime != nil && *res.UptimeSeconds < *st.prevUptime {
		title := fmt.Sprintf("%s rebooted", st.entity.Name)
		msg := fmt.Sprintf("uptime dropped from %ds to %ds", *st.prevUptime, *res.UptimeSeconds)
		e.eventAlert(st.entity, types.AlertReboot, title, msg, now)
	}
	st.prevUptime = res.UptimeSeconds
}

// checkInterfaces keeps one interface_down alert open while any enabled
// interface is not running, and tracks counters for the next rate sample.
func (e *Engine) checkInterfaces(st *entityStatus, ifaces []types.InterfaceMetrics, now time.Time) {
	st.downInterfaces = make(map[string]struct{})
	for _, iface := range ifaces {
		if !iface.Disabled && !iface.Running {
			st.downInterfaces[iface.Name] = struct{}{}
		}
	}

	key := alertKey{st.entity.ID, types.AlertInterfaceDown}
	_, isOpen := e.open[key]

	if len(st.downInterfaces) > 0 && !isOpen {
		names := make([]string, 0, len(st.downInterfaces))
		for name := range st.downInterfaces {
			names = append(names, name)
		}
		sort.Strings(names)
		title := fmt.Sprintf("Interface down on %s", st.entity.Name)
		msg := "not running: " + strings.Join(names, ", ")
		e.createOrReuseLocked(st.entity, types.AlertInterfaceDown, types.SeverityCritical, title, msg, now)
	}
	if len(st.downInterfaces) == 0 && isOpen {
		e.resolveLocked(key, now)
	}

	st.prevIfaces = make(map[string]types.InterfaceMetrics, len(ifaces))
	for _, iface := range ifaces {
		st.prevIfaces[iface.Name] = iface
	}
	st.prevIfacesAt = now
}

// PrevInterfaces exposes the previous counter sample so the poll cycle can
// compute rates; the sampler itself stays stateless.
func (e *Engine) PrevInterfaces(entityID string) (map[string]types.InterfaceMetrics, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.entities[entityID]
	if !ok || st.prevIfaces == nil {
		return nil, time.Time{}
	}
	out := make(map[string]types.InterfaceMetrics, len(st.prevIfaces))
	for k, v := range st.prevIfaces {
		out[k] = v
	}
	return out, st.prevIfacesAt
}

// checkPppoeSessions diffs the active session set and records connect and
// disconnect events.
func (e *Engine) checkPppoeSessions(st *entityStatus, sessions []types.PppoeSession, now time.Time) {
	cur := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		cur[s.Username] = struct{}{}
	}

	if st.prevPppoe != nil {
		for _, s := range sessions {
			if _, ok := st.prevPppoe[s.Username]; !ok {
				e.eventAlert(st.entity, types.AlertPppoeConnect,
					fmt.Sprintf("PPPoE client %s connected", s.Username),
					fmt.Sprintf("address %s via %s", s.Address, st.entity.Name), now)
			}
		}
		for user := range st.prevPppoe {
			if _, ok := cur[user]; !ok {
				e.eventAlert(st.entity, types.AlertPppoeDisconnect,
					fmt.Sprintf("PPPoE client %s disconnected", user),
					fmt.Sprintf("was connected via %s", st.entity.Name), now)
			}
		}
	}
	st.prevPppoe = cur
}

// IsSessionActive answers whether a PPPoE username currently appears in the
// latest actives listing fed through a router entity's poll.
func IsSessionActive(sessions []types.PppoeSession, username string) bool {
	for _, s := range sessions {
		if s.Username == username {
			return true
		}
	}
	return false
}
