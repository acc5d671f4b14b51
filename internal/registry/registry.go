package registry

import (
	"sort"
	"time"

	"github.com/mikromon/mikromon/internal/config"
)

// Kind distinguishes the monitored entity flavors.
type Kind string

const (
	KindRouter   Kind = "router"
	KindNetwatch Kind = "netwatch"
	KindPppoe    Kind = "pppoe"
)

// Entity is one monitored target as seen by the engine: a read-mostly
// snapshot row owned by the registry, refreshed each scheduling pass.
type Entity struct {
	ID       string
	Name     string
	Kind     Kind
	Address  string
	Interval time.Duration
	Group    string

	// Via names the router whose API session probes this entity. Router
	// entities are their own session endpoint.
	Via string

	// PppoeUsername identifies the session to look for on the via router.
	PppoeUsername string

	Location  string
	Latitude  float64
	Longitude float64
}

// Device returns the router config this entity's poll cycle must connect to.
func (e Entity) Device(cfg *config.Config) (config.DeviceConfig, bool) {
	d, ok := cfg.Devices[e.Via]
	return d, ok
}

// Provider supplies the current entity set. The engine consumes snapshots and
// never mutates them.
type Provider interface {
	Snapshot() []Entity
}

// ConfigProvider derives the entity set from static YAML configuration. A
// database-backed registry substitutes here without touching the scheduler.
type ConfigProvider struct {
	cfg *config.Config
}

// NewConfigProvider builds a provider over a loaded config.
func NewConfigProvider(cfg *config.Config) *ConfigProvider {
	return &ConfigProvider{cfg: cfg}
}

// Snapshot materializes the entity list in a stable order.
func (p *ConfigProvider) Snapshot() []Entity {
	var out []Entity

	for name, dev := range p.cfg.Devices {
		out = append(out, Entity{
			ID:        "router/" + name,
			Name:      name,
			Kind:      KindRouter,
			Address:   dev.Address,
			Interval:  dev.Interval,
			Group:     dev.Group,
			Via:       name,
			Location:  dev.Location,
			Latitude:  dev.Latitude,
			Longitude: dev.Longitude,
		})
	}
	for _, nw := range p.cfg.Netwatch {
		out = append(out, Entity{
			ID:       "netwatch/" + nw.Name,
			Name:     nw.Name,
			Kind:     KindNetwatch,
			Address:  nw.Address,
			Interval: nw.Interval,
			Group:    nw.Group,
			Via:      nw.Via,
		})
	}
	for _, pc := range p.cfg.Pppoe {
		out = append(out, Entity{
			ID:            "pppoe/" + pc.Name,
			Name:          pc.Name,
			Kind:          KindPppoe,
			Interval:      pc.Interval,
			Group:         pc.Group,
			Via:           pc.Via,
			PppoeUsername: pc.Username,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
