package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPollInterval       = 60 * time.Second
	defaultCycleTimeout       = 30 * time.Second
	defaultEscalationInterval = 15 * time.Minute
	defaultSweepInterval      = 5 * time.Minute
	defaultRegistryRefresh    = 60 * time.Second
	defaultKeepaliveInterval  = 30 * time.Second
	defaultWorkerLimit        = 10
	defaultPingCount          = 3
	defaultAPIPort            = 8728 + 1000 // keeps clear of the RouterOS API port itself
	defaultAPIDevicePort      = 8728
	defaultCPUThreshold       = 90
	defaultMemoryThreshold    = 85
	defaultDiskThreshold      = 90
	defaultMargin             = 5
)

// Load reads and validates the engine configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	g := &cfg.Global
	if g.PollInterval == 0 {
		g.PollInterval = defaultPollInterval
	}
	if g.CycleTimeout == 0 {
		g.CycleTimeout = defaultCycleTimeout
	}
	if g.EscalationInterval == 0 {
		g.EscalationInterval = defaultEscalationInterval
	}
	if g.SweepInterval == 0 {
		g.SweepInterval = defaultSweepInterval
	}
	if g.RegistryRefresh == 0 {
		g.RegistryRefresh = defaultRegistryRefresh
	}
	if g.KeepaliveInterval == 0 {
		g.KeepaliveInterval = defaultKeepaliveInterval
	}
	if g.WorkerLimit == 0 {
		g.WorkerLimit = defaultWorkerLimit
	}
	if g.PingCount == 0 {
		g.PingCount = defaultPingCount
	}
	if g.APIPort == 0 {
		g.APIPort = defaultAPIPort
	}

	t := &cfg.Thresholds
	if t.CPU == 0 {
		t.CPU = defaultCPUThreshold
	}
	if t.Memory == 0 {
		t.Memory = defaultMemoryThreshold
	}
	if t.Disk == 0 {
		t.Disk = defaultDiskThreshold
	}
	if t.Margin == 0 {
		t.Margin = defaultMargin
	}

	for name, dev := range cfg.Devices {
		if dev.Port == 0 {
			dev.Port = defaultAPIDevicePort
		}
		if dev.Interval == 0 {
			dev.Interval = g.PollInterval
		}
		if dev.Group == "" {
			dev.Group = g.DefaultGroup
		}
		cfg.Devices[name] = dev
	}
	for i := range cfg.Netwatch {
		if cfg.Netwatch[i].Interval == 0 {
			cfg.Netwatch[i].Interval = g.PollInterval
		}
		if cfg.Netwatch[i].Group == "" {
			cfg.Netwatch[i].Group = g.DefaultGroup
		}
	}
	for i := range cfg.Pppoe {
		if cfg.Pppoe[i].Interval == 0 {
			cfg.Pppoe[i].Interval = g.PollInterval
		}
		if cfg.Pppoe[i].Group == "" {
			cfg.Pppoe[i].Group = g.DefaultGroup
		}
	}
}

// Validate checks cross-references and required fields.
func Validate(cfg *Config) error {
	if len(cfg.Devices) == 0 && len(cfg.Netwatch) == 0 {
		return fmt.Errorf("no devices or netwatch targets configured")
	}

	for name, dev := range cfg.Devices {
		if dev.Address == "" {
			return fmt.Errorf("device %s: address is required", name)
		}
		if dev.Username == "" {
			return fmt.Errorf("device %s: username is required", name)
		}
		if dev.Group != "" {
			if _, ok := cfg.Groups[dev.Group]; !ok {
				return fmt.Errorf("device %s: references unknown notification group %s", name, dev.Group)
			}
		}
	}

	for _, nw := range cfg.Netwatch {
		if nw.Name == "" || nw.Address == "" {
			return fmt.Errorf("netwatch target: name and address are required")
		}
		if _, ok := cfg.Devices[nw.Via]; !ok {
			return fmt.Errorf("netwatch %s: references unknown via device %s", nw.Name, nw.Via)
		}
		if nw.Group != "" {
			if _, ok := cfg.Groups[nw.Group]; !ok {
				return fmt.Errorf("netwatch %s: references unknown notification group %s", nw.Name, nw.Group)
			}
		}
	}

	for _, pc := range cfg.Pppoe {
		if pc.Name == "" || pc.Username == "" {
			return fmt.Errorf("pppoe client: name and username are required")
		}
		if _, ok := cfg.Devices[pc.Via]; !ok {
			return fmt.Errorf("pppoe %s: references unknown via device %s", pc.Name, pc.Via)
		}
	}

	for name, grp := range cfg.Groups {
		if grp.Telegram == nil && grp.WhatsApp == nil {
			return fmt.Errorf("notification group %s: no channels configured", name)
		}
		if grp.Telegram != nil {
			if grp.Telegram.TokenEnv == "" || grp.Telegram.ChatID == "" {
				return fmt.Errorf("notification group %s: telegram requires token_env and chat_id", name)
			}
		}
		if grp.WhatsApp != nil {
			if grp.WhatsApp.Endpoint == "" || grp.WhatsApp.Target == "" {
				return fmt.Errorf("notification group %s: whatsapp requires endpoint and target", name)
			}
		}
	}

	t := cfg.Thresholds
	for _, v := range []float64{t.CPU, t.Memory, t.Disk} {
		if v <= 0 || v > 100 {
			return fmt.Errorf("thresholds must be within (0, 100], got %.1f", v)
		}
	}
	if t.Margin < 0 || t.Margin >= t.CPU {
		return fmt.Errorf("threshold margin %.1f is out of range", t.Margin)
	}

	return nil
}

// Password resolves a device password from its configured environment
// variable. Secrets never live in the YAML itself.
func (d DeviceConfig) Password() string {
	if d.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(d.PasswordEnv)
}
