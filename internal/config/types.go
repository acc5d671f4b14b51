package config

import "time"

// Config is the complete engine configuration. The engine treats this as
// static input; persistence and the admin surface that edits it live outside
// this process.
type Config struct {
	Global     GlobalConfig            `yaml:"global"`
	Thresholds ThresholdConfig         `yaml:"thresholds"`
	Devices    map[string]DeviceConfig `yaml:"devices"`
	Netwatch   []NetwatchConfig        `yaml:"netwatch,omitempty"`
	Pppoe      []PppoeConfig           `yaml:"pppoe,omitempty"`
	Groups     map[string]GroupConfig  `yaml:"notification_groups,omitempty"`
}

// GlobalConfig contains engine-wide settings.
type GlobalConfig struct {
	PollInterval       time.Duration `yaml:"poll_interval"`
	CycleTimeout       time.Duration `yaml:"cycle_timeout"`
	EscalationInterval time.Duration `yaml:"escalation_interval"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	RegistryRefresh    time.Duration `yaml:"registry_refresh"`
	KeepaliveInterval  time.Duration `yaml:"keepalive_interval"`
	WorkerLimit        int           `yaml:"worker_limit"`
	PingCount          int           `yaml:"ping_count"`
	APIPort            int           `yaml:"api_port"`
	DefaultGroup       string        `yaml:"default_group,omitempty"`
}

// ThresholdConfig holds resource alert thresholds in percent. An alert opens
// above the threshold and closes once the value drops below threshold minus
// the hysteresis margin.
type ThresholdConfig struct {
	CPU    float64 `yaml:"cpu"`
	Memory float64 `yaml:"memory"`
	Disk   float64 `yaml:"disk"`
	Margin float64 `yaml:"margin"`
}

// DeviceConfig defines one router to monitor over its API.
type DeviceConfig struct {
	Address     string        `yaml:"address"`
	Port        int           `yaml:"port,omitempty"`
	Username    string        `yaml:"username"`
	PasswordEnv string        `yaml:"password_env"`
	Interval    time.Duration `yaml:"interval,omitempty"`
	Group       string        `yaml:"group,omitempty"`
	Location    string        `yaml:"location,omitempty"`
	Latitude    float64       `yaml:"latitude,omitempty"`
	Longitude   float64       `yaml:"longitude,omitempty"`
}

// NetwatchConfig defines a liveness target pinged through a router.
type NetwatchConfig struct {
	Name     string        `yaml:"name"`
	Address  string        `yaml:"address"`
	Via      string        `yaml:"via"`
	Interval time.Duration `yaml:"interval,omitempty"`
	Group    string        `yaml:"group,omitempty"`
}

// PppoeConfig defines a PPPoE client whose session presence is monitored on
// its access concentrator.
type PppoeConfig struct {
	Name     string        `yaml:"name"`
	Username string        `yaml:"username"`
	Via      string        `yaml:"via"`
	Interval time.Duration `yaml:"interval,omitempty"`
	Group    string        `yaml:"group,omitempty"`
}

// GroupConfig is one notification group's channel set.
type GroupConfig struct {
	Telegram *TelegramChannel `yaml:"telegram,omitempty"`
	WhatsApp *WhatsAppChannel `yaml:"whatsapp,omitempty"`
	Template string           `yaml:"template,omitempty"`
}

// TelegramChannel configures Bot API delivery.
type TelegramChannel struct {
	TokenEnv string `yaml:"token_env"`
	ChatID   string `yaml:"chat_id"`
	ThreadID int    `yaml:"thread_id,omitempty"`
}

// WhatsAppChannel configures delivery through a WhatsApp HTTP bridge.
type WhatsAppChannel struct {
	Endpoint string `yaml:"endpoint"`
	Target   string `yaml:"target"`
	TokenEnv string `yaml:"token_env,omitempty"`
}
