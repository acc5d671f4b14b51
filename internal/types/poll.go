package types

import "time"

// EntityState is the liveness state of a monitored entity. The most recent
// poll result decides the state; there is no debounce.
type EntityState string

const (
	StateUnknown EntityState = "unknown"
	StateUp      EntityState = "up"
	StateDown    EntityState = "down"
)

// LatencyInvalid marks the absence of a usable latency reading: a value that
// arrived but could not be parsed, or a probe kind that does not measure
// latency at all. Distinct from unreachable, which is expressed by
// Success=false.
const LatencyInvalid int64 = -1

// ResourceMetrics holds one /system/resource + /system/health sample. Fields
// a device model does not report stay nil; zero is a valid reading.
type ResourceMetrics struct {
	CPULoad       *int     `json:"cpu_load,omitempty"`
	CPUCount      *int     `json:"cpu_count,omitempty"`
	CPUFrequency  *int     `json:"cpu_frequency,omitempty"`
	TotalMemory   *int64   `json:"total_memory,omitempty"`
	FreeMemory    *int64   `json:"free_memory,omitempty"`
	TotalDisk     *int64   `json:"total_disk,omitempty"`
	FreeDisk      *int64   `json:"free_disk,omitempty"`
	UptimeSeconds *int64   `json:"uptime_seconds,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	Voltage       *float64 `json:"voltage,omitempty"`
	BoardName     string   `json:"board_name,omitempty"`
	Version       string   `json:"version,omitempty"`
}

// MemoryUsedPercent returns memory utilization, or -1 when totals are absent.
func (r *ResourceMetrics) MemoryUsedPercent() float64 {
	if r.TotalMemory == nil || r.FreeMemory == nil || *r.TotalMemory == 0 {
		return -1
	}
	return float64(*r.TotalMemory-*r.FreeMemory) / float64(*r.TotalMemory) * 100
}

// DiskUsedPercent returns disk utilization, or -1 when totals are absent.
func (r *ResourceMetrics) DiskUsedPercent() float64 {
	if r.TotalDisk == nil || r.FreeDisk == nil || *r.TotalDisk == 0 {
		return -1
	}
	return float64(*r.TotalDisk-*r.FreeDisk) / float64(*r.TotalDisk) * 100
}

// InterfaceMetrics holds one interface's counters and, when a previous sample
// was available, computed rates.
type InterfaceMetrics struct {
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
	Running   bool   `json:"running"`
	Disabled  bool   `json:"disabled"`
	RxBytes   int64  `json:"rx_bytes"`
	TxBytes   int64  `json:"tx_bytes"`
	RxPackets int64  `json:"rx_packets"`
	TxPackets int64  `json:"tx_packets"`
	RxDrops   int64  `json:"rx_drops"`
	TxDrops   int64  `json:"tx_drops"`
	RxErrors  int64  `json:"rx_errors"`
	TxErrors  int64  `json:"tx_errors"`

	RxBps int64 `json:"rx_bps,omitempty"`
	TxBps int64 `json:"tx_bps,omitempty"`
}

// PppoeSession is one active PPPoE session on a router.
type PppoeSession struct {
	Username  string `json:"username"`
	Address   string `json:"address"`
	SessionID string `json:"session_id"`
	Uptime    string `json:"uptime"`
	CallerID  string `json:"caller_id,omitempty"`
}

// PollResult is the ephemeral outcome of one poll cycle for one entity.
type PollResult struct {
	EntityID   string    `json:"entity_id"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
	LatencyMs  int64     `json:"latency_ms"`
	LossPct    int       `json:"loss_pct,omitempty"`
	Err        string    `json:"error,omitempty"`
	Resources  *ResourceMetrics   `json:"resources,omitempty"`
	Interfaces []InterfaceMetrics `json:"interfaces,omitempty"`
	Pppoe      []PppoeSession     `json:"pppoe,omitempty"`
}
