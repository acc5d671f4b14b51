package sampler

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mikromon/mikromon/internal/routeros"
	"github.com/mikromon/mikromon/internal/types"
)

// Runner is the slice of the protocol client the sampler needs. Satisfied by
// *routeros.Client.
type Runner interface {
	Run(ctx context.Context, words ...string) ([]routeros.Sentence, error)
}

// ParseError indicates a metric value that could not be interpreted.
type ParseError struct {
	Field string
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sampler: cannot parse %s value %q", e.Field, e.Value)
}

// LatencyResult is the reduced outcome of a ping run.
type LatencyResult struct {
	Ms        int64
	LossPct   int
	Reachable bool
}

// MeasureLatency pings target through the device session and reduces the
// probe replies to one representative latency: the most recent successful
// probe wins, partial failures are recorded as loss. All probes failed means
// unreachable.
func MeasureLatency(ctx context.Context, r Runner, target string, count int) (LatencyResult, error) {
	if count <= 0 {
		count = 3
	}

	replies, err := r.Run(ctx, "/ping",
		"=address="+target,
		"=count="+strconv.Itoa(count))
	if err != nil {
		return LatencyResult{Ms: types.LatencyInvalid}, err
	}

	res := LatencyResult{Ms: types.LatencyInvalid}
	probes, failed := 0, 0

	for _, s := range replies {
		probes++
		if status, ok := s.Map["status"]; ok && status != "" {
			failed++
			continue
		}
		t, ok := s.Map["time"]
		if !ok {
			failed++
			continue
		}
		res.Ms = ParseLatencyMs(t)
		res.Reachable = true
	}

	if probes == 0 || failed == probes {
		return LatencyResult{Ms: types.LatencyInvalid}, nil
	}
	res.LossPct = failed * 100 / probes
	return res, nil
}

// ParseLatencyMs converts a device-formatted latency string to integer
// milliseconds. Microsecond values round to the nearest millisecond with a
// floor of 1; bare seconds multiply out; an unparsable value yields the
// invalid sentinel.
func ParseLatencyMs(s string) int64 {
	s = strings.TrimSpace(s)

	switch {
	case strings.Contains(s, "us"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "us"), 64)
		if err != nil {
			return types.LatencyInvalid
		}
		ms := int64(math.Round(v / 1000))
		if ms < 1 {
			ms = 1
		}
		return ms
	case strings.HasSuffix(s, "ms"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "ms"), 64)
		if err != nil {
			return types.LatencyInvalid
		}
		return int64(math.Round(v))
	case strings.HasSuffix(s, "s"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64)
		if err != nil {
			return types.LatencyInvalid
		}
		return int64(math.Round(v * 1000))
	default:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return types.LatencyInvalid
		}
		return int64(math.Round(v))
	}
}

// SampleResources reads /system/resource and, where the board reports it,
// /system/health. Absent fields stay nil; zero is a valid reading.
func SampleResources(ctx context.Context, r Runner) (*types.ResourceMetrics, error) {
	replies, err := r.Run(ctx, "/system/resource/print")
	if err != nil {
		return nil, err
	}
	if len(replies) == 0 {
		return nil, &ParseError{Field: "resource", Value: "empty reply"}
	}

	m := replies[0].Map
	res := &types.ResourceMetrics{
		BoardName: m["board-name"],
		Version:   m["version"],
	}
	res.CPULoad = intField(m, "cpu-load")
	res.CPUCount = intField(m, "cpu-count")
	res.CPUFrequency = intField(m, "cpu-frequency")
	res.TotalMemory = int64Field(m, "total-memory")
	res.FreeMemory = int64Field(m, "free-memory")
	res.TotalDisk = int64Field(m, "total-hdd-space")
	res.FreeDisk = int64Field(m, "free-hdd-space")

	if up, ok := m["uptime"]; ok {
		if secs, err := ParseDurationSeconds(up); err == nil {
			res.UptimeSeconds = &secs
		}
	}

	// Health is absent on CHR and some boards; a trap here is not a failure.
	if health, err := r.Run(ctx, "/system/health/print"); err == nil {
		applyHealth(res, health)
	}

	return res, nil
}

// applyHealth handles both health reply shapes: flat attribute maps on older
// RouterOS and name/value rows on 7.x.
func applyHealth(res *types.ResourceMetrics, replies []routeros.Sentence) {
	for _, s := range replies {
		if name, ok := s.Map["name"]; ok {
			val := s.Map["value"]
			switch name {
			case "temperature", "cpu-temperature":
				res.Temperature = floatField(map[string]string{"v": val}, "v")
			case "voltage":
				res.Voltage = floatField(map[string]string{"v": val}, "v")
			}
			continue
		}
		if res.Temperature == nil {
			res.Temperature = floatField(s.Map, "temperature")
		}
		if res.Voltage == nil {
			res.Voltage = floatField(s.Map, "voltage")
		}
	}
}

// SampleInterfaces reads per-interface counters. Rates are not computed here;
// the sampler is stateless and the caller supplies prior counters to
// ComputeRates.
func SampleInterfaces(ctx context.Context, r Runner) ([]types.InterfaceMetrics, error) {
	replies, err := r.Run(ctx, "/interface/print", "=stats=")
	if err != nil {
		return nil, err
	}

	out := make([]types.InterfaceMetrics, 0, len(replies))
	for _, s := range replies {
		m := s.Map
		if m["name"] == "" {
			continue
		}
		out = append(out, types.InterfaceMetrics{
			Name:      m["name"],
			Type:      m["type"],
			Running:   m["running"] == "true",
			Disabled:  m["disabled"] == "true",
			RxBytes:   int64Value(m, "rx-byte"),
			TxBytes:   int64Value(m, "tx-byte"),
			RxPackets: int64Value(m, "rx-packet"),
			TxPackets: int64Value(m, "tx-packet"),
			RxDrops:   int64Value(m, "rx-drop"),
			TxDrops:   int64Value(m, "tx-drop"),
			RxErrors:  int64Value(m, "rx-error"),
			TxErrors:  int64Value(m, "tx-error"),
		})
	}
	return out, nil
}

// ComputeRates fills RxBps/TxBps on cur from the previous sample's counters.
// Counter resets (negative deltas) and a non-positive elapsed leave the rates
// at zero.
func ComputeRates(prev map[string]types.InterfaceMetrics, prevAt time.Time, cur []types.InterfaceMetrics, now time.Time) []types.InterfaceMetrics {
	elapsed := now.Sub(prevAt).Seconds()
	if elapsed <= 0 || prev == nil {
		return cur
	}

	for i := range cur {
		p, ok := prev[cur[i].Name]
		if !ok {
			continue
		}
		if d := cur[i].RxBytes - p.RxBytes; d >= 0 {
			cur[i].RxBps = int64(float64(d*8) / elapsed)
		}
		if d := cur[i].TxBytes - p.TxBytes; d >= 0 {
			cur[i].TxBps = int64(float64(d*8) / elapsed)
		}
	}
	return cur
}

// SamplePppoeSessions lists currently active PPPoE sessions.
func SamplePppoeSessions(ctx context.Context, r Runner) ([]types.PppoeSession, error) {
	replies, err := r.Run(ctx, "/ppp/active/print")
	if err != nil {
		return nil, err
	}

	out := make([]types.PppoeSession, 0, len(replies))
	for _, s := range replies {
		m := s.Map
		if svc, ok := m["service"]; ok && svc != "" && svc != "pppoe" {
			continue
		}
		if m["name"] == "" {
			continue
		}
		out = append(out, types.PppoeSession{
			Username:  m["name"],
			Address:   m["address"],
			SessionID: m["session-id"],
			Uptime:    m["uptime"],
			CallerID:  m["caller-id"],
		})
	}
	return out, nil
}

// ParseDurationSeconds parses RouterOS duration strings like "1w2d3h4m5s" or
// "4h2m3s540ms" into whole seconds.
func ParseDurationSeconds(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &ParseError{Field: "duration", Value: s}
	}

	var total float64
	i := 0
	for i < len(s) {
		j := i
		for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == '.') {
			j++
		}
		if j == i {
			return 0, &ParseError{Field: "duration", Value: s}
		}
		v, err := strconv.ParseFloat(s[i:j], 64)
		if err != nil {
			return 0, &ParseError{Field: "duration", Value: s}
		}

		k := j
		for k < len(s) && (s[k] < '0' || s[k] > '9') {
			k++
		}
		switch s[j:k] {
		case "w":
			total += v * 7 * 24 * 3600
		case "d":
			total += v * 24 * 3600
		case "h":
			total += v * 3600
		case "m":
			total += v * 60
		case "s":
			total += v
		case "ms":
			total += v / 1000
		case "us":
			total += v / 1e6
		default:
			return 0, &ParseError{Field: "duration", Value: s}
		}
		i = k
	}
	return int64(total), nil
}

func intField(m map[string]string, key string) *int {
	v, ok := m[key]
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(v, "MHz"))
	if err != nil {
		return nil
	}
	return &n
}

func int64Field(m map[string]string, key string) *int64 {
	v, ok := m[key]
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func int64Value(m map[string]string, key string) int64 {
	n, _ := strconv.ParseInt(m[key], 10, 64)
	return n
}

func floatField(m map[string]string, key string) *float64 {
	v, ok := m[key]
	if !ok || v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "C"), 64)
	if err != nil {
		return nil
	}
	return &f
}
