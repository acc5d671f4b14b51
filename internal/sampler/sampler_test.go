package sampler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikromon/mikromon/internal/routeros"
	"github.com/mikromon/mikromon/internal/types"
)

// fakeRunner answers commands from a canned script keyed by the command word.
type fakeRunner struct {
	replies map[string][]routeros.Sentence
	errs    map[string]error
	calls   []string
}

func (f *fakeRunner) Run(_ context.Context, words ...string) ([]routeros.Sentence, error) {
	f.calls = append(f.calls, words[0])
	if err, ok := f.errs[words[0]]; ok {
		return nil, err
	}
	return f.replies[words[0]], nil
}

func re(pairs ...string) routeros.Sentence {
	s := routeros.Sentence{Word: "!re", Map: make(map[string]string)}
	for i := 0; i+1 < len(pairs); i += 2 {
		s.Map[pairs[i]] = pairs[i+1]
	}
	return s
}

func TestParseLatencyMs(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"500us", 1},
		{"1800us", 2},
		{"2s", 2000},
		{"15ms", 15},
		{"15.6ms", 16},
		{"0.5s", 500},
		{"42", 42},
		{"abc", types.LatencyInvalid},
		{"", types.LatencyInvalid},
		{"msms", types.LatencyInvalid},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseLatencyMs(tc.in), "input %q", tc.in)
	}
}

func TestMeasureLatencyMostRecentSuccessWins(t *testing.T) {
	f := &fakeRunner{replies: map[string][]routeros.Sentence{
		"/ping": {
			re("time", "10ms"),
			re("status", "timeout"),
			re("time", "14ms"),
		},
	}}

	res, err := MeasureLatency(context.Background(), f, "10.0.0.1", 3)
	require.NoError(t, err)
	assert.True(t, res.Reachable)
	assert.Equal(t, int64(14), res.Ms)
	assert.Equal(t, 33, res.LossPct)
}

func TestMeasureLatencyAllFailedIsUnreachable(t *testing.T) {
	f := &fakeRunner{replies: map[string][]routeros.Sentence{
		"/ping": {
			re("status", "timeout"),
			re("status", "timeout"),
		},
	}}

	res, err := MeasureLatency(context.Background(), f, "10.0.0.2", 2)
	require.NoError(t, err)
	assert.False(t, res.Reachable)
	assert.Equal(t, types.LatencyInvalid, res.Ms)
}

func TestMeasureLatencyNoRepliesIsUnreachable(t *testing.T) {
	f := &fakeRunner{replies: map[string][]routeros.Sentence{}}

	res, err := MeasureLatency(context.Background(), f, "10.0.0.3", 3)
	require.NoError(t, err)
	assert.False(t, res.Reachable)
}

func TestSampleResourcesOptionalFieldsStayNil(t *testing.T) {
	f := &fakeRunner{replies: map[string][]routeros.Sentence{
		"/system/resource/print": {
			re(
				"cpu-load", "17",
				"total-memory", "268435456",
				"free-memory", "134217728",
				"uptime", "1w2d3h4m5s",
				"board-name", "RB750Gr3",
				"version", "7.14.2",
			),
		},
		"/system/health/print": {},
	}}

	res, err := SampleResources(context.Background(), f)
	require.NoError(t, err)

	require.NotNil(t, res.CPULoad)
	assert.Equal(t, 17, *res.CPULoad)
	require.NotNil(t, res.UptimeSeconds)
	assert.Equal(t, int64(9*24*3600+3*3600+4*60+5), *res.UptimeSeconds)

	assert.Nil(t, res.CPUCount)
	assert.Nil(t, res.TotalDisk)
	assert.Nil(t, res.Temperature)
	assert.InDelta(t, 50.0, res.MemoryUsedPercent(), 0.01)
	assert.Equal(t, float64(-1), res.DiskUsedPercent())
}

func TestSampleResourcesHealthRows(t *testing.T) {
	f := &fakeRunner{replies: map[string][]routeros.Sentence{
		"/system/resource/print": {re("cpu-load", "3")},
		"/system/health/print": {
			re("name", "temperature", "value", "41"),
			re("name", "voltage", "value", "24.2"),
		},
	}}

	res, err := SampleResources(context.Background(), f)
	require.NoError(t, err)
	require.NotNil(t, res.Temperature)
	assert.Equal(t, 41.0, *res.Temperature)
	require.NotNil(t, res.Voltage)
	assert.Equal(t, 24.2, *res.Voltage)
}

func TestSampleInterfaces(t *testing.T) {
	f := &fakeRunner{replies: map[string][]routeros.Sentence{
		"/interface/print": {
			re("name", "ether1", "type", "ether", "running", "true",
				"rx-byte", "1000", "tx-byte", "2000", "rx-error", "1"),
			re("name", "ether2", "running", "false", "disabled", "true"),
		},
	}}

	ifaces, err := SampleInterfaces(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, ifaces, 2)
	assert.Equal(t, int64(1000), ifaces[0].RxBytes)
	assert.Equal(t, int64(1), ifaces[0].RxErrors)
	assert.True(t, ifaces[1].Disabled)
}

func TestComputeRates(t *testing.T) {
	prevAt := time.Now().Add(-10 * time.Second)
	prev := map[string]types.InterfaceMetrics{
		"ether1": {Name: "ether1", RxBytes: 1000, TxBytes: 500},
	}
	cur := []types.InterfaceMetrics{
		{Name: "ether1", RxBytes: 11000, TxBytes: 500},
		{Name: "ether2", RxBytes: 999},
	}

	out := ComputeRates(prev, prevAt, cur, prevAt.Add(10*time.Second))

	// 10000 bytes over 10s = 8000 bit/s.
	assert.Equal(t, int64(8000), out[0].RxBps)
	assert.Equal(t, int64(0), out[0].TxBps)
	// No previous sample for ether2.
	assert.Equal(t, int64(0), out[1].RxBps)
}

func TestComputeRatesCounterReset(t *testing.T) {
	prevAt := time.Now().Add(-5 * time.Second)
	prev := map[string]types.InterfaceMetrics{
		"ether1": {Name: "ether1", RxBytes: 900000},
	}
	cur := []types.InterfaceMetrics{{Name: "ether1", RxBytes: 100}}

	out := ComputeRates(prev, prevAt, cur, time.Now())
	assert.Equal(t, int64(0), out[0].RxBps)
}

func TestSamplePppoeSessionsFiltersNonPppoe(t *testing.T) {
	f := &fakeRunner{replies: map[string][]routeros.Sentence{
		"/ppp/active/print": {
			re("name", "customer1", "service", "pppoe", "address", "10.10.0.5",
				"session-id", "0x8100001F", "uptime", "2h3m"),
			re("name", "vpnuser", "service", "l2tp", "address", "10.20.0.2"),
		},
	}}

	sessions, err := SamplePppoeSessions(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "customer1", sessions[0].Username)
	assert.Equal(t, "0x8100001F", sessions[0].SessionID)
}

func TestParseDurationSeconds(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1w2d3h4m5s", 9*24*3600 + 3*3600 + 4*60 + 5, false},
		{"4h2m3s540ms", 4*3600 + 2*60 + 3, false},
		{"15s", 15, false},
		{"", 0, true},
		{"bogus", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDurationSeconds(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}
