package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obddiag/obdscan/pkg/adapter"
	"github.com/obddiag/obdscan/pkg/dtc"
	"github.com/obddiag/obdscan/pkg/obd"
	"github.com/obddiag/obdscan/pkg/sensors"
	"github.com/obddiag/obdscan/pkg/vehicle"
)

// fakeTransport plays back scripted responses. An unscripted command
// behaves like a silent bus and times out.
type fakeTransport struct {
	mu         sync.Mutex
	script     map[string]string
	sent       []string
	onSend     func(cmd string)
	connectErr error
	voltage    string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		voltage: "12.6V",
		script: map[string]string{
			"100100":   "41 00 BE 1F A8 13",
			"1003":     "43 02 03 00 00 00",
			"10020C00": "42 0C 00 0B B8",
			"010C":     "41 0C 0B B8",
			"0105":     "41 05 5A",
		},
	}
}

func (f *fakeTransport) Connect(ctx context.Context) (adapter.DeviceInfo, error) {
	if f.connectErr != nil {
		return adapter.DeviceInfo{}, f.connectErr
	}
	return adapter.DeviceInfo{Identification: "ELM327 v1.5", Firmware: "ELM327 v1.5"}, nil
}

func (f *fakeTransport) Send(ctx context.Context, cmd string, wait time.Duration) (string, error) {
	f.mu.Lock()
	f.sent = append(f.sent, cmd)
	resp, ok := f.script[cmd]
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook(cmd)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !ok {
		return "", adapter.ErrTimeout
	}
	return resp, nil
}

func (f *fakeTransport) SetProtocol(ctx context.Context, code string, wait time.Duration) error {
	return nil
}

func (f *fakeTransport) DetectProtocol(ctx context.Context, wait time.Duration) (string, error) {
	return "6", nil
}

func (f *fakeTransport) Voltage(ctx context.Context, wait time.Duration) (string, error) {
	return f.voltage, nil
}

func (f *fakeTransport) Disconnect() {}

func (f *fakeTransport) Stats() adapter.Stats { return adapter.Stats{} }

func (f *fakeTransport) sentCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func testConfig(ft *fakeTransport) Config {
	rpm, _ := obd.ByName("engine_rpm")
	coolant, _ := obd.ByName("coolant_temperature")
	return Config{
		Transport: ft,
		Vehicle:   mustModel("engine-only"),
		Codes:     dtc.BuiltIn(),
		PIDs:      []obd.Definition{rpm, coolant},
		SensorTests: []sensors.Test{{
			Name:     "coolant temperature",
			PIDs:     []obd.Definition{coolant},
			Validate: sensors.Range("coolant temperature", "°C", sensors.Thresholds{FailLow: -40, FailHigh: 150, WarnLow: 0, WarnHigh: 120}),
		}},
	}
}

func mustModel(name string) vehicle.Model {
	m, ok := vehicle.Lookup(name)
	if !ok {
		panic("unknown model " + name)
	}
	return m
}

func TestSessionCompletes(t *testing.T) {
	ft := newFakeTransport()
	s, err := New(testConfig(ft))
	require.NoError(t, err)
	require.NoError(t, s.Start())

	res, err := s.Wait(10 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, 100, s.Progress())
	assert.Equal(t, "12.6V", res.SupplyVoltage)

	require.Len(t, res.ECUs, 1)
	assert.Equal(t, ECUConnected, res.ECUs[0].Status)

	require.Len(t, res.DTCs.Codes, 1)
	code := res.DTCs.Codes[0]
	assert.Equal(t, "P0300", code.Code)
	assert.Equal(t, dtc.Current, code.Origin)
	assert.Equal(t, "Engine Control Module", code.ECU)
	assert.Equal(t, dtc.SeverityHigh, code.Severity)
	assert.NotEmpty(t, code.Description)
	require.NotNil(t, code.FreezeFrame)
	require.NotNil(t, code.FreezeFrame.RPM)
	assert.InDelta(t, 750.0, *code.FreezeFrame.RPM, 0.01)

	assert.Equal(t, liveDataCycles, res.LiveData.Cycles)
	assert.NotEmpty(t, res.LiveData.Statistics)

	require.Len(t, res.Sensors, 1)
	assert.Equal(t, sensors.Pass, res.Sensors[0].Verdict)

	// one high severity code, everything else clean
	assert.Equal(t, 80, res.Health.Score)
	assert.Equal(t, "good", res.Health.Verdict)
}

func TestSessionCancelDuringDTCRead(t *testing.T) {
	ft := newFakeTransport()
	s, err := New(testConfig(ft))
	require.NoError(t, err)

	ft.onSend = func(cmd string) {
		if cmd == "1003" {
			s.Cancel()
		}
	}
	require.NoError(t, s.Start())

	res, err := s.Wait(10 * time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, s.State())
	assert.True(t, s.State().Terminal())

	// cancelled before live data and sensor testing ever started
	assert.Zero(t, res.LiveData.Cycles)
	assert.Empty(t, res.Sensors)
	for _, cmd := range ft.sentCommands() {
		assert.NotEqual(t, "0105", cmd)
	}
}

func TestWarningSensorAddsRecommendation(t *testing.T) {
	ft := newFakeTransport()
	ft.script["0105"] = "41 05 0A" // -30 °C, below the operating band
	s, err := New(testConfig(ft))
	require.NoError(t, err)
	require.NoError(t, s.Start())

	res, err := s.Wait(10 * time.Second)
	require.NoError(t, err)
	require.Len(t, res.Sensors, 1)
	assert.Equal(t, sensors.Warning, res.Sensors[0].Verdict)

	found := false
	for _, r := range res.Recommendations {
		if strings.Contains(r, "coolant temperature") {
			found = true
		}
	}
	assert.True(t, found, "warning verdict must add a recommendation")
}

func TestCancelDuringScanRecordsNoFault(t *testing.T) {
	ft := newFakeTransport()
	s, err := New(testConfig(ft))
	require.NoError(t, err)

	ft.onSend = func(cmd string) {
		if cmd == "100100" {
			s.Cancel()
		}
	}
	require.NoError(t, s.Start())

	res, err := s.Wait(10 * time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, s.State())
	// the interrupted probe is not the ECU's fault
	assert.Empty(t, res.ECUs)
	assert.Empty(t, res.Errors)
}

func TestSessionProgressMonotonic(t *testing.T) {
	ft := newFakeTransport()
	s, err := New(testConfig(ft))
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []int
	ft.onSend = func(string) {
		mu.Lock()
		seen = append(seen, s.Progress())
		mu.Unlock()
	}
	require.NoError(t, s.Start())
	_, err = s.Wait(10 * time.Second)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	seen = append(seen, s.Progress())
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 100, seen[len(seen)-1])
}

func TestSessionConnectFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.connectErr = errors.New("device unreachable")
	s, err := New(testConfig(ft))
	require.NoError(t, err)
	require.NoError(t, s.Start())

	res, err := s.Wait(30 * time.Second)
	require.Error(t, err)
	assert.Equal(t, StateFailed, s.State())
	assert.NotEmpty(t, res.Errors)
}

// hangingTransport blocks every command until the context is
// cancelled.
type hangingTransport struct{ fakeTransport }

func (h *hangingTransport) Send(ctx context.Context, cmd string, wait time.Duration) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestWaitTimeoutCancelsSession(t *testing.T) {
	ht := &hangingTransport{fakeTransport: *newFakeTransport()}
	cfg := testConfig(&ht.fakeTransport)
	cfg.Transport = ht
	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	_, err = s.Wait(100 * time.Millisecond)
	require.ErrorIs(t, err, ErrSessionTimeout)
	assert.Equal(t, StateCancelled, s.State())
}

func TestStartTwice(t *testing.T) {
	ft := newFakeTransport()
	s, err := New(testConfig(ft))
	require.NoError(t, err)
	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrAlreadyStarted)
	s.Wait(10 * time.Second)
}

func TestAdaptationPreconditions(t *testing.T) {
	ft := newFakeTransport()
	ft.script["0105"] = "41 05 82" // 90 °C, engine warm
	ft.script["0803"] = "48 03"

	cfg := testConfig(ft)
	cfg.PerformAdaptations = true
	cfg.Adaptations = DefaultAdaptations()
	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	res, err := s.Wait(10 * time.Second)
	require.NoError(t, err)
	require.Len(t, res.Adaptations, 2)

	// engine is running at 750 rpm, so the engine-off relearn is
	// skipped while the idle relearn runs
	throttle := res.Adaptations[0]
	assert.Equal(t, "throttle position relearn", throttle.Name)
	assert.False(t, throttle.Performed)
	assert.NotEmpty(t, throttle.Reason)

	idle := res.Adaptations[1]
	assert.Equal(t, "idle speed relearn", idle.Name)
	assert.True(t, idle.Performed)
	assert.True(t, idle.Success)

	assert.NotEmpty(t, res.Warnings)
}

func TestActuatorTests(t *testing.T) {
	ft := newFakeTransport()
	ft.script["0801"] = "48 01"

	cfg := testConfig(ft)
	cfg.TestActuators = true
	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	res, err := s.Wait(10 * time.Second)
	require.NoError(t, err)
	require.Len(t, res.Actuators, 1)
	assert.True(t, res.Actuators[0].Success)
}

func TestLowVoltageWarning(t *testing.T) {
	ft := newFakeTransport()
	ft.voltage = "10.9V"
	s, err := New(testConfig(ft))
	require.NoError(t, err)
	require.NoError(t, s.Start())

	res, err := s.Wait(10 * time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "supply voltage low")
}

func TestClearFaultCodes(t *testing.T) {
	ft := newFakeTransport()
	ft.script["04"] = "44"
	require.NoError(t, ClearFaultCodes(context.Background(), ft, time.Second))

	ft.script["04"] = "7F 04 22"
	assert.Error(t, ClearFaultCodes(context.Background(), ft, time.Second))
}
