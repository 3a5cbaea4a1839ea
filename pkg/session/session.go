// Package session drives a full diagnostic run as an explicit state
// machine: ECU scan, fault code retrieval, live data polling, sensor
// tests and optional actuator/adaptation steps, ending in a structured
// result document.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	"github.com/obddiag/obdscan/pkg/adapter"
	"github.com/obddiag/obdscan/pkg/dtc"
	"github.com/obddiag/obdscan/pkg/ebus"
	"github.com/obddiag/obdscan/pkg/obd"
	"github.com/obddiag/obdscan/pkg/sensors"
	"github.com/obddiag/obdscan/pkg/vehicle"
)

var (
	ErrAlreadyStarted = errors.New("session: already started")
	ErrSessionTimeout = errors.New("session: timed out waiting for completion")
)

// lowVoltageThreshold triggers a battery warning before scanning.
const lowVoltageThreshold = 11.5

// Transport is the adapter surface the session needs. *adapter.Client
// satisfies it; tests inject a scripted fake.
type Transport interface {
	Connect(ctx context.Context) (adapter.DeviceInfo, error)
	Send(ctx context.Context, command string, wait time.Duration) (string, error)
	SetProtocol(ctx context.Context, code string, wait time.Duration) error
	DetectProtocol(ctx context.Context, wait time.Duration) (string, error)
	Voltage(ctx context.Context, wait time.Duration) (string, error)
	Disconnect()
	Stats() adapter.Stats
}

// Config for one diagnostic session.
type Config struct {
	Transport Transport
	Vehicle   vehicle.Model
	Codes     dtc.Database
	Bus       *ebus.Bus

	// PIDs polled during live data; defaults to the engine and fuel
	// groups of the PID table.
	PIDs []obd.Definition
	// SensorTests defaults to sensors.DefaultTests.
	SensorTests []sensors.Test
	Actuators   []ActuatorTest
	Adaptations []Adaptation

	DeepScan           bool
	TestActuators      bool
	PerformAdaptations bool

	// CommandWait bounds each adapter exchange; default two seconds.
	CommandWait time.Duration

	CSVPath   string
	OnMessage func(string)
}

// Session owns all run state. One session per transport at a time; the
// worker goroutine is the only mutator until a terminal state.
type Session struct {
	Config

	ctx      context.Context
	cancel   context.CancelFunc
	doneChan chan struct{}

	startOnce sync.Once

	mu       sync.Mutex
	state    State
	progress int
	result   *Result
	err      error
}

func New(cfg Config) (*Session, error) {
	if cfg.Transport == nil {
		return nil, errors.New("session: transport is required")
	}
	if len(cfg.Vehicle.ECUs) == 0 {
		cfg.Vehicle = vehicle.Generic()
	}
	if cfg.CommandWait == 0 {
		cfg.CommandWait = 2 * time.Second
	}
	if cfg.PIDs == nil {
		cfg.PIDs = append(obd.ByGroup(obd.GroupEngine), obd.ByGroup(obd.GroupFuel)...)
	}
	if cfg.SensorTests == nil {
		cfg.SensorTests = sensors.DefaultTests()
	}
	if cfg.Actuators == nil {
		cfg.Actuators = DefaultActuatorTests()
	}
	if cfg.Adaptations == nil {
		cfg.Adaptations = DefaultAdaptations()
	}
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(string) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		Config:   cfg,
		ctx:      ctx,
		cancel:   cancel,
		doneChan: make(chan struct{}),
		state:    StateIdle,
		result:   newResult(cfg.Vehicle.Name),
	}, nil
}

// Start launches the session worker. A session runs at most once.
func (s *Session) Start() error {
	started := false
	s.startOnce.Do(func() {
		started = true
		go s.run()
	})
	if !started {
		return ErrAlreadyStarted
	}
	return nil
}

// Cancel requests cooperative cancellation. The flag is never unset;
// the worker honors it before the next ECU, PID, sensor test or
// top-level step, and the transport read loop honors it mid-command.
func (s *Session) Cancel() {
	s.cancel()
}

// Wait blocks until the session ends or timeout elapses. On timeout
// the session is cancelled, given a short grace period to unwind, and
// ErrSessionTimeout is returned.
func (s *Session) Wait(timeout time.Duration) (*Result, error) {
	select {
	case <-s.doneChan:
		return s.Result(), s.Err()
	case <-time.After(timeout):
		s.Cancel()
		select {
		case <-s.doneChan:
		case <-time.After(5 * time.Second):
		}
		return s.Result(), ErrSessionTimeout
	}
}

// Done exposes completion for select loops.
func (s *Session) Done() <-chan struct{} { return s.doneChan }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Result returns the session document. Treat as read-only until the
// session reaches a terminal state.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) run() {
	defer close(s.doneChan)
	defer func() {
		if r := recover(); r != nil {
			s.cancel()
			s.recordError(fmt.Errorf("session: unexpected fault: %v", r))
			s.finish(StateFailed)
		}
	}()

	s.setState(StateInitializing)
	s.setProgress(2)

	s.setState(StateConnecting)
	if err := s.connect(); err != nil {
		s.recordError(err)
		s.finish(StateFailed)
		return
	}
	s.setProgress(10)
	if s.cancelled() {
		s.finish(StateCancelled)
		return
	}

	// the voltage monitor shares the serialized command link with the
	// step worker; both are supervised together
	monitorCtx, stopMonitor := context.WithCancel(s.ctx)
	g, _ := errgroup.WithContext(monitorCtx)
	g.Go(func() error {
		s.monitorVoltage(monitorCtx)
		return nil
	})

	final := s.steps()

	stopMonitor()
	g.Wait()
	s.finish(final)
}

// steps walks the diagnostic sequence and returns the terminal state.
func (s *Session) steps() State {
	s.setState(StateScanningECUs)
	s.scanECUs()
	s.setProgress(30)
	if s.cancelled() {
		return StateCancelled
	}

	s.setState(StateReadingDTCs)
	s.readDTCs()
	s.setProgress(50)
	if s.cancelled() {
		return StateCancelled
	}

	s.setState(StateReadingLiveData)
	s.readLiveData()
	s.setProgress(70)
	if s.cancelled() {
		return StateCancelled
	}

	s.setState(StateTestingSensors)
	s.testSensors()
	s.setProgress(85)
	if s.cancelled() {
		return StateCancelled
	}

	if s.TestActuators {
		s.setState(StateTestingActuators)
		s.testActuators()
		s.setProgress(90)
		if s.cancelled() {
			return StateCancelled
		}
	}

	if s.PerformAdaptations {
		s.setState(StatePerformingAdaptations)
		s.performAdaptations()
		s.setProgress(95)
		if s.cancelled() {
			return StateCancelled
		}
	}

	s.setState(StateGeneratingReport)
	s.generateReport()
	s.setProgress(100)
	return StateCompleted
}

// monitorVoltage samples the adapter's supply voltage reading in the
// background while the steps run and warns once if the battery sags
// below the threshold mid-session.
func (s *Session) monitorVoltage(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	warned := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		v, err := s.Transport.Voltage(ctx, s.CommandWait)
		if err != nil {
			continue
		}
		f, ok := parseVoltage(v)
		if !ok {
			continue
		}
		s.publish(ebus.Event{Topic: ebus.TopicValue, Name: "supply_voltage", Value: f})
		if f < lowVoltageThreshold && !warned {
			warned = true
			s.recordWarning(fmt.Sprintf("supply voltage sagging: %s", v))
		}
	}
}

// connect opens the transport with retries, selects the bus protocol
// and runs the supply voltage pre-check.
func (s *Session) connect() error {
	var info adapter.DeviceInfo
	err := retry.Do(func() error {
		var err error
		info, err = s.Transport.Connect(s.ctx)
		return err
	},
		retry.Context(s.ctx),
		retry.Attempts(3),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.message(fmt.Sprintf("connect retry %d: %v", n+1, err))
		}),
	)
	if err != nil {
		return fmt.Errorf("session: connect: %w", err)
	}
	s.mu.Lock()
	s.result.Device = info
	s.mu.Unlock()

	code := s.Vehicle.Protocol
	if code == "" || code == "0" {
		detected, err := s.Transport.DetectProtocol(s.ctx, s.CommandWait)
		if err != nil {
			s.recordWarning(fmt.Sprintf("protocol auto-detect failed: %v", err))
		} else {
			s.message("detected protocol " + adapter.ProtocolName(detected))
		}
	} else if err := s.Transport.SetProtocol(s.ctx, code, s.CommandWait); err != nil {
		s.recordWarning(fmt.Sprintf("set protocol %s failed: %v", code, err))
	}

	if v, err := s.Transport.Voltage(s.ctx, s.CommandWait); err == nil {
		s.mu.Lock()
		s.result.SupplyVoltage = v
		s.mu.Unlock()
		if f, ok := parseVoltage(v); ok && f < lowVoltageThreshold {
			s.recordWarning(fmt.Sprintf("supply voltage low: %s", v))
		}
	}
	return nil
}

func parseVoltage(s string) (float64, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "V")
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func (s *Session) cancelled() bool {
	return s.ctx.Err() != nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.message(st.String())
	s.publish(ebus.Event{Topic: ebus.TopicStatus, Text: st.String()})
}

// setProgress only ever raises the value; progress is monotonic within
// a run.
func (s *Session) setProgress(p int) {
	s.mu.Lock()
	if p <= s.progress {
		s.mu.Unlock()
		return
	}
	s.progress = p
	s.mu.Unlock()
	s.publish(ebus.Event{Topic: ebus.TopicProgress, Value: float64(p)})
}

// stepProgress interpolates within a step's progress band.
func (s *Session) stepProgress(from, to, index, total int) {
	if total <= 0 {
		return
	}
	s.setProgress(from + (to-from)*(index+1)/total)
}

func (s *Session) finish(st State) {
	s.mu.Lock()
	s.state = st
	s.result.EndedAt = time.Now()
	result := s.result
	if st == StateCancelled && s.err == nil {
		s.err = context.Canceled
	}
	s.mu.Unlock()

	s.message("session " + st.String())
	s.publish(ebus.Event{Topic: ebus.TopicStatus, Text: st.String()})
	s.publish(ebus.Event{Topic: ebus.TopicResult, Doc: result})
}

func (s *Session) recordError(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.result.Errors = append(s.result.Errors, err.Error())
	s.mu.Unlock()
	s.publish(ebus.Event{Topic: ebus.TopicError, Text: err.Error()})
}

// stepError records a partial, non-fatal failure.
func (s *Session) stepError(err error) {
	s.mu.Lock()
	s.result.Errors = append(s.result.Errors, err.Error())
	s.mu.Unlock()
	s.publish(ebus.Event{Topic: ebus.TopicError, Text: err.Error()})
}

func (s *Session) recordWarning(msg string) {
	s.mu.Lock()
	s.result.Warnings = append(s.result.Warnings, msg)
	s.mu.Unlock()
	s.message(msg)
}

func (s *Session) recommend(msg string) {
	s.mu.Lock()
	s.result.Recommendations = append(s.result.Recommendations, msg)
	s.mu.Unlock()
}

func (s *Session) message(msg string) {
	s.OnMessage(msg)
}

func (s *Session) publish(ev ebus.Event) {
	if s.Bus == nil {
		return
	}
	s.Bus.Publish(ev)
}

// ClearFaultCodes sends the clear command (service 04) and verifies
// the acknowledgement. Deliberately outside the session state machine;
// clearing codes is an explicit user action.
func ClearFaultCodes(ctx context.Context, t Transport, wait time.Duration) error {
	resp, err := t.Send(ctx, obd.Command(0x04), wait)
	if err != nil {
		return fmt.Errorf("clear fault codes: %w", err)
	}
	up := strings.ToUpper(resp)
	if !strings.Contains(up, "44") && !strings.Contains(up, "OK") {
		return fmt.Errorf("clear fault codes: unexpected response %q", resp)
	}
	return nil
}
