package adapter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel plays back scripted responses. An unscripted command
// gets no reply, which the client sees as a silent adapter.
type fakeChannel struct {
	mu      sync.Mutex
	script  map[string]string
	pending []byte
	writes  []string
	closed  bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{script: map[string]string{
		"ATZ":   "ATZ\r\rELM327 v1.5\r\r>",
		"ATE0":  "OK\r\r>",
		"ATH1":  "OK\r\r>",
		"ATL0":  "OK\r\r>",
		"ATS1":  "OK\r\r>",
		"ATM0":  "OK\r\r>",
		"ATAT1": "OK\r\r>",
		"ATI":   "ELM327 v1.5\r\r>",
		"ATRV":  "12.6V\r\r>",
	}}
}

func (f *fakeChannel) Name() string { return "fake" }

func (f *fakeChannel) SetReadTimeout(time.Duration) error { return nil }

func (f *fakeChannel) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := string(p[:len(p)-1]) // strip trailing CR
	f.writes = append(f.writes, cmd)
	if resp, ok := f.script[cmd]; ok {
		f.pending = append(f.pending, resp...)
	}
	return len(p), nil
}

func (f *fakeChannel) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		time.Sleep(time.Millisecond) // behave like a slice timeout
		return 0, nil
	}
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestClient(ch Channel) *Client {
	c := New(Config{Descriptor: Descriptor{Kind: KindSerial, Timeout: 500 * time.Millisecond}})
	c.ch = ch
	return c
}

func TestInitializeRunsFullSequence(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(ch)

	require.NoError(t, c.initialize(context.Background()))

	info := c.Info()
	assert.Equal(t, "ELM327 v1.5", info.Identification)
	assert.Equal(t, "ELM327 v1.5", info.Firmware)
	assert.Equal(t, "12.6V", info.Voltage)

	want := []string{"ATZ", "ATE0", "ATH1", "ATL0", "ATS1", "ATM0", "ATAT1", "ATI", "ATRV"}
	assert.Equal(t, want, ch.writes)
}

func TestInitializeRejectsUnknownDevice(t *testing.T) {
	ch := newFakeChannel()
	ch.script["ATZ"] = "GARBAGE\r>"
	c := newTestClient(ch)

	err := c.initialize(context.Background())
	require.Error(t, err)
	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestSendStripsEchoAndPrompt(t *testing.T) {
	ch := newFakeChannel()
	ch.script["010C"] = "010C\r41 0C 0B B8\r\r>"
	c := newTestClient(ch)

	resp, err := c.Send(context.Background(), "010C", 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "41 0C 0B B8", resp)

	st := c.Stats()
	assert.Equal(t, uint64(1), st.Commands)
	assert.NotZero(t, st.BytesSent)
	assert.NotZero(t, st.BytesReceived)
}

func TestSendTimeout(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(ch)

	_, err := c.Send(context.Background(), "0199", 50*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, uint64(1), c.Stats().Timeouts)
	// a timeout must not drop the connection
	assert.True(t, c.Connected())
}

func TestSendProtocolError(t *testing.T) {
	ch := newFakeChannel()
	ch.script["0300"] = "NO DATA\r\r>"
	c := newTestClient(ch)

	resp, err := c.Send(context.Background(), "0300", 500*time.Millisecond)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, "NO DATA", protoErr.Token)
	assert.Equal(t, "NO DATA", resp)
	assert.Equal(t, uint64(1), c.Stats().Errors)
}

func TestSendCancelledContext(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(ch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Send(ctx, "0100", time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSendNotConnected(t *testing.T) {
	c := New(Config{Descriptor: Descriptor{Kind: KindSerial}})
	_, err := c.Send(context.Background(), "0100", time.Second)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDisconnectIdempotent(t *testing.T) {
	ch := newFakeChannel()
	c := newTestClient(ch)

	c.Disconnect()
	c.Disconnect()
	assert.True(t, ch.closed)
	assert.False(t, c.Connected())
	assert.Equal(t, DeviceInfo{}, c.Info())
}

func TestChannelFaultDropsConnection(t *testing.T) {
	var gotErr error
	c := New(Config{
		Descriptor: Descriptor{Kind: KindSerial},
		OnError:    func(err error) { gotErr = err },
	})
	c.ch = &faultChannel{}

	_, err := c.Send(context.Background(), "0100", time.Second)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.False(t, c.Connected())
	assert.Error(t, gotErr)
}

type faultChannel struct{}

func (f *faultChannel) Name() string                       { return "fault" }
func (f *faultChannel) SetReadTimeout(time.Duration) error { return nil }
func (f *faultChannel) Write(p []byte) (int, error)        { return len(p), nil }
func (f *faultChannel) Read(p []byte) (int, error)         { return 0, errors.New("io failure") }
func (f *faultChannel) Close() error                       { return nil }

func TestClean(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		echo        string
		stripSpaces bool
		want        string
	}{
		{name: "echo and prompt", raw: "010C\r41 0C 0B B8\r\r>", echo: "010C", want: "41 0C 0B B8"},
		{name: "crlf endings", raw: "41 0D 32\r\n>", want: "41 0D 32"},
		{name: "strip spaces", raw: "41 0D 32\r>", stripSpaces: true, want: "410D32"},
		{name: "multiline", raw: "41 0C 0B B8\r41 0D 32\r>", want: "41 0C 0B B8\n41 0D 32"},
		{name: "blank lines dropped", raw: "\r\r41 05 5A\r\r>", want: "41 05 5A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.raw, tt.echo, tt.stripSpaces))
		})
	}
}

func TestProtocolName(t *testing.T) {
	assert.Equal(t, "Auto", ProtocolName("0"))
	assert.Equal(t, "ISO 15765-4 CAN (11 bit, 500 kbaud)", ProtocolName("6"))
	assert.Equal(t, "Unknown", ProtocolName("Z"))
}
