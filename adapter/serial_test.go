package adapter

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// fakePort implements the serial.Port methods the adapter uses.
type fakePort struct {
	serial.Port
	written     bytes.Buffer
	response    *bytes.Reader
	maxWrite    int
	readTimeout time.Duration
	drained     bool
	closes      int
}

func (p *fakePort) Write(data []byte) (int, error) {
	if p.maxWrite > 0 && len(data) > p.maxWrite {
		data = data[:p.maxWrite]
	}
	return p.written.Write(data)
}

func (p *fakePort) Read(buf []byte) (int, error) {
	if p.response == nil || p.response.Len() == 0 {
		return 0, nil
	}
	return p.response.Read(buf)
}

func (p *fakePort) Drain() error { p.drained = true; return nil }
func (p *fakePort) SetReadTimeout(t time.Duration) error { p.readTimeout = t; return nil }
func (p *fakePort) Close() error { p.closes++; return nil }

func withFakePort(t *testing.T, port *fakePort, openErr error) *serial.Mode {
	t.Helper()
	var gotMode serial.Mode
	orig := portOpener
	portOpener = func(name string, mode *serial.Mode) (serial.Port, error) {
		gotMode = *mode
		if openErr != nil {
			return nil, openErr
		}
		return port, nil
	}
	t.Cleanup(func() { portOpener = orig })
	return &gotMode
}

func TestSerialAdapterOpenWriteClose(t *testing.T) {
	port := &fakePort{maxWrite: 3}
	mode := withFakePort(t, port, nil)

	a := NewSerialAdapter("/dev/rfcomm0", SerialOptions{BaudRate: 115200, ReadTimeout: time.Second})
	require.NoError(t, a.Open())
	assert.True(t, a.IsOpen())
	assert.Equal(t, 115200, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, time.Second, port.readTimeout)

	// Short writes from the port are retried until everything is sent
	n, err := a.Write([]byte("^XA^XZ"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "^XA^XZ", port.written.String())
	assert.True(t, port.drained)

	require.NoError(t, a.Close())
	assert.NoError(t, a.Close())
	assert.Equal(t, 1, port.closes)
}

func TestSerialAdapterOpenFailure(t *testing.T) {
	withFakePort(t, nil, errors.New("no such file or directory"))

	a := NewSerialAdapter("/dev/rfcomm9", DefaultSerialOptions())
	err := a.Open()
	require.Error(t, err)

	var ce *ConnectionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, KindSerial, ce.Kind)
	assert.Contains(t, ce.Message(), "/dev/rfcomm9")
	assert.False(t, a.IsOpen())
}

func TestSerialAdapterReadTimeout(t *testing.T) {
	port := &fakePort{response: bytes.NewReader([]byte("ok"))}
	withFakePort(t, port, nil)

	a := NewSerialAdapter("COM5", DefaultSerialOptions())
	require.NoError(t, a.Open())
	defer a.Close()

	buf := make([]byte, 8)
	n, err := a.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(buf[:n]))

	_, err = a.Read(buf)
	assert.ErrorIs(t, err, ErrReadTimeout)
}

func TestSerialAdapterNotOpen(t *testing.T) {
	a := NewSerialAdapter("COM5", SerialOptions{})
	assert.Equal(t, DefaultSerialOptions().BaudRate, a.opts.BaudRate)

	_, err := a.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrNotOpen)
	_, err = a.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrNotOpen)
}
