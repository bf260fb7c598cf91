package server

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nixxel-company-limited/zpl-bridge/adapter"
	"github.com/nixxel-company-limited/zpl-bridge/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockAdapter is a mock implementation of the Adapter interface for testing
type MockAdapter struct {
	mu        sync.Mutex
	open      bool
	writeData []byte
}

func (m *MockAdapter) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = true
	return nil
}

func (m *MockAdapter) Write(data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeData = append(m.writeData, data...)
	return len(data), nil
}

func (m *MockAdapter) Read(buf []byte) (int, error) {
	return copy(buf, `{"device.product_name":"ZD421"}`), nil
}

func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	return nil
}

func (m *MockAdapter) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *MockAdapter) written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.writeData...)
}

// mockFactory hands out the same MockAdapter for every call
type mockFactory struct {
	adapter *MockAdapter
}

func (f *mockFactory) New(adapter.Kind, string) (adapter.Adapter, error) {
	return f.adapter, nil
}

func newTestServer(address string) (*Server, *MockAdapter) {
	mockAdapter := &MockAdapter{}
	r := router.NewWithLogger(&mockFactory{adapter: mockAdapter}, nil, zap.NewNop())
	return NewWithLogger(r, address, DefaultOptions(), zap.NewNop()), mockAdapter
}

func postCall(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, CallResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/call", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp CallResponse
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestNewServer(t *testing.T) {
	address := "localhost:8180"
	server, _ := newTestServer(address)

	assert.NotNil(t, server)
	assert.Equal(t, address, server.Address())
	assert.False(t, server.IsRunning())
	assert.Nil(t, server.ListenAddr())
}

func TestCallPrintOverTCP(t *testing.T) {
	server, mockAdapter := newTestServer("localhost:0")

	rec, resp := postCall(t, server.Handler(), `{"method":"printOverTCP","arguments":{"ip":"192.168.1.50","data":"^XA^XZ"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"success": true, "message": "Print successful"}, resp.Result)
	assert.Equal(t, []byte("^XA^XZ"), mockAdapter.written())
	assert.False(t, mockAdapter.IsOpen())
}

func TestCallGetPrinterInfo(t *testing.T) {
	server, _ := newTestServer("localhost:0")

	rec, resp := postCall(t, server.Handler(), `{"method":"getPrinterInfo","arguments":{"ip":"10.0.0.5"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"device.product_name": "ZD421"}, resp.Result)
}

func TestCallErrors(t *testing.T) {
	testCases := []struct {
		name   string
		body   string
		status int
		code   router.Code
	}{
		{"MissingIP", `{"method":"printOverTCP","arguments":{"data":"^XA^XZ"}}`, http.StatusBadRequest, router.CodeMissingArgument},
		{"NoArguments", `{"method":"getPrinterInfo"}`, http.StatusBadRequest, router.CodeMissingArgument},
		{"UnknownMethod", `{"method":"feedLabel","arguments":{"ip":"10.0.0.5"}}`, http.StatusNotImplemented, router.CodeUnimplemented},
		{"NoRadio", `{"method":"printOverBluetooth","arguments":{"mac":"AC:3F:A4:12:34:56","data":"x"}}`, http.StatusBadGateway, router.CodeConnection},
	}

	// A real factory without a radio turns Bluetooth calls into connection errors
	r := router.NewWithLogger(adapter.NewFactory(adapter.DefaultOptions(), nil), nil, zap.NewNop())
	h := NewWithLogger(r, "localhost:0", DefaultOptions(), zap.NewNop()).Handler()

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec, resp := postCall(t, h, tc.body)
			assert.Equal(t, tc.status, rec.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
			assert.Nil(t, resp.Result)
		})
	}
}

func TestCallRejectsBadRequests(t *testing.T) {
	server, _ := newTestServer("localhost:0")
	h := server.Handler()

	rec, _ := postCall(t, h, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/call", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMethodsAndHealth(t *testing.T) {
	server, _ := newTestServer("localhost:0")
	h := server.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/methods", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var methods map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &methods))
	assert.Equal(t, router.Methods(), methods["methods"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	mockAdapter := &MockAdapter{}
	r := router.NewWithLogger(&mockFactory{adapter: mockAdapter}, nil, zap.NewNop())
	opts := DefaultOptions()
	opts.AllowedOrigins = []string{"http://localhost:3000"}
	h := NewWithLogger(r, "localhost:0", opts, zap.NewNop()).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/call", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServerStartStop(t *testing.T) {
	server, _ := newTestServer("localhost:8181")

	// Test start async (non-blocking)
	err := server.StartAsync()
	require.NoError(t, err)
	assert.True(t, server.IsRunning())
	assert.NotNil(t, server.ListenAddr())

	// Test double start
	err = server.StartAsync()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	// Test stop
	err = server.Stop()
	require.NoError(t, err)
	assert.False(t, server.IsRunning())

	// Test double stop (should not error)
	err = server.Stop()
	assert.NoError(t, err)
}

func TestServerCallOverNetwork(t *testing.T) {
	server, mockAdapter := newTestServer("127.0.0.1:0")

	require.NoError(t, server.StartAsync())
	defer server.Stop()

	url := "http://" + server.ListenAddr().String() + "/call"
	body := []byte(`{"method":"printZPLOverTCPIP","arguments":{"ip":"192.168.1.50","data":"^XA^FDHello^FS^XZ"}}`)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte("^XA^FDHello^FS^XZ"), mockAdapter.written())
}

func TestServerInvalidAddress(t *testing.T) {
	server, _ := newTestServer("invalid:address:9100")

	err := server.StartAsync()
	assert.Error(t, err)
	assert.False(t, server.IsRunning())
}

func TestServerStartBlocking(t *testing.T) {
	server, _ := newTestServer("localhost:8182")

	// Start server in a goroutine since it blocks
	started := make(chan error)
	go func() {
		started <- server.Start()
	}()

	require.Eventually(t, server.IsRunning, time.Second, 10*time.Millisecond)

	conn, err := net.Dial("tcp", "localhost:8182")
	require.NoError(t, err)
	conn.Close()

	// Stop server
	err = server.Stop()
	require.NoError(t, err)

	// Wait for Start() to return
	select {
	case err := <-started:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}
