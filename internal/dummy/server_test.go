package dummy

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestServer_Count(t *testing.T) {
	s := NewServer()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	status, body := get(t, ts.URL+"/count/7")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"n":7,"count":1}`, string(body))

	_, body = get(t, ts.URL+"/count/7")
	assert.JSONEq(t, `{"n":7,"count":2}`, string(body))

	get(t, ts.URL+"/count/100")

	assert.Equal(t, int64(2), s.Hits(7))
	assert.Equal(t, int64(1), s.Hits(100))
	assert.Equal(t, int64(0), s.Hits(1))
	assert.Equal(t, int64(3), s.Total())
}

func TestServer_RejectsOutOfRange(t *testing.T) {
	s := NewServer()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	for _, path := range []string{"/count/0", "/count/101", "/count/-3", "/count/abc"} {
		t.Run(path, func(t *testing.T) {
			status, body := get(t, ts.URL+path)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Contains(t, string(body), `"error"`)
		})
	}

	assert.Equal(t, int64(4), s.Rejected())
	assert.Zero(t, s.Total())
	assert.Zero(t, s.Hits(0))
	assert.Zero(t, s.Hits(101))
}

func TestServer_OtherRoutes(t *testing.T) {
	ts := httptest.NewServer(NewServer().Handler())
	defer ts.Close()

	status, _ := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusNotFound, status)

	resp, err := http.Post(ts.URL+"/count/1", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_Latency(t *testing.T) {
	s := NewServer(WithLatency(30*time.Millisecond, 40*time.Millisecond))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	start := time.Now()
	status, _ := get(t, ts.URL+"/count/1")
	assert.Equal(t, http.StatusOK, status)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestServer_Serve(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	status, _ := get(t, "http://"+ln.Addr().String()+"/count/42")
	assert.Equal(t, http.StatusOK, status)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, int64(1), s.Hits(42))
}

func TestServer_ListenAndServe_BadAddr(t *testing.T) {
	err := NewServer().ListenAndServe(context.Background(), "256.0.0.1:bad")
	assert.Error(t, err)
}
