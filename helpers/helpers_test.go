package helpers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldErrors(t *testing.T) {
	t.Parallel()

	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))
	err := FoldErrors([]error{fmt.Errorf("link.ssid empty"), nil, fmt.Errorf("collector.base_url empty")})
	require.Error(t, err)
	assert.Equal(t, "link.ssid empty\ncollector.base_url empty", err.Error())
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	b := NewBackoff(time.Hour, 4*time.Hour)
	assert.Equal(t, time.Duration(0), b.DelayBefore(), "first delay is always 0")
	b.Failure()
	d1 := b.DelayBefore()
	assert.True(t, d1 > 59*time.Minute && d1 <= time.Hour, "d1=%s", d1)
	b.Failure()
	d2 := b.DelayBefore()
	assert.True(t, d2 > time.Hour && d2 <= 2*time.Hour, "d2=%s", d2)
	b.Failure()
	b.Failure()
	b.Failure()
	assert.True(t, b.DelayBefore() <= 4*time.Hour, "limited by Max")
	b.Update(true)
	assert.Equal(t, time.Duration(0), b.DelayBefore())
}

func TestBackoffDisabled(t *testing.T) {
	t.Parallel()

	b := &Backoff{}
	b.Failure()
	assert.Equal(t, time.Duration(0), b.DelayBefore())
}

func TestFuture(t *testing.T) {
	t.Parallel()

	f := NewFuture()
	assert.False(t, f.Done())
	assert.True(t, f.Complete(42))
	assert.False(t, f.Complete(43), "second Complete must be ignored")
	assert.True(t, f.Done())
	assert.Equal(t, 42, f.Result())
	select {
	case <-f.Completed():
	default:
		t.Fatal("Completed() must be closed")
	}
}

func TestMockHTTP(t *testing.T) {
	t.Parallel()

	m := &MockHTTP{Header: []byte("HTTP/1.1 418 I'm a teapot\r\nContent-Length: 5\r\n\r\n"), Body: []byte("short")}
	client := &http.Client{Transport: m}
	resp, err := client.Post("http://collector.local/topics/t", "application/json", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, 418, resp.StatusCode)
	assert.Equal(t, "short", string(b))
	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "POST", reqs[0].Method)
	assert.Equal(t, `{"a":1}`, string(reqs[0].Body))
	assert.Equal(t, "application/json", reqs[0].Header.Get("Content-Type"))
}

func TestIntDefaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3*time.Second, IntSecondDefault(0, 3*time.Second))
	assert.Equal(t, 5*time.Second, IntSecondDefault(5, 3*time.Second))
	assert.Equal(t, 500*time.Millisecond, IntMillisecondDefault(0, 500*time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, IntMillisecondDefault(100, time.Second))
}

func TestRandIntInclusive(t *testing.T) {
	t.Parallel()

	r := RandUnix()
	seen := map[int]bool{}
	for i := 0; i < 2000; i++ {
		v := RandIntInclusive(r, 95, 100)
		require.True(t, v >= 95 && v <= 100, "v=%d", v)
		seen[v] = true
	}
	assert.Len(t, seen, 6)
	assert.Equal(t, 7, RandIntInclusive(r, 7, 7))
}
