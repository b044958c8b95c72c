package responder

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/vitals/internal/vitals"
	"github.com/temoto/vitals/log2"
)

var r0 = vitals.Reading{HeartRate: 72, SystolicBP: 118, DiastolicBP: 76, Temperature: 36.6, BloodGlucose: 95, OxygenSaturation: 98}

func TestLatest(t *testing.T) {
	t.Parallel()

	var l Latest
	_, _, ok := l.Load()
	assert.False(t, ok)

	now := time.Now()
	l.Store(r0, now)
	r, produced, ok := l.Load()
	require.True(t, ok)
	assert.Equal(t, r0, r)
	assert.True(t, now.Equal(produced))

	r1 := r0
	r1.HeartRate = 99
	l.Store(r1, now.Add(time.Second))
	r, _, _ = l.Load()
	assert.Equal(t, 99.0, r.HeartRate)
}

func TestHandler(t *testing.T) {
	t.Parallel()

	produced := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	type Case struct {
		name       string
		method     string
		store      bool
		expectCode int
		expectBody string
	}
	cases := []Case{
		{"empty", http.MethodGet, false, http.StatusNoContent, ""},
		{"get", http.MethodGet, true, http.StatusOK,
			`{"heartRate":72,"systolicBP":118,"diastolicBP":76,"temperature":36.6,"bloodGlucose":95,"oxygenSaturation":98}`},
		{"head", http.MethodHead, true, http.StatusOK, ""},
		{"post", http.MethodPost, true, http.StatusMethodNotAllowed, ""},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			var latest Latest
			if c.store {
				latest.Store(r0, produced)
			}
			h := Handler(&latest, log2.NewTest(t, log2.LDebug))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(c.method, Path, nil))
			assert.Equal(t, c.expectCode, rec.Code)
			if c.expectBody != "" {
				assert.JSONEq(t, c.expectBody, rec.Body.String())
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
				assert.Equal(t, "Sun, 01 Mar 2026 12:00:00 GMT", rec.Header().Get("Last-Modified"))
			}
		})
	}
}

func TestServer(t *testing.T) {
	t.Parallel()

	var latest Latest
	s := NewServer("127.0.0.1:0", &latest, log2.NewTest(t, log2.LDebug))
	require.NoError(t, s.Start())
	defer func() { assert.NoError(t, s.Stop(context.Background())) }()

	url := "http://" + s.Addr() + Path
	resp, err := http.Get(url)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	latest.Store(r0, time.Now())
	resp, err = http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var got vitals.Reading
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, r0, got)

	resp2, err := http.Get("http://" + s.Addr() + "/other")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}
