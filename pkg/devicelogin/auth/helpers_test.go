/*
SPDX-FileCopyrightText: 2025 Deutsche Telekom AG

SPDX-License-Identifier: Apache-2.0
*/

package auth

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/telekom/devicelogin/pkg/devicelogin/authtest"
	"github.com/telekom/devicelogin/pkg/system"
)

var testEpoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newFakeClock() *testingclock.FakeClock {
	return testingclock.NewFakeClock(testEpoch)
}

func newTestClient(t *testing.T, srv *authtest.Server, clk *testingclock.FakeClock, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		AuthorizationServerURL: srv.URL,
		AllowInsecureHTTP:      true,
		Scopes:                 []string{"openid", "profile"},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewClient(cfg, WithClock(clk), WithLogger(system.NewTestLogger()))
	require.NoError(t, err)
	return c
}

// driveClock runs fn in a goroutine and advances clk one second at a time
// whenever fn is blocked on it.
func driveClock[T any](t *testing.T, clk *testingclock.FakeClock, fn func() (T, error)) (T, error) {
	t.Helper()
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case r := <-done:
			return r.value, r.err
		case <-timeout:
			t.Fatal("timed out waiting for the flow to finish")
		case <-time.After(time.Millisecond):
			if clk.HasWaiters() {
				clk.Step(time.Second)
			}
		}
	}
}

// countingTransport counts round trips that reach the network layer.
type countingTransport struct {
	calls atomic.Int32
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return http.DefaultTransport.RoundTrip(req)
}

func newRecordingServer(t *testing.T, record func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{}"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newRedirectServer(t *testing.T, location string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, location, http.StatusFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}
