package netmon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestProberDetectsOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewProber(ProberConfig{URL: srv.URL, Interval: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	defer p.Stop()

	waitFor(t, 2*time.Second, p.Online)

	select {
	case online := <-p.Events():
		if !online {
			t.Error("expected online transition event")
		}
	case <-time.After(time.Second):
		t.Error("expected a transition event")
	}
}

func TestProberDetectsOutage(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			// Hijack and drop to simulate an unreachable host.
			hj, ok := w.(http.Hijacker)
			if ok {
				conn, _, _ := hj.Hijack()
				conn.Close()
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewProber(ProberConfig{URL: srv.URL, Interval: 20 * time.Millisecond, ProbeTimeout: 100 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	defer p.Stop()

	waitFor(t, 2*time.Second, p.Online)
	<-p.Events() // online transition

	fail.Store(true)
	waitFor(t, 2*time.Second, func() bool { return !p.Online() })

	select {
	case online := <-p.Events():
		if online {
			t.Error("expected offline transition event")
		}
	case <-time.After(time.Second):
		t.Error("expected a transition event")
	}
}

func TestProberEmitsTransitionsOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewProber(ProberConfig{URL: srv.URL, Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	defer p.Stop()

	waitFor(t, 2*time.Second, p.Online)
	<-p.Events()

	// Stable connectivity across several probe cycles emits nothing.
	time.Sleep(100 * time.Millisecond)
	select {
	case <-p.Events():
		t.Error("steady state must not emit events")
	default:
	}
}

func TestManualMonitor(t *testing.T) {
	m := NewManual(false)
	if m.Online() {
		t.Error("expected offline")
	}

	m.SetOnline(true)
	if !m.Online() {
		t.Error("expected online")
	}
	select {
	case online := <-m.Events():
		if !online {
			t.Error("expected online event")
		}
	default:
		t.Error("expected an event")
	}

	// Setting the same state again emits nothing.
	m.SetOnline(true)
	select {
	case <-m.Events():
		t.Error("no event expected for unchanged state")
	default:
	}
}
