package device

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/venturus/cdm-teller/internal/errors"
)

// scriptedSense serves a sequence of SR2/S1/S2 snapshots, one per poll,
// repeating the last one once exhausted.
func scriptedSense(t *testing.T, snapshots []map[string]string) (*Client, *atomic.Int32) {
	t.Helper()

	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/sense", func(w http.ResponseWriter, r *http.Request) {
		i := int(polls.Add(1)) - 1
		if i >= len(snapshots) {
			i = len(snapshots) - 1
		}
		snap := snapshots[i]
		fmt.Fprintf(w, `{"interpretacion": {"S1": %q, "S2": %q, "SR2": %q, "D2": %q}}`,
			snap["S1"], snap["S2"], snap["SR2"], snap["D2"])
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig(srv.URL)
	cfg.RequestTimeout = time.Second
	return NewClient(cfg), &polls
}

func TestWaitUntilResolvesOnFirstSatisfyingSnapshot(t *testing.T) {
	c, polls := scriptedSense(t, []map[string]string{
		{"SR2": "0x41 Counting"},
		{"SR2": "0x41 Counting"},
		{"SR2": "0x07 Ready to count"},
	})

	err := c.WaitReady(context.Background(), WaitOptions{
		Interval: 5 * time.Millisecond,
		Timeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
	if got := polls.Load(); got != 3 {
		t.Errorf("polls = %d, want 3 (resolve on first satisfying snapshot)", got)
	}
}

func TestWaitUntilTimeout(t *testing.T) {
	c, _ := scriptedSense(t, []map[string]string{
		{"SR2": "0x41 Counting"},
	})

	err := c.WaitReady(context.Background(), WaitOptions{
		Interval: 5 * time.Millisecond,
		Timeout:  40 * time.Millisecond,
	})
	if !errors.Is(err, errors.ErrWaitTimeout) {
		t.Fatalf("error = %v, want wait timeout", err)
	}
}

func TestWaitUntilContextCancel(t *testing.T) {
	c, _ := scriptedSense(t, []map[string]string{
		{"SR2": "0x41 Counting"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := c.WaitReady(ctx, WaitOptions{Interval: 5 * time.Millisecond})
	if !errors.Is(err, errors.ErrCanceled) {
		t.Fatalf("error = %v, want canceled", err)
	}
}

func TestWaitEscrowDoorClosedNeedsBothConditions(t *testing.T) {
	// Door closed but not ready, then ready but door open, then both.
	c, polls := scriptedSense(t, []map[string]string{
		{"S1": "0x01 Escrow door closed", "SR2": "0x41 Counting"},
		{"S1": "0x02 Escrow door open", "SR2": "0x07 Ready to count"},
		{"S1": "0x01 Escrow door closed", "SR2": "0x07 Ready to count"},
	})

	err := c.WaitEscrowDoorClosed(context.Background(), WaitOptions{
		Interval: 5 * time.Millisecond,
		Timeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("WaitEscrowDoorClosed() error = %v", err)
	}
	if got := polls.Load(); got != 3 {
		t.Errorf("polls = %d, want 3", got)
	}
}

func TestWaitCancelCompleteNeedsStandByAndLoginMode(t *testing.T) {
	c, _ := scriptedSense(t, []map[string]string{
		{"SR2": "0x04 Stand by", "S2": "0x02 Operator mode"},
		{"SR2": "0x04 Stand by", "S2": "0x00 Login mode"},
	})

	err := c.WaitCancelComplete(context.Background(), WaitOptions{
		Interval: 5 * time.Millisecond,
		Timeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("WaitCancelComplete() error = %v", err)
	}
}

func TestWaitUntilObserverSeesFreshSnapshots(t *testing.T) {
	c, _ := scriptedSense(t, []map[string]string{
		{"SR2": "0x41 Counting"},
		{"SR2": "0x04 Stand by"},
	})

	var seen []Code
	err := c.WaitCountDone(context.Background(), WaitOptions{
		Interval: 5 * time.Millisecond,
		Timeout:  time.Second,
		OnStatus: func(s *Status) {
			seen = append(seen, s.SR2.Code)
		},
	})
	if err != nil {
		t.Fatalf("WaitCountDone() error = %v", err)
	}
	if len(seen) != 2 || seen[0] != CodeCounting || seen[1] != CodeStandBy {
		t.Errorf("observed codes = %v", seen)
	}
}

func TestWaitUntilToleratesFailedPolls(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/sense", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"interpretacion": {"SR2": "0x07 Ready to count"}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig(srv.URL)
	c := NewClient(cfg)

	err := c.WaitReady(context.Background(), WaitOptions{
		Interval: 5 * time.Millisecond,
		Timeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
}
