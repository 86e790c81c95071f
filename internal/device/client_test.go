package device

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/venturus/cdm-teller/internal/errors"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig(srv.URL)
	cfg.RequestTimeout = 2 * time.Second
	cfg.UnlockTimeout = 200 * time.Millisecond
	return NewClient(cfg), srv
}

func TestClientSense(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sense", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"SR2": "0x07 Ready to count",
			"interpretacion": {
				"S1": "0x01 Escrow door closed",
				"S2": "0x02 Operator mode",
				"SR2": "0x07 Ready to count",
				"D2": "0x00"
			}
		}`))
	})

	c, _ := newTestClient(t, mux)

	st, err := c.Sense(context.Background())
	if err != nil {
		t.Fatalf("Sense() error = %v", err)
	}
	if !st.ReadyToCount() {
		t.Error("expected ready-to-count")
	}
	if !st.EscrowDoorClosed {
		t.Error("expected escrow door closed")
	}
}

func TestClientSenseTransportFailure(t *testing.T) {
	cfg := DefaultClientConfig("http://127.0.0.1:1")
	cfg.RequestTimeout = 200 * time.Millisecond
	c := NewClient(cfg)

	if _, err := c.Sense(context.Background()); err == nil {
		t.Fatal("expected error for unreachable device")
	}
}

func TestClientStartTransaction(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			// The firmware reports errorCode 400 on acceptance.
			name:    "accepted",
			body:    `{"errorCode": 400, "message": "ok"}`,
			wantErr: false,
		},
		{
			name:    "rejected",
			body:    `{"errorCode": 500, "message": "device in use"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			var gotQuery string
			mux.HandleFunc("/flujo/iniciar-transaccion", func(w http.ResponseWriter, r *http.Request) {
				gotQuery = r.URL.RawQuery
				w.Write([]byte(tt.body))
			})

			c, _ := newTestClient(t, mux)
			err := c.StartTransaction(context.Background(), 1, 2, 1)
			if (err != nil) != tt.wantErr {
				t.Fatalf("StartTransaction() error = %v, wantErr %v", err, tt.wantErr)
			}
			if gotQuery != "modo=1&moneda=2&ntra=1" {
				t.Errorf("query = %q", gotQuery)
			}
		})
	}
}

func TestClientStartCount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/flujo/iniciar-conteo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"error": false,
			"registros": [
				{"dpmtrcode": 1, "dpmtrntra": 1, "dpmtrdsid": 3, "dpmtrcant": 5, "dpmtrstat": 0},
				{"dpmtrcode": 2, "dpmtrntra": 1, "dpmtrdsid": 4, "dpmtrcant": 2, "dpmtrstat": 0}
			],
			"message": "done"
		}`))
	})

	c, _ := newTestClient(t, mux)
	rows, err := c.StartCount(context.Background(), 2)
	if err != nil {
		t.Fatalf("StartCount() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].DenominationID != 3 || rows[0].Quantity != 5 {
		t.Errorf("row[0] = %+v", rows[0])
	}
}

func TestClientStartCountRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/flujo/iniciar-conteo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": true, "message": "hopper jam"}`))
	})

	c, _ := newTestClient(t, mux)
	_, err := c.StartCount(context.Background(), 2)
	if !errors.Is(err, errors.ErrDeviceRejected) {
		t.Fatalf("error = %v, want device rejection", err)
	}
}

func TestClientUnlockTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/unlock", func(w http.ResponseWriter, r *http.Request) {
		// Exceeds the client's unlock bound.
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte("ok"))
	})

	c, _ := newTestClient(t, mux)
	err := c.Unlock(context.Background())
	if !errors.Is(err, errors.ErrUnlockFailed) {
		t.Fatalf("error = %v, want unlock failure", err)
	}
}

func TestClientDenominations(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gbcucy/cortes/2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"gbcucygnid": 1, "gbcucydnid": 3, "gbcucycmon": 2, "gbcucydesc": "10", "gbcucyvlor": 10, "gbcucyseri": "A", "gbcucymrcb": 0},
			{"gbcucygnid": 2, "gbcucydnid": 4, "gbcucycmon": 2, "gbcucydesc": "20", "gbcucyvlor": 20, "gbcucyseri": "A", "gbcucymrcb": 0}
		]`))
	})

	c, _ := newTestClient(t, mux)
	denoms, err := c.Denominations(context.Background(), 2)
	if err != nil {
		t.Fatalf("Denominations() error = %v", err)
	}
	if len(denoms) != 2 {
		t.Fatalf("denoms = %d, want 2", len(denoms))
	}
	if denoms[1].Value != 20 {
		t.Errorf("denoms[1].Value = %d, want 20", denoms[1].Value)
	}
	// Quantity defaults to zero until merged with counting results.
	if denoms[0].Quantity != 0 {
		t.Errorf("denoms[0].Quantity = %d, want 0", denoms[0].Quantity)
	}
}
