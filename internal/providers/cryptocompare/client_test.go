package cryptocompare

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	clierr "github.com/gustavo/advisor-cli/internal/errors"
	"github.com/gustavo/advisor-cli/internal/httpx"
)

func TestQuoteParsesPriceAndChange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("fsyms"); got != "PEPE" {
			t.Errorf("fsyms = %q, want PEPE", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"RAW":{"PEPE":{"USD":{"PRICE":0.0000012,"CHANGEPCT24HOUR":-12.5}}}}`))
	}))
	defer srv.Close()

	client := New(httpx.New(5*time.Second), srv.URL, "")
	quote, err := client.Quote(context.Background(), "pepe")
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if quote.Price != 0.0000012 || quote.Change24h != -12.5 {
		t.Fatalf("unexpected quote: %+v", quote)
	}
}

func TestQuoteMissingSymbolIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"RAW":{}}`))
	}))
	defer srv.Close()

	client := New(httpx.New(5*time.Second), srv.URL, "")
	_, err := client.Quote(context.Background(), "WIF")
	if !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestQuoteSurfacesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := New(httpx.New(5*time.Second), srv.URL, "")
	_, err := client.Quote(context.Background(), "BONK")
	if !clierr.Is(err, clierr.CodeRateLimited) {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
}

func TestHistoryOrdersPointsAndSetsInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "7" {
			t.Errorf("limit = %q, want 7", got)
		}
		_, _ = w.Write([]byte(`{"Response":"Success","Data":{"Data":[{"time":1700000000,"close":1.5},{"time":1700086400,"close":1.6}]}}`))
	}))
	defer srv.Close()

	client := New(httpx.New(5*time.Second), srv.URL, "")
	history, err := client.History(context.Background(), "WIF", 7)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if history.Symbol != "WIF" || history.Interval != "1d" {
		t.Fatalf("unexpected history metadata: %+v", history)
	}
	if len(history.Points) != 2 || history.Points[0].Timestamp != 1700000000 {
		t.Fatalf("unexpected points: %+v", history.Points)
	}
}

func TestHistoryUpstreamErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Response":"Error","Message":"limit exceeded"}`))
	}))
	defer srv.Close()

	client := New(httpx.New(5*time.Second), srv.URL, "")
	_, err := client.History(context.Background(), "WIF", 7)
	if !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
