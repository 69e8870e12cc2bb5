package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	clierr "github.com/gustavo/advisor-cli/internal/errors"
)

func TestDoJSONDecodesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"price": 1.5}`))
	}))
	defer srv.Close()

	client := New(2 * time.Second)
	var out struct {
		Price float64 `json:"price"`
	}
	if _, err := client.GetJSON(context.Background(), srv.URL, nil, &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.Price != 1.5 {
		t.Fatalf("price = %v, want 1.5", out.Price)
	}
}

func TestDoJSONStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		code   clierr.Code
	}{
		{http.StatusTooManyRequests, clierr.CodeRateLimited},
		{http.StatusUnauthorized, clierr.CodeAuth},
		{http.StatusForbidden, clierr.CodeAuth},
		{http.StatusInternalServerError, clierr.CodeUnavailable},
		{http.StatusNotFound, clierr.CodeUnavailable},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		client := New(2 * time.Second)
		_, err := client.GetJSON(context.Background(), srv.URL, nil, nil)
		srv.Close()
		if !clierr.Is(err, tc.code) {
			t.Fatalf("status %d mapped to %v, want code %d", tc.status, err, tc.code)
		}
	}
}

func TestDoJSONEmptyBodyIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client := New(2 * time.Second)
	var out map[string]any
	_, err := client.GetJSON(context.Background(), srv.URL, nil, &out)
	if !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("empty body error = %v, want unavailable", err)
	}
}
