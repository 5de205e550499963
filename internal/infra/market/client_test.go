package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:           baseURL,
		Timeout:           2 * time.Second,
		RequestsPerSecond: 1000,
	})
}

func TestLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbol") {
		case "AAPL":
			_, _ = w.Write([]byte(`{"price": 211.5, "change": 1.25, "change_percent": 0.59}`))
		case "NVDA":
			// finnhub-style field names
			_, _ = w.Write([]byte(`{"c": 131.2, "d": -2.1, "dp": -1.57}`))
		case "BAD":
			_, _ = w.Write([]byte(`{"price": null, "change": 0, "change_percent": 0}`))
		default:
			http.Error(w, "unknown symbol", http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := testClient(server.URL)
	quotes := client.Lookup(context.Background(), []string{"AAPL", "NVDA", "BAD", "MISSING"})

	if len(quotes) != 2 {
		t.Fatalf("quotes length = %d, want 2 (bad and missing symbols skipped)", len(quotes))
	}
	if quotes[0].Symbol != "AAPL" || quotes[0].Price != 211.5 {
		t.Errorf("quotes[0] = %+v", quotes[0])
	}
	if quotes[1].Symbol != "NVDA" || quotes[1].ChangePercent != -1.57 {
		t.Errorf("quotes[1] = %+v", quotes[1])
	}
}

func TestLookupDisabled(t *testing.T) {
	client := NewClient(Config{})
	if client.Enabled() {
		t.Error("client without BaseURL must report disabled")
	}
	if quotes := client.Lookup(context.Background(), []string{"AAPL"}); quotes != nil {
		t.Errorf("Lookup() = %v, want nil when disabled", quotes)
	}
}

func TestLookupSendsBearer(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"price": 1, "change": 0, "change_percent": 0}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "token123", RequestsPerSecond: 1000})
	client.Lookup(context.Background(), []string{"SPY"})

	if gotAuth != "Bearer token123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}
