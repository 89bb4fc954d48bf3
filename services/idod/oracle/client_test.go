package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func quotationServer(t *testing.T, price string, published time.Time) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ASTR/USD", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"Symbol": "ASTR",
			"Price":  json.Number(price),
			"Time":   published,
		})
	}))
}

func TestRefreshCachesScaledQuote(t *testing.T) {
	published := time.Unix(1_700_000_000, 0).UTC()
	srv := quotationServer(t, "0.0721", published)
	defer srv.Close()

	client := New(srv.URL, "ASTR/USD")
	require.NoError(t, client.Refresh(context.Background()))

	value, ts, err := client.Value("ASTR/USD")
	require.NoError(t, err)
	require.Equal(t, int64(7_210_000), value.Int64())
	require.Equal(t, published.Unix(), ts)
}

func TestValueBeforeFirstRefresh(t *testing.T) {
	client := New("http://localhost", "ASTR/USD")
	_, _, err := client.Value("ASTR/USD")
	require.Error(t, err)
}

func TestValueRejectsUnknownKey(t *testing.T) {
	srv := quotationServer(t, "0.1", time.Now())
	defer srv.Close()
	client := New(srv.URL, "ASTR/USD")
	require.NoError(t, client.Refresh(context.Background()))

	_, _, err := client.Value("DOT/USD")
	require.Error(t, err)
}

func TestRefreshKeepsLastValueOnFailure(t *testing.T) {
	published := time.Unix(1_700_000_000, 0).UTC()
	srv := quotationServer(t, "0.1", published)
	client := New(srv.URL, "ASTR/USD")
	require.NoError(t, client.Refresh(context.Background()))
	srv.Close()

	require.Error(t, client.Refresh(context.Background()))
	value, _, err := client.Value("ASTR/USD")
	require.NoError(t, err)
	require.Equal(t, int64(10_000_000), value.Int64())
}

func TestRefreshRejectsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(srv.URL, "ASTR/USD")
	require.Error(t, client.Refresh(context.Background()))
}

func TestPriceToE8(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0.1", 10_000_000},
		{"1", 100_000_000},
		{"0.00000001", 1},
		// Precision beyond 1e-8 truncates.
		{"0.000000015", 1},
		{"12.34567891", 1_234_567_891},
		{"0", 0},
	}
	for _, tc := range cases {
		got, err := priceToE8(json.Number(tc.in))
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got.Int64(), tc.in)
	}

	_, err := priceToE8(json.Number("-0.1"))
	require.Error(t, err)
	_, err = priceToE8(json.Number("banana"))
	require.Error(t, err)
}
