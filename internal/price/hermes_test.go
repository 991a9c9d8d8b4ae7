package price

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const solFeed = "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"

func TestHermesClient_Price(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/updates/price/latest", r.URL.Path)
		assert.Equal(t, []string{solFeed}, r.URL.Query()["ids[]"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"binary":{"encoding":"hex","data":[]},"parsed":[
			{"id":"` + solFeed + `","price":{"price":"15123456789","conf":"1","expo":-8,"publish_time":1700000000}}
		]}`))
	}))
	defer server.Close()

	client := NewHermesClient(server.URL+"/", map[string]string{"sol": "0x" + solFeed})

	p, err := client.Price(context.Background(), "SOL")
	require.NoError(t, err)
	assert.InDelta(t, 151.23456789, p, 1e-9)
}

func TestHermesClient_UnsupportedAsset(t *testing.T) {
	client := NewHermesClient("http://unused", map[string]string{"SOL": solFeed})

	_, err := client.Price(context.Background(), "BONK")
	assert.True(t, errors.Is(err, ErrUnsupportedAsset))
}

func TestHermesClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `oops`},
		{"empty parsed", http.StatusOK, `{"parsed":[]}`},
		{"bad price", http.StatusOK, `{"parsed":[{"id":"` + solFeed + `","price":{"price":"abc","expo":-8}}]}`},
		{"non-positive price", http.StatusOK, `{"parsed":[{"id":"` + solFeed + `","price":{"price":"0","expo":-8}}]}`},
		{"malformed json", http.StatusOK, `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewHermesClient(server.URL, map[string]string{"SOL": solFeed}).Price(context.Background(), "SOL")
			assert.Error(t, err)
		})
	}
}
