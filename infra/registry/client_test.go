package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/verify", r.URL.Path)
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds["cp_id"] == "CP1" && creds["password"] == "secret" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL})

	ok, err := c.Verify(context.Background(), "CP1", "CP1", "secret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Verify(context.Background(), "CP1", "CP1", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyTransportError(t *testing.T) {
	c := NewClient(Config{URL: "http://127.0.0.1:1", TimeoutSeconds: 1})
	ok, err := c.Verify(context.Background(), "CP1", "CP1", "secret")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/list", r.URL.Path)
		_, _ = w.Write([]byte(`{"charging_points":[{"cp_id":"CP1","city":"Paris","price_per_kwh":0.4}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL})
	entries, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "CP1", entries[0].CPID)
	assert.Equal(t, "Paris", entries[0].City)
	assert.InDelta(t, 0.4, entries[0].Price, 1e-9)
}

func TestListNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL})
	_, err := c.List(context.Background())
	assert.Error(t, err)
}
