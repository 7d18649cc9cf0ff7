package proxmox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvescope/internal/config"
	"pvescope/internal/fetch"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClient points a real client at a local test server.
func testClient(t *testing.T, creds config.ServerConfig, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(creds, time.Second, testLogger())
	c.baseURL = srv.URL + "/api2/json"
	c.httpc = srv.Client()
	return c
}

func passwordCreds() config.ServerConfig {
	return config.ServerConfig{Host: "pve1.example.com", Username: "root@pam", Password: "secret"}
}

func TestTicketLoginAndCookie(t *testing.T) {
	logins := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api2/json/access/ticket", func(w http.ResponseWriter, r *http.Request) {
		logins++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "root@pam", r.Form.Get("username"))
		assert.Equal(t, "secret", r.Form.Get("password"))
		fmt.Fprint(w, `{"data":{"ticket":"PVE:ticket","CSRFPreventionToken":"csrf-token"}}`)
	})
	mux.HandleFunc("GET /api2/json/nodes", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("PVEAuthCookie")
		require.NoError(t, err)
		assert.Equal(t, "PVE:ticket", cookie.Value)
		assert.Equal(t, "csrf-token", r.Header.Get("CSRFPreventionToken"))
		fmt.Fprint(w, `{"data":[{"node":"pve1","status":"online","maxcpu":32}]}`)
	})

	c := testClient(t, passwordCreds(), mux)
	nodes, err := c.ListNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "pve1", nodes[0].Node)

	// second call reuses the ticket
	_, err = c.ListNodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, logins)
}

func TestTokenAuthSkipsLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api2/json/access/ticket", func(w http.ResponseWriter, r *http.Request) {
		t.Error("token auth must not hit the ticket endpoint")
	})
	mux.HandleFunc("GET /api2/json/nodes", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PVEAPIToken=monitor@pve!scope=aaaa-bbbb", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data":[]}`)
	})

	creds := config.ServerConfig{
		Host: "pve1.example.com", Username: "monitor@pve",
		TokenID: "scope", TokenSecret: "aaaa-bbbb",
	}
	c := testClient(t, creds, mux)
	_, err := c.ListNodes(context.Background())
	require.NoError(t, err)
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		code      int
		transient bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
		{http.StatusBadRequest, false},
	}
	for _, tc := range cases {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api2/json/nodes", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
		})
		creds := config.ServerConfig{Host: "h", Username: "u@pve", TokenID: "t", TokenSecret: "s"}
		c := testClient(t, creds, mux)

		_, err := c.ListNodes(context.Background())
		require.Error(t, err, "HTTP %d", tc.code)

		var transient *fetch.TransientError
		var permanent *fetch.PermanentError
		if tc.transient {
			assert.ErrorAs(t, err, &transient, "HTTP %d must be transient", tc.code)
		} else {
			assert.ErrorAs(t, err, &permanent, "HTTP %d must be permanent", tc.code)
		}
	}
}

func TestDialFailureIsTransient(t *testing.T) {
	creds := config.ServerConfig{Host: "h", Username: "u@pve", TokenID: "t", TokenSecret: "s"}
	c := NewClient(creds, time.Second, testLogger())
	c.baseURL = "http://127.0.0.1:1/api2/json"

	_, err := c.ListNodes(context.Background())
	require.Error(t, err)
	var transient *fetch.TransientError
	assert.ErrorAs(t, err, &transient)
}

func TestVMConfigDecodesMixedValueTypes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api2/json/nodes/pve1/qemu/101/config", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"cores":4,"memory":"8192","scsi0":"local-lvm:vm-101-disk-0,size=32G","template":1}}`)
	})
	creds := config.ServerConfig{Host: "h", Username: "u@pve", TokenID: "t", TokenSecret: "s"}
	c := testClient(t, creds, mux)

	cfg, err := c.VMConfig(context.Background(), "pve1", 101)
	require.NoError(t, err)
	assert.Equal(t, float64(4), cfg["cores"])
	assert.Equal(t, "8192", cfg["memory"])
}

func TestNumTolerantDecoding(t *testing.T) {
	var payload struct {
		A Num `json:"a"`
		B Num `json:"b"`
		C Num `json:"c"`
		D Num `json:"d"`
		E Num `json:"e"`
	}
	data := `{"a":4,"b":"8192","c":null,"d":"not-a-number","e":0.25}`
	require.NoError(t, json.Unmarshal([]byte(data), &payload))

	v, ok := payload.A.Float64()
	assert.True(t, ok)
	assert.Equal(t, 4.0, v)

	v, ok = payload.B.Float64()
	assert.True(t, ok)
	assert.Equal(t, 8192.0, v)

	_, ok = payload.C.Float64()
	assert.False(t, ok, "null is invalid, not zero")
	_, ok = payload.D.Float64()
	assert.False(t, ok, "garbage never fails the decode, it is just invalid")

	assert.Equal(t, 0.25, payload.E.Or(0))
	assert.Equal(t, 7.0, payload.C.Or(7))
}

func TestNumUint64ClampsNegative(t *testing.T) {
	n := Num{Value: -5, Valid: true}
	v, ok := n.Uint64()
	assert.False(t, ok)
	assert.Zero(t, v)
}
