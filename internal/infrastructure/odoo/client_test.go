package odoo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/erp"
)

type fakeServer struct {
	logins atomic.Int32
	answer func(req rpcRequest) string

	mu   sync.Mutex
	last rpcRequest
}

func (f *fakeServer) lastRequest() rpcRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	w.Header().Set("Content-Type", "application/json")
	if req.Params.Service == "common" {
		f.logins.Add(1)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":7}`))
		return
	}
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	_, _ = w.Write([]byte(f.answer(req)))
}

func newTestClient(t *testing.T, fs *fakeServer, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return NewClient(Config{URL: srv.URL + "/", Database: "db", Username: "u", Password: "p", Timeout: timeout}, srv.Client())
}

func TestClient_ExecuteKwEnvelope(t *testing.T) {
	fs := &fakeServer{answer: func(rpcRequest) string {
		return `{"jsonrpc":"2.0","id":2,"result":[{"id":5}]}`
	}}
	c := newTestClient(t, fs, time.Second)

	raw, err := c.Invoke(context.Background(), erp.Call{
		Model:  "stock.picking",
		Method: "read",
		Args:   []any{[]int64{5}, []string{"state"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":5}]`, string(raw))

	last := fs.lastRequest()
	assert.Equal(t, "object", last.Params.Service)
	assert.Equal(t, "execute_kw", last.Params.Method)
	require.Len(t, last.Params.Args, 7)
	assert.Equal(t, "db", last.Params.Args[0])
	assert.Equal(t, float64(7), last.Params.Args[1])
	assert.Equal(t, "stock.picking", last.Params.Args[3])
	assert.Equal(t, "read", last.Params.Args[4])
	assert.Equal(t, map[string]any{}, last.Params.Args[6])
}

func TestClient_LoginIsCached(t *testing.T) {
	fs := &fakeServer{answer: func(rpcRequest) string { return `{"result":true}` }}
	c := newTestClient(t, fs, time.Second)

	for i := 0; i < 3; i++ {
		_, err := c.Invoke(context.Background(), erp.Call{Model: "stock.picking", Method: "write"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fs.logins.Load())
}

func TestClient_RemoteErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "data message preferred",
			body: `{"error":{"code":200,"message":"Odoo Server Error","data":{"name":"odoo.exceptions.UserError","message":"No quantity to validate"}}}`,
			want: "No quantity to validate",
		},
		{
			name: "top-level message fallback",
			body: `{"error":{"code":200,"message":"Odoo Server Error"}}`,
			want: "Odoo Server Error",
		},
		{
			name: "empty envelope",
			body: `{"error":{}}`,
			want: "remote call failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body
			fs := &fakeServer{answer: func(rpcRequest) string { return body }}
			c := newTestClient(t, fs, time.Second)

			_, err := c.Invoke(context.Background(), erp.Call{Model: "stock.picking", Method: "button_validate"})
			require.Error(t, err)
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperror.CodeRemote, appErr.Code)
			assert.Equal(t, tt.want, appErr.Message)
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Params.Service == "common" {
			_, _ = w.Write([]byte(`{"result":7}`))
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, Database: "db", Timeout: 50 * time.Millisecond}, srv.Client())
	_, err := c.Invoke(context.Background(), erp.Call{Model: "product.product", Method: "read"})
	require.Error(t, err)
	assert.True(t, apperror.IsTimeout(err), "got %v", err)
}

func TestClient_LoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":false}`))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL}, srv.Client())
	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, apperror.IsRemote(err))
}
