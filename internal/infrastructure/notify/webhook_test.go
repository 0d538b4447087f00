package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/types"
	"stockflow/internal/domain/order"
	"stockflow/internal/domain/transfer"
)

func TestNewWebhook_DisabledWithoutURL(t *testing.T) {
	assert.Nil(t, NewWebhook(Config{URL: "  "}, nil))
}

func TestWebhook_Send(t *testing.T) {
	var got payload
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	w := NewWebhook(Config{URL: srv.URL + "/notify"}, nil)
	require.NoError(t, w.Send(context.Background(), ChatOrders, "hello"))

	assert.Equal(t, "/notify/whatsapp/send-text", path)
	assert.Equal(t, payload{Chat: "pedidos", Message: "hello"}, got)
}

func TestWebhook_ChatOverride(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	w := NewWebhook(Config{URL: srv.URL + "/", Chat: ChatTest}, nil)
	require.NoError(t, w.Send(context.Background(), ChatTransfers, "x"))
	assert.Equal(t, ChatTest, got.Chat)
}

func TestWebhook_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"Unknown alias: x"}`))
	}))
	defer srv.Close()

	err := NewWebhook(Config{URL: srv.URL}, nil).Send(context.Background(), "x", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "Unknown alias: x")
}

func TestWebhook_RejectsEmptyMessage(t *testing.T) {
	w := NewWebhook(Config{URL: "http://127.0.0.1:1"}, nil)
	assert.Error(t, w.Send(context.Background(), ChatOrders, " "))
}

func TestMessages(t *testing.T) {
	tr := &transfer.Result{
		DisplayName: "WH/INT/00042",
		Origin:      "Transfer Bodega -> Tienda",
		Lines: []transfer.LineResult{
			{ProductID: 1, Label: "[CAB] Cable", Quantity: types.NewQuantityFromFloat64(4)},
			{ProductID: 2, Label: "Plug", Quantity: types.NewQuantityFromFloat64(1.5)},
		},
	}
	assert.Equal(t, "*New transfer*\nRef: WH/INT/00042\nTransfer Bodega -> Tienda\n• 4 x [CAB] Cable\n• 1.5 x Plug", TransferMessage(tr))

	or := &order.Result{
		Reference: "18",
		Lines:     []order.LineResult{{ProductID: 1, Name: "Cable", Quantity: types.NewQuantityFromFloat64(2)}},
	}
	assert.Equal(t, "*New order*\nRef: 18\nClient: (no name)\n• 2 x Cable", OrderMessage(or))
}

type recordingSender struct{ chat, message string }

func (r *recordingSender) Send(_ context.Context, chat, message string) error {
	r.chat, r.message = chat, message
	return nil
}

func TestHooks(t *testing.T) {
	s := &recordingSender{}
	require.NoError(t, OrderHook(s)(context.Background(), &order.Result{Reference: "1", Client: "Ana"}))
	assert.Equal(t, ChatOrders, s.chat)
	assert.Contains(t, s.message, "Client: Ana")

	require.NoError(t, TransferHook(s)(context.Background(), &transfer.Result{DisplayName: "WH/INT/1"}))
	assert.Equal(t, ChatTransfers, s.chat)
}
