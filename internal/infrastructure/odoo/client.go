// Package odoo implements erp.Invoker over the ERP's JSON-RPC endpoint.
package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockflow/internal/core/apperror"
	"stockflow/internal/erp"
	"stockflow/pkg/logger"
)

var tracer = otel.Tracer("stockflow/odoo")

var _ erp.Invoker = (*Client)(nil)

// DefaultTimeout bounds every individual remote call.
const DefaultTimeout = 12 * time.Second

// Config holds connection settings.
type Config struct {
	URL      string
	Database string
	Username string
	Password string
	Timeout  time.Duration
}

// Client talks to /jsonrpc. It logs in lazily and caches the uid.
type Client struct {
	cfg  Config
	http *http.Client
	seq  atomic.Int64

	mu  sync.RWMutex
	uid int64
}

// NewClient creates a Client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, http: httpClient}
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

// text returns the most specific human-readable message in the envelope.
func (e *rpcError) text() string {
	if msg := strings.TrimSpace(e.Data.Message); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	return "remote call failed"
}

// Invoke implements erp.Invoker via object.execute_kw.
func (c *Client) Invoke(ctx context.Context, call erp.Call) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "odoo.execute_kw",
		trace.WithAttributes(
			attribute.String("erp.model", call.Model),
			attribute.String("erp.method", call.Method),
		))
	defer span.End()

	start := time.Now()
	raw, err := c.invoke(ctx, call)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Debug(ctx, "remote call failed",
			"call", call.String(), "latency_ms", time.Since(start).Milliseconds(), "error", err)
		return nil, err
	}
	logger.Debug(ctx, "remote call", "call", call.String(), "latency_ms", time.Since(start).Milliseconds())
	return raw, nil
}

func (c *Client) invoke(ctx context.Context, call erp.Call) (json.RawMessage, error) {
	uid, err := c.login(ctx)
	if err != nil {
		return nil, err
	}

	args := call.Args
	if args == nil {
		args = []any{}
	}
	kwargs := call.Kwargs
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	return c.rpc(ctx, call, "object", "execute_kw",
		[]any{c.cfg.Database, uid, c.cfg.Password, call.Model, call.Method, args, kwargs})
}

// login returns the cached uid, authenticating on first use.
func (c *Client) login(ctx context.Context) (int64, error) {
	c.mu.RLock()
	uid := c.uid
	c.mu.RUnlock()
	if uid > 0 {
		return uid, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uid > 0 {
		return c.uid, nil
	}

	call := erp.Call{Model: "common", Method: "login"}
	raw, err := c.rpc(ctx, call, "common", "login", []any{c.cfg.Database, c.cfg.Username, c.cfg.Password})
	if err != nil {
		return 0, err
	}
	var got int64
	if err := json.Unmarshal(raw, &got); err != nil || got <= 0 {
		return 0, apperror.NewRemote("common", "login", "ERP authentication failed")
	}
	c.uid = got
	return got, nil
}

// Ping authenticates against the ERP; used by readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.login(ctx)
	return err
}

func (c *Client) rpc(ctx context.Context, call erp.Call, service, method string, args []any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      c.seq.Add(1),
	})
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("encode %s: %w", call, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/jsonrpc", bytes.NewReader(body))
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperror.NewTimeout(call.Model, call.Method, err)
		}
		return nil, apperror.NewRemote(call.Model, call.Method, err.Error()).
			WithDetail("transport", true).WithCause(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperror.NewTimeout(call.Model, call.Method, err)
		}
		return nil, apperror.NewRemote(call.Model, call.Method, err.Error()).
			WithDetail("transport", true).WithCause(err)
	}

	var out rpcResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		return nil, apperror.NewRemote(call.Model, call.Method, msg).
			WithDetail("transport", resp.StatusCode >= 500).WithCause(err)
	}
	if out.Error != nil {
		return nil, apperror.NewRemote(call.Model, call.Method, out.Error.text()).
			WithDetail("remote_code", out.Error.Code)
	}
	return out.Result, nil
}
